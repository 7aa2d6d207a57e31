package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"

	"github.com/npezzotti/go-chatroom/internal/types"
)

type PgGoChatRepository struct {
	conn *sql.DB
}

var _ GoChatRepository = (*PgGoChatRepository)(nil)

func NewPgGoChatRepository(db *sql.DB) *PgGoChatRepository {
	return &PgGoChatRepository{conn: db}
}

func (db *PgGoChatRepository) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *PgGoChatRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

func (db *PgGoChatRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (Account, error) {
	row := db.conn.QueryRowContext(ctx, createAccountQuery,
		params.Username,
		params.PasswordHash,
		time.Now().UTC(),
	)
	return scanAccount(row)
}

func (db *PgGoChatRepository) GetAccountById(ctx context.Context, id types.ID) (Account, error) {
	n, err := strconv.Atoi(id.String())
	if err != nil {
		return Account{}, ErrNotFound
	}
	return scanAccount(db.conn.QueryRowContext(ctx, getAccountByIdQuery, n))
}

func (db *PgGoChatRepository) GetAccountByUsername(ctx context.Context, username string) (Account, error) {
	return scanAccount(db.conn.QueryRowContext(ctx, getAccountByUsernameQuery, username))
}

func scanAccount(row *sql.Row) (Account, error) {
	var a Account
	err := row.Scan(
		&a.Id,
		&a.Username,
		&a.PasswordHash,
		&a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	return a, err
}

func (db *PgGoChatRepository) RecordGroupMessage(ctx context.Context, roomId string, msg types.Message) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, upsertConversationQuery,
		roomId,
		kindGroup,
		pq.Array([]string{}),
		msg.Date,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert group conversation: %w", err)
	}

	_, err = tx.ExecContext(ctx, insertMessageQuery,
		roomId,
		msg.From.String(),
		"",
		msg.Message,
		msg.Date,
	)
	if err != nil {
		return fmt.Errorf("insert group message: %w", err)
	}

	err = tx.Commit()
	return err
}

func (db *PgGoChatRepository) RecordPrivateMessage(ctx context.Context, sender, receiver types.ID, roomKey string, msg types.Message) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, upsertConversationQuery,
		roomKey,
		kindPrivate,
		pq.Array([]string{sender.String(), receiver.String()}),
		msg.Date,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert private conversation: %w", err)
	}

	_, err = tx.ExecContext(ctx, insertMessageQuery,
		roomKey,
		sender.String(),
		receiver.String(),
		msg.Message,
		msg.Date,
	)
	if err != nil {
		return fmt.Errorf("insert private message: %w", err)
	}

	_, err = tx.ExecContext(ctx, incrUnreadQuery, roomKey, receiver.String())
	if err != nil {
		return fmt.Errorf("increment unread count: %w", err)
	}

	err = tx.Commit()
	return err
}

// MarkRead flags every message addressed to reader in the room as read and
// resets the reader's unread counter. Read flags never go back to false.
func (db *PgGoChatRepository) MarkRead(ctx context.Context, roomKey string, reader types.ID) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, markMessagesReadQuery, roomKey, reader.String()); err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}
	if _, err = tx.ExecContext(ctx, resetUnreadQuery, roomKey, reader.String()); err != nil {
		return fmt.Errorf("reset unread count: %w", err)
	}

	err = tx.Commit()
	return err
}

// ListConversations returns the user's private conversations, most recent
// message first.
func (db *PgGoChatRepository) ListConversations(ctx context.Context, userId types.ID) ([]types.Conversation, error) {
	rows, err := db.conn.QueryContext(ctx, listConversationsQuery, userId.String())
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	convs := make([]types.Conversation, 0)
	byRoom := make(map[string]int)
	for rows.Next() {
		var (
			roomId       string
			participants []string
			content      sql.NullString
			sender       sql.NullString
			receiver     sql.NullString
			sentAt       sql.NullInt64
			read         sql.NullBool
		)
		if err := rows.Scan(
			&roomId,
			pq.Array(&participants),
			&content,
			&sender,
			&receiver,
			&sentAt,
			&read,
		); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}

		conv := types.Conversation{
			RoomId:       roomId,
			Participants: make([]types.ID, len(participants)),
			UnreadCount:  make(map[types.ID]int),
		}
		for i, p := range participants {
			conv.Participants[i] = types.ID(p)
		}
		if content.Valid {
			conv.LastMessage = &types.ConversationMessage{
				Content:   content.String,
				Sender:    types.ID(sender.String),
				Receiver:  types.ID(receiver.String),
				Timestamp: sentAt.Int64,
				Read:      read.Bool,
			}
		}

		byRoom[roomId] = len(convs)
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if len(convs) == 0 {
		return convs, nil
	}

	roomIds := make([]string, len(convs))
	for i, c := range convs {
		roomIds[i] = c.RoomId
	}

	countRows, err := db.conn.QueryContext(ctx, listUnreadCountsQuery, pq.Array(roomIds))
	if err != nil {
		return nil, fmt.Errorf("list unread counts: %w", err)
	}
	defer countRows.Close()

	for countRows.Next() {
		var (
			roomId string
			userId string
			count  int
		)
		if err := countRows.Scan(&roomId, &userId, &count); err != nil {
			return nil, fmt.Errorf("scan unread count: %w", err)
		}
		if i, ok := byRoom[roomId]; ok {
			convs[i].UnreadCount[types.ID(userId)] = count
		}
	}
	if err := countRows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return convs, nil
}

// ListGroupMessages returns every message of a room, newest first.
func (db *PgGoChatRepository) ListGroupMessages(ctx context.Context, roomId string) ([]types.ConversationMessage, error) {
	rows, err := db.conn.QueryContext(ctx, listGroupMessagesQuery, roomId)
	if err != nil {
		return nil, fmt.Errorf("list group messages: %w", err)
	}
	return scanMessages(rows)
}

// ListRoomMessages pages through a room's messages in the order they were
// recorded.
func (db *PgGoChatRepository) ListRoomMessages(ctx context.Context, roomId string, limit, skip int) ([]types.ConversationMessage, error) {
	rows, err := db.conn.QueryContext(ctx, listRoomMessagesQuery, roomId, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("list room messages: %w", err)
	}
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]types.ConversationMessage, error) {
	defer rows.Close()

	msgs := make([]types.ConversationMessage, 0)
	for rows.Next() {
		var (
			m        types.ConversationMessage
			sender   string
			receiver string
		)
		if err := rows.Scan(&m.Content, &sender, &receiver, &m.Timestamp, &m.Read); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Sender = types.ID(sender)
		m.Receiver = types.ID(receiver)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return msgs, nil
}
