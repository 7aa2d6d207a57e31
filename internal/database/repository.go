package database

import (
	"context"

	"github.com/npezzotti/go-chatroom/internal/types"
)

// ConversationStore is the authoritative record of conversations. Writes are
// not transactional with the message feed.
type ConversationStore interface {
	RecordGroupMessage(ctx context.Context, roomId string, msg types.Message) error
	// RecordPrivateMessage also increments the receiver's unread counter.
	RecordPrivateMessage(ctx context.Context, sender, receiver types.ID, roomKey string, msg types.Message) error
	MarkRead(ctx context.Context, roomKey string, reader types.ID) error
	ListConversations(ctx context.Context, userId types.ID) ([]types.Conversation, error)
	ListGroupMessages(ctx context.Context, roomId string) ([]types.ConversationMessage, error)
	ListRoomMessages(ctx context.Context, roomId string, limit, skip int) ([]types.ConversationMessage, error)
}

type GoChatRepository interface {
	ConversationStore
	Ping(ctx context.Context) error
	CreateAccount(ctx context.Context, params CreateAccountParams) (Account, error)
	GetAccountById(ctx context.Context, id types.ID) (Account, error)
	GetAccountByUsername(ctx context.Context, username string) (Account, error)
}
