package database

const (
	createAccountQuery = "INSERT INTO accounts (username, password_hash, created_at) " +
		"VALUES ($1, $2, $3) RETURNING id, username, password_hash, created_at"

	getAccountByIdQuery = "SELECT id, username, password_hash, created_at FROM accounts " +
		"WHERE id = $1 LIMIT 1"

	getAccountByUsernameQuery = "SELECT id, username, password_hash, created_at FROM accounts " +
		"WHERE username = $1 LIMIT 1"

	upsertConversationQuery = "INSERT INTO conversations (room_id, kind, participants, last_message_at, created_at, updated_at) " +
		"VALUES ($1, $2, $3, $4, $5, $5) " +
		"ON CONFLICT (room_id) DO UPDATE SET last_message_at = EXCLUDED.last_message_at, updated_at = EXCLUDED.updated_at"

	insertMessageQuery = "INSERT INTO conversation_messages (room_id, sender, receiver, content, sent_at) " +
		"VALUES ($1, $2, $3, $4, $5)"

	incrUnreadQuery = "INSERT INTO unread_counts (room_id, user_id, count) VALUES ($1, $2, 1) " +
		"ON CONFLICT (room_id, user_id) DO UPDATE SET count = unread_counts.count + 1"

	markMessagesReadQuery = "UPDATE conversation_messages SET read = true " +
		"WHERE room_id = $1 AND receiver = $2 AND NOT read"

	resetUnreadQuery = "UPDATE unread_counts SET count = 0 WHERE room_id = $1 AND user_id = $2"

	listConversationsQuery = `
		SELECT
			c.room_id,
			c.participants,
			m.content,
			m.sender,
			m.receiver,
			m.sent_at,
			m.read
		FROM conversations c
		LEFT JOIN LATERAL (
			SELECT content, sender, receiver, sent_at, read
			FROM conversation_messages
			WHERE room_id = c.room_id
			ORDER BY id DESC
			LIMIT 1
		) m ON true
		WHERE c.kind = 'private' AND $1 = ANY (c.participants)
		ORDER BY c.last_message_at DESC NULLS LAST, c.room_id`

	listUnreadCountsQuery = "SELECT room_id, user_id, count FROM unread_counts WHERE room_id = ANY ($1)"

	listGroupMessagesQuery = "SELECT content, sender, receiver, sent_at, read FROM conversation_messages " +
		"WHERE room_id = $1 ORDER BY sent_at DESC, id DESC"

	listRoomMessagesQuery = "SELECT content, sender, receiver, sent_at, read FROM conversation_messages " +
		"WHERE room_id = $1 ORDER BY id LIMIT $2 OFFSET $3"
)
