package database

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/npezzotti/go-chatroom/internal/types"
)

type MockGoChatRepository struct {
	mock.Mock
}

var _ GoChatRepository = (*MockGoChatRepository)(nil)

func (m *MockGoChatRepository) Ping(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockGoChatRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (Account, error) {
	args := m.Called(params)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockGoChatRepository) GetAccountById(ctx context.Context, id types.ID) (Account, error) {
	args := m.Called(id)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockGoChatRepository) GetAccountByUsername(ctx context.Context, username string) (Account, error) {
	args := m.Called(username)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockGoChatRepository) RecordGroupMessage(ctx context.Context, roomId string, msg types.Message) error {
	args := m.Called(roomId, msg)
	return args.Error(0)
}
func (m *MockGoChatRepository) RecordPrivateMessage(ctx context.Context, sender, receiver types.ID, roomKey string, msg types.Message) error {
	args := m.Called(sender, receiver, roomKey, msg)
	return args.Error(0)
}
func (m *MockGoChatRepository) MarkRead(ctx context.Context, roomKey string, reader types.ID) error {
	args := m.Called(roomKey, reader)
	return args.Error(0)
}
func (m *MockGoChatRepository) ListConversations(ctx context.Context, userId types.ID) ([]types.Conversation, error) {
	args := m.Called(userId)
	if convs, ok := args.Get(0).([]types.Conversation); ok {
		return convs, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockGoChatRepository) ListGroupMessages(ctx context.Context, roomId string) ([]types.ConversationMessage, error) {
	args := m.Called(roomId)
	if msgs, ok := args.Get(0).([]types.ConversationMessage); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockGoChatRepository) ListRoomMessages(ctx context.Context, roomId string, limit, skip int) ([]types.ConversationMessage, error) {
	args := m.Called(roomId, limit, skip)
	if msgs, ok := args.Get(0).([]types.ConversationMessage); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}
