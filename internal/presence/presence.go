// Package presence keeps the global set of online users in the shared store.
//
// The store only has set semantics. A user with several sockets must be
// reference counted by the caller, which should call MarkOffline only when
// its last socket for that user closes.
package presence

import (
	"context"
	"fmt"

	"github.com/npezzotti/go-chatroom/internal/kv"
	"github.com/npezzotti/go-chatroom/internal/types"
)

const onlineUsersKey = "online_users"

type Store struct {
	kv kv.Store
}

func NewStore(s kv.Store) *Store {
	return &Store{kv: s}
}

func (s *Store) MarkOnline(ctx context.Context, userId types.ID) error {
	if _, err := s.kv.SAdd(ctx, onlineUsersKey, userId.String()); err != nil {
		return fmt.Errorf("mark online: %w", err)
	}
	return nil
}

func (s *Store) MarkOffline(ctx context.Context, userId types.ID) error {
	if err := s.kv.SRem(ctx, onlineUsersKey, userId.String()); err != nil {
		return fmt.Errorf("mark offline: %w", err)
	}
	return nil
}

func (s *Store) IsOnline(ctx context.Context, userId types.ID) (bool, error) {
	ok, err := s.kv.SIsMember(ctx, onlineUsersKey, userId.String())
	if err != nil {
		return false, fmt.Errorf("is online: %w", err)
	}
	return ok, nil
}

func (s *Store) ListOnline(ctx context.Context) ([]types.ID, error) {
	members, err := s.kv.SMembers(ctx, onlineUsersKey)
	if err != nil {
		return nil, fmt.Errorf("list online: %w", err)
	}

	ids := make([]types.ID, len(members))
	for i, m := range members {
		ids[i] = types.ID(m)
	}
	return ids, nil
}
