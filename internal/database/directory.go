package database

import (
	"context"

	"github.com/npezzotti/go-chatroom/internal/types"
)

// UserDirectory resolves display names from the accounts table.
type UserDirectory struct {
	repo GoChatRepository
}

func NewUserDirectory(repo GoChatRepository) *UserDirectory {
	return &UserDirectory{repo: repo}
}

func (d *UserDirectory) Username(ctx context.Context, userId types.ID) (string, error) {
	a, err := d.repo.GetAccountById(ctx, userId)
	if err != nil {
		return "", err
	}
	return a.Username, nil
}
