package database

import (
	"strconv"
	"time"

	"github.com/npezzotti/go-chatroom/internal/types"
)

type Account struct {
	Id           int
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

func (a Account) User() types.User {
	return types.User{
		Id:        types.ID(strconv.Itoa(a.Id)),
		Username:  a.Username,
		CreatedAt: a.CreatedAt,
	}
}

type CreateAccountParams struct {
	Username     string
	PasswordHash string
}

const (
	kindGroup   = "group"
	kindPrivate = "private"
)
