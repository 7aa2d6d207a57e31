// Package rooms maintains the shared room index: which rooms each user
// belongs to, group room names, and the composite keys of private rooms.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/npezzotti/go-chatroom/internal/feed"
	"github.com/npezzotti/go-chatroom/internal/kv"
	"github.com/npezzotti/go-chatroom/internal/types"
	"github.com/teris-io/shortid"
)

const (
	// GeneralRoomId is the pre-defined room every user is placed in.
	GeneralRoomId   = "0"
	generalRoomName = "General"

	privateKeySep = ":"
)

var (
	ErrSameUser          = errors.New("private room requires two distinct users")
	ErrInvalidPrivateKey = errors.New("invalid private room key")
	ErrEmptyName         = errors.New("room name cannot be empty")
)

// UserDirectory resolves user display names.
type UserDirectory interface {
	Username(ctx context.Context, userId types.ID) (string, error)
}

type Index struct {
	kv    kv.Store
	users UserDirectory
}

func NewIndex(s kv.Store, users UserDirectory) *Index {
	return &Index{kv: s, users: users}
}

func userRoomsKey(userId types.ID) string {
	return "user:" + userId.String() + ":rooms"
}

func roomNameKey(roomId string) string {
	return "room:" + roomId + ":name"
}

func announcedKey(roomId string) string {
	return "room:" + roomId + ":announced"
}

// canonicalInt parses id as an integer only when it is written in canonical
// decimal form, so "01" and "+7" are not treated as numbers.
func canonicalInt(id types.ID) (int64, bool) {
	n, err := strconv.ParseInt(id.String(), 10, 64)
	if err != nil || strconv.FormatInt(n, 10) != id.String() {
		return 0, false
	}
	return n, true
}

// less orders identifiers numerically when both are canonical integers so
// that "2" sorts before "10", and lexicographically otherwise.
func less(a, b types.ID) bool {
	na, okA := canonicalInt(a)
	nb, okB := canonicalInt(b)
	if okA && okB {
		return na < nb
	}
	return a < b
}

// DerivePrivateKey returns the canonical private room key for two users.
// The result does not depend on argument order.
func DerivePrivateKey(a, b types.ID) string {
	if less(b, a) {
		a, b = b, a
	}
	return a.String() + privateKeySep + b.String()
}

// IsPrivateKey reports whether roomId names a private room.
func IsPrivateKey(roomId string) bool {
	return strings.Contains(roomId, privateKeySep)
}

// ParsePrivateKey splits a private room key into its two participants.
func ParsePrivateKey(roomId string) (types.ID, types.ID, error) {
	parts := strings.Split(roomId, privateKeySep)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPrivateKey, roomId)
	}
	return types.ID(parts[0]), types.ID(parts[1]), nil
}

// CanonicalRoomId rewrites a private room key into its canonical participant
// order. Other room ids are returned unchanged.
func CanonicalRoomId(roomId string) (string, error) {
	if !IsPrivateKey(roomId) {
		return roomId, nil
	}

	a, b, err := ParsePrivateKey(roomId)
	if err != nil {
		return "", err
	}
	return DerivePrivateKey(a, b), nil
}

// SeedGeneral names the general room if it has not been named yet.
func (idx *Index) SeedGeneral(ctx context.Context) error {
	if _, err := idx.kv.SetNX(ctx, roomNameKey(GeneralRoomId), generalRoomName, 0); err != nil {
		return fmt.Errorf("seed general room: %w", err)
	}
	return nil
}

// EnsurePrivateRoom writes the private room into both users' room sets.
// created is true when the room was not yet indexed for a.
func (idx *Index) EnsurePrivateRoom(ctx context.Context, a, b types.ID) (string, bool, error) {
	if a == b {
		return "", false, ErrSameUser
	}

	key := DerivePrivateKey(a, b)
	added, err := idx.kv.SAdd(ctx, userRoomsKey(a), key)
	if err != nil {
		return "", false, fmt.Errorf("ensure private room: %w", err)
	}
	if _, err := idx.kv.SAdd(ctx, userRoomsKey(b), key); err != nil {
		return "", false, fmt.Errorf("ensure private room: %w", err)
	}

	return key, added > 0, nil
}

func (idx *Index) JoinGroupRoom(ctx context.Context, userId types.ID, roomId string) error {
	if _, err := idx.kv.SAdd(ctx, userRoomsKey(userId), roomId); err != nil {
		return fmt.Errorf("join group room: %w", err)
	}
	return nil
}

// CreateGroupRoom names a new group room under a generated identifier.
func (idx *Index) CreateGroupRoom(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}

	id, err := shortid.Generate()
	if err != nil {
		return "", fmt.Errorf("generate room id: %w", err)
	}

	if err := idx.kv.Set(ctx, roomNameKey(id), name); err != nil {
		return "", fmt.Errorf("create group room: %w", err)
	}
	return id, nil
}

// RoomName returns the display name of a group room, or kv.ErrNil.
func (idx *Index) RoomName(ctx context.Context, roomId string) (string, error) {
	return idx.kv.Get(ctx, roomNameKey(roomId))
}

// RoomExists reports whether the room has at least one message in its feed.
func (idx *Index) RoomExists(ctx context.Context, roomId string) (bool, error) {
	ok, err := idx.kv.Exists(ctx, feed.Key(roomId))
	if err != nil {
		return false, fmt.Errorf("room exists: %w", err)
	}
	return ok, nil
}

// Announce marks a private room as announced. It returns true exactly once
// per room across all instances sharing the store.
func (idx *Index) Announce(ctx context.Context, roomId string) (bool, error) {
	ok, err := idx.kv.SetNX(ctx, announcedKey(roomId), "1", 0)
	if err != nil {
		return false, fmt.Errorf("announce room: %w", err)
	}
	return ok, nil
}

// PrivateDescriptor resolves the participant names of a private room.
func (idx *Index) PrivateDescriptor(ctx context.Context, roomId string) (types.RoomDescriptor, error) {
	a, b, err := ParsePrivateKey(roomId)
	if err != nil {
		return types.RoomDescriptor{}, err
	}

	names := make([]string, 0, 2)
	for _, id := range []types.ID{a, b} {
		name, err := idx.users.Username(ctx, id)
		if err != nil {
			return types.RoomDescriptor{}, fmt.Errorf("lookup user %q: %w", id, err)
		}
		names = append(names, name)
	}

	return types.RoomDescriptor{Id: roomId, Names: names}, nil
}

// ListRoomsForUser returns the descriptors of every room the user belongs
// to. Private rooms without any message yet are left out.
func (idx *Index) ListRoomsForUser(ctx context.Context, userId types.ID) ([]types.RoomDescriptor, error) {
	roomIds, err := idx.kv.SMembers(ctx, userRoomsKey(userId))
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	sort.Strings(roomIds)

	rooms := make([]types.RoomDescriptor, 0, len(roomIds))
	for _, roomId := range roomIds {
		name, err := idx.RoomName(ctx, roomId)
		if err == nil {
			rooms = append(rooms, types.RoomDescriptor{Id: roomId, Names: []string{name}})
			continue
		}
		if !errors.Is(err, kv.ErrNil) {
			return nil, fmt.Errorf("room name: %w", err)
		}

		exists, err := idx.RoomExists(ctx, roomId)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}

		desc, err := idx.PrivateDescriptor(ctx, roomId)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, desc)
	}

	return rooms, nil
}
