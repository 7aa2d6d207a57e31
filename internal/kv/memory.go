package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

var errWrongType = errors.New("kv: operation against a key holding the wrong kind of value")

type zmember struct {
	member string
	score  float64
}

// MemoryStore implements Store in process memory. It gives a single
// instance (or a test) the same semantics as the redis store, including
// removal of empty sets and expiry of SetNX keys.
type MemoryStore struct {
	mu      sync.Mutex
	strings map[string]string
	expires map[string]time.Time
	hashes  map[string]map[string]string
	sets    map[string]map[string]struct{}
	zsets   map[string][]zmember
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		strings: make(map[string]string),
		expires: make(map[string]time.Time),
		hashes:  make(map[string]map[string]string),
		sets:    make(map[string]map[string]struct{}),
		zsets:   make(map[string][]zmember),
		now:     time.Now,
	}
}

// expire drops key if its ttl elapsed. Callers must hold m.mu.
func (m *MemoryStore) expire(key string) {
	if at, ok := m.expires[key]; ok && !m.now().Before(at) {
		delete(m.strings, key)
		delete(m.expires, key)
	}
}

func (m *MemoryStore) exists(key string) bool {
	m.expire(key)
	if _, ok := m.strings[key]; ok {
		return true
	}
	if _, ok := m.hashes[key]; ok {
		return true
	}
	if _, ok := m.sets[key]; ok {
		return true
	}
	_, ok := m.zsets[key]
	return ok
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expire(key)
	val, ok := m.strings[key]
	if !ok {
		return "", ErrNil
	}
	return val, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.strings[key] = value
	delete(m.expires, key)
	return nil
}

func (m *MemoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.strings, key)
		delete(m.expires, key)
		delete(m.hashes, key)
		delete(m.sets, key)
		delete(m.zsets, key)
	}
	return nil
}

func (m *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.exists(key) {
		return false, nil
	}

	m.strings[key] = value
	if ttl > 0 {
		m.expires[key] = m.now().Add(ttl)
	}
	return true, nil
}

func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.exists(key), nil
}

func (m *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expire(key)
	var n int64
	if val, ok := m.strings[key]; ok {
		parsed, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("incr %q: %w", key, err)
		}
		n = parsed
	}
	n++
	m.strings[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (m *MemoryStore) HGet(_ context.Context, key, field string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	val, ok := m.hashes[key][field]
	if !ok {
		return "", ErrNil
	}
	return val, nil
}

func (m *MemoryStore) HSet(_ context.Context, key string, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string, len(values))
		m.hashes[key] = h
	}
	for k, v := range values {
		h[k] = v
	}
	return nil
}

func (m *MemoryStore) SAdd(_ context.Context, key string, members ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}

	var added int64
	for _, member := range members {
		if _, ok := set[member]; !ok {
			set[member] = struct{}{}
			added++
		}
	}
	return added, nil
}

func (m *MemoryStore) SRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.sets[key]
	if !ok {
		return nil
	}
	for _, member := range members {
		delete(set, member)
	}
	if len(set) == 0 {
		delete(m.sets, key)
	}
	return nil
}

func (m *MemoryStore) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members := make([]string, 0, len(m.sets[key]))
	for member := range m.sets[key] {
		members = append(members, member)
	}
	return members, nil
}

func (m *MemoryStore) SIsMember(_ context.Context, key, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.sets[key][member]
	return ok, nil
}

func (m *MemoryStore) ZAdd(_ context.Context, key string, score float64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.strings[key]; ok {
		return errWrongType
	}

	zs := m.zsets[key]
	for i := range zs {
		if zs[i].member == member {
			zs = append(zs[:i], zs[i+1:]...)
			break
		}
	}
	zs = append(zs, zmember{member: member, score: score})
	sort.SliceStable(zs, func(i, j int) bool {
		if zs[i].score != zs[j].score {
			return zs[i].score < zs[j].score
		}
		return zs[i].member < zs[j].member
	})
	m.zsets[key] = zs
	return nil
}

func (m *MemoryStore) ZRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	zs := m.zsets[key]
	n := int64(len(zs))
	if start < 0 {
		start += n
	}
	if start < 0 {
		start = 0
	}
	if stop < 0 {
		stop += n
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return []string{}, nil
	}

	out := make([]string, 0, stop-start+1)
	for _, z := range zs[start : stop+1] {
		out = append(out, z.member)
	}
	return out, nil
}

func (m *MemoryStore) ZCard(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return int64(len(m.zsets[key])), nil
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
