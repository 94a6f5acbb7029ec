package inmemdb

import (
	"context"
	"sync"
	"time"

	"github.com/vladapp/backend/core"
)

type kvEntry struct {
	val       []byte
	expiresAt time.Time // zero means no expiry
}

func (e kvEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// keyedStore is an in-memory core.KeyedStore with lazy expiry.
type keyedStore struct {
	mutex sync.Mutex
	table map[string]kvEntry
}

var _ core.KeyedStore = (*keyedStore)(nil)

func NewKeyedStore() core.KeyedStore {
	return &keyedStore{table: make(map[string]kvEntry)}
}

func (s *keyedStore) Put(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry := kvEntry{val: val}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.table[key] = entry
	return nil
}

func (s *keyedStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry, ok := s.table[key]
	if !ok {
		return nil, core.ErrKeyNotFound
	}
	if entry.expired(time.Now()) {
		delete(s.table, key)
		return nil, core.ErrKeyNotFound
	}
	return entry.val, nil
}

func (s *keyedStore) Remove(ctx context.Context, key string) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry, ok := s.table[key]
	if !ok {
		return false, nil
	}
	delete(s.table, key)
	return !entry.expired(time.Now()), nil
}

func (s *keyedStore) Take(ctx context.Context, key string) ([]byte, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry, ok := s.table[key]
	if !ok {
		return nil, core.ErrKeyNotFound
	}
	delete(s.table, key)
	if entry.expired(time.Now()) {
		return nil, core.ErrKeyNotFound
	}
	return entry.val, nil
}
