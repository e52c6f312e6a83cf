package session

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	value     string
	expiresAt time.Time
}

// MemoryStorage keeps items in process memory. It is used in development
// and tests, and as the fallback when no Redis address is configured.
type MemoryStorage struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

func memoryKey(clientID, key string) string {
	return clientID + "\x00" + key
}

func (m *MemoryStorage) Get(_ context.Context, clientID, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := memoryKey(clientID, key)
	item, ok := m.items[k]
	if !ok {
		return "", ErrNotFound
	}
	if !item.expiresAt.IsZero() && !m.now().Before(item.expiresAt) {
		delete(m.items, k)
		return "", ErrNotFound
	}
	return item.value, nil
}

func (m *MemoryStorage) Set(_ context.Context, clientID, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := memoryItem{value: value}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}
	m.items[memoryKey(clientID, key)] = item
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, clientID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, memoryKey(clientID, key))
	return nil
}
