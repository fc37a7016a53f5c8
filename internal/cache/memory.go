package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store used as the fallback backend and in tests.
// It is concurrency-safe; a janitor goroutine evicts expired entries.
type MemoryStore struct {
	mu    sync.Mutex
	data  map[string]memoryEntry
	tick  *time.Ticker
	clock func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryStore constructs an in-memory Store and starts its janitor.
func NewMemoryStore() *MemoryStore {
	store := &MemoryStore{
		data:  make(map[string]memoryEntry),
		tick:  time.NewTicker(time.Minute),
		clock: time.Now,
	}

	go store.janitor()
	return store
}

func (s *MemoryStore) janitor() {
	for range s.tick.C {
		now := s.clock()
		s.mu.Lock()
		for key, entry := range s.data {
			if entry.expired(now) {
				delete(s.data, key)
			}
		}
		s.mu.Unlock()
	}
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Get returns the value stored for key, if present and not expired.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	if entry.expired(now) {
		delete(s.data, key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

// GetMany returns the stored values for the requested keys.
func (s *MemoryStore) GetMany(_ context.Context, keys []string) (map[string][]byte, error) {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[string][]byte, len(keys))
	for _, key := range keys {
		entry, ok := s.data[key]
		if !ok {
			continue
		}
		if entry.expired(now) {
			delete(s.data, key)
			continue
		}
		result[key] = entry.value
	}
	return result, nil
}

// Set stores a value with an optional TTL.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = s.clock().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = entry
	return nil
}

// SetMany stores a batch of entries sharing a TTL.
func (s *MemoryStore) SetMany(ctx context.Context, entries map[string][]byte, ttl time.Duration) error {
	for key, value := range entries {
		if err := s.Set(ctx, key, value, ttl); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the supplied keys.
func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

// IncrementWithTTL increments the counter stored at key within a fixed window.
func (s *MemoryStore) IncrementWithTTL(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}

	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.data[key]
	var count int64
	if !ok || entry.expired(now) {
		count = 1
		s.data[key] = memoryEntry{value: []byte("1"), expiresAt: now.Add(window)}
		return count, window, nil
	}

	count = parseCount(entry.value) + 1
	entry.value = formatCount(count)
	s.data[key] = entry
	return count, entry.expiresAt.Sub(now), nil
}

func parseCount(value []byte) int64 {
	var count int64
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return 0
		}
		count = count*10 + int64(ch-'0')
	}
	return count
}

func formatCount(count int64) []byte {
	if count == 0 {
		return []byte("0")
	}
	var buf [20]byte
	i := len(buf)
	for count > 0 {
		i--
		buf[i] = byte('0' + count%10)
		count /= 10
	}
	return append([]byte(nil), buf[i:]...)
}

// Stop halts the janitor goroutine. Intended for tests.
func (s *MemoryStore) Stop() {
	s.tick.Stop()
}
