package cache

import (
	"context"
	"errors"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcachedConfig holds connection options for a memcached backend.
type MemcachedConfig struct {
	Addresses []string
	Timeout   time.Duration
}

// MemcachedStore implements Store on top of a memcached cluster.
type MemcachedStore struct {
	client *memcache.Client
}

// NewMemcachedStore builds a memcached-backed Store and verifies connectivity.
func NewMemcachedStore(cfg MemcachedConfig) (*MemcachedStore, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.New("memcached: at least one address is required")
	}

	client := memcache.New(cfg.Addresses...)
	if cfg.Timeout > 0 {
		client.Timeout = cfg.Timeout
	}

	if err := client.Ping(); err != nil {
		return nil, err
	}

	return &MemcachedStore{client: client}, nil
}

// Get returns the value stored for key.
func (s *MemcachedStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	item, err := s.client.Get(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return item.Value, true, nil
}

// GetMany fetches a batch of keys with a single GetMulti round trip.
func (s *MemcachedStore) GetMany(_ context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}

	items, err := s.client.GetMulti(keys)
	if err != nil {
		return nil, err
	}

	result := make(map[string][]byte, len(items))
	for key, item := range items {
		result[key] = item.Value
	}
	return result, nil
}

// Set stores a value with an optional TTL. Memcached expirations are second
// granular; sub-second TTLs round up to one second.
func (s *MemcachedStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: expirationSeconds(ttl),
	})
}

// SetMany stores a batch of entries sharing a TTL.
func (s *MemcachedStore) SetMany(ctx context.Context, entries map[string][]byte, ttl time.Duration) error {
	for key, value := range entries {
		if err := s.Set(ctx, key, value, ttl); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the supplied keys, ignoring missing ones.
func (s *MemcachedStore) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		if err := s.client.Delete(key); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
			return err
		}
	}
	return nil
}

// IncrementWithTTL increments the counter stored at key. The remaining TTL is
// not observable through the memcached protocol, so the window is returned.
func (s *MemcachedStore) IncrementWithTTL(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}

	next, err := s.client.Increment(key, 1)
	if errors.Is(err, memcache.ErrCacheMiss) {
		addErr := s.client.Add(&memcache.Item{
			Key:        key,
			Value:      []byte("1"),
			Expiration: expirationSeconds(window),
		})
		if addErr == nil {
			return 1, window, nil
		}
		if !errors.Is(addErr, memcache.ErrNotStored) {
			return 0, 0, addErr
		}
		// Lost the race with another writer; retry the increment.
		next, err = s.client.Increment(key, 1)
	}
	if err != nil {
		return 0, 0, err
	}

	return int64(next), window, nil
}

func expirationSeconds(ttl time.Duration) int32 {
	if ttl <= 0 {
		return 0
	}
	secs := int64(ttl / time.Second)
	if ttl%time.Second != 0 || secs == 0 {
		secs++
	}
	if secs > int64(^uint32(0)>>1) {
		secs = int64(^uint32(0) >> 1)
	}
	return int32(secs)
}
