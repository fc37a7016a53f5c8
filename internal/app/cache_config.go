package app

import (
	"strings"

	"github.com/charlesng35/viewcache/internal/cache"
	"github.com/charlesng35/viewcache/internal/database"
	"github.com/charlesng35/viewcache/internal/viewcache"
)

// RedisClientConfig converts the application cache configuration into the cache package representation.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
	}
}

// MemcachedClientConfig converts the memcached settings into the cache package representation.
func (c CacheConfig) MemcachedClientConfig() cache.MemcachedConfig {
	addresses := make([]string, 0, len(c.Memcached.Addresses))
	for _, address := range c.Memcached.Addresses {
		if trimmed := strings.TrimSpace(address); trimmed != "" {
			addresses = append(addresses, trimmed)
		}
	}
	return cache.MemcachedConfig{
		Addresses: addresses,
		Timeout:   c.Memcached.Timeout,
	}
}

// ViewCacheOptions converts key and TTL settings into viewcache options.
func (c CacheConfig) ViewCacheOptions() viewcache.Options {
	return viewcache.Options{
		KeyPrefix:   strings.TrimSpace(c.KeyPrefix),
		InstanceTTL: c.InstanceTTL,
		QueryTTL:    c.QueryTTL,
	}
}

// DatabaseConfig converts the application database settings into the database package representation.
func (c DatabaseConfig) DatabaseConfig() database.Config {
	cfg := database.Config{
		Driver: strings.TrimSpace(c.Driver),
		Path:   strings.TrimSpace(c.Path),
		DSN:    strings.TrimSpace(c.DSN),
	}

	switch strings.ToLower(cfg.Driver) {
	case "postgres", "postgresql":
		cfg.Host = c.Postgres.Host
		cfg.Port = c.Postgres.Port
		cfg.Name = c.Postgres.Database
		cfg.User = c.Postgres.Username
		cfg.Password = c.Postgres.Password
	case "mysql":
		cfg.Host = c.MySQL.Host
		cfg.Port = c.MySQL.Port
		cfg.Name = c.MySQL.Database
		cfg.User = c.MySQL.Username
		cfg.Password = c.MySQL.Password
	}

	return cfg
}
