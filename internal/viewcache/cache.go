package viewcache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/viewcache/internal/cache"
	"github.com/charlesng35/viewcache/pkg/logger"
	"github.com/charlesng35/viewcache/pkg/metrics"
)

// versionWindow bounds the lifetime of model version counters. It is far
// longer than any query TTL, so recycled versions cannot resurrect live
// query entries.
const versionWindow = 14 * 24 * time.Hour

// Options configures a Cache.
type Options struct {
	// KeyPrefix namespaces all keys, default "vc".
	KeyPrefix string
	// InstanceTTL bounds serialized instance payloads. Zero means no expiry;
	// instances are kept fresh by invalidation instead.
	InstanceTTL time.Duration
	// QueryTTL bounds cached primary-key lists. Zero falls back to 10 minutes.
	QueryTTL time.Duration
}

// Cache maps model instances to their serialized representations and keeps
// them consistent with the backing store through explicit invalidation.
type Cache struct {
	store       cache.Store
	registry    *Registry
	keys        KeyMaker
	instanceTTL time.Duration
	queryTTL    time.Duration
	log         *zap.Logger
}

// Entry is the result of a single instance lookup.
type Entry struct {
	Key     string
	Payload json.RawMessage
	Hit     bool
}

const defaultQueryTTL = 10 * time.Minute

// New constructs a Cache over the supplied store and registry.
func New(store cache.Store, registry *Registry, opts Options) (*Cache, error) {
	if store == nil {
		return nil, errors.New("viewcache: store is required")
	}
	if registry == nil {
		return nil, errors.New("viewcache: registry is required")
	}

	queryTTL := opts.QueryTTL
	if queryTTL <= 0 {
		queryTTL = defaultQueryTTL
	}

	return &Cache{
		store:       store,
		registry:    registry,
		keys:        NewKeyMaker(opts.KeyPrefix),
		instanceTTL: opts.InstanceTTL,
		queryTTL:    queryTTL,
		log:         logger.WithModule("viewcache"),
	}, nil
}

// Keys exposes the key maker, mainly for tests and diagnostics.
func (c *Cache) Keys() KeyMaker {
	return c.keys
}

// Registry returns the model registry backing this cache.
func (c *Cache) Registry() *Registry {
	return c.registry
}

// GetInstances resolves a batch of specs to serialized payloads. Cached
// entries are returned directly; misses are loaded from the database,
// serialized and written back in one batch. Records that no longer exist are
// absent from the result.
func (c *Cache) GetInstances(ctx context.Context, specs []Spec) (map[Spec]Entry, error) {
	result := make(map[Spec]Entry, len(specs))
	if len(specs) == 0 {
		return result, nil
	}

	keys := make([]string, 0, len(specs))
	seen := make(map[Spec]struct{}, len(specs))
	for _, spec := range specs {
		if _, dup := seen[spec]; dup {
			continue
		}
		seen[spec] = struct{}{}
		keys = append(keys, c.keys.Instance(spec.Model, spec.PK))
	}

	cached, err := c.store.GetMany(ctx, keys)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("get_many").Inc()
		return nil, err
	}

	toSet := make(map[string][]byte)
	for spec := range seen {
		key := c.keys.Instance(spec.Model, spec.PK)
		if payload, ok := cached[key]; ok {
			metrics.CacheLookups.WithLabelValues(spec.Model, "hit").Inc()
			result[spec] = Entry{Key: key, Payload: payload, Hit: true}
			continue
		}

		metrics.CacheLookups.WithLabelValues(spec.Model, "miss").Inc()
		payload, err := c.loadAndSerialize(ctx, spec)
		if err != nil {
			return nil, err
		}
		if payload == nil {
			continue
		}
		toSet[key] = payload
		result[spec] = Entry{Key: key, Payload: payload, Hit: false}
	}

	if len(toSet) > 0 {
		if err := c.store.SetMany(ctx, toSet, c.instanceTTL); err != nil {
			metrics.StoreErrors.WithLabelValues("set_many").Inc()
			c.log.Warn("failed to backfill cache entries", zap.Int("count", len(toSet)), zap.Error(err))
		}
	}

	return result, nil
}

// GetInstance is a single-spec convenience around GetInstances.
func (c *Cache) GetInstance(ctx context.Context, model, pk string) (Entry, bool, error) {
	spec := Spec{Model: model, PK: pk}
	entries, err := c.GetInstances(ctx, []Spec{spec})
	if err != nil {
		return Entry{}, false, err
	}
	entry, ok := entries[spec]
	return entry, ok, nil
}

// UpdateInstance creates or refreshes a cached instance and returns the
// follow-on invalidations its change implies.
//
// When instance is nil it is loaded through the model's Loader; if the record
// no longer exists, the cache entry is dropped. The payload is rewritten only
// when it differs from the cached bytes. With updateOnly set, entries missing
// from the cache are left unpopulated, mirroring how deferred refreshes avoid
// warming keys nobody has read.
func (c *Cache) UpdateInstance(ctx context.Context, model, pk string, instance any, updateOnly bool) ([]Invalidation, error) {
	binding, err := c.registry.Binding(model)
	if err != nil {
		return nil, err
	}

	if instance == nil {
		instance, err = binding.Loader(ctx, pk)
		if err != nil {
			return nil, err
		}
	}

	key := c.keys.Instance(model, pk)
	current, hasCurrent, err := c.store.Get(ctx, key)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("get").Inc()
		return nil, err
	}

	performed := false

	if instance == nil {
		if hasCurrent {
			if err := c.store.Delete(ctx, key); err != nil {
				metrics.StoreErrors.WithLabelValues("delete").Inc()
				return nil, err
			}
		}
		return nil, nil
	}

	payload, err := binding.Serializer(instance)
	if err != nil {
		return nil, err
	}

	if !bytes.Equal(current, payload) {
		if !updateOnly || hasCurrent {
			if err := c.store.Set(ctx, key, payload, c.instanceTTL); err != nil {
				metrics.StoreErrors.WithLabelValues("set").Inc()
				return nil, err
			}
			performed = true
		}
	}

	if !performed || binding.Invalidator == nil {
		return nil, nil
	}

	var followOn []Invalidation
	for _, upstream := range binding.Invalidator(instance) {
		if upstream.Key != "" {
			if err := c.store.Delete(ctx, upstream.Key); err != nil {
				metrics.StoreErrors.WithLabelValues("delete").Inc()
				return nil, err
			}
			continue
		}
		if upstream.Immediate {
			if err := c.store.Delete(ctx, c.keys.Instance(upstream.Model, upstream.PK)); err != nil {
				metrics.StoreErrors.WithLabelValues("delete").Inc()
				return nil, err
			}
		}
		followOn = append(followOn, upstream)
	}

	return followOn, nil
}

// DeleteInstance drops the cached payload of a single record.
func (c *Cache) DeleteInstance(ctx context.Context, model, pk string) error {
	return c.store.Delete(ctx, c.keys.Instance(model, pk))
}

// BumpVersion invalidates every cached query for a model by advancing its
// version counter.
func (c *Cache) BumpVersion(ctx context.Context, model string) (int64, error) {
	version, _, err := c.store.IncrementWithTTL(ctx, c.keys.Version(model), versionWindow)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("increment").Inc()
		return 0, err
	}
	return version, nil
}

// Version returns the current invalidation version of a model; zero when the
// model has never been bumped.
func (c *Cache) Version(ctx context.Context, model string) (int64, error) {
	raw, ok, err := c.store.Get(ctx, c.keys.Version(model))
	if err != nil {
		metrics.StoreErrors.WithLabelValues("get").Inc()
		return 0, err
	}
	if !ok {
		return 0, nil
	}

	version, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, nil
	}
	return version, nil
}

func (c *Cache) loadAndSerialize(ctx context.Context, spec Spec) ([]byte, error) {
	binding, err := c.registry.Binding(spec.Model)
	if err != nil {
		return nil, err
	}

	instance, err := binding.Loader(ctx, spec.PK)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, nil
	}

	return binding.Serializer(instance)
}
