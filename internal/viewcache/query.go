package viewcache

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/viewcache/pkg/metrics"
)

// Query serves filtered lists through the cache: the primary-key list comes
// from the real database query (cached under the query signature), while the
// instance payloads come from the serialized-object cache.
type Query struct {
	cache *Cache
	db    *gorm.DB
	model string

	conds []condition
	order string
}

type condition struct {
	expr string
	args []any
}

// Query starts a cached query for a registered model.
func (c *Cache) Query(model string, db *gorm.DB) *Query {
	return &Query{cache: c, db: db, model: model}
}

// Filter adds a SQL condition with arguments.
func (q *Query) Filter(expr string, args ...any) *Query {
	q.conds = append(q.conds, condition{expr: expr, args: args})
	return q
}

// OrderBy sets the ordering expression. The default is insertion order of the
// underlying table.
func (q *Query) OrderBy(expr string) *Query {
	q.order = expr
	return q
}

// signature folds the query shape into a stable hash.
func (q *Query) signature() string {
	parts := []string{q.model}
	for _, cond := range q.conds {
		parts = append(parts, cond.expr)
		for _, arg := range cond.args {
			parts = append(parts, fmt.Sprintf("%v", arg))
		}
	}
	parts = append(parts, q.order)
	return Signature(parts...)
}

// PKs returns the primary keys matching the query, serving the list from the
// cache when a fresh entry exists for the current model version.
func (q *Query) PKs(ctx context.Context) ([]string, error) {
	version, err := q.cache.Version(ctx, q.model)
	if err != nil {
		return nil, err
	}

	key := q.cache.keys.Query(q.model, version, q.signature())

	if raw, ok, err := q.cache.store.Get(ctx, key); err == nil && ok {
		var pks []string
		if unmarshalErr := json.Unmarshal(raw, &pks); unmarshalErr == nil {
			metrics.QueryLookups.WithLabelValues(q.model, "hit").Inc()
			return pks, nil
		}
	} else if err != nil {
		metrics.StoreErrors.WithLabelValues("get").Inc()
		return nil, err
	}

	metrics.QueryLookups.WithLabelValues(q.model, "miss").Inc()

	pks, err := q.queryPKs(ctx)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(pks)
	if err != nil {
		return nil, err
	}
	if setErr := q.cache.store.Set(ctx, key, encoded, q.cache.queryTTL); setErr != nil {
		metrics.StoreErrors.WithLabelValues("set").Inc()
		q.cache.log.Warn("failed to cache query result", zap.String("model", q.model), zap.Error(setErr))
	}

	return pks, nil
}

// Cached reports whether a fresh pk list exists for the query at the current
// model version, without populating it.
func (q *Query) Cached(ctx context.Context) (bool, error) {
	version, err := q.cache.Version(ctx, q.model)
	if err != nil {
		return false, err
	}

	_, ok, err := q.cache.store.Get(ctx, q.cache.keys.Query(q.model, version, q.signature()))
	if err != nil {
		metrics.StoreErrors.WithLabelValues("get").Inc()
		return false, err
	}
	return ok, nil
}

// Count returns the number of records matching the query.
func (q *Query) Count(ctx context.Context) (int64, error) {
	pks, err := q.PKs(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(pks)), nil
}

// List returns the serialized payloads for every matching record, in query
// order. Records deleted between the pk query and the instance fetch are
// skipped.
func (q *Query) List(ctx context.Context) ([]json.RawMessage, error) {
	pks, err := q.PKs(ctx)
	if err != nil {
		return nil, err
	}
	return q.payloadsFor(ctx, pks)
}

// Page returns one page of serialized payloads plus the total match count.
func (q *Query) Page(ctx context.Context, page, perPage int) ([]json.RawMessage, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	pks, err := q.PKs(ctx)
	if err != nil {
		return nil, 0, err
	}

	total := int64(len(pks))
	start := (page - 1) * perPage
	if start >= len(pks) {
		return []json.RawMessage{}, total, nil
	}
	end := start + perPage
	if end > len(pks) {
		end = len(pks)
	}

	payloads, err := q.payloadsFor(ctx, pks[start:end])
	if err != nil {
		return nil, 0, err
	}
	return payloads, total, nil
}

// Get returns the serialized payload of a single record matching the query
// constraints. The boolean result reports whether the record exists.
func (q *Query) Get(ctx context.Context, pk string) (json.RawMessage, bool, error) {
	entry, ok, err := q.cache.GetInstance(ctx, q.model, pk)
	if err != nil || !ok {
		return nil, false, err
	}
	return entry.Payload, true, nil
}

func (q *Query) payloadsFor(ctx context.Context, pks []string) ([]json.RawMessage, error) {
	specs := make([]Spec, 0, len(pks))
	for _, pk := range pks {
		specs = append(specs, Spec{Model: q.model, PK: pk})
	}

	entries, err := q.cache.GetInstances(ctx, specs)
	if err != nil {
		return nil, err
	}

	payloads := make([]json.RawMessage, 0, len(pks))
	for _, spec := range specs {
		if entry, ok := entries[spec]; ok {
			payloads = append(payloads, entry.Payload)
		}
	}
	return payloads, nil
}

func (q *Query) queryPKs(ctx context.Context) ([]string, error) {
	binding, err := q.cache.registry.Binding(q.model)
	if err != nil {
		return nil, err
	}

	tx := q.db.WithContext(ctx).Model(binding.Prototype)
	for _, cond := range q.conds {
		tx = tx.Where(cond.expr, cond.args...)
	}
	if q.order != "" {
		tx = tx.Order(q.order)
	}

	var ids []string
	if err := tx.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
