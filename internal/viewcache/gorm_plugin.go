package viewcache

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Plugin emits invalidation signals from GORM write callbacks. Registered
// models get a signal after every successful create, update and delete, which
// is how the cache learns about changes to the backing records.
type Plugin struct {
	worker   *Worker
	registry *Registry
}

// NewPlugin builds the invalidation plugin.
func NewPlugin(worker *Worker, registry *Registry) (*Plugin, error) {
	if worker == nil {
		return nil, errors.New("viewcache: worker is required")
	}
	if registry == nil {
		return nil, errors.New("viewcache: registry is required")
	}
	return &Plugin{worker: worker, registry: registry}, nil
}

// Name implements gorm.Plugin.
func (p *Plugin) Name() string {
	return "viewcache"
}

// Initialize implements gorm.Plugin by registering write hooks.
func (p *Plugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Create().After("gorm:create").Register("viewcache:after_create", p.afterWrite(OpCreate)); err != nil {
		return fmt.Errorf("register create callback: %w", err)
	}
	if err := db.Callback().Update().After("gorm:update").Register("viewcache:after_update", p.afterWrite(OpUpdate)); err != nil {
		return fmt.Errorf("register update callback: %w", err)
	}
	if err := db.Callback().Delete().After("gorm:delete").Register("viewcache:after_delete", p.afterWrite(OpDelete)); err != nil {
		return fmt.Errorf("register delete callback: %w", err)
	}
	return nil
}

func (p *Plugin) afterWrite(op Op) func(*gorm.DB) {
	return func(db *gorm.DB) {
		if db.Error != nil || db.Statement == nil || db.Statement.Schema == nil {
			return
		}
		if db.Statement.SkipHooks {
			return
		}

		model := ModelName(db.Statement.Schema.Name)
		if !p.registry.Has(model) {
			return
		}

		field := db.Statement.Schema.PrioritizedPrimaryField
		if field == nil {
			return
		}

		rv := db.Statement.ReflectValue
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			for i := 0; i < rv.Len(); i++ {
				p.emit(db, op, model, field, rv.Index(i))
			}
		case reflect.Struct:
			p.emit(db, op, model, field, rv)
		}
	}
}

func (p *Plugin) emit(db *gorm.DB, op Op, model string, field *schema.Field, rv reflect.Value) {
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return
	}

	value, isZero := field.ValueOf(db.Statement.Context, rv)
	if isZero {
		return
	}

	sig := Signal{
		Model: model,
		PK:    fmt.Sprint(value),
		Op:    op,
	}

	// Creates and updates are refreshed through the binding loader so the
	// payload reflects committed state. Deletes must carry the statement's
	// instance: the row is gone, and it is the only source for upstream
	// invalidations.
	if op == OpDelete && rv.CanAddr() {
		sig.Instance = rv.Addr().Interface()
	}

	p.worker.Enqueue(sig)
}

// ModelName converts a GORM schema name into the registry naming convention
// (lower-case singular, e.g. "Article" -> "article").
func ModelName(schemaName string) string {
	return strings.ToLower(schemaName)
}
