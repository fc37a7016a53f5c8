package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/charlesng35/viewcache/internal/models"
)

func newTestDatabaseStore(t *testing.T) *DatabaseStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_foreign_keys=1"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.CacheEntry{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return NewDatabaseStore(db)
}

func TestDatabaseStoreRoundTrip(t *testing.T) {
	store := newTestDatabaseStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "vc:article:1", []byte(`{"id":"1"}`), 0))

	value, ok, err := store.Get(ctx, "vc:article:1")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"id":"1"}`, string(value))

	// Upsert replaces the stored payload.
	require.NoError(t, store.Set(ctx, "vc:article:1", []byte(`{"id":"1","v":2}`), 0))
	value, ok, err = store.Get(ctx, "vc:article:1")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"id":"1","v":2}`, string(value))

	require.NoError(t, store.Delete(ctx, "vc:article:1"))
	_, ok, err = store.Get(ctx, "vc:article:1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDatabaseStoreGetManyAndSetMany(t *testing.T) {
	store := newTestDatabaseStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetMany(ctx, map[string][]byte{
		"vc:author:a": []byte("A"),
		"vc:author:b": []byte("B"),
	}, 0))

	values, err := store.GetMany(ctx, []string{"vc:author:a", "vc:author:b", "vc:author:c"})
	require.NoError(t, err)
	require.Len(t, values, 2)
	require.Equal(t, []byte("A"), values["vc:author:a"])
	require.Equal(t, []byte("B"), values["vc:author:b"])
}

func TestDatabaseStoreExpiry(t *testing.T) {
	store := newTestDatabaseStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "short", []byte("x"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, ok, err := store.Get(ctx, "short")
	require.NoError(t, err)
	require.False(t, ok, "expected expired entry to be treated as a miss")
}

func TestDatabaseStoreIncrementWithTTL(t *testing.T) {
	store := newTestDatabaseStore(t)
	ctx := context.Background()

	count, ttl, err := store.IncrementWithTTL(ctx, "counter", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Greater(t, ttl, time.Duration(0))

	count, _, err = store.IncrementWithTTL(ctx, "counter", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}

func TestDatabaseStorePurgeExpired(t *testing.T) {
	store := newTestDatabaseStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "keep", []byte("k"), 0))
	require.NoError(t, store.Set(ctx, "stale", []byte("s"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	purged, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, purged)

	_, ok, err := store.Get(ctx, "keep")
	require.NoError(t, err)
	require.True(t, ok, "entries without expiry must survive the purge")
}
