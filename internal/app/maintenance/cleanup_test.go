package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/viewcache/internal/cache"
	"github.com/charlesng35/viewcache/internal/database/testutil"
	"github.com/charlesng35/viewcache/internal/models"
)

func TestCleanerRunOncePurgesExpiredRows(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := cache.NewDatabaseStore(db)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "expired", []byte("old"), time.Millisecond))
	require.NoError(t, store.Set(ctx, "eternal", []byte("keep"), 0))
	require.NoError(t, store.Set(ctx, "fresh", []byte("keep"), time.Hour))
	time.Sleep(5 * time.Millisecond)

	c := NewCleaner(store, WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))))
	require.NoError(t, c.RunOnce(ctx))

	var count int64
	require.NoError(t, db.Model(&models.CacheEntry{}).Count(&count).Error)
	require.EqualValues(t, 2, count)

	_, ok, err := store.Get(ctx, "eternal")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCleanerWithoutStoreIsInert(t *testing.T) {
	c := NewCleaner(nil)
	require.NoError(t, c.Start())
	require.NoError(t, c.RunOnce(context.Background()))
	<-c.Stop().Done()
}
