package viewcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestWorker(t *testing.T, f *fixture) *Worker {
	t.Helper()

	worker, err := NewWorker(f.cache, 16)
	require.NoError(t, err)
	worker.Start()
	t.Cleanup(func() {
		_ = worker.Stop(context.Background())
	})
	return worker
}

func TestWorkerRefreshesInstanceAndBumpsVersion(t *testing.T) {
	f := newFixture(t)
	worker := newTestWorker(t, f)
	ctx := context.Background()

	f.docs["d1"] = &testDoc{ID: "d1", Body: "v1"}

	worker.Enqueue(Signal{Model: "doc", PK: "d1", Op: OpCreate})
	worker.Flush()

	entry, ok, err := f.cache.GetInstance(ctx, "doc", "d1")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, entry.Hit, "worker should have populated the entry")

	version, err := f.cache.Version(ctx, "doc")
	require.NoError(t, err)
	require.EqualValues(t, 1, version)
}

func TestWorkerFollowOnRefreshesCachedUpstream(t *testing.T) {
	f := newFixture(t)
	worker := newTestWorker(t, f)
	ctx := context.Background()

	f.owners["o1"] = &testOwner{ID: "o1", Name: "Ada"}
	f.docs["d1"] = &testDoc{ID: "d1", OwnerID: "o1", Body: "v1"}

	// Warm the owner entry so the follow-on refresh has something to update.
	_, ok, err := f.cache.GetInstance(ctx, "owner", "o1")
	require.NoError(t, err)
	require.True(t, ok)

	f.owners["o1"].Name = "Ada Lovelace"

	worker.Enqueue(Signal{Model: "doc", PK: "d1", Op: OpUpdate})
	worker.Flush()

	entry, ok, err := f.cache.GetInstance(ctx, "owner", "o1")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"id":"o1","name":"Ada Lovelace"}`, string(entry.Payload))

	ownerVersion, err := f.cache.Version(ctx, "owner")
	require.NoError(t, err)
	require.EqualValues(t, 1, ownerVersion, "follow-on refresh must bump the upstream model version")
}

func TestWorkerFollowOnLeavesColdUpstreamAlone(t *testing.T) {
	f := newFixture(t)
	worker := newTestWorker(t, f)
	ctx := context.Background()

	f.owners["o1"] = &testOwner{ID: "o1", Name: "Ada"}
	f.docs["d1"] = &testDoc{ID: "d1", OwnerID: "o1", Body: "v1"}

	worker.Enqueue(Signal{Model: "doc", PK: "d1", Op: OpCreate})
	worker.Flush()

	ownerKey := f.cache.Keys().Instance("owner", "o1")
	_, cached, err := f.store.Get(ctx, ownerKey)
	require.NoError(t, err)
	require.False(t, cached, "follow-on refresh must not warm cold entries")
}

func TestWorkerDeleteDropsEntryAndRunsInvalidator(t *testing.T) {
	f := newFixture(t)
	worker := newTestWorker(t, f)
	ctx := context.Background()

	f.owners["o1"] = &testOwner{ID: "o1", Name: "Ada"}
	f.docs["d1"] = &testDoc{ID: "d1", OwnerID: "o1", Body: "v1"}

	// Warm both entries.
	_, _, err := f.cache.GetInstance(ctx, "doc", "d1")
	require.NoError(t, err)
	_, _, err = f.cache.GetInstance(ctx, "owner", "o1")
	require.NoError(t, err)

	deleted := *f.docs["d1"]
	delete(f.docs, "d1")
	f.owners["o1"].Name = "After delete"

	worker.Enqueue(Signal{Model: "doc", PK: "d1", Op: OpDelete, Instance: &deleted})
	worker.Flush()

	docKey := f.cache.Keys().Instance("doc", "d1")
	_, cached, err := f.store.Get(ctx, docKey)
	require.NoError(t, err)
	require.False(t, cached, "delete signal must drop the instance entry")

	entry, ok, err := f.cache.GetInstance(ctx, "owner", "o1")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"id":"o1","name":"After delete"}`, string(entry.Payload))
}

func TestWorkerSurvivesCyclicInvalidators(t *testing.T) {
	f := newFixture(t)

	// doc <-> owner invalidate each other; the visited set and depth cap
	// must terminate the walk.
	f.cache.registry.mu.Lock()
	owner := f.cache.registry.bindings["owner"]
	owner.Invalidator = func(instance any) []Invalidation {
		return []Invalidation{{Model: "doc", PK: "d1"}}
	}
	f.cache.registry.bindings["owner"] = owner
	f.cache.registry.mu.Unlock()

	worker := newTestWorker(t, f)

	f.owners["o1"] = &testOwner{ID: "o1", Name: "Ada"}
	f.docs["d1"] = &testDoc{ID: "d1", OwnerID: "o1", Body: "v1"}

	_, _, err := f.cache.GetInstance(context.Background(), "owner", "o1")
	require.NoError(t, err)

	worker.Enqueue(Signal{Model: "doc", PK: "d1", Op: OpCreate})
	worker.Flush() // must return
}
