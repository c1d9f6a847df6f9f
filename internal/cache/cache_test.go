package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/trackmeta/internal/models"
	"github.com/desertthunder/trackmeta/internal/services"
	"github.com/desertthunder/trackmeta/internal/shared"
	th "github.com/desertthunder/trackmeta/internal/testing"
	gocache "github.com/patrickmn/go-cache"
)

func newTestCache(store Store, catalog services.Catalog, opts Options) *MetadataCache {
	opts.Logger = shared.NewLogger(io.Discard)
	return New(store, catalog, opts)
}

// eventually polls cond until it holds or a second passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("Store Hit Skips Catalog", func(t *testing.T) {
		stored := th.NewTrack(t, "track-a", "album-1")
		store := th.NewFakeStore(stored)
		catalog := th.NewFakeCatalog()
		c := newTestCache(store, catalog, Options{})

		got, err := c.Resolve(ctx, []string{"track-a"}, 0)
		if err != nil {
			t.Fatalf("failed to resolve: %v", err)
		}
		if got["track-a"] != stored {
			t.Errorf("expected the stored record, got %v", got["track-a"])
		}
		if len(catalog.Calls()) != 0 {
			t.Errorf("expected no catalog calls, got %d", len(catalog.Calls()))
		}
	})

	t.Run("Fetches And Backfills", func(t *testing.T) {
		remote := th.NewTrack(t, "track-b", "album-1", "artist-1", "artist-2")
		store := th.NewFakeStore()
		catalog := th.NewFakeCatalog(remote)
		c := newTestCache(store, catalog, Options{})

		got, err := c.Resolve(ctx, []string{"track-b"}, 0)
		if err != nil {
			t.Fatalf("failed to resolve: %v", err)
		}
		if got["track-b"] != remote {
			t.Errorf("expected the catalog record, got %v", got["track-b"])
		}
		if !store.Has("track-b") {
			t.Error("expected the fetched record to be persisted")
		}
	})

	t.Run("Store Before Catalog", func(t *testing.T) {
		store := th.NewFakeStore(th.NewTrack(t, "stored", "album-1"))
		catalog := th.NewFakeCatalog(th.NewTrack(t, "remote", "album-2"))
		c := newTestCache(store, catalog, Options{})

		got, err := c.Resolve(ctx, []string{"stored", "remote"}, 0)
		if err != nil {
			t.Fatalf("failed to resolve: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 records, got %d", len(got))
		}

		calls := catalog.Calls()
		if len(calls) != 1 || len(calls[0]) != 1 || calls[0][0] != "remote" {
			t.Errorf("expected one catalog call for the missing id only, got %v", calls)
		}
		if store.PutCount() != 1 {
			t.Errorf("expected only the fetched record to be written, got %d writes", store.PutCount())
		}
	})

	t.Run("Memory Hit Skips Store", func(t *testing.T) {
		store := th.NewFakeStore(th.NewTrack(t, "track-a", "album-1"))
		c := newTestCache(store, th.NewFakeCatalog(), Options{})

		for i := 0; i < 3; i++ {
			if _, err := c.Resolve(ctx, []string{"track-a"}, 0); err != nil {
				t.Fatalf("failed to resolve: %v", err)
			}
		}
		if len(store.Lookups) != 1 {
			t.Errorf("expected 1 store lookup, got %d", len(store.Lookups))
		}
		if stats := c.Stats(); stats.MemoryHits != 2 || stats.StoreHits != 1 {
			t.Errorf("unexpected stats: %+v", stats)
		}
	})

	t.Run("Duplicate IDs", func(t *testing.T) {
		catalog := th.NewFakeCatalog(th.NewTrack(t, "track-a", "album-1"))
		c := newTestCache(th.NewFakeStore(), catalog, Options{})

		got, err := c.Resolve(ctx, []string{"track-a", "track-a", "track-a"}, 1)
		if err != nil {
			t.Fatalf("failed to resolve: %v", err)
		}
		if len(got) != 1 {
			t.Errorf("expected 1 record, got %d", len(got))
		}
		if catalog.Requested("track-a") != 1 {
			t.Errorf("expected track-a requested once, got %d", catalog.Requested("track-a"))
		}
	})

	t.Run("Empty Request", func(t *testing.T) {
		store := th.NewFakeStore()
		c := newTestCache(store, th.NewFakeCatalog(), Options{})

		got, err := c.Resolve(ctx, nil, 0)
		if err != nil || len(got) != 0 {
			t.Errorf("expected empty result, got %v/%v", got, err)
		}
		if len(store.Lookups) != 0 {
			t.Error("expected no store access")
		}
	})

	t.Run("Empty ID", func(t *testing.T) {
		store := th.NewFakeStore()
		c := newTestCache(store, th.NewFakeCatalog(), Options{})

		if _, err := c.Resolve(ctx, []string{"track-a", " "}, 0); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if len(store.Lookups) != 0 {
			t.Error("expected no store access for an invalid request")
		}
	})

	t.Run("Batch Ceiling", func(t *testing.T) {
		store := th.NewFakeStore()
		catalog := th.NewFakeCatalog()
		c := newTestCache(store, catalog, Options{})

		_, err := c.Resolve(ctx, []string{"a", "b", "c", "d"}, 3)
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
		if len(store.Lookups) != 0 || len(catalog.Calls()) != 0 {
			t.Error("expected rejection before any I/O")
		}
		if c.Stats().Entries != 0 {
			t.Error("expected no entries for a rejected request")
		}
	})

	t.Run("Chunks Large Requests", func(t *testing.T) {
		catalog := th.NewFakeCatalog()
		c := newTestCache(th.NewFakeStore(), catalog, Options{FetchConcurrency: 2})

		ids := make([]string, 60)
		for i := range ids {
			ids[i] = fmt.Sprintf("track-%02d", i)
			catalog.Add(th.NewTrack(t, ids[i], "album-1"))
		}

		got, err := c.Resolve(ctx, ids, 0)
		if err != nil {
			t.Fatalf("failed to resolve: %v", err)
		}
		if len(got) != 60 {
			t.Errorf("expected 60 records, got %d", len(got))
		}

		var sizes []int
		for _, batch := range catalog.Calls() {
			sizes = append(sizes, len(batch))
		}
		sort.Ints(sizes)
		if len(sizes) != 2 || sizes[0] != 10 || sizes[1] != services.MaxBatchSize {
			t.Errorf("expected batches of 50 and 10, got %v", sizes)
		}
	})

	t.Run("Absent Is Cached", func(t *testing.T) {
		store := th.NewFakeStore()
		catalog := th.NewFakeCatalog()
		c := newTestCache(store, catalog, Options{})

		for i := 0; i < 2; i++ {
			got, err := c.Resolve(ctx, []string{"missing"}, 0)
			if err != nil {
				t.Fatalf("failed to resolve: %v", err)
			}
			if _, ok := got["missing"]; ok {
				t.Error("absent id should not appear in the result")
			}
		}
		if catalog.Requested("missing") != 1 {
			t.Errorf("expected one catalog request, got %d", catalog.Requested("missing"))
		}
		if store.Has("missing") || store.PutCount() != 0 {
			t.Error("absent ids must not be written to the store")
		}
		if c.Stats().Absent != 1 {
			t.Errorf("expected Absent = 1, got %d", c.Stats().Absent)
		}
	})

	t.Run("Invalidate Falls Back To Store", func(t *testing.T) {
		store := th.NewFakeStore()
		catalog := th.NewFakeCatalog(th.NewTrack(t, "track-a", "album-1"))
		c := newTestCache(store, catalog, Options{})

		c.Resolve(ctx, []string{"track-a"}, 0)
		c.Invalidate("track-a")

		got, err := c.Resolve(ctx, []string{"track-a"}, 0)
		if err != nil || got["track-a"] == nil {
			t.Fatalf("expected record after invalidation, got %v/%v", got, err)
		}
		if len(catalog.Calls()) != 1 {
			t.Errorf("expected the second resolve to be served by the store, got %d catalog calls", len(catalog.Calls()))
		}
		if len(store.Lookups) != 2 {
			t.Errorf("expected 2 store lookups, got %d", len(store.Lookups))
		}
	})

	t.Run("InvalidateAll", func(t *testing.T) {
		store := th.NewFakeStore(th.NewTrack(t, "a", "album-1"), th.NewTrack(t, "b", "album-1"))
		c := newTestCache(store, th.NewFakeCatalog(), Options{})

		c.Resolve(ctx, []string{"a", "b"}, 0)
		if c.Stats().Entries != 2 {
			t.Fatalf("expected 2 entries, got %d", c.Stats().Entries)
		}
		c.InvalidateAll()
		if c.Stats().Entries != 0 {
			t.Errorf("expected no entries, got %d", c.Stats().Entries)
		}
	})

	t.Run("Prime", func(t *testing.T) {
		store := th.NewFakeStore()
		catalog := th.NewFakeCatalog()
		c := newTestCache(store, catalog, Options{})

		track := th.NewTrack(t, "primed", "album-1")
		if err := c.Prime(track); err != nil {
			t.Fatalf("failed to prime: %v", err)
		}

		got, err := c.Resolve(ctx, []string{"primed"}, 0)
		if err != nil || got["primed"] != track {
			t.Fatalf("expected primed record, got %v/%v", got, err)
		}
		if len(store.Lookups) != 0 || len(catalog.Calls()) != 0 {
			t.Error("expected a primed record to be served from memory")
		}

		if err := c.Prime(nil); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for nil, got %v", err)
		}
	})
}

func TestResolveFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("Store Error Aborts", func(t *testing.T) {
		store := th.NewFakeStore()
		store.GetErr = errors.New("disk I/O error")
		catalog := th.NewFakeCatalog(th.NewTrack(t, "track-a", "album-1"))
		c := newTestCache(store, catalog, Options{})

		if _, err := c.Resolve(ctx, []string{"track-a"}, 0); !errors.Is(err, shared.ErrDataAccess) {
			t.Fatalf("expected ErrDataAccess, got %v", err)
		}
		if len(catalog.Calls()) != 0 {
			t.Error("catalog must not be called when the store lookup fails")
		}
		if c.Stats().Entries != 0 {
			t.Error("failed entries must be removed")
		}
	})

	t.Run("Catalog Error Is Not Cached", func(t *testing.T) {
		store := th.NewFakeStore()
		catalog := th.NewFakeCatalog(th.NewTrack(t, "track-a", "album-1"))
		catalog.SetErr(errors.New("503 service unavailable"))
		c := newTestCache(store, catalog, Options{})

		if _, err := c.Resolve(ctx, []string{"track-a"}, 0); !errors.Is(err, shared.ErrAPIRequest) {
			t.Fatalf("expected ErrAPIRequest, got %v", err)
		}
		if c.Stats().Entries != 0 {
			t.Fatalf("expected failed entry to be removed, got %d entries", c.Stats().Entries)
		}

		catalog.SetErr(nil)
		got, err := c.Resolve(ctx, []string{"track-a"}, 0)
		if err != nil || got["track-a"] == nil {
			t.Fatalf("expected retry to succeed, got %v/%v", got, err)
		}
		if len(catalog.Calls()) != 2 {
			t.Errorf("expected a fresh catalog call on retry, got %d calls", len(catalog.Calls()))
		}
		if c.Stats().LoadFailures != 1 {
			t.Errorf("expected LoadFailures = 1, got %d", c.Stats().LoadFailures)
		}
	})

	t.Run("Auth Error Keeps Its Kind", func(t *testing.T) {
		catalog := th.NewFakeCatalog()
		catalog.SetErr(fmt.Errorf("%w: bad client", shared.ErrAuthFailed))
		c := newTestCache(th.NewFakeStore(), catalog, Options{})

		_, err := c.Resolve(ctx, []string{"track-a"}, 0)
		if !errors.Is(err, shared.ErrAuthFailed) || errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected a bare ErrAuthFailed, got %v", err)
		}
	})

	t.Run("Backfill Failure Is Tolerated", func(t *testing.T) {
		store := th.NewFakeStore()
		store.PutErr = errors.New("database is locked")
		catalog := th.NewFakeCatalog(th.NewTrack(t, "track-a", "album-1"))
		c := newTestCache(store, catalog, Options{})

		got, err := c.Resolve(ctx, []string{"track-a"}, 0)
		if err != nil || got["track-a"] == nil {
			t.Fatalf("expected record despite backfill failure, got %v/%v", got, err)
		}
		if c.Stats().BackfillFailures != 1 {
			t.Errorf("expected BackfillFailures = 1, got %d", c.Stats().BackfillFailures)
		}

		if _, err := c.Resolve(ctx, []string{"track-a"}, 0); err != nil {
			t.Fatalf("failed to resolve: %v", err)
		}
		if len(catalog.Calls()) != 1 {
			t.Error("expected the record to stay cached in memory")
		}
	})

	t.Run("Failed Chunk Does Not Hang Others", func(t *testing.T) {
		catalog := &failingCatalog{fail: "track-00"}
		c := newTestCache(th.NewFakeStore(), catalog, Options{FetchConcurrency: 2})

		ids := make([]string, 60)
		for i := range ids {
			ids[i] = fmt.Sprintf("track-%02d", i)
		}

		done := make(chan error, 1)
		go func() {
			_, err := c.Resolve(ctx, ids, 0)
			done <- err
		}()

		select {
		case err := <-done:
			if !errors.Is(err, shared.ErrAPIRequest) {
				t.Errorf("expected ErrAPIRequest, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("resolve did not return")
		}

		for _, id := range ids[:services.MaxBatchSize] {
			if _, ok := c.entries.Get(id); ok {
				t.Fatalf("entry %s from the failed batch should be removed", id)
			}
		}
		for _, id := range ids[services.MaxBatchSize:] {
			if v, ok := c.entries.Get(id); ok && !v.(*entry).settled() {
				t.Fatalf("entry %s should not be pending", id)
			}
		}
	})
}

// failingCatalog fails every batch that contains fail and reports the rest as absent.
type failingCatalog struct {
	fail string
}

func (f *failingCatalog) FetchTracks(ctx context.Context, ids []string) (map[string]*models.TrackMetadata, error) {
	for _, id := range ids {
		if id == f.fail {
			return nil, errors.New("bad gateway")
		}
	}
	return map[string]*models.TrackMetadata{}, nil
}

func TestResolveConcurrency(t *testing.T) {
	ctx := context.Background()

	t.Run("Concurrent Callers Share One Fetch", func(t *testing.T) {
		catalog := th.NewFakeCatalog(th.NewTrack(t, "hot", "album-1"))
		catalog.Gate = make(chan struct{})
		catalog.Started = make(chan struct{}, 4)
		c := newTestCache(th.NewFakeStore(), catalog, Options{})

		const callers = 20
		var wg sync.WaitGroup
		results := make(chan *models.TrackMetadata, callers)
		errs := make(chan error, callers)

		call := func() {
			defer wg.Done()
			got, err := c.Resolve(ctx, []string{"hot"}, 0)
			if err != nil {
				errs <- err
				return
			}
			results <- got["hot"]
		}

		wg.Add(1)
		go call()
		<-catalog.Started

		for i := 1; i < callers; i++ {
			wg.Add(1)
			go call()
		}
		eventually(t, "callers to join the pending load", func() bool {
			return c.Stats().MemoryHits == callers-1
		})

		close(catalog.Gate)
		wg.Wait()
		close(results)
		close(errs)

		for err := range errs {
			t.Errorf("resolve failed: %v", err)
		}
		var first *models.TrackMetadata
		for got := range results {
			if got == nil {
				t.Fatal("expected every caller to receive the record")
			}
			if first == nil {
				first = got
			} else if got != first {
				t.Error("expected every caller to share one record")
			}
		}
		if catalog.Requested("hot") != 1 {
			t.Errorf("expected one catalog request, got %d", catalog.Requested("hot"))
		}
	})

	t.Run("Waiters See The Load Error", func(t *testing.T) {
		catalog := th.NewFakeCatalog()
		catalog.Gate = make(chan struct{})
		catalog.Started = make(chan struct{}, 4)
		c := newTestCache(th.NewFakeStore(), catalog, Options{})

		const callers = 5
		errs := make(chan error, callers)
		resolve := func() {
			_, err := c.Resolve(ctx, []string{"flaky"}, 0)
			errs <- err
		}

		go resolve()
		<-catalog.Started
		for i := 1; i < callers; i++ {
			go resolve()
		}
		eventually(t, "waiters", func() bool { return c.Stats().MemoryHits == callers-1 })

		catalog.SetErr(errors.New("connection reset"))
		close(catalog.Gate)

		for i := 0; i < callers; i++ {
			if err := <-errs; !errors.Is(err, shared.ErrAPIRequest) {
				t.Errorf("expected ErrAPIRequest, got %v", err)
			}
		}
		if _, ok := c.entries.Get("flaky"); ok {
			t.Error("failed entry should be removed")
		}
	})

	t.Run("Slow Load Outlives Access Window", func(t *testing.T) {
		catalog := th.NewFakeCatalog(th.NewTrack(t, "slow", "album-1"))
		catalog.Gate = make(chan struct{})
		catalog.Started = make(chan struct{}, 4)
		c := newTestCache(th.NewFakeStore(), catalog, Options{
			ExpireAfterAccess: 30 * time.Millisecond,
			ExpireAfterWrite:  time.Hour,
		})

		errs := make(chan error, 2)
		resolve := func() {
			got, err := c.Resolve(ctx, []string{"slow"}, 0)
			if err == nil && got["slow"] == nil {
				err = errors.New("missing record")
			}
			errs <- err
		}

		go resolve()
		<-catalog.Started
		time.Sleep(60 * time.Millisecond)
		go resolve()
		eventually(t, "second caller to join", func() bool { return c.Stats().MemoryHits == 1 })

		close(catalog.Gate)
		for i := 0; i < 2; i++ {
			if err := <-errs; err != nil {
				t.Errorf("resolve failed: %v", err)
			}
		}
		if catalog.Requested("slow") != 1 {
			t.Errorf("expected one catalog request, got %d", catalog.Requested("slow"))
		}
	})

	t.Run("Caller Cancellation Still Caches", func(t *testing.T) {
		store := th.NewFakeStore()
		catalog := th.NewFakeCatalog(th.NewTrack(t, "slow", "album-1"))
		catalog.Gate = make(chan struct{})
		catalog.Started = make(chan struct{}, 4)
		c := newTestCache(store, catalog, Options{})

		cctx, cancel := context.WithCancel(ctx)
		errs := make(chan error, 1)
		go func() {
			_, err := c.Resolve(cctx, []string{"slow"}, 0)
			errs <- err
		}()

		<-catalog.Started
		cancel()
		if err := <-errs; !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}

		close(catalog.Gate)
		eventually(t, "backfill", func() bool { return store.Has("slow") })

		got, err := c.Resolve(ctx, []string{"slow"}, 0)
		if err != nil || got["slow"] == nil {
			t.Fatalf("expected the detached load to be cached, got %v/%v", got, err)
		}
		if catalog.Requested("slow") != 1 {
			t.Errorf("expected one catalog request, got %d", catalog.Requested("slow"))
		}
	})
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()

	t.Run("After Access", func(t *testing.T) {
		store := th.NewFakeStore(th.NewTrack(t, "track-a", "album-1"))
		c := newTestCache(store, th.NewFakeCatalog(), Options{
			ExpireAfterAccess: 30 * time.Millisecond,
			ExpireAfterWrite:  time.Hour,
		})

		c.Resolve(ctx, []string{"track-a"}, 0)
		time.Sleep(60 * time.Millisecond)
		c.Resolve(ctx, []string{"track-a"}, 0)

		if len(store.Lookups) != 2 {
			t.Errorf("expected idle entry to expire, got %d store lookups", len(store.Lookups))
		}
	})

	t.Run("Access Extends Lifetime", func(t *testing.T) {
		store := th.NewFakeStore(th.NewTrack(t, "track-a", "album-1"))
		c := newTestCache(store, th.NewFakeCatalog(), Options{
			ExpireAfterAccess: 80 * time.Millisecond,
			ExpireAfterWrite:  time.Hour,
		})

		for i := 0; i < 4; i++ {
			c.Resolve(ctx, []string{"track-a"}, 0)
			time.Sleep(30 * time.Millisecond)
		}
		if len(store.Lookups) != 1 {
			t.Errorf("expected touched entry to survive, got %d store lookups", len(store.Lookups))
		}
	})

	t.Run("Stats Count Live Entries", func(t *testing.T) {
		c := newTestCache(th.NewFakeStore(), th.NewFakeCatalog(), Options{
			ExpireAfterAccess: 20 * time.Millisecond,
			ExpireAfterWrite:  time.Hour,
		})
		// No janitor, so expired entries stay in the map until read.
		c.entries = gocache.New(time.Hour, 0)

		if err := c.Prime(th.NewTrack(t, "track-a", "album-1")); err != nil {
			t.Fatalf("failed to prime: %v", err)
		}
		if got := c.Stats().Entries; got != 1 {
			t.Fatalf("expected 1 entry, got %d", got)
		}

		time.Sleep(40 * time.Millisecond)
		if got := c.Stats().Entries; got != 0 {
			t.Errorf("expected expired entry to be left out, got %d", got)
		}
	})

	t.Run("After Write", func(t *testing.T) {
		store := th.NewFakeStore(th.NewTrack(t, "track-a", "album-1"))
		c := newTestCache(store, th.NewFakeCatalog(), Options{
			ExpireAfterAccess: time.Hour,
			ExpireAfterWrite:  50 * time.Millisecond,
		})

		for i := 0; i < 4; i++ {
			c.Resolve(ctx, []string{"track-a"}, 0)
			time.Sleep(25 * time.Millisecond)
		}
		if len(store.Lookups) < 2 {
			t.Errorf("expected entry to expire after write despite access, got %d store lookups", len(store.Lookups))
		}
	})
}

func TestChunk(t *testing.T) {
	tc := []struct {
		name  string
		ids   int
		size  int
		sizes []int
	}{
		{name: "empty", ids: 0, size: 50, sizes: nil},
		{name: "exact", ids: 50, size: 50, sizes: []int{50}},
		{name: "remainder", ids: 60, size: 50, sizes: []int{50, 10}},
		{name: "several", ids: 101, size: 50, sizes: []int{50, 50, 1}},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			ids := make([]string, tt.ids)
			for i := range ids {
				ids[i] = fmt.Sprint(i)
			}

			chunks := chunk(ids, tt.size)
			if len(chunks) != len(tt.sizes) {
				t.Fatalf("expected %d chunks, got %d", len(tt.sizes), len(chunks))
			}
			for i, c := range chunks {
				if len(c) != tt.sizes[i] {
					t.Errorf("chunk %d: expected %d ids, got %d", i, tt.sizes[i], len(c))
				}
			}
		})
	}
}
