package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackmeta/internal/models"
	"github.com/desertthunder/trackmeta/internal/services"
	"github.com/desertthunder/trackmeta/internal/shared"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultExpireAfterAccess = 10 * time.Minute
	DefaultExpireAfterWrite  = time.Hour
	DefaultLoadTimeout       = 2 * time.Minute
)

// Store is the persistent layer consulted before the catalog and backfilled after it.
type Store interface {
	// GetMany returns the stored records among ids. Missing ids are simply absent.
	GetMany(ctx context.Context, ids []string) (map[string]*models.TrackMetadata, error)
	Put(ctx context.Context, track *models.TrackMetadata) error
}

// Options configures a [MetadataCache].
type Options struct {
	// ExpireAfterAccess drops entries not requested for this long.
	ExpireAfterAccess time.Duration
	// ExpireAfterWrite drops entries this long after they were created, however often they are used.
	ExpireAfterWrite time.Duration
	// FetchConcurrency bounds the catalog calls one load issues at once. Defaults to 1.
	FetchConcurrency int
	// LoadTimeout bounds a load that no longer has a caller waiting on it.
	LoadTimeout time.Duration
	Logger      *log.Logger
}

// Stats is a snapshot of cache activity counters.
type Stats struct {
	Entries          int   `json:"entries"`
	MemoryHits       int64 `json:"memory_hits"`
	StoreHits        int64 `json:"store_hits"`
	RemoteCalls      int64 `json:"remote_calls"`
	RemoteIDs        int64 `json:"remote_ids"`
	Absent           int64 `json:"absent"`
	BackfillFailures int64 `json:"backfill_failures"`
	LoadFailures     int64 `json:"load_failures"`
}

type counters struct {
	memoryHits, storeHits, remoteCalls, remoteIDs atomic.Int64
	absent, backfillFailures, loadFailures        atomic.Int64
}

// MetadataCache resolves track ids to metadata through an in-flight map, the store and the catalog.
type MetadataCache struct {
	store   Store
	catalog services.Catalog
	opts    Options
	logger  *log.Logger

	// mu makes lookup-then-insert on entries atomic. It is never held across I/O.
	mu      sync.Mutex
	entries *gocache.Cache
	stats   counters
}

// New creates a [MetadataCache] backed by store and catalog.
func New(store Store, catalog services.Catalog, opts Options) *MetadataCache {
	if opts.ExpireAfterAccess <= 0 {
		opts.ExpireAfterAccess = DefaultExpireAfterAccess
	}
	if opts.ExpireAfterWrite <= 0 {
		opts.ExpireAfterWrite = DefaultExpireAfterWrite
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = 1
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = DefaultLoadTimeout
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	cleanup := min(opts.ExpireAfterAccess, opts.ExpireAfterWrite)
	return &MetadataCache{
		store:   store,
		catalog: catalog,
		opts:    opts,
		logger:  shared.WithLogger(opts.Logger, "component", "cache"),
		entries: gocache.New(opts.ExpireAfterWrite, cleanup),
	}
}

// Resolve returns the metadata for ids. Ids the catalog has no record of are absent from the map.
//
// A positive maxBatch rejects requests with more distinct ids than that before doing any I/O; zero
// lets the cache split the request into catalog-sized batches itself. Concurrent calls for the same
// id share a single load. If the caller's context ends first, Resolve returns its error but the load
// carries on and its result stays cached.
func (c *MetadataCache) Resolve(ctx context.Context, ids []string, maxBatch int) (map[string]*models.TrackMetadata, error) {
	unique, err := distinct(ids, maxBatch)
	if err != nil {
		return nil, err
	}
	if len(unique) == 0 {
		return map[string]*models.TrackMetadata{}, nil
	}

	logger := shared.WithLogger(c.logger, "resolve", shared.GenerateID())
	entries, admitted := c.admit(unique)
	logger.Debug("admitted ids", "requested", len(unique), "loading", len(admitted.ids))

	if len(admitted.ids) > 0 {
		loaded := make(chan error, 1)
		go func() {
			lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.LoadTimeout)
			defer cancel()
			loaded <- c.load(lctx, logger, admitted)
		}()

		select {
		case err := <-loaded:
			if err != nil {
				return nil, err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	result := make(map[string]*models.TrackMetadata, len(unique))
	for _, id := range unique {
		track, err := entries[id].wait(ctx)
		if err != nil {
			return nil, err
		}
		if track != nil {
			result[id] = track
		}
	}
	return result, nil
}

// distinct validates ids and removes duplicates, keeping first-seen order.
func distinct(ids []string, maxBatch int) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("%w: empty track id", shared.ErrInvalidInput)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	if maxBatch > 0 && len(unique) > maxBatch {
		return nil, fmt.Errorf("%w: %d track ids exceed the batch limit of %d", shared.ErrInvalidInput, len(unique), maxBatch)
	}
	return unique, nil
}

// loadSet is the ids one Resolve call admitted, in request order.
type loadSet struct {
	ids     []string
	entries map[string]*entry
}

// admit finds or creates an entry for every id. New entries are returned in the load set and
// belong to this call until it settles them.
func (c *MetadataCache) admit(ids []string) (map[string]*entry, loadSet) {
	now := time.Now()
	all := make(map[string]*entry, len(ids))
	admitted := loadSet{entries: make(map[string]*entry)}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range ids {
		if v, ok := c.entries.Get(id); ok {
			e := v.(*entry)
			c.entries.Set(id, e, c.ttl(e, now))
			all[id] = e
			c.stats.memoryHits.Add(1)
			continue
		}

		e := newEntry(now, c.opts.ExpireAfterWrite)
		c.entries.Set(id, e, c.ttl(e, now))
		all[id] = e
		admitted.ids = append(admitted.ids, id)
		admitted.entries[id] = e
	}

	return all, admitted
}

// ttl is the remaining lifetime of e if it is used at now: the access window, capped by the write deadline.
// A pending entry does not expire, so waiters joining a slow load never trigger a second one.
func (c *MetadataCache) ttl(e *entry, now time.Time) time.Duration {
	if !e.settled() {
		return gocache.NoExpiration
	}
	return max(min(c.opts.ExpireAfterAccess, e.expiresAt.Sub(now)), time.Millisecond)
}

// settle resolves e and starts its expiry clock, provided the map still holds it.
func (c *MetadataCache) settle(id string, e *entry, track *models.TrackMetadata) {
	if !e.settle(track, nil) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.entries.Get(id); ok && v.(*entry) == e {
		c.entries.Set(id, e, c.ttl(e, time.Now()))
	}
}

// load resolves every admitted entry from the store, then the catalog, and backfills the store.
// On return no admitted entry is pending: failed ones carry the error and are removed from the map.
func (c *MetadataCache) load(ctx context.Context, logger *log.Logger, set loadSet) (err error) {
	defer func() {
		if err != nil {
			c.stats.loadFailures.Add(1)
			logger.Error("resolve failed", "ids", len(set.ids), "error", err)
		}
		c.release(set, err)
	}()

	stored, err := c.store.GetMany(ctx, set.ids)
	if err != nil {
		return dataAccess(err)
	}

	var missing []string
	for _, id := range set.ids {
		if track := stored[id]; track != nil {
			c.settle(id, set.entries[id], track)
			c.stats.storeHits.Add(1)
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return nil
	}

	var (
		mu      sync.Mutex
		fetched []*models.TrackMetadata
	)

	// A failed batch must not cancel the others, so the group carries no context.
	g := new(errgroup.Group)
	g.SetLimit(c.opts.FetchConcurrency)

	for _, batch := range chunk(missing, services.MaxBatchSize) {
		g.Go(func() error {
			c.stats.remoteCalls.Add(1)
			c.stats.remoteIDs.Add(int64(len(batch)))

			found, err := c.catalog.FetchTracks(ctx, batch)
			if err != nil {
				err = upstream(err)
				for _, id := range batch {
					c.fail(id, set.entries[id], err)
				}
				return err
			}

			for _, id := range batch {
				track := found[id]
				c.settle(id, set.entries[id], track)
				if track == nil {
					c.stats.absent.Add(1)
					continue
				}
				mu.Lock()
				fetched = append(fetched, track)
				mu.Unlock()
			}
			return nil
		})
	}

	fetchErr := g.Wait()
	c.backfill(ctx, logger, fetched)
	return fetchErr
}

// backfill writes fetched records to the store. Failures only cost a future remote call, so they are logged.
func (c *MetadataCache) backfill(ctx context.Context, logger *log.Logger, tracks []*models.TrackMetadata) {
	for _, track := range tracks {
		if err := c.store.Put(ctx, track); err != nil {
			c.stats.backfillFailures.Add(1)
			logger.Warn("failed to persist track metadata", "id", track.ID(), "error", err)
		}
	}
	if len(tracks) > 0 {
		logger.Debug("backfilled store", "tracks", len(tracks))
	}
}

// release settles whatever the load left pending: with err when it failed, otherwise as absent.
func (c *MetadataCache) release(set loadSet, err error) {
	for _, id := range set.ids {
		e := set.entries[id]
		if err != nil {
			c.fail(id, e, err)
			continue
		}
		c.settle(id, e, nil)
	}
}

// fail settles e with err and drops it from the map so the next request starts over.
func (c *MetadataCache) fail(id string, e *entry, err error) {
	if !e.settle(nil, err) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.entries.Get(id); ok && v.(*entry) == e {
		c.entries.Delete(id)
	}
}

// Prime stores an already resolved record in memory, replacing any entry for its id.
func (c *MetadataCache) Prime(track *models.TrackMetadata) error {
	if track == nil {
		return fmt.Errorf("%w: nil track", shared.ErrInvalidInput)
	}
	if err := track.Validate(); err != nil {
		return err
	}

	now := time.Now()
	e := newEntry(now, c.opts.ExpireAfterWrite)
	e.settle(track, nil)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Set(track.ID(), e, c.ttl(e, now))
	return nil
}

// Invalidate removes the in-memory entry for id. The store is left untouched.
func (c *MetadataCache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Delete(id)
}

// InvalidateAll removes every in-memory entry. The store is left untouched.
func (c *MetadataCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Flush()
}

// Stats returns a snapshot of the activity counters. Entries counts live entries only; expired
// ones the janitor has not swept yet are left out.
func (c *MetadataCache) Stats() Stats {
	return Stats{
		Entries:          len(c.entries.Items()),
		MemoryHits:       c.stats.memoryHits.Load(),
		StoreHits:        c.stats.storeHits.Load(),
		RemoteCalls:      c.stats.remoteCalls.Load(),
		RemoteIDs:        c.stats.remoteIDs.Load(),
		Absent:           c.stats.absent.Load(),
		BackfillFailures: c.stats.backfillFailures.Load(),
		LoadFailures:     c.stats.loadFailures.Load(),
	}
}

// chunk splits ids into slices of at most size elements.
func chunk(ids []string, size int) [][]string {
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		chunks = append(chunks, ids[start:min(start+size, len(ids))])
	}
	return chunks
}

func dataAccess(err error) error {
	if errors.Is(err, shared.ErrDataAccess) {
		return err
	}
	return fmt.Errorf("%w: store lookup: %w", shared.ErrDataAccess, err)
}

func upstream(err error) error {
	if errors.Is(err, shared.ErrAPIRequest) || errors.Is(err, shared.ErrAuthFailed) || errors.Is(err, shared.ErrInvalidInput) {
		return err
	}
	return fmt.Errorf("%w: %w", shared.ErrAPIRequest, err)
}
