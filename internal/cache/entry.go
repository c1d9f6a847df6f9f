package cache

import (
	"context"
	"sync"
	"time"

	"github.com/desertthunder/trackmeta/internal/models"
)

// entry is the per-id slot of the in-flight map: pending until settle is called once, then
// resolved to a record, to absent (nil record, nil error), or to the error that stopped its load.
type entry struct {
	done      chan struct{}
	once      sync.Once
	track     *models.TrackMetadata
	err       error
	expiresAt time.Time
}

func newEntry(now time.Time, writeTTL time.Duration) *entry {
	return &entry{done: make(chan struct{}), expiresAt: now.Add(writeTTL)}
}

// settle resolves the entry and wakes every waiter. Only the first call has an effect; it reports
// whether this call was the one that settled it.
func (e *entry) settle(track *models.TrackMetadata, err error) bool {
	settled := false
	e.once.Do(func() {
		e.track, e.err = track, err
		close(e.done)
		settled = true
	})
	return settled
}

func (e *entry) settled() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// wait blocks until the entry is settled or ctx ends.
func (e *entry) wait(ctx context.Context) (*models.TrackMetadata, error) {
	select {
	case <-e.done:
		return e.track, e.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
