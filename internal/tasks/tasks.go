// package tasks implements long-running operations over the metadata cache.
package tasks

import (
	"context"

	"github.com/desertthunder/trackmeta/internal/models"
)

// Resolver resolves track ids to metadata. [cache.MetadataCache] satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, ids []string, maxBatch int) (map[string]*models.TrackMetadata, error)
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
		// Channel full, skip this update
	}
}
