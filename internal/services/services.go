// package services defines the remote collaborators of the metadata cache
//
// Spotify catalog, Spotify accounts and web player token endpoints
package services

import (
	"context"

	"github.com/desertthunder/trackmeta/internal/models"
)

// MaxBatchSize is the most track ids the catalog accepts in one call.
const MaxBatchSize = 50

// Catalog fetches track metadata from a remote catalog in bounded batches.
type Catalog interface {
	// FetchTracks resolves at most [MaxBatchSize] ids. Ids the catalog has no record for are
	// missing from the returned map; that is not an error.
	FetchTracks(ctx context.Context, ids []string) (map[string]*models.TrackMetadata, error)
}

// TokenProvider hands out bearer tokens that are valid at the time of the call.
type TokenProvider interface {
	Get(ctx context.Context) (Token, error)
}
