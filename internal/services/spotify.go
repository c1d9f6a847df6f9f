// Spotify Web API implementation of [Catalog]
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackmeta/internal/models"
	"github.com/desertthunder/trackmeta/internal/shared"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// SpotifyBaseURL is the Web API root. Request paths are appended to it, so it ends in a slash.
const SpotifyBaseURL = "https://api.spotify.com/v1/"

// spotifyIDPattern matches base62 catalog ids. The API rejects a whole batch when one id is malformed.
var spotifyIDPattern = regexp.MustCompile(`^[0-9A-Za-z]{22}$`)

// IsTrackID reports whether id is a well-formed catalog track id.
func IsTrackID(id string) bool {
	return spotifyIDPattern.MatchString(id)
}

// SpotifyCatalogOpts configures [NewSpotifyCatalog].
type SpotifyCatalogOpts struct {
	Tokens  *TokenManager
	BaseURL string
	// Market relinks tracks to versions playable in the given ISO 3166-1 country.
	Market string
	// Limiter throttles calls; nil means unlimited.
	Limiter *rate.Limiter
	// Transport is the base transport under the bearer token transport.
	Transport http.RoundTripper
	Timeout   time.Duration
	Logger    *log.Logger
}

// SpotifyCatalog fetches track metadata with the several-tracks endpoint.
type SpotifyCatalog struct {
	client  *spotify.Client
	tokens  *TokenManager
	market  string
	limiter *rate.Limiter
	logger  *log.Logger
}

// NewSpotifyCatalog creates a [SpotifyCatalog] authenticated by opts.Tokens.
func NewSpotifyCatalog(opts SpotifyCatalogOpts) (*SpotifyCatalog, error) {
	if opts.Tokens == nil {
		return nil, fmt.Errorf("%w: catalog requires a token manager", shared.ErrMissingCredentials)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = SpotifyBaseURL
	}
	if !strings.HasSuffix(opts.BaseURL, "/") {
		opts.BaseURL += "/"
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	httpClient := &http.Client{
		Timeout:   opts.Timeout,
		Transport: &oauth2.Transport{Source: opts.Tokens, Base: opts.Transport},
	}

	return &SpotifyCatalog{
		client:  spotify.New(httpClient, spotify.WithBaseURL(opts.BaseURL)),
		tokens:  opts.Tokens,
		market:  opts.Market,
		limiter: opts.Limiter,
		logger:  shared.WithLogger(opts.Logger, "service", "spotify"),
	}, nil
}

// FetchTracks implements [Catalog].
//
// Malformed ids never reach the API and are reported as not found.
func (c *SpotifyCatalog) FetchTracks(ctx context.Context, ids []string) (map[string]*models.TrackMetadata, error) {
	found := make(map[string]*models.TrackMetadata, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	if len(ids) > MaxBatchSize {
		return nil, fmt.Errorf("%w: maximum %d track IDs allowed per request, got %d", shared.ErrInvalidInput, MaxBatchSize, len(ids))
	}

	requested := make([]string, 0, len(ids))
	spotifyIDs := make([]spotify.ID, 0, len(ids))
	for _, id := range ids {
		if !IsTrackID(id) {
			c.logger.Debug("skipping malformed track id", "id", id)
			continue
		}
		requested = append(requested, id)
		spotifyIDs = append(spotifyIDs, spotify.ID(id))
	}
	if len(spotifyIDs) == 0 {
		return found, nil
	}

	// Surface credential failures as authentication errors rather than transport errors.
	if _, err := c.tokens.Get(ctx); err != nil {
		return nil, err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %w", shared.ErrAPIRequest, err)
		}
	}

	var opts []spotify.RequestOption
	if c.market != "" {
		opts = append(opts, spotify.Market(c.market))
	}

	tracks, err := c.client.GetTracks(ctx, spotifyIDs, opts...)
	if err != nil {
		if status := errorStatus(err); status == http.StatusUnauthorized {
			c.tokens.Invalidate()
		}
		return nil, fmt.Errorf("%w: get tracks: %w", shared.ErrAPIRequest, err)
	}

	// The API answers positionally, with null for ids it has no record of.
	if len(tracks) != len(requested) {
		return nil, fmt.Errorf("%w: requested %d tracks, received %d", shared.ErrAPIRequest, len(requested), len(tracks))
	}

	for i, ft := range tracks {
		if ft == nil {
			continue
		}
		if id := spotify.ID(requested[i]); ft.ID != id {
			// Relinked for the market: the record stays keyed by the id that was asked for.
			c.logger.Debug("track relinked", "id", id, "playable_id", ft.ID)
			relinked := *ft
			relinked.ID = id
			relinked.URI = spotify.URI("spotify:track:" + requested[i])
			ft = &relinked
		}
		track, err := models.NewTrackMetadata(ft)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed track %s: %w", shared.ErrAPIRequest, requested[i], err)
		}
		found[requested[i]] = track
	}

	c.logger.Debug("fetched tracks", "requested", len(requested), "found", len(found))
	return found, nil
}

// errorStatus extracts the HTTP status from a Spotify API error, or 0.
func errorStatus(err error) int {
	var value spotify.Error
	if errors.As(err, &value) {
		return value.Status
	}
	var ptr *spotify.Error
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Status
	}
	return 0
}

var _ Catalog = (*SpotifyCatalog)(nil)
