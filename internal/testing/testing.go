// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"testing"

	"github.com/desertthunder/trackmeta/internal/models"
	"github.com/zmb3/spotify/v2"
)

// NewTrack builds a valid [models.TrackMetadata] for tests. The first artist id defaults to "artist-1".
func NewTrack(t testing.TB, id, albumID string, artistIDs ...string) *models.TrackMetadata {
	t.Helper()
	if len(artistIDs) == 0 {
		artistIDs = []string{"artist-1"}
	}

	ft := &spotify.FullTrack{
		SimpleTrack: spotify.SimpleTrack{
			ID:       spotify.ID(id),
			Name:     "Track " + id,
			Explicit: len(id)%2 == 0,
			Duration: 180000,
		},
		Album:      spotify.SimpleAlbum{ID: spotify.ID(albumID), Name: "Album " + albumID},
		Popularity: 50,
	}
	for i, a := range artistIDs {
		ft.Artists = append(ft.Artists, spotify.SimpleArtist{ID: spotify.ID(a), Name: fmt.Sprintf("Artist %d", i+1)})
	}

	track, err := models.NewTrackMetadata(ft)
	if err != nil {
		t.Fatalf("failed to build track %s: %v", id, err)
	}
	return track
}

// FakeStore is an in-memory stand-in for the metadata repository.
type FakeStore struct {
	mu      sync.Mutex
	rows    map[string]*models.TrackMetadata
	GetErr  error
	PutErr  error
	Lookups []string
	Puts    []string
}

func NewFakeStore(tracks ...*models.TrackMetadata) *FakeStore {
	s := &FakeStore{rows: map[string]*models.TrackMetadata{}}
	for _, tr := range tracks {
		s.rows[tr.ID()] = tr
	}
	return s
}

func (s *FakeStore) Get(ctx context.Context, id string) (*models.TrackMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Lookups = append(s.Lookups, id)
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	return s.rows[id], nil
}

func (s *FakeStore) GetMany(ctx context.Context, ids []string) (map[string]*models.TrackMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Lookups = append(s.Lookups, ids...)
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	found := map[string]*models.TrackMetadata{}
	for _, id := range ids {
		if tr, ok := s.rows[id]; ok {
			found[id] = tr
		}
	}
	return found, nil
}

func (s *FakeStore) Put(ctx context.Context, track *models.TrackMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PutErr != nil {
		return s.PutErr
	}
	s.Puts = append(s.Puts, track.ID())
	s.rows[track.ID()] = track
	return nil
}

func (s *FakeStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	return nil
}

func (s *FakeStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows), nil
}

func (s *FakeStore) ListByAlbum(ctx context.Context, albumID string) ([]*models.TrackMetadata, error) {
	return s.filter(func(tr *models.TrackMetadata) bool { return tr.AlbumID() == albumID }), nil
}

func (s *FakeStore) ListByArtist(ctx context.Context, artistID string) ([]*models.TrackMetadata, error) {
	return s.filter(func(tr *models.TrackMetadata) bool {
		for _, a := range tr.ArtistIDs() {
			if a == artistID {
				return true
			}
		}
		return false
	}), nil
}

func (s *FakeStore) filter(keep func(*models.TrackMetadata) bool) []*models.TrackMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.TrackMetadata
	for _, tr := range s.rows {
		if keep(tr) {
			out = append(out, tr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Has reports whether a row exists for id.
func (s *FakeStore) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rows[id]
	return ok
}

// PutCount returns the number of successful writes.
func (s *FakeStore) PutCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Puts)
}

// FakeCatalog is an in-memory stand-in for the remote catalog.
//
// When Gate is set every call blocks until it is closed, which lets tests pile up concurrent callers.
type FakeCatalog struct {
	mu     sync.Mutex
	tracks map[string]*models.TrackMetadata
	calls  [][]string
	Err    error
	Gate   chan struct{}
	// Started receives one value per call before it waits on Gate.
	Started chan struct{}
}

func NewFakeCatalog(tracks ...*models.TrackMetadata) *FakeCatalog {
	c := &FakeCatalog{tracks: map[string]*models.TrackMetadata{}}
	for _, tr := range tracks {
		c.tracks[tr.ID()] = tr
	}
	return c
}

func (c *FakeCatalog) FetchTracks(ctx context.Context, ids []string) (map[string]*models.TrackMetadata, error) {
	c.mu.Lock()
	batch := make([]string, len(ids))
	copy(batch, ids)
	c.calls = append(c.calls, batch)
	gate, started := c.Gate, c.Started
	c.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	found := map[string]*models.TrackMetadata{}
	for _, id := range ids {
		if tr, ok := c.tracks[id]; ok {
			found[id] = tr
		}
	}
	return found, nil
}

// Add makes a track available to later calls.
func (c *FakeCatalog) Add(tracks ...*models.TrackMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tr := range tracks {
		c.tracks[tr.ID()] = tr
	}
}

// SetErr changes the error returned by later calls.
func (c *FakeCatalog) SetErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Err = err
}

// Calls returns a copy of the id batches received so far.
func (c *FakeCatalog) Calls() [][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]string, len(c.calls))
	copy(out, c.calls)
	return out
}

// Requested counts how many times id was sent to the catalog.
func (c *FakeCatalog) Requested(id string) int {
	n := 0
	for _, batch := range c.Calls() {
		for _, got := range batch {
			if got == id {
				n++
			}
		}
	}
	return n
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

var _ io.ReadCloser = (*FCloser)(nil)

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
