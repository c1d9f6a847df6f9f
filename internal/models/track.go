package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/desertthunder/trackmeta/internal/shared"
	"github.com/zmb3/spotify/v2"
)

// MaxArtistColumns is the number of artist ids indexed per record.
const MaxArtistColumns = 4

// MaxPopularity is the upper bound of the catalog popularity score.
const MaxPopularity = 100

// TrackMetadata is the resolved metadata record for a single catalog track.
type TrackMetadata struct {
	trackID    string
	albumID    string
	artistIDs  []string
	explicit   bool
	popularity int
	isrc       string
	payload    string
	track      spotify.FullTrack
}

// NewTrackMetadata derives a record from a full catalog track.
func NewTrackMetadata(track *spotify.FullTrack) (*TrackMetadata, error) {
	if track == nil {
		return nil, fmt.Errorf("%w: nil track", shared.ErrCorruptRecord)
	}

	data, err := json.Marshal(track)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to serialize track %s: %w", shared.ErrCorruptRecord, track.ID, err)
	}
	return ParseTrackMetadata(string(data))
}

// ParseTrackMetadata rebuilds a record from the serialized payload produced by [TrackMetadata.Payload].
func ParseTrackMetadata(payload string) (*TrackMetadata, error) {
	var track spotify.FullTrack
	if err := json.Unmarshal([]byte(payload), &track); err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrCorruptRecord, err)
	}

	m := &TrackMetadata{
		trackID:    string(track.ID),
		albumID:    string(track.Album.ID),
		explicit:   track.Explicit,
		popularity: int(track.Popularity),
		isrc:       track.ExternalIDs["isrc"],
		payload:    payload,
		track:      track,
	}
	for _, a := range track.Artists {
		if len(m.artistIDs) == MaxArtistColumns {
			break
		}
		m.artistIDs = append(m.artistIDs, string(a.ID))
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the invariants the store schema relies on.
func (m *TrackMetadata) Validate() error {
	if strings.TrimSpace(m.trackID) == "" {
		return fmt.Errorf("%w: track id is required", shared.ErrCorruptRecord)
	}
	if len(m.artistIDs) == 0 || m.artistIDs[0] == "" {
		return fmt.Errorf("%w: track %s has no primary artist", shared.ErrCorruptRecord, m.trackID)
	}
	if len(m.artistIDs) > MaxArtistColumns {
		return fmt.Errorf("%w: track %s has more than %d artist ids", shared.ErrCorruptRecord, m.trackID, MaxArtistColumns)
	}
	if m.popularity < 0 || m.popularity > MaxPopularity {
		return fmt.Errorf("%w: track %s popularity %d out of range", shared.ErrCorruptRecord, m.trackID, m.popularity)
	}
	return nil
}

func (m *TrackMetadata) ID() string      { return m.trackID }
func (m *TrackMetadata) AlbumID() string { return m.albumID }
func (m *TrackMetadata) Explicit() bool  { return m.explicit }
func (m *TrackMetadata) Popularity() int { return m.popularity }
func (m *TrackMetadata) ISRC() string    { return m.isrc }

// Payload returns the serialized catalog record stored alongside the indexed columns.
func (m *TrackMetadata) Payload() string { return m.payload }

// ArtistIDs returns a copy of the indexed artist ids, primary artist first.
func (m *TrackMetadata) ArtistIDs() []string {
	ids := make([]string, len(m.artistIDs))
	copy(ids, m.artistIDs)
	return ids
}

// ArtistID returns the artist id for column i (0 based), or "" when the track has fewer artists.
func (m *TrackMetadata) ArtistID(i int) string {
	if i < 0 || i >= len(m.artistIDs) {
		return ""
	}
	return m.artistIDs[i]
}

// Track returns a copy of the decoded catalog record. Slices inside it are shared and must not be modified.
func (m *TrackMetadata) Track() spotify.FullTrack { return m.track }

func (m *TrackMetadata) Name() string      { return m.track.Name }
func (m *TrackMetadata) AlbumName() string { return m.track.Album.Name }
func (m *TrackMetadata) DurationMs() int   { return int(m.track.Duration) }

// ArtistNames returns every credited artist name, not only the indexed ones.
func (m *TrackMetadata) ArtistNames() []string {
	names := make([]string, 0, len(m.track.Artists))
	for _, a := range m.track.Artists {
		names = append(names, a.Name)
	}
	return names
}

// trackMetadataJSON is the wire form used by the HTTP API and JSON exports.
type trackMetadataJSON struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	AlbumID    string          `json:"album_id"`
	Album      string          `json:"album"`
	ArtistIDs  []string        `json:"artist_ids"`
	Artists    []string        `json:"artists"`
	Explicit   bool            `json:"explicit"`
	Popularity int             `json:"popularity"`
	DurationMs int             `json:"duration_ms"`
	ISRC       string          `json:"isrc,omitempty"`
	Track      json.RawMessage `json:"track,omitempty"`
}

// MarshalJSON implements [json.Marshaler].
func (m *TrackMetadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(trackMetadataJSON{
		ID:         m.trackID,
		Name:       m.Name(),
		AlbumID:    m.albumID,
		Album:      m.AlbumName(),
		ArtistIDs:  m.ArtistIDs(),
		Artists:    m.ArtistNames(),
		Explicit:   m.explicit,
		Popularity: m.popularity,
		DurationMs: m.DurationMs(),
		ISRC:       m.isrc,
		Track:      json.RawMessage(m.payload),
	})
}
