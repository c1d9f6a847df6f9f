package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/desertthunder/trackmeta/internal/shared"
	"github.com/zmb3/spotify/v2"
)

func fullTrack(id string, artists ...string) *spotify.FullTrack {
	ft := &spotify.FullTrack{
		SimpleTrack: spotify.SimpleTrack{
			ID:       spotify.ID(id),
			Name:     "Song " + id,
			Explicit: true,
			Duration: 215000,
		},
		Album:      spotify.SimpleAlbum{ID: "album-1", Name: "Album One"},
		Popularity: 42,
	}
	for _, a := range artists {
		ft.Artists = append(ft.Artists, spotify.SimpleArtist{ID: spotify.ID(a), Name: strings.ToUpper(a)})
	}
	return ft
}

func TestTrackMetadata(t *testing.T) {
	t.Run("NewTrackMetadata", func(t *testing.T) {
		m, err := NewTrackMetadata(fullTrack("4uLU6hMCjMI75M1A2tKUQC", "ar1", "ar2"))
		if err != nil {
			t.Fatalf("failed to build metadata: %v", err)
		}

		if m.ID() != "4uLU6hMCjMI75M1A2tKUQC" {
			t.Errorf("expected id 4uLU6hMCjMI75M1A2tKUQC, got %s", m.ID())
		}
		if m.AlbumID() != "album-1" {
			t.Errorf("expected album id album-1, got %s", m.AlbumID())
		}
		if got := m.ArtistIDs(); len(got) != 2 || got[0] != "ar1" || got[1] != "ar2" {
			t.Errorf("unexpected artist ids: %v", got)
		}
		if !m.Explicit() || m.Popularity() != 42 {
			t.Errorf("expected explicit track with popularity 42, got %v/%d", m.Explicit(), m.Popularity())
		}
		if m.Name() != "Song 4uLU6hMCjMI75M1A2tKUQC" || m.AlbumName() != "Album One" || m.DurationMs() != 215000 {
			t.Errorf("decoded track fields do not match: %s/%s/%d", m.Name(), m.AlbumName(), m.DurationMs())
		}
		if m.Payload() == "" {
			t.Error("expected serialized payload")
		}
	})

	t.Run("Payload Round Trip", func(t *testing.T) {
		m, err := NewTrackMetadata(fullTrack("A", "ar1"))
		if err != nil {
			t.Fatalf("failed to build metadata: %v", err)
		}

		parsed, err := ParseTrackMetadata(m.Payload())
		if err != nil {
			t.Fatalf("failed to parse payload: %v", err)
		}
		if parsed.ID() != m.ID() || parsed.AlbumID() != m.AlbumID() || parsed.Popularity() != m.Popularity() {
			t.Errorf("parsed record differs: %s/%s/%d", parsed.ID(), parsed.AlbumID(), parsed.Popularity())
		}
		if parsed.ArtistID(0) != "ar1" || parsed.ArtistID(1) != "" {
			t.Errorf("unexpected artist columns: %q %q", parsed.ArtistID(0), parsed.ArtistID(1))
		}
	})

	t.Run("ISRC From Payload", func(t *testing.T) {
		payload := `{"id":"B","name":"b","artists":[{"id":"ar1","name":"x"}],"album":{"id":"al"},"popularity":7,"external_ids":{"isrc":"USUM71703861"}}`
		m, err := ParseTrackMetadata(payload)
		if err != nil {
			t.Fatalf("failed to parse payload: %v", err)
		}
		if m.ISRC() != "USUM71703861" {
			t.Errorf("expected isrc USUM71703861, got %s", m.ISRC())
		}
	})

	t.Run("ISRC From Full Track", func(t *testing.T) {
		ft := fullTrack("E", "a1")
		ft.ExternalIDs = map[string]string{"isrc": "GBAYE0601498"}
		m, err := NewTrackMetadata(ft)
		if err != nil {
			t.Fatalf("failed to build metadata: %v", err)
		}
		if m.ISRC() != "GBAYE0601498" {
			t.Errorf("expected isrc GBAYE0601498, got %q", m.ISRC())
		}
	})

	t.Run("Only Four Artist Columns", func(t *testing.T) {
		m, err := NewTrackMetadata(fullTrack("C", "a1", "a2", "a3", "a4", "a5"))
		if err != nil {
			t.Fatalf("failed to build metadata: %v", err)
		}
		if got := len(m.ArtistIDs()); got != MaxArtistColumns {
			t.Errorf("expected %d artist ids, got %d", MaxArtistColumns, got)
		}
		if got := len(m.ArtistNames()); got != 5 {
			t.Errorf("expected all 5 artist names, got %d", got)
		}
	})

	t.Run("ArtistIDs Returns Copy", func(t *testing.T) {
		m, _ := NewTrackMetadata(fullTrack("D", "a1"))
		ids := m.ArtistIDs()
		ids[0] = "changed"
		if m.ArtistID(0) != "a1" {
			t.Error("record was mutated through ArtistIDs")
		}
	})

	t.Run("Validation", func(t *testing.T) {
		tc := []struct {
			name  string
			track *spotify.FullTrack
		}{
			{name: "nil", track: nil},
			{name: "missing id", track: fullTrack("", "a1")},
			{name: "no artists", track: fullTrack("E")},
			{name: "popularity out of range", track: func() *spotify.FullTrack {
				ft := fullTrack("F", "a1")
				ft.Popularity = 101
				return ft
			}()},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				if _, err := NewTrackMetadata(tt.track); !errors.Is(err, shared.ErrCorruptRecord) {
					t.Errorf("expected ErrCorruptRecord, got %v", err)
				}
			})
		}
	})

	t.Run("Corrupt Payload", func(t *testing.T) {
		if _, err := ParseTrackMetadata("{not json"); !errors.Is(err, shared.ErrCorruptRecord) {
			t.Errorf("expected ErrCorruptRecord, got %v", err)
		}
	})

	t.Run("MarshalJSON", func(t *testing.T) {
		m, _ := NewTrackMetadata(fullTrack("G", "a1", "a2"))
		data, err := json.Marshal(m)
		if err != nil {
			t.Fatalf("failed to marshal: %v", err)
		}

		var out map[string]any
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		for _, key := range []string{"id", "album_id", "artist_ids", "explicit", "popularity", "track"} {
			if _, ok := out[key]; !ok {
				t.Errorf("expected key %q in %s", key, data)
			}
		}
		if out["id"] != "G" {
			t.Errorf("expected id G, got %v", out["id"])
		}
	})
}
