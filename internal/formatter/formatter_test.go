package formatter

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/trackmeta/internal/models"
	"github.com/desertthunder/trackmeta/internal/shared"
	th "github.com/desertthunder/trackmeta/internal/testing"
)

func testReport(t *testing.T) *Report {
	t.Helper()
	return &Report{
		Title: "Warm-up",
		Tracks: []*models.TrackMetadata{
			th.NewTrack(t, "track1", "album1", "artist-a", "artist-b"),
			th.NewTrack(t, "track02", "album2"),
		},
		Missing: []string{"gone1"},
	}
}

func TestExporters(t *testing.T) {
	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(testReport(t).Tracks)
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}

		records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
		if err != nil {
			t.Fatalf("output is not valid CSV: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("expected header and 2 rows, got %d", len(records))
		}
		if strings.Join(records[0], ",") != "ID,Name,Artists,Album,Explicit,Popularity,Duration,ISRC" {
			t.Errorf("unexpected headers: %v", records[0])
		}

		row := records[1]
		if row[0] != "track1" || row[1] != "Track track1" || row[3] != "Album album1" {
			t.Errorf("unexpected row: %v", row)
		}
		if row[2] != "Artist 1; Artist 2" {
			t.Errorf("expected joined artists, got %q", row[2])
		}
		if row[6] != "3:00" {
			t.Errorf("expected formatted duration, got %q", row[6])
		}
		if records[2][4] != "false" && records[2][4] != "true" {
			t.Errorf("expected boolean explicit column, got %q", records[2][4])
		}
	})

	t.Run("ExportToCSV Empty", func(t *testing.T) {
		data, err := ExportToCSV(nil)
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}
		if strings.Count(string(data), "\n") != 1 {
			t.Errorf("expected only the header line, got %q", data)
		}
	})

	t.Run("ExportToMarkdown", func(t *testing.T) {
		data, err := ExportToMarkdown(testReport(t))
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}

		output := string(data)
		for _, want := range []string{
			"# Warm-up",
			"**Tracks**: 2",
			"**Missing**: 1",
			"1. Artist 1, Artist 2 - Track track1 (Album album1)",
			"[3:00] `track1`",
			"## Missing",
			"- `gone1`",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("Markdown missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("ExportToMarkdown Default Title", func(t *testing.T) {
		data, _ := ExportToMarkdown(&Report{})
		if !strings.HasPrefix(string(data), "# Track Metadata") {
			t.Errorf("expected default title, got %q", data)
		}
		if strings.Contains(string(data), "## Missing") {
			t.Error("missing section should be omitted when nothing is missing")
		}
	})

	t.Run("ExportToText", func(t *testing.T) {
		data, err := ExportToText(testReport(t))
		if err != nil {
			t.Fatalf("ExportToText failed: %v", err)
		}

		output := string(data)
		if !strings.Contains(output, "Tracks: 2") {
			t.Errorf("text missing track count, got: %s", output)
		}
		if !strings.Contains(output, "2. Artist 1 - Track track02 [track02]") {
			t.Errorf("text missing second track, got: %s", output)
		}
		if !strings.Contains(output, "Missing: gone1") {
			t.Errorf("text missing the missing ids, got: %s", output)
		}
	})

	t.Run("ExportToJSON", func(t *testing.T) {
		data, err := ExportToJSON(testReport(t))
		if err != nil {
			t.Fatalf("ExportToJSON failed: %v", err)
		}

		var decoded struct {
			Tracks []struct {
				ID        string   `json:"id"`
				ArtistIDs []string `json:"artist_ids"`
			} `json:"tracks"`
			Missing []string `json:"missing"`
		}
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if len(decoded.Tracks) != 2 || decoded.Tracks[0].ID != "track1" {
			t.Errorf("unexpected tracks: %+v", decoded.Tracks)
		}
		if len(decoded.Tracks[0].ArtistIDs) != 2 {
			t.Errorf("expected 2 artist ids, got %v", decoded.Tracks[0].ArtistIDs)
		}
		if len(decoded.Missing) != 1 {
			t.Errorf("expected 1 missing id, got %v", decoded.Missing)
		}
	})

	t.Run("ExportToJSON Empty Arrays", func(t *testing.T) {
		data, _ := ExportToJSON(&Report{})
		if !strings.Contains(string(data), `"tracks": []`) || !strings.Contains(string(data), `"missing": []`) {
			t.Errorf("expected empty arrays, got %s", data)
		}
	})
}

func TestParseFormat(t *testing.T) {
	tc := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{input: "", want: FormatJSON},
		{input: "JSON", want: FormatJSON},
		{input: "csv", want: FormatCSV},
		{input: "md", want: FormatMarkdown},
		{input: "markdown", want: FormatMarkdown},
		{input: "text", want: FormatText},
		{input: "txt", want: FormatText},
		{input: "yaml", wantErr: true},
	}

	for _, tt := range tc {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				if !errors.Is(err, shared.ErrInvalidFlag) {
					t.Errorf("expected ErrInvalidFlag, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, %v; want %q", tt.input, got, err, tt.want)
			}
		})
	}

	if FormatMarkdown.Extension() != "md" || FormatCSV.Extension() != "csv" {
		t.Error("unexpected extensions")
	}
}

func TestWriteExport(t *testing.T) {
	t.Run("Writes Each Format", func(t *testing.T) {
		dir := t.TempDir()
		for _, f := range Formats {
			path := filepath.Join(dir, "out."+f.Extension())
			got, err := WriteExport(testReport(t), f, path)
			if err != nil {
				t.Fatalf("WriteExport(%s) failed: %v", f, err)
			}
			if got != path {
				t.Errorf("expected %s, got %s", path, got)
			}
			if content := th.MustReadFile(t, path); !strings.Contains(content, "track1") {
				t.Errorf("%s output missing track1", f)
			}
		}
	})

	t.Run("Default Path", func(t *testing.T) {
		dir := t.TempDir()
		wd, _ := os.Getwd()
		if err := os.Chdir(dir); err != nil {
			t.Fatalf("failed to chdir: %v", err)
		}
		defer os.Chdir(wd)

		path, err := WriteExport(testReport(t), FormatMarkdown, "")
		if err != nil {
			t.Fatalf("WriteExport failed: %v", err)
		}
		if path != "tracks.md" {
			t.Errorf("expected tracks.md, got %s", path)
		}
		th.AssertFileExists(t, filepath.Join(dir, "tracks.md"))
	})

	t.Run("Unwritable Path", func(t *testing.T) {
		if _, err := WriteExport(testReport(t), FormatJSON, filepath.Join(t.TempDir(), "missing", "out.json")); err == nil {
			t.Error("expected write error")
		}
	})

	t.Run("Unknown Format", func(t *testing.T) {
		if _, err := WriteExport(testReport(t), Format("xml"), filepath.Join(t.TempDir(), "out.xml")); !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})
}
