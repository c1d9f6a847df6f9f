// package formatter renders resolved track metadata as JSON, CSV, Markdown or plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/desertthunder/trackmeta/internal/models"
	"github.com/desertthunder/trackmeta/internal/shared"
)

// Format names an output format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "txt"
)

// Formats lists the accepted format names.
var Formats = []Format{FormatJSON, FormatCSV, FormatMarkdown, FormatText}

// ParseFormat resolves a format name. "md" and "text" are accepted as aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, s)
	}
}

// Extension returns the file extension for f.
func (f Format) Extension() string {
	if f == FormatMarkdown {
		return "md"
	}
	return string(f)
}

// Report is what the resolve command renders: the records found and the ids that were not.
type Report struct {
	Title   string                  `json:"-"`
	Tracks  []*models.TrackMetadata `json:"tracks"`
	Missing []string                `json:"missing"`
}

// Render converts r to the given format.
func Render(r *Report, f Format) ([]byte, error) {
	switch f {
	case FormatCSV:
		return ExportToCSV(r.Tracks)
	case FormatMarkdown:
		return ExportToMarkdown(r)
	case FormatText:
		return ExportToText(r)
	case FormatJSON:
		return ExportToJSON(r)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, f)
	}
}

// ExportToJSON renders r as indented JSON. Missing is always an array.
func ExportToJSON(r *Report) ([]byte, error) {
	out := *r
	if out.Tracks == nil {
		out.Tracks = []*models.TrackMetadata{}
	}
	if out.Missing == nil {
		out.Missing = []string{}
	}
	return shared.MarshalJSON(out, true)
}

// ExportToCSV converts tracks to CSV with columns: ID, Name, Artists, Album, Explicit, Popularity, Duration, ISRC
func ExportToCSV(tracks []*models.TrackMetadata) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Name", "Artists", "Album", "Explicit", "Popularity", "Duration", "ISRC"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range tracks {
		record := []string{
			track.ID(),
			track.Name(),
			strings.Join(track.ArtistNames(), "; "),
			track.AlbumName(),
			strconv.FormatBool(track.Explicit()),
			strconv.Itoa(track.Popularity()),
			shared.FormatDuration(track.DurationMs()),
			track.ISRC(),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown renders r as a Markdown document with a track list and a missing section.
func ExportToMarkdown(r *Report) ([]byte, error) {
	var buf bytes.Buffer

	title := r.Title
	if title == "" {
		title = "Track Metadata"
	}
	buf.WriteString(fmt.Sprintf("# %s\n\n", title))
	buf.WriteString(fmt.Sprintf("**Tracks**: %d\n", len(r.Tracks)))
	buf.WriteString(fmt.Sprintf("**Missing**: %d\n\n", len(r.Missing)))

	buf.WriteString("## Tracks\n\n")
	for i, track := range r.Tracks {
		albumPart := ""
		if track.AlbumName() != "" {
			albumPart = fmt.Sprintf(" (%s)", track.AlbumName())
		}
		explicit := ""
		if track.Explicit() {
			explicit = " [E]"
		}
		buf.WriteString(fmt.Sprintf("%d. %s - %s%s%s [%s] `%s`\n",
			i+1, strings.Join(track.ArtistNames(), ", "), track.Name(), albumPart, explicit,
			shared.FormatDuration(track.DurationMs()), track.ID()))
	}

	if len(r.Missing) > 0 {
		buf.WriteString("\n## Missing\n\n")
		for _, id := range r.Missing {
			buf.WriteString(fmt.Sprintf("- `%s`\n", id))
		}
	}

	return buf.Bytes(), nil
}

// ExportToText renders r as plain text, one track per line.
func ExportToText(r *Report) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Tracks: %d\n\n", len(r.Tracks)))
	for i, track := range r.Tracks {
		buf.WriteString(fmt.Sprintf("%d. %s - %s [%s]\n", i+1, strings.Join(track.ArtistNames(), ", "), track.Name(), track.ID()))
	}

	if len(r.Missing) > 0 {
		buf.WriteString(fmt.Sprintf("\nMissing: %s\n", strings.Join(r.Missing, ", ")))
	}

	return buf.Bytes(), nil
}

// WriteExport renders r and writes it to path.
//
// Defaults to tracks.{ext} in the working directory.
func WriteExport(r *Report, f Format, path string) (string, error) {
	if path == "" {
		path = "tracks." + f.Extension()
	}

	data, err := Render(r, f)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s file: %w", f, err)
	}
	return path, nil
}
