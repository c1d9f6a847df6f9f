package tasks

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/desertthunder/trackmeta/internal/services"
	"github.com/desertthunder/trackmeta/internal/shared"
)

// ParseTrackID accepts a bare track id, a spotify:track: URI or an open.spotify.com track link
// and returns the bare id.
func ParseTrackID(s string) (string, error) {
	s = strings.TrimSpace(s)

	switch {
	case strings.HasPrefix(s, "spotify:track:"):
		s = strings.TrimPrefix(s, "spotify:track:")
	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
		u, err := url.Parse(s)
		if err != nil {
			return "", fmt.Errorf("%w: %q: %v", shared.ErrInvalidArgument, s, err)
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) < 2 || parts[len(parts)-2] != "track" {
			return "", fmt.Errorf("%w: %q is not a track link", shared.ErrInvalidArgument, s)
		}
		s = parts[len(parts)-1]
	}

	if !services.IsTrackID(s) {
		return "", fmt.Errorf("%w: %q is not a track id", shared.ErrInvalidArgument, s)
	}
	return s, nil
}

// ReadIDs reads one track reference per line. Blank lines and lines starting with # are skipped.
func ReadIDs(r io.Reader) ([]string, error) {
	var ids []string
	scanner := bufio.NewScanner(r)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		id, err := ParseTrackID(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ids = append(ids, id)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read track ids: %w", err)
	}
	return ids, nil
}
