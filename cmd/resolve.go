package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/desertthunder/trackmeta/internal/formatter"
	"github.com/desertthunder/trackmeta/internal/models"
	"github.com/desertthunder/trackmeta/internal/shared"
	"github.com/desertthunder/trackmeta/internal/tasks"
	"github.com/urfave/cli/v3"
)

// readIDs collects ids from positional arguments and the --file flag.
func (r *Runner) readIDs(cmd *cli.Command) ([]string, error) {
	ids, err := parseIDs(cmd.Args().Slice())
	if err != nil {
		return nil, err
	}

	if path := cmd.String("file"); path != "" {
		var in io.Reader = os.Stdin
		if path != "-" {
			f, err := os.Open(path)
			if err != nil {
				return nil, fmt.Errorf("failed to open id file: %w", err)
			}
			defer f.Close()
			in = f
		}

		fromFile, err := tasks.ReadIDs(in)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		ids = append(ids, fromFile...)
	}

	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one track id (or --file) is required", shared.ErrMissingArgument)
	}
	return ids, nil
}

// Resolve looks up tracks through the cache and prints or writes a report.
//
// Tracks are listed in request order. Ids neither stored nor known to the catalog are listed as missing.
func (r *Runner) Resolve(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	ids, err := r.readIDs(cmd)
	if err != nil {
		return err
	}

	maxBatch := r.config.Cache.MaxBatch
	if n := cmd.Int("max-batch"); n >= 0 {
		maxBatch = n
	}

	c, err := r.ensureCache(ctx)
	if err != nil {
		return err
	}

	found, err := c.Resolve(ctx, ids, maxBatch)
	if err != nil {
		return fmt.Errorf("failed to resolve tracks: %w", err)
	}

	report := newReport("Resolved tracks", ids, found)
	r.logger.Debug("resolved tracks", "requested", len(ids), "found", len(report.Tracks), "missing", len(report.Missing))

	if path := cmd.String("output"); path != "" {
		written, err := formatter.WriteExport(report, format, path)
		if err != nil {
			return err
		}
		r.logger.Info("report written", "path", written, "tracks", len(report.Tracks))
		return nil
	}

	data, err := formatter.Render(report, format)
	if err != nil {
		return err
	}
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// newReport orders found by ids, listing each distinct id once.
func newReport(title string, ids []string, found map[string]*models.TrackMetadata) *formatter.Report {
	report := &formatter.Report{Title: title}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		if track := found[id]; track != nil {
			report.Tracks = append(report.Tracks, track)
		} else {
			report.Missing = append(report.Missing, id)
		}
	}
	return report
}
