package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/trackmeta/internal/shared"
	"github.com/desertthunder/trackmeta/internal/tasks"
	"github.com/desertthunder/trackmeta/internal/ui"
	"github.com/urfave/cli/v3"
)

// Warm resolves a list of ids in batches so later lookups are answered from memory or the store.
func (r *Runner) Warm(ctx context.Context, cmd *cli.Command) error {
	ids, err := r.readIDs(cmd)
	if err != nil {
		return err
	}

	opts := tasks.WarmOpts{
		BatchSize:  cmd.Int("batch"),
		NumWorkers: cmd.Int("workers"),
		RateLimit:  cmd.Float("rate"),
	}

	if cmd.Bool("tui") {
		return r.warmTUI(ctx, ids, opts)
	}

	c, err := r.ensureCache(ctx)
	if err != nil {
		return err
	}

	engine := tasks.NewWarmEngine(c, r.logger)
	result, err := engine.Warm(ctx, nil, ids, opts)
	if err != nil && result == nil {
		return fmt.Errorf("warm failed: %w", err)
	}

	if cmd.Bool("json") {
		if jerr := r.writeJSON(result, true); jerr != nil {
			return jerr
		}
	} else {
		r.writeWarmSummary(result)
	}
	return err
}

// warmTUI runs the warm behind the bubbletea progress view. Logs go to a file so they do not
// tear the terminal.
func (r *Runner) warmTUI(ctx context.Context, ids []string, opts tasks.WarmOpts) error {
	logPath := filepath.Join(os.TempDir(), "trackmeta-warm.log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	defer f.Close()

	fileLogger := shared.NewLogger(f)
	fileLogger.SetLevel(r.logger.GetLevel())
	r.SetLogger(fileLogger)

	c, err := r.ensureCache(ctx)
	if err != nil {
		return err
	}

	model := ui.NewModel(ctx, tasks.NewWarmEngine(c, fileLogger), ids, opts)
	if _, err := tea.NewProgram(model).Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	result, err := model.Result()
	if result != nil {
		r.writeWarmSummary(result)
	}
	return err
}

func (r *Runner) writeWarmSummary(result *tasks.WarmResult) {
	r.writePlainHeader("Warm Summary")
	r.writePlainln("Ids:            %d", result.TotalIDs)
	r.writePlainln("Resolved:       %d", result.Resolved)
	r.writePlainln("Missing:        %d", result.Missing)
	r.writePlainln("Failed batches: %d/%d", result.FailedBatches, result.Batches)
	r.writePlainln("Took:           %s", result.Duration.Round(time.Millisecond))

	if len(result.MissingIDs) > 0 {
		r.writePlainln("\n%s", ui.Styles().Warn("Not in catalog:"))
		for _, id := range result.MissingIDs {
			r.writePlainln("  %s", id)
		}
	}
	for _, f := range result.Failures {
		r.writePlainln("%s", ui.Styles().Err(fmt.Sprintf("Batch %d failed (%d ids): %v", f.Index+1, len(f.IDs), f.Error)))
	}
}
