package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/desertthunder/trackmeta/internal/shared"
	"github.com/desertthunder/trackmeta/internal/ui"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the example config to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	if path == "" {
		path = "config.toml"
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	r.logger.Info("config file created", "path", abs)
	r.writePlainln("%s", ui.Styles().OK("✓ Config written to "+abs))
	r.writePlainln("  Add Spotify credentials under [credentials.spotify] before resolving tracks.")
	return nil
}

// SetupDatabase initializes the database and runs migrations.
//
// With --rollback the most recent migration is reverted instead.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	cfg := r.config.Database
	r.logger.Info("initializing database", "driver", cfg.Driver, "table", cfg.Table)

	db, dialect, err := shared.OpenDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	migrator, err := shared.NewMigrator(db, dialect, cfg.Table)
	if err != nil {
		return err
	}

	if cmd.Bool("rollback") {
		r.logger.Info("rolling back last migration")
		if err := migrator.Rollback(ctx); err != nil {
			return fmt.Errorf("failed to roll back migration: %w", err)
		}
	} else {
		r.logger.Info("running database migrations")
		if err := migrator.Up(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	applied, err := migrator.Applied(ctx)
	if err != nil {
		return fmt.Errorf("failed to read migration state: %w", err)
	}

	r.writePlainln("%s", ui.Styles().OK("✓ Database ready"))
	r.writePlainln("  Driver:     %s", dialect)
	r.writePlainln("  Table:      %s", cfg.Table)
	r.writePlainln("  Migrations: %d applied", applied)
	return nil
}
