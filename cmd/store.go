package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/trackmeta/internal/formatter"
	"github.com/desertthunder/trackmeta/internal/models"
	"github.com/desertthunder/trackmeta/internal/shared"
	"github.com/urfave/cli/v3"
)

// firstArg returns the single positional argument, normalized by parse when given.
func firstArg(cmd *cli.Command, name string, parse func(string) (string, error)) (string, error) {
	arg := cmd.Args().First()
	if arg == "" {
		return "", fmt.Errorf("%w: %s", shared.ErrMissingArgument, name)
	}
	if parse == nil {
		return arg, nil
	}
	return parse(arg)
}

// StoreGet prints the stored record for one id without consulting the catalog.
func (r *Runner) StoreGet(ctx context.Context, cmd *cli.Command) error {
	id, err := firstArg(cmd, "track id", singleID)
	if err != nil {
		return err
	}

	store, err := r.ensureStore(ctx)
	if err != nil {
		return err
	}

	track, err := store.Get(ctx, id)
	if err != nil {
		return err
	}
	if track == nil {
		return fmt.Errorf("%w: %s", shared.ErrTrackNotFound, id)
	}
	return r.writeJSON(track, cmd.Bool("pretty"))
}

// StoreAlbum lists stored tracks of an album.
func (r *Runner) StoreAlbum(ctx context.Context, cmd *cli.Command) error {
	return r.storeList(ctx, cmd, "album id", "Album", Store.ListByAlbum)
}

// StoreArtist lists stored tracks crediting an artist.
func (r *Runner) StoreArtist(ctx context.Context, cmd *cli.Command) error {
	return r.storeList(ctx, cmd, "artist id", "Artist", Store.ListByArtist)
}

func (r *Runner) storeList(ctx context.Context, cmd *cli.Command, name, title string, lookup func(Store, context.Context, string) ([]*models.TrackMetadata, error)) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	key, err := firstArg(cmd, name, nil)
	if err != nil {
		return err
	}

	store, err := r.ensureStore(ctx)
	if err != nil {
		return err
	}

	tracks, err := lookup(store, ctx, key)
	if err != nil {
		return err
	}

	data, err := formatter.Render(&formatter.Report{Title: title + " " + key, Tracks: tracks}, format)
	if err != nil {
		return err
	}
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// StoreDelete removes stored records. The next resolve of a deleted id goes to the catalog.
func (r *Runner) StoreDelete(ctx context.Context, cmd *cli.Command) error {
	ids, err := parseIDs(cmd.Args().Slice())
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: at least one track id is required", shared.ErrMissingArgument)
	}

	store, err := r.ensureStore(ctx)
	if err != nil {
		return err
	}

	for _, id := range ids {
		if err := store.Delete(ctx, id); err != nil {
			return err
		}
		r.logger.Debug("deleted stored track", "id", id)
	}

	r.writePlainln("Deleted %d record(s)", len(ids))
	return nil
}

// StoreCount prints the number of stored records.
func (r *Runner) StoreCount(ctx context.Context, cmd *cli.Command) error {
	store, err := r.ensureStore(ctx)
	if err != nil {
		return err
	}

	n, err := store.Count(ctx)
	if err != nil {
		return err
	}
	r.writePlainln("%d", n)
	return nil
}

func singleID(arg string) (string, error) {
	ids, err := parseIDs([]string{arg})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}
