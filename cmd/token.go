package main

import (
	"context"
	"time"

	"github.com/desertthunder/trackmeta/internal/services"
	"github.com/desertthunder/trackmeta/internal/shared"
	"github.com/urfave/cli/v3"
)

// Token performs a credential exchange and prints the masked token and its expiry.
func (r *Runner) Token(ctx context.Context, cmd *cli.Command) error {
	source := cmd.String("source")

	var tokens services.TokenProvider = r.tokens
	if tokens == nil || source != "" {
		m, err := r.tokenManager(source)
		if err != nil {
			return err
		}
		tokens = m
	}

	tok, err := tokens.Get(ctx)
	if err != nil {
		return err
	}

	if source == "" {
		source = r.config.Catalog.TokenSource
	}
	r.writePlainln("Source:  %s", source)
	r.writePlainln("Token:   %s", shared.MaskSecret(tok.Value))
	r.writePlainln("Expires: %s (in %s)", tok.Expiry.Format(time.RFC3339), time.Until(tok.Expiry).Round(time.Second))
	return nil
}
