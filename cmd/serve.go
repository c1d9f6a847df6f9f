package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/desertthunder/trackmeta/internal/server"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"
)

// Serve runs the HTTP API until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	cfg := r.config.Server
	host, port := cfg.Host, cfg.Port
	if cmd.IsSet("host") {
		host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		port = cmd.Int("port")
	}

	router, err := r.router(ctx)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	if err := server.Serve(ctx, addr, router, r.logger); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// router wires the track handler and health check behind the middleware chain.
func (r *Runner) router(ctx context.Context) (*server.BasicRouter, error) {
	c, err := r.ensureCache(ctx)
	if err != nil {
		return nil, err
	}
	store, err := r.ensureStore(ctx)
	if err != nil {
		return nil, err
	}

	router := server.NewBasicRouter()
	router.Use(server.RequestID(), server.Logging(r.logger), server.Recover(r.logger))
	if rps := r.config.Server.RequestsPerSecond; rps > 0 {
		router.Use(server.RateLimit(rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))))
	}

	router.Handler(server.NewTrackHandler(c, store, r.config.Cache.MaxBatch, r.logger))
	router.Handle(http.MethodGet, "/health", server.HealthHandler(r.ping))
	return router, nil
}
