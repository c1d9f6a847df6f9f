package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackmeta/internal/services"
	"github.com/desertthunder/trackmeta/internal/shared"
	"golang.org/x/time/rate"
)

// WarmOpts contains configuration for a warm run.
type WarmOpts struct {
	BatchSize  int     // Ids per Resolve call (default and max: services.MaxBatchSize)
	NumWorkers int     // Concurrent workers (default: 4)
	RateLimit  float64 // Batches started per second (default: 5)
}

// BatchResult is the outcome of resolving one batch.
type BatchResult struct {
	Index    int
	IDs      []string
	Resolved int
	Missing  []string
	Error    error
}

// WarmResult summarizes a warm run.
type WarmResult struct {
	TotalIDs      int           `json:"total_ids"`
	Batches       int           `json:"batches"`
	Resolved      int           `json:"resolved"`
	Missing       int           `json:"missing"`
	FailedBatches int           `json:"failed_batches"`
	MissingIDs    []string      `json:"missing_ids,omitempty"`
	Failures      []BatchResult `json:"-"`
	Duration      time.Duration `json:"duration"`
}

// WarmEngine pre-resolves long id lists so later lookups are served from memory or the store.
type WarmEngine struct {
	resolver Resolver
	logger   *log.Logger
}

// NewWarmEngine creates a [WarmEngine] over r.
func NewWarmEngine(r Resolver, logger *log.Logger) *WarmEngine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &WarmEngine{resolver: r, logger: shared.WithLogger(logger, "component", "warm")}
}

// Warm resolves ids in batches with a rate-limited worker pool.
//
// A failed batch is recorded and the run continues. Warm only returns an error when ids cannot be
// processed at all or ctx ends, in which case the partial result is returned with it.
func (e *WarmEngine) Warm(ctx context.Context, prog chan<- ProgressUpdate, ids []string, opts WarmOpts) (*WarmResult, error) {
	if e.resolver == nil {
		return nil, fmt.Errorf("%w: resolver not initialized", shared.ErrServiceUnavailable)
	}

	if opts.BatchSize <= 0 || opts.BatchSize > services.MaxBatchSize {
		opts.BatchSize = services.MaxBatchSize
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 4
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}

	started := time.Now()
	unique := dedupe(ids)
	batches := batch(unique, opts.BatchSize)
	result := &WarmResult{TotalIDs: len(unique), Batches: len(batches)}

	sendProgress(prog, warmStartUpdate(len(unique), len(batches)))
	e.logger.Info("warming cache", "ids", len(unique), "batches", len(batches), "workers", opts.NumWorkers)

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	jobs := make(chan BatchResult, len(batches))
	results := make(chan BatchResult, len(batches))

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go e.warmWorker(ctx, &wg, jobs, results, opts)
	}

	go func() {
		defer close(jobs)
		for i, ids := range batches {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			jobs <- BatchResult{Index: i, IDs: ids}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		if res.Error != nil {
			result.FailedBatches++
			result.Failures = append(result.Failures, res)
			e.logger.Warn("batch failed", "batch", res.Index+1, "ids", len(res.IDs), "error", res.Error)
			sendProgress(prog, batchFailedUpdate(completed, len(batches), res))
			continue
		}

		result.Resolved += res.Resolved
		result.Missing += len(res.Missing)
		result.MissingIDs = append(result.MissingIDs, res.Missing...)
		sendProgress(prog, batchDoneUpdate(completed, len(batches), res))
	}

	result.Duration = time.Since(started)
	if err := ctx.Err(); err != nil {
		return result, err
	}

	sendProgress(prog, warmCompleteUpdate(result))
	e.logger.Info("warm complete", "resolved", result.Resolved, "missing", result.Missing, "failed_batches", result.FailedBatches, "took", result.Duration)
	return result, nil
}

// warmWorker resolves batches from the jobs channel.
func (e *WarmEngine) warmWorker(ctx context.Context, wg *sync.WaitGroup, jobs <-chan BatchResult, results chan<- BatchResult, opts WarmOpts) {
	defer wg.Done()

	for job := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		found, err := e.resolver.Resolve(ctx, job.IDs, opts.BatchSize)
		if err != nil {
			job.Error = err
			results <- job
			continue
		}

		for _, id := range job.IDs {
			if found[id] != nil {
				job.Resolved++
			} else {
				job.Missing = append(job.Missing, id)
			}
		}
		results <- job
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func batch(ids []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(ids); start += size {
		out = append(out, ids[start:min(start+size, len(ids))])
	}
	return out
}
