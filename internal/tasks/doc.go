// Package tasks runs long operations over the metadata cache with real-time progress reporting.
//
// # Warm
//
// [WarmEngine.Warm] pre-resolves a long list of track ids:
//
//  1. Duplicate ids are dropped and the rest split into batches of at most [services.MaxBatchSize]
//  2. A rate-limited producer feeds batches to a pool of workers
//  3. Each worker calls [Resolver.Resolve], which loads from the store or the catalog and backfills the store
//  4. Failed batches are recorded and the run continues
//
// [ReadIDs] parses id files for the warm command, accepting bare ids, spotify:track: URIs and track links.
//
// # Progress Reporting
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
package tasks
