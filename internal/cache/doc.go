// Package cache resolves track ids to metadata.
//
// A [MetadataCache] keeps one entry per id in memory. The first request for an id admits a pending
// entry and loads it: the store is consulted first, the catalog is asked for whatever the store lacks
// in batches of [services.MaxBatchSize], and fetched records are written back to the store. Requests
// that arrive while the entry is pending wait on it instead of loading again. Ids the catalog does not
// know are cached as absent; a failed load is never cached.
package cache
