// Package server exposes the metadata cache over HTTP.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// The package ships [RequestID], [Logging], [RateLimit] and [Recover].
//
// The [BasicRouter] implementation uses [http.ServeMux] internally, registering "METHOD /path" patterns.
//
// # Track Handler
//
// [TrackHandler] implements [Handler]:
//
//	GET    /tracks?ids=a,b      resolve through the cache, {tracks, missing}
//	GET    /tracks/{id}         resolve one track, 404 when the catalog has no record
//	DELETE /tracks/{id}         drop the memory entry, ?store=true also deletes the row
//	DELETE /tracks              drop every memory entry
//	GET    /albums/{id}/tracks  stored tracks on an album
//	GET    /artists/{id}/tracks stored tracks by an artist
//	GET    /stats               cache counters and stored row count
//
// Errors are returned as {"error": "..."} with the status chosen by [StatusFor].
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
