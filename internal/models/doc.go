// Package models defines the domain entities shared by the store, the catalog client and the cache.
//
// [TrackMetadata] is the resolved record for one catalog track: the columns the store indexes
// (album, up to four artists, explicit flag, popularity) alongside the full catalog object and its
// serialized payload. Records are immutable; a newer record replaces an older one wholesale.
//
// The [Repository] interface describes keyed persistence for any [Model].
package models
