// Package repositories implements relational persistence for track metadata.
//
// [TrackMetadataRepository] is the durable layer behind the in-memory cache: one row per track id
// with the album and up to four artist ids indexed for secondary lookups, and the full serialized
// catalog record in a text column. The table name is configurable and the same queries run on
// SQLite, MySQL and PostgreSQL through [shared.Dialect].
//
// Rows are replaced wholesale on [TrackMetadataRepository.Put]; every driver or payload failure is
// reported as [shared.ErrDataAccess].
package repositories
