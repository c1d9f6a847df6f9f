package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/trackmeta/internal/models"
	"github.com/desertthunder/trackmeta/internal/shared"
)

// DefaultTable is the metadata table used when none is configured.
const DefaultTable = "spotify_track_metadata"

// getManyChunk bounds the size of IN lists sent to the database.
const getManyChunk = 500

const metadataColumns = "track_id, album_id, artist1_id, artist2_id, artist3_id, artist4_id, explicit, popularity, metadata"

// TrackMetadataRepository implements models.Repository[*models.TrackMetadata] over a pooled [sql.DB].
type TrackMetadataRepository struct {
	db      *sql.DB
	dialect shared.Dialect
	table   string
	quoted  string
}

// NewTrackMetadataRepository creates a repository for table. An empty table selects [DefaultTable].
func NewTrackMetadataRepository(db *sql.DB, dialect shared.Dialect, table string) (*TrackMetadataRepository, error) {
	if table == "" {
		table = DefaultTable
	}
	if err := shared.ValidateIdentifier(table); err != nil {
		return nil, err
	}
	return &TrackMetadataRepository{db: db, dialect: dialect, table: table, quoted: dialect.Quote(table)}, nil
}

// Table returns the unquoted table name.
func (r *TrackMetadataRepository) Table() string { return r.table }

// EnsureSchema creates the table and its indexes if they do not exist. It is safe to call on every start.
func (r *TrackMetadataRepository) EnsureSchema(ctx context.Context) error {
	m, err := shared.NewMigrator(r.db, r.dialect, r.table)
	if err != nil {
		return err
	}
	if err := m.Up(ctx); err != nil {
		return dataAccess("ensure schema", err)
	}
	return nil
}

// Get retrieves the record for id. A missing row yields nil and no error.
func (r *TrackMetadataRepository) Get(ctx context.Context, id string) (*models.TrackMetadata, error) {
	query := r.dialect.Rebind("SELECT " + metadataColumns + " FROM " + r.quoted + " WHERE track_id = ?")

	track, err := r.scanRow(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return track, nil
}

// GetMany retrieves the records that exist for ids, keyed by track id.
func (r *TrackMetadataRepository) GetMany(ctx context.Context, ids []string) (map[string]*models.TrackMetadata, error) {
	found := make(map[string]*models.TrackMetadata, len(ids))

	for start := 0; start < len(ids); start += getManyChunk {
		end := min(start+getManyChunk, len(ids))
		chunk := ids[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		query := r.dialect.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE track_id IN (%s)",
			metadataColumns, r.quoted, shared.Placeholders(len(chunk))))

		tracks, err := r.query(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		for _, tr := range tracks {
			found[tr.ID()] = tr
		}
	}

	return found, nil
}

// Put inserts track or replaces the existing row for its id.
func (r *TrackMetadataRepository) Put(ctx context.Context, track *models.TrackMetadata) error {
	if track == nil {
		return fmt.Errorf("%w: nil track", shared.ErrInvalidInput)
	}
	if err := track.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	_, err := r.db.ExecContext(ctx, r.upsertQuery(),
		track.ID(),
		track.AlbumID(),
		track.ArtistID(0),
		nullable(track.ArtistID(1)),
		nullable(track.ArtistID(2)),
		nullable(track.ArtistID(3)),
		track.Explicit(),
		track.Popularity(),
		track.Payload(),
	)
	if err != nil {
		return dataAccess("upsert track metadata "+track.ID(), err)
	}
	return nil
}

func (r *TrackMetadataRepository) upsertQuery() string {
	insert := "INSERT INTO " + r.quoted + " (" + metadataColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)"
	updated := []string{"album_id", "artist1_id", "artist2_id", "artist3_id", "artist4_id", "explicit", "popularity", "metadata"}

	sets := make([]string, 0, len(updated)+1)
	switch r.dialect {
	case shared.MySQL:
		for _, col := range updated {
			sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", col, col))
		}
		return insert + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	default:
		for _, col := range updated {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", col, col))
		}
		sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
		return r.dialect.Rebind(insert + " ON CONFLICT (track_id) DO UPDATE SET " + strings.Join(sets, ", "))
	}
}

// ListByAlbum returns every stored track on albumID, ordered by id.
func (r *TrackMetadataRepository) ListByAlbum(ctx context.Context, albumID string) ([]*models.TrackMetadata, error) {
	query := r.dialect.Rebind("SELECT " + metadataColumns + " FROM " + r.quoted + " WHERE album_id = ? ORDER BY track_id")
	return r.query(ctx, query, albumID)
}

// ListByArtist returns every stored track crediting artistID in any of the four artist columns.
func (r *TrackMetadataRepository) ListByArtist(ctx context.Context, artistID string) ([]*models.TrackMetadata, error) {
	query := r.dialect.Rebind("SELECT " + metadataColumns + " FROM " + r.quoted +
		" WHERE artist1_id = ? OR artist2_id = ? OR artist3_id = ? OR artist4_id = ? ORDER BY track_id")
	return r.query(ctx, query, artistID, artistID, artistID, artistID)
}

// Delete removes the row for id. Deleting a missing row is not an error.
func (r *TrackMetadataRepository) Delete(ctx context.Context, id string) error {
	query := r.dialect.Rebind("DELETE FROM " + r.quoted + " WHERE track_id = ?")
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return dataAccess("delete track metadata "+id, err)
	}
	return nil
}

// Count returns the number of stored rows.
func (r *TrackMetadataRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+r.quoted).Scan(&count); err != nil {
		return 0, dataAccess("count track metadata", err)
	}
	return count, nil
}

func (r *TrackMetadataRepository) query(ctx context.Context, query string, args ...any) ([]*models.TrackMetadata, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dataAccess("query track metadata", err)
	}
	defer rows.Close()

	var tracks []*models.TrackMetadata
	for rows.Next() {
		track, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}

	if err := rows.Err(); err != nil {
		return nil, dataAccess("iterate track metadata", err)
	}

	return tracks, nil
}

// scanRow scans one row and rebuilds the record from its payload.
// [sql.ErrNoRows] is returned unwrapped so callers can treat it as a miss.
func (r *TrackMetadataRepository) scanRow(row scanner) (*models.TrackMetadata, error) {
	var (
		trackID, albumID, artist1 string
		artist2, artist3, artist4 sql.NullString
		explicit                  bool
		popularity                int
		payload                   string
	)

	err := row.Scan(&trackID, &albumID, &artist1, &artist2, &artist3, &artist4, &explicit, &popularity, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, dataAccess("scan track metadata", err)
	}

	track, err := models.ParseTrackMetadata(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: row %s: %w", shared.ErrDataAccess, trackID, err)
	}
	if track.ID() != trackID {
		return nil, fmt.Errorf("%w: row %s: %w: payload is for track %s",
			shared.ErrDataAccess, trackID, shared.ErrCorruptRecord, track.ID())
	}

	return track, nil
}

var _ models.Repository[*models.TrackMetadata] = (*TrackMetadataRepository)(nil)
