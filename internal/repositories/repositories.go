// package repositories provides persistence layer implementations for all model types.
package repositories

import (
	"database/sql"
	"fmt"

	"github.com/desertthunder/trackmeta/internal/shared"
)

// scanner is satisfied by both [sql.Row] and [sql.Rows].
type scanner interface {
	Scan(dest ...any) error
}

// dataAccess wraps a driver error as [shared.ErrDataAccess].
func dataAccess(action string, err error) error {
	return fmt.Errorf("%w: failed to %s: %w", shared.ErrDataAccess, action, err)
}

// nullable maps "" to SQL NULL.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
