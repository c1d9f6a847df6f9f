package shared

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect names a supported database/sql driver and carries the SQL differences between them.
type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
)

// MaxTableNameLen bounds table names so derived names like idx_<table>_artist4 and
// <table>_schema_migrations stay within the 63 byte Postgres and 64 byte MySQL limits.
const MaxTableNameLen = 40

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseDialect maps a configured driver name to a [Dialect].
// An empty name selects [SQLite].
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return SQLite, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	default:
		return "", fmt.Errorf("%w: unsupported database driver %q", ErrInvalidConfig, driver)
	}
}

// ValidateIdentifier reports whether name can be interpolated into SQL as a table or index name.
func ValidateIdentifier(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("%w: invalid table name %q", ErrInvalidConfig, name)
	}
	if len(name) > MaxTableNameLen {
		return fmt.Errorf("%w: table name %q exceeds %d characters", ErrInvalidConfig, name, MaxTableNameLen)
	}
	return nil
}

// Quote quotes an identifier for the dialect.
func (d Dialect) Quote(ident string) string {
	if d == MySQL {
		return "`" + ident + "`"
	}
	return `"` + ident + `"`
}

// Rebind rewrites ? placeholders into the dialect's bind variable form.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Placeholders returns n comma separated ? placeholders.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// NewDatabase opens a pooled connection for the given driver and DSN.
// For sqlite3 the DSN can be ":memory:" for an in-memory database.
// Returns an open database connection or an error if connection fails.
func NewDatabase(driver, dsn string) (*sql.DB, error) {
	dialect, err := ParseDialect(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", ErrDataAccess, err)
	}

	// Every pooled connection to ":memory:" would otherwise see its own empty database.
	if dialect == SQLite && strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %w", ErrDataAccess, err)
	}

	return db, nil
}

// OpenDatabase opens and configures the database described by cfg.
func OpenDatabase(cfg DatabaseConfig) (*sql.DB, Dialect, error) {
	dialect, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, "", err
	}

	db, err := NewDatabase(string(dialect), cfg.DSN)
	if err != nil {
		return nil, "", err
	}

	if dialect != SQLite || !strings.Contains(cfg.DSN, ":memory:") {
		ConfigureDatabase(db, cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime.Duration)
	}
	return db, dialect, nil
}

// ConfigureDatabase sets connection pool settings for the database.
// Zero values leave the database/sql defaults in place.
func ConfigureDatabase(db *sql.DB, maxOpenConns, maxIdleConns int, maxLifetime time.Duration) {
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if maxIdleConns > 0 {
		db.SetMaxIdleConns(maxIdleConns)
	}
	if maxLifetime > 0 {
		db.SetConnMaxLifetime(maxLifetime)
	}
}
