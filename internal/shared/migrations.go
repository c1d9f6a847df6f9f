package shared

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"text/template"
)

//go:embed sql/*/*.sql
var migrationFiles embed.FS

// Migration represents a database migration with up and down SQL.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// Migrator applies the embedded migrations of one [Dialect] to a configurable table.
//
// Migration files are templates: {{.Table}} expands to the quoted table name and
// {{.Name}} to the raw name, for deriving index names.
type Migrator struct {
	db      *sql.DB
	dialect Dialect
	table   string
}

// NewMigrator validates table and returns a [Migrator] for it.
func NewMigrator(db *sql.DB, dialect Dialect, table string) (*Migrator, error) {
	if err := ValidateIdentifier(table); err != nil {
		return nil, err
	}
	return &Migrator{db: db, dialect: dialect, table: table}, nil
}

// trackingTable keeps applied versions per metadata table, so two tables can share a database.
func (m *Migrator) trackingTable() string {
	return m.dialect.Quote(m.table + "_schema_migrations")
}

// loadMigrations reads the dialect's migration files and returns them sorted by version.
func (m *Migrator) loadMigrations() ([]Migration, error) {
	dir := path.Join("sql", string(m.dialect))
	entries, err := migrationFiles.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration directory: %w", err)
	}

	data := struct{ Table, Name string }{Table: m.dialect.Quote(m.table), Name: m.table}
	migrationMap := make(map[int]*Migration)

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		// e.g. "0001_create_track_metadata_up.sql" -> version 1
		parts := strings.SplitN(name, "_", 2)
		if len(parts) < 2 {
			continue
		}
		version, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}

		content, err := migrationFiles.ReadFile(path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", name, err)
		}

		rendered, err := render(name, string(content), data)
		if err != nil {
			return nil, err
		}

		if migrationMap[version] == nil {
			migrationMap[version] = &Migration{Version: version}
		}

		switch {
		case strings.HasSuffix(name, "_up.sql"):
			migrationMap[version].Up = rendered
			migrationMap[version].Name = strings.TrimSuffix(parts[1], "_up.sql")
		case strings.HasSuffix(name, "_down.sql"):
			migrationMap[version].Down = rendered
		}
	}

	var migrations []Migration
	for _, migration := range migrationMap {
		if migration.Up == "" || migration.Down == "" {
			return nil, fmt.Errorf("incomplete migration for version %d", migration.Version)
		}
		migrations = append(migrations, *migration)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

func render(name, text string, data any) (string, error) {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse migration %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render migration %s: %w", name, err)
	}
	return buf.String(), nil
}

// Up executes all pending migrations. Running it again is a no-op.
func (m *Migrator) Up(ctx context.Context) error {
	migrations, err := m.loadMigrations()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	if err := m.createMigrationsTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, migration := range migrations {
		var count int
		query := m.dialect.Rebind("SELECT COUNT(*) FROM " + m.trackingTable() + " WHERE version = ?")
		if err := m.db.QueryRowContext(ctx, query, migration.Version).Scan(&count); err != nil {
			return fmt.Errorf("failed to check migration status: %w", err)
		}

		if count == 0 {
			if err := m.apply(ctx, migration.Up, migration.Version, true); err != nil {
				return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
			}
		}
	}

	return nil
}

// Rollback rolls back the most recent migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	migrations, err := m.loadMigrations()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	if err := m.createMigrationsTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current sql.NullInt64
	if err := m.db.QueryRowContext(ctx, "SELECT MAX(version) FROM "+m.trackingTable()).Scan(&current); err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	if !current.Valid {
		return fmt.Errorf("no migrations to rollback")
	}

	for _, migration := range migrations {
		if int64(migration.Version) == current.Int64 {
			if err := m.apply(ctx, migration.Down, migration.Version, false); err != nil {
				return fmt.Errorf("failed to rollback migration %d: %w", migration.Version, err)
			}
			return nil
		}
	}

	return fmt.Errorf("migration version %d not found", current.Int64)
}

// Applied returns the number of applied migrations.
func (m *Migrator) Applied(ctx context.Context) (int, error) {
	var count int
	err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+m.trackingTable()).Scan(&count)
	return count, err
}

func (m *Migrator) createMigrationsTable(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS ` + m.trackingTable() + ` (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`
	_, err := m.db.ExecContext(ctx, query)
	return err
}

// apply runs the statements of one migration direction and records or removes its version.
//
// MySQL commits DDL implicitly, so a failed statement there can leave earlier statements applied.
func (m *Migrator) apply(ctx context.Context, script string, version int, up bool) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range strings.Split(script, ";") {
		stmt = strings.TrimSpace(removeComments(stmt))
		if stmt == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute statement: %w\nStatement: %s", err, stmt)
		}
	}

	record := "INSERT INTO " + m.trackingTable() + " (version) VALUES (?)"
	if !up {
		record = "DELETE FROM " + m.trackingTable() + " WHERE version = ?"
	}
	if _, err := tx.ExecContext(ctx, m.dialect.Rebind(record), version); err != nil {
		return err
	}

	return tx.Commit()
}

// removeComments removes SQL comments from a statement.
func removeComments(sql string) string {
	lines := strings.Split(sql, "\n")
	var result []string
	for _, line := range lines {
		if idx := strings.Index(line, "--"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line != "" {
			result = append(result, line)
		}
	}
	return strings.Join(result, "\n")
}
