package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rpattn/lobbyxml/internal/domain"
)

// Dialect names a supported store.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect validates a configured driver name.
func ParseDialect(value string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", value)
	}
}

//go:embed migrations
var migrationFiles embed.FS

// SchemaConn is the slice of a connection the schema manager needs.
type SchemaConn interface {
	Exec(ctx context.Context, statement string) error
	Columns(ctx context.Context, table string) ([]string, error)
}

// RunMigrations executes every .up.sql file under dir in name order. The files
// only ever create missing objects, so running them again is a no-op.
func RunMigrations(ctx context.Context, conn SchemaConn, fsys fs.FS, dir string, logger zerolog.Logger) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrationNames []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".up.sql") {
			migrationNames = append(migrationNames, entry.Name())
		}
	}
	sort.Strings(migrationNames)

	for _, fileName := range migrationNames {
		statement, err := fs.ReadFile(fsys, path.Join(dir, fileName))
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", fileName, err)
		}

		if err := conn.Exec(ctx, string(statement)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", fileName, err)
		}

		logger.Debug().Str("migration", fileName).Msg("schema statement applied")
	}

	return nil
}

// EnsureSchema creates the filing, lobbyist and contrib relations when absent
// and then checks that their live column order matches domain.Relations.
func EnsureSchema(ctx context.Context, conn SchemaConn, dialect Dialect, logger zerolog.Logger) error {
	if err := RunMigrations(ctx, conn, migrationFiles, path.Join("migrations", string(dialect)), logger); err != nil {
		return err
	}
	return ValidateColumns(ctx, conn, domain.Relations())
}

// ValidateColumns fails when any relation's stored columns drift from its definition.
func ValidateColumns(ctx context.Context, conn SchemaConn, relations []domain.Relation) error {
	for _, rel := range relations {
		live, err := conn.Columns(ctx, rel.Name)
		if err != nil {
			return err
		}
		want := rel.ColumnNames()
		if !slices.Equal(live, want) {
			return fmt.Errorf("relation %s column drift: have %v, want %v", rel.Name, live, want)
		}
	}
	return nil
}
