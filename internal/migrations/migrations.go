// Package migrations applies the Postgres schema used by the cache, lease and
// timing tables.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/storygraph/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed sql/*.sql
var embedded embed.FS

const migrationsTable = "storygraph_schema_migrations"

// Direction selects which way Run migrates.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Run migrates the database at databaseURL. dir overrides the embedded
// migrations with a directory on disk.
func Run(databaseURL, dir string, direction Direction) error {
	m, err := newMigrate(databaseURL, dir)
	if err != nil {
		return err
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil || dbErr != nil {
			logger.Warn("[Migrate] close failed", "source_err", srcErr, "db_err", dbErr)
		}
	}()

	switch direction {
	case Up:
		err = m.Up()
	case Down:
		err = m.Down()
	default:
		return fmt.Errorf("unknown migration direction %q", direction)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("[Migrate] database is up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", direction, err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return err
	}
	logger.Info("[Migrate] done", "direction", direction, "version", version, "dirty", dirty)
	return nil
}

func newMigrate(databaseURL, dir string) (*migrate.Migrate, error) {
	if databaseURL == "" {
		return nil, errors.New("database url is empty")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create migration driver: %w", err)
	}

	if dir != "" {
		return migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	}
	src, err := iofs.New(embedded, "sql")
	if err != nil {
		return nil, fmt.Errorf("load embedded migrations: %w", err)
	}
	return migrate.NewWithInstance("iofs", src, "postgres", driver)
}

// Files lists the embedded migration files, for diagnostics.
func Files() ([]string, error) {
	entries, err := embedded.ReadDir("sql")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
