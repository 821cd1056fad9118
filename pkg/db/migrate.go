package db

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"labportal/pkg/config"
)

// Migrate applies every pending migration under migrationsPath (a file:// URL).
// It returns the schema version reached.
func Migrate(migrationsPath string, cfg config.Config) (uint, error) {
	m, err := migrate.New(migrationsPath, migrationConnString(cfg))
	if err != nil {
		return 0, err
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, err
	}
	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, nil
		}
		return 0, err
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}
