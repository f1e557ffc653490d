// Command migrate applies or rolls back the snapshot database schema named
// by persistence.sqlite.path in the server configuration.
package main

import (
	"errors"
	"os"

	"github.com/golang-migrate/migrate/v4"

	"github.com/frostdev-ops/pma-homesim/internal/config"
	"github.com/frostdev-ops/pma-homesim/internal/database"
	"github.com/frostdev-ops/pma-homesim/pkg/logger"
)

func main() {
	log := logger.New()
	if len(os.Args) < 2 {
		log.Fatal("Usage: migrate <up|down|version>")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}

	db, err := database.Initialize(cfg.Persistence.SQLite)
	if err != nil {
		log.Fatal("Failed to open database: ", err)
	}
	defer db.Close()

	m, err := database.NewMigrator(db)
	if err != nil {
		log.Fatal(err)
	}

	switch command := os.Args[1]; command {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal("Migrating up failed: ", err)
		}
		log.Info("Migrations applied")
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal("Migrating down failed: ", err)
		}
		log.Info("Migrations rolled back")
	case "version":
		v, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			log.Fatal(err)
		}
		log.WithField("dirty", dirty).Infof("Schema version %d", v)
	default:
		log.Fatalf("Unknown command %q, use up, down or version", command)
	}
}
