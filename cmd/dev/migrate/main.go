package main

import (
	"context"
	"fmt"
	"os"

	"labportal/pkg/config"
	"labportal/pkg/db"
)

func main() {
	cfg := config.Load()
	if cfg.MigrationsPath == "" {
		cfg.MigrationsPath = "file://migrations"
	}

	// This uses DIRECT_URL if set; poolers do not support the migration locks.
	version, err := db.Migrate(cfg.MigrationsPath, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate failed: %v\n", err)
		os.Exit(1)
	}

	// Sanity check that the runtime connection (DATABASE_URL if set) can open.
	// DSNs are never printed.
	pool, err := db.Open(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "runtime db open failed: %v\n", err)
		os.Exit(1)
	}
	pool.Close()

	fmt.Printf("migrations applied, schema version %d\n", version)
}
