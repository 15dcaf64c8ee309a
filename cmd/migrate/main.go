package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/example/carego/internal/config"
	"github.com/example/carego/internal/store"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, version, force")
		steps   = flag.Int("steps", 0, "Number of migration steps (for up/down)")
		version = flag.Uint("version", 0, "Target version (for force command)")
		dir     = flag.String("dir", "", "Migrations root directory (defaults to MIGRATIONS_DIR)")
	)
	flag.Parse()

	if _, err := config.LoadEnv(context.Background(), ".env"); err != nil {
		log.Fatalf("Env error: %v", err)
	}
	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	var dsn string
	switch cfg.DBAdapter {
	case "postgres":
		dsn, err = cfg.BuildPostgresDSN()
	case "mysql":
		dsn, err = cfg.BuildMySQLDSN()
	default:
		log.Fatalf("Migrations only work with postgres or mysql. Current adapter: %s", cfg.DBAdapter)
	}
	if err != nil {
		log.Fatalf("%s config error: %v", cfg.DBAdapter, err)
	}

	migrationsDir := cfg.MigrationsDir
	if *dir != "" {
		migrationsDir = *dir
	}

	mg, err := store.NewMigrator(cfg.DBAdapter, migrationsDir, dsn)
	if err != nil {
		log.Fatalf("Migrator init failed: %v", err)
	}
	defer mg.Close()

	switch *command {
	case "up":
		if err := mg.Up(*steps); err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
		fmt.Println("✓ Migrations applied successfully")
	case "down":
		if err := mg.Down(*steps); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		fmt.Println("✓ Migrations rolled back successfully")
	case "version":
		v, dirty, err := mg.Version()
		if err != nil {
			log.Fatalf("Failed to get version: %v", err)
		}
		if dirty {
			fmt.Printf("⚠ Database is in a dirty state (version %d)\n", v)
			mg.Close()
			os.Exit(1)
		}
		fmt.Printf("Current migration version: %d\n", v)
	case "force":
		if *version == 0 {
			log.Fatal("Version required for force command (use -version flag)")
		}
		if err := mg.Force(int(*version)); err != nil {
			log.Fatalf("Force migration failed: %v", err)
		}
		fmt.Printf("✓ Forced database to version %d\n", *version)
	default:
		log.Fatalf("Unknown command: %s (supported: up, down, version, force)", *command)
	}
}
