package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/yeganesereshgi/Demo-Experiment/internal/store"
)

func handleMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dbPath := fs.String("db", "gazerec.db", "Session catalog database")
	fs.Parse(args)

	if fs.NArg() < 1 {
		printMigrateHelp()
		os.Exit(1)
	}
	if err := runMigrate(os.Stdout, *dbPath, fs.Arg(0)); err != nil {
		log.Fatalf("Migration %s failed: %v", fs.Arg(0), err)
	}
}

// runMigrate applies one migrate action to the catalog at dbPath.
func runMigrate(w io.Writer, dbPath, action string) error {
	db, err := store.OpenRaw(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	switch action {
	case "up":
		if err := db.MigrateUp(); err != nil {
			return err
		}
		fmt.Fprintln(w, "✓ All migrations applied successfully")
	case "down":
		if err := db.MigrateDown(); err != nil {
			return err
		}
		fmt.Fprintln(w, "✓ Migration rolled back successfully")
	case "status":
	default:
		printMigrateHelp()
		return fmt.Errorf("unknown migrate action: %s", action)
	}

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Current version: %d (dirty: %v)\n", version, dirty)
	if dirty {
		fmt.Fprintln(w, "⚠️  WARNING: Database is in a dirty state!")
	}
	return nil
}

func printMigrateHelp() {
	fmt.Println(`Usage: gazerec migrate [--db <file>] <action>

Actions:
  up       Apply all pending migrations
  down     Roll back the most recent migration
  status   Show the current schema version`)
}
