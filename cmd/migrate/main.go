// Package main provides an operator CLI for the versioned events schema.
//
// Usage:
//
//	migrate [--path DIR] up|down|version
//
// Commands:
//
//	up:      apply all pending migrations
//	down:    roll back the most recent migration
//	version: print the current version and dirty flag
//
// The database is configured with the same environment as the recorder
// (DB_DSN, or DB_HOST/DB_PORT/DB_DATABASE/DB_USER/DB_PASS).
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/onnwee/guild-recorder/config"
	"github.com/onnwee/guild-recorder/db"
)

// openDB connects with the recorder's configuration and verifies the connection.
func openDB() (*sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	database, err := db.Connect(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := database.PingContext(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return database, nil
}

func newRootCmd(open func() (*sql.DB, error)) *cobra.Command {
	var path string

	root := &cobra.Command{
		Use:           "migrate <command>",
		Short:         "Manage the events schema migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&path, "path", "", "migrations directory (default: db/migrations)")

	for _, c := range []struct {
		name, short string
	}{
		{"up", "Apply all pending migrations"},
		{"down", "Roll back the most recent migration"},
		{"version", "Print the current migration version"},
	} {
		command := c.name
		root.AddCommand(&cobra.Command{
			Use:   command,
			Short: c.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				database, err := open()
				if err != nil {
					return err
				}
				defer database.Close()
				return run(database, command, path, cmd.OutOrStdout())
			},
		})
	}
	return root
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	_ = godotenv.Load(".env")

	if err := newRootCmd(openDB).Execute(); err != nil {
		slog.Error("migrate failed", slog.Any("error", err))
		os.Exit(1)
	}
}

// run executes one migrate command. An empty dir uses the default search paths.
func run(database *sql.DB, command, dir string, out io.Writer) error {
	source, err := sourceURL(dir)
	if err != nil {
		return err
	}

	switch command {
	case "up":
		if source == "" {
			return db.RunMigrations(database)
		}
		return db.RunMigrationsFromPath(database, source)
	case "down":
		if source == "" {
			return db.MigrateDown(database)
		}
		return db.MigrateDownFromPath(database, source)
	case "version":
		var (
			version uint
			dirty   bool
		)
		if source == "" {
			version, dirty, err = db.GetMigrationVersion(database)
		} else {
			version, dirty, err = db.GetMigrationVersionFromPath(database, source)
		}
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "version=%d dirty=%t\n", version, dirty)
		return err
	default:
		return fmt.Errorf("unknown command %q (want up, down or version)", command)
	}
}

// sourceURL turns a directory into a golang-migrate file:// source.
func sourceURL(dir string) (string, error) {
	if dir == "" {
		return "", nil
	}
	if strings.HasPrefix(dir, "file://") {
		return dir, nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve migrations path %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("migrations directory %s not found", abs)
	}
	return "file://" + abs, nil
}
