package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const migrationsDir = "../../db/migrations"

// setupTestDB opens TEST_PG_DSN with an empty events schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	reset := func() {
		_, _ = database.ExecContext(context.Background(), `DROP TABLE IF EXISTS events, schema_migrations CASCADE`)
	}
	reset()
	t.Cleanup(func() {
		reset()
		database.Close()
	})
	return database
}

func TestSourceURL(t *testing.T) {
	abs, err := filepath.Abs(migrationsDir)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		dir     string
		want    string
		wantErr bool
	}{
		{"default", "", "", false},
		{"already a url", "file:///srv/migrations", "file:///srv/migrations", false},
		{"relative dir", migrationsDir, "file://" + abs, false},
		{"missing dir", "does/not/exist", "", true},
		{"file not dir", "main.go", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sourceURL(tt.dir)
			if (err != nil) != tt.wantErr {
				t.Fatalf("sourceURL(%q) error = %v, wantErr %v", tt.dir, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("sourceURL(%q) = %q, want %q", tt.dir, got, tt.want)
			}
		})
	}
}

func TestRunUnknownCommand(t *testing.T) {
	err := run(nil, "sideways", "", &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestRunBadPath(t *testing.T) {
	if err := run(nil, "up", "does/not/exist", &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for missing migrations directory")
	}
}

func TestRunUpDownVersion(t *testing.T) {
	database := setupTestDB(t)

	version := func() string {
		t.Helper()
		var out bytes.Buffer
		if err := run(database, "version", migrationsDir, &out); err != nil {
			t.Fatalf("version: %v", err)
		}
		return strings.TrimSpace(out.String())
	}

	if got := version(); got != "version=0 dirty=false" {
		t.Fatalf("fresh database = %q", got)
	}
	if err := run(database, "up", migrationsDir, &bytes.Buffer{}); err != nil {
		t.Fatalf("up: %v", err)
	}
	if got := version(); got != "version=2 dirty=false" {
		t.Fatalf("after up = %q", got)
	}
	if err := run(database, "down", migrationsDir, &bytes.Buffer{}); err != nil {
		t.Fatalf("down: %v", err)
	}
	if got := version(); got != "version=1 dirty=false" {
		t.Fatalf("after down = %q", got)
	}
	// up is idempotent once current
	for i := 0; i < 2; i++ {
		if err := run(database, "up", migrationsDir, &bytes.Buffer{}); err != nil {
			t.Fatalf("up #%d: %v", i+1, err)
		}
	}
	if got := version(); got != "version=2 dirty=false" {
		t.Fatalf("after re-up = %q", got)
	}
}

func TestRootCommand(t *testing.T) {
	errOpen := errors.New("no database")
	failOpen := func() (*sql.DB, error) { return nil, errOpen }

	tests := []struct {
		name   string
		args   []string
		wantIs error
	}{
		{"open failure surfaces", []string{"up"}, errOpen},
		{"open failure on version", []string{"--path", migrationsDir, "version"}, errOpen},
		{"unknown command", []string{"sideways"}, nil},
		{"extra args", []string{"down", "2"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCmd(failOpen)
			cmd.SetArgs(tt.args)
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			err := cmd.Execute()
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("error = %v, want %v", err, tt.wantIs)
			}
		})
	}
}

func TestRootCommandVersion(t *testing.T) {
	database := setupTestDB(t)
	open := func() (*sql.DB, error) {
		// the command closes what it opens; hand it a second pool on the same DSN
		return sql.Open("pgx", os.Getenv("TEST_PG_DSN"))
	}
	if err := run(database, "up", migrationsDir, &bytes.Buffer{}); err != nil {
		t.Fatalf("up: %v", err)
	}

	var out bytes.Buffer
	cmd := newRootCmd(open)
	cmd.SetArgs([]string{"--path", migrationsDir, "version"})
	cmd.SetOut(&out)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "version=2 dirty=false" {
		t.Errorf("output = %q", got)
	}
}
