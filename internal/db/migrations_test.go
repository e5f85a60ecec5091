package db

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

func TestInitSchema_FreshMarksAllMigrations(t *testing.T) {
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	defer conn.Close()
	conn.SetMaxOpenConns(1)

	if err := InitSchema(conn, zap.NewNop()); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}

	var maxVersion int
	if err := conn.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&maxVersion); err != nil {
		t.Fatalf("query schema_version: %v", err)
	}
	if want := migrations[len(migrations)-1].Version; maxVersion != want {
		t.Errorf("schema version = %d, want %d", maxVersion, want)
	}

	// Second run is a no-op
	if err := InitSchema(conn, zap.NewNop()); err != nil {
		t.Errorf("second InitSchema failed: %v", err)
	}
}

func TestRunMigrations_FromEmpty(t *testing.T) {
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	defer conn.Close()
	conn.SetMaxOpenConns(1)

	if err := RunMigrations(conn, zap.NewNop()); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}
	if _, err := conn.Exec("INSERT INTO kv_entries (key, value) VALUES ('a', 'b')"); err != nil {
		t.Errorf("kv_entries missing after migrations: %v", err)
	}
}
