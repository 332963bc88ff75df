package sqlitemigrate

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func TestExtractUp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, in, want string
	}{
		{"no markers", "CREATE TABLE a (x);", "CREATE TABLE a (x);"},
		{"up only", "-- +migrate Up\nCREATE TABLE a (x);", "\nCREATE TABLE a (x);"},
		{"up and down", "-- +migrate Up\nCREATE TABLE a (x);\n-- +migrate Down\nDROP TABLE a;", "\nCREATE TABLE a (x);\n"},
	}
	for _, tt := range tests {
		if got := ExtractUp(tt.in); got != tt.want {
			t.Fatalf("%s: ExtractUp = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestIsAlreadyExists(t *testing.T) {
	t.Parallel()

	if !IsAlreadyExists(errors.New("SQL logic error: table a already exists (1)")) {
		t.Fatalf("expected already-exists match")
	}
	if IsAlreadyExists(errors.New("no such table: a")) {
		t.Fatalf("unexpected already-exists match")
	}
}

func TestApplyOnce(t *testing.T) {
	t.Parallel()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	fsys := fstest.MapFS{
		"0001_a.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE a (x INTEGER);\n-- +migrate Down\nDROP TABLE a;\n")},
		"0002_b.sql": {Data: []byte("CREATE TABLE b (y INTEGER);")},
		"README.md":  {Data: []byte("not a migration")},
	}
	ctx := context.Background()
	for range 2 {
		if err := Apply(ctx, db, fsys, ""); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}

	var names []string
	rows, err := db.Query("SELECT name FROM " + migrationTable + " ORDER BY name")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			t.Fatalf("scan: %v", err)
		}
		names = append(names, n)
	}
	if got := strings.Join(names, ","); got != "0001_a.sql,0002_b.sql" {
		t.Fatalf("applied = %q, want %q", got, "0001_a.sql,0002_b.sql")
	}
	if _, err := db.Exec("INSERT INTO a (x) VALUES (1)"); err != nil {
		t.Fatalf("table a missing: %v", err)
	}
}

func TestApplyNilDB(t *testing.T) {
	t.Parallel()

	if err := Apply(context.Background(), nil, fstest.MapFS{}, ""); err == nil {
		t.Fatalf("expected error for nil db")
	}
}
