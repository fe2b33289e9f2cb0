package sqlstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/driftbox/driftbox/internal/metadata"
	"github.com/driftbox/driftbox/internal/metadata/storetest"
)

func TestParseDialect(t *testing.T) {
	tests := []struct {
		in      string
		want    Dialect
		wantErr bool
	}{
		{"sqlite", SQLite, false},
		{"SQLite3", SQLite, false},
		{"postgresql", Postgres, false},
		{"pg", Postgres, false},
		{"mariadb", MySQL, false},
		{"oracle", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDialect(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDialect(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDialect(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRebind(t *testing.T) {
	q := `SELECT data FROM documents WHERE collection = ? AND id = ?`

	if got := Postgres.rebind(q); got != `SELECT data FROM documents WHERE collection = $1 AND id = $2` {
		t.Errorf("Unexpected postgres query: %s", got)
	}
	if got := MySQL.rebind(q); got != q {
		t.Errorf("MySQL query should be unchanged, got %s", got)
	}
	if !strings.HasSuffix(Postgres.selectForUpdate(), "FOR UPDATE") {
		t.Error("Postgres update read should lock the row")
	}
	if strings.Contains(SQLite.selectForUpdate(), "FOR UPDATE") {
		t.Error("SQLite does not support FOR UPDATE")
	}
	if !strings.Contains(MySQL.upsert(), "ON DUPLICATE KEY UPDATE") {
		t.Error("MySQL upsert should use ON DUPLICATE KEY UPDATE")
	}
}

func openSQLite(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Options{
		Dialect:        SQLite,
		DSN:            filepath.Join(t.TempDir(), "meta.sqlite"),
		ConnectTimeout: time.Second,
	})
	if err != nil {
		if strings.Contains(err.Error(), "CGO_ENABLED") {
			t.Skip("go-sqlite3 requires cgo")
		}
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) metadata.Store {
		return openSQLite(t)
	})
}

// Set on an existing id must not move it to the end of Stream.
func TestSQLiteStore_OverwriteKeepsPosition(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	col := metadata.Collection("files", "alice", "user_files")

	_ = s.Set(ctx, col.Doc("a"), metadata.Document{"v": "1"})
	_ = s.Set(ctx, col.Doc("b"), metadata.Document{"v": "1"})
	_ = s.Set(ctx, col.Doc("a"), metadata.Document{"v": "2"})

	snaps, err := s.Stream(ctx, col)
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if len(snaps) != 2 || snaps[0].ID != "a" || snaps[1].ID != "b" {
		t.Errorf("Unexpected order: %+v", snaps)
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("DRIFTBOX_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DRIFTBOX_TEST_POSTGRES_DSN not set")
	}
	storetest.Run(t, func(t *testing.T) metadata.Store {
		s, err := Open(context.Background(), Options{Dialect: Postgres, DSN: dsn, ConnectTimeout: 5 * time.Second})
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		t.Cleanup(func() {
			s.db.Exec(`DELETE FROM documents`)
			s.Close()
		})
		return s
	})
}

func TestMySQLStore(t *testing.T) {
	dsn := os.Getenv("DRIFTBOX_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("DRIFTBOX_TEST_MYSQL_DSN not set")
	}
	storetest.Run(t, func(t *testing.T) metadata.Store {
		s, err := Open(context.Background(), Options{Dialect: MySQL, DSN: dsn, ConnectTimeout: 5 * time.Second})
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		t.Cleanup(func() {
			s.db.Exec(`DELETE FROM documents`)
			s.Close()
		})
		return s
	})
}
