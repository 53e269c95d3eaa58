package db

import (
	"path/filepath"
	"testing"
)

func TestRebind(t *testing.T) {
	cases := []struct {
		dialect string
		in      string
		want    string
	}{
		{DialectSQLite, `SELECT * FROM t WHERE a=? AND b=?`, `SELECT * FROM t WHERE a=? AND b=?`},
		{DialectPostgres, `SELECT * FROM t WHERE a=? AND b=?`, `SELECT * FROM t WHERE a=$1 AND b=$2`},
		{DialectPostgres, `SELECT '?' FROM t WHERE a=?`, `SELECT '?' FROM t WHERE a=$1`},
	}
	for _, tc := range cases {
		if got := Rebind(tc.dialect, tc.in); got != tc.want {
			t.Fatalf("Rebind(%s, %q) = %q, want %q", tc.dialect, tc.in, got, tc.want)
		}
	}
}

func TestDialect(t *testing.T) {
	if Dialect("") != DialectSQLite {
		t.Fatalf("empty driver should default to sqlite")
	}
	if Dialect("PostgreSQL") != DialectPostgres {
		t.Fatalf("postgresql should map to postgres")
	}
}

func TestOpenPostgresRequiresDSN(t *testing.T) {
	if _, err := Open(Config{Driver: "postgres"}); err == nil {
		t.Fatalf("expected error without dsn")
	}
}

func TestOpenSQLiteCreatesWorkspace(t *testing.T) {
	dir := t.TempDir()
	conn, err := Open(Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	if err := conn.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if Path(dir) != filepath.Join(dir, ".boardroom", "boardroom.db") {
		t.Fatalf("unexpected path %s", Path(dir))
	}
}
