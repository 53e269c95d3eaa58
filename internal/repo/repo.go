package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"boardroom/internal/db"
	"boardroom/internal/domain"
)

// Repo is the SQL-backed store for the pipeline.
type Repo struct {
	DB      *sql.DB
	Dialect string
	Now     func() time.Time
}

var (
	ErrNotFound = errors.New("not found")
	// ErrSourceMissing marks a table or column that does not exist in this deployment.
	ErrSourceMissing = errors.New("source missing")
)

// New returns a Repo for the given connection and dialect.
func New(conn *sql.DB, dialect string) Repo {
	return Repo{DB: conn, Dialect: db.Dialect(dialect), Now: time.Now}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) conn(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

func (r Repo) q(query string) string {
	return db.Rebind(r.Dialect, query)
}

func (r Repo) now() string {
	if r.Now != nil {
		return domain.FormatTime(r.Now())
	}
	return domain.FormatTime(time.Now())
}

func (r Repo) exec(ctx context.Context, tx *sql.Tx, query string, args ...any) (sql.Result, error) {
	return r.conn(tx).ExecContext(ctx, r.q(query), args...)
}

func (r Repo) query(ctx context.Context, tx *sql.Tx, query string, args ...any) (*sql.Rows, error) {
	return r.conn(tx).QueryContext(ctx, r.q(query), args...)
}

func (r Repo) queryRow(ctx context.Context, tx *sql.Tx, query string, args ...any) *sql.Row {
	return r.conn(tx).QueryRowContext(ctx, r.q(query), args...)
}

func (r Repo) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// IsMissingRelation reports whether err means a table or column is absent.
func IsMissingRelation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42P01" || pqErr.Code == "42703"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no such table"), strings.Contains(msg, "no such column"):
		return true
	case strings.Contains(msg, "does not exist") && (strings.Contains(msg, "relation") || strings.Contains(msg, "column")):
		return true
	}
	return false
}

// soft tags read errors with the source name, folding absent relations into ErrSourceMissing.
func soft(source string, err error) error {
	if err == nil {
		return nil
	}
	if IsMissingRelation(err) {
		return fmt.Errorf("%w: %s: %v", ErrSourceMissing, source, err)
	}
	return fmt.Errorf("%s: %w", source, err)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableRaw(v json.RawMessage) any {
	if len(v) == 0 {
		return nil
	}
	return string(v)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func rawOrNil(s sql.NullString) json.RawMessage {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.RawMessage(s.String)
}

func marshalJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalStrings(s sql.NullString) []string {
	out := []string{}
	if !s.Valid || s.String == "" {
		return out
	}
	_ = json.Unmarshal([]byte(s.String), &out)
	if out == nil {
		out = []string{}
	}
	return out
}

func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	return limit
}
