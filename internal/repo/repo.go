package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Repo wraps the operational store. Methods taking a *sql.Tx run inside the
// caller's transaction; a nil tx falls back to the pool.
type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

// NextTaskNumber advances the per-year counter and returns the next
// TASK-<year>-<seq> value. It must run inside the transaction that inserts
// the task: the counter row is the serialization point for concurrent
// creates. A year seen for the first time is seeded from existing numbers.
func (r Repo) NextTaskNumber(ctx context.Context, tx *sql.Tx, year int) (string, error) {
	if tx == nil {
		return "", errors.New("task number allocation requires a transaction")
	}
	prefix := fmt.Sprintf("TASK-%04d-", year)
	if _, err := tx.ExecContext(ctx, `INSERT INTO task_counters(year, seq)
SELECT ?, COUNT(*) FROM tasks WHERE task_number LIKE ?
ON CONFLICT(year) DO NOTHING`, year, prefix+"%"); err != nil {
		return "", fmt.Errorf("seed task counter: %w", err)
	}
	var seq int
	if err := tx.QueryRowContext(ctx, `UPDATE task_counters SET seq = seq + 1 WHERE year=? RETURNING seq`, year).Scan(&seq); err != nil {
		return "", fmt.Errorf("advance task counter: %w", err)
	}
	return fmt.Sprintf("%s%04d", prefix, seq), nil
}

// Ping checks that the store answers queries.
func (r Repo) Ping(ctx context.Context) error {
	var one int
	return r.DB.QueryRowContext(ctx, `SELECT 1`).Scan(&one)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
