// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Common errors for repository operations.
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrMatchNotFound       = errors.New("match not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrMatchNotJoinable    = errors.New("match is not joinable")
)

// isForeignKeyViolation reports whether err is a Postgres foreign key
// violation. Matches referencing users rely on this to turn an unknown
// participant into ErrUserNotFound instead of a raw constraint error.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// DBTX is the query surface shared by *pgxpool.Pool and pgx.Tx.
// Repositories are bound to one; services rebind them to a transaction
// with WithTx so a whole orchestration step commits or rolls back as one.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
