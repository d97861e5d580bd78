package postgres

import (
	stderrors "errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// IsUndefinedTable reports a missing videos table (42P01).
func IsUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == "42P01"
	}
	return false
}

// IsUndefinedColumn reports a schema without one of the result columns (42703).
func IsUndefinedColumn(err error) bool {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == "42703"
	}
	return false
}
