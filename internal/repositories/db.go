package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"groupware/internal/apperr"
)

// DBTX is satisfied by *sql.DB and *sql.Tx, so every repository can run
// standalone or inside the update transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// wrapDBErr maps driver failures onto the taxonomy. A Postgres 22001
// (string_data_right_truncation) becomes a Truncated error carrying the
// string-valued candidate fields of the statement.
func wrapDBErr(err error, op string, stringFields []string) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "22001" {
		return apperr.Truncated(err, stringFields)
	}
	return apperr.Wrap(apperr.KindInfrastructure, err, "%s", op)
}
