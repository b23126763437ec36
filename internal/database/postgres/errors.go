package postgres

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/nlquery/internal/errs"
)

// Postgres SQLSTATE classes.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	codeUndefinedTable    = "42P01"
	codeUndefinedColumn   = "42703"
	codeSyntaxError       = "42601"
	codeInvalidPassword   = "28P01"
	codeInvalidAuthSpec   = "28000"
	codeUndefinedDatabase = "3D000"
)

// mapError converts a pgx error into the unified *errs.Error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, "no rows", err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUndefinedTable, codeUndefinedDatabase:
			return errs.Wrap(errs.ErrKindNotFound, msg, err)
		case codeInvalidPassword, codeInvalidAuthSpec:
			return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
		case codeUndefinedColumn, codeSyntaxError:
			return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
		}
		return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return errs.Wrap(errs.ErrKindTimeout, msg, err)
		}
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}

	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}
