package mysql

import (
	"context"
	"database/sql"
	"errors"
	"net"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/koustreak/nlquery/internal/errs"
)

// MySQL server error numbers.
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errAccessDenied    = 1045
	errUnknownDatabase = 1049
	errBadField        = 1054
	errParse           = 1064
	errNoSuchTable     = 1146
)

// mapError converts a MySQL driver error into the unified *errs.Error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, "no rows", err)
	}

	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case errUnknownDatabase, errNoSuchTable:
			return errs.Wrap(errs.ErrKindNotFound, msg, err)
		case errAccessDenied:
			return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
		case errBadField, errParse:
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
