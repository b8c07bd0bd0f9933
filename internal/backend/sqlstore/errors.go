package sqlstore

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"content-graphql/internal/action"
	"content-graphql/internal/backend"
)

const (
	mysqlErrDBAccessDenied     = 1044 // Access denied for user to database
	mysqlErrTableAccessDenied  = 1142 // command denied to user for table
	mysqlErrColumnAccessDenied = 1143 // command denied to user for column
	mysqlErrDuplicateEntry     = 1062
	mysqlErrBadNull            = 1048
	mysqlErrNoDefault          = 1364
	mysqlErrDataTooLong        = 1406
	mysqlErrRowIsReferenced    = 1451
	mysqlErrNoReferencedRow    = 1452
	mysqlErrCheckViolated      = 3819
)

// normalizeError maps driver errors onto backend sentinels so the resolver
// layer can report a stable error code.
func normalizeError(err error) error {
	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) {
		return err
	}
	switch mysqlErr.Number {
	case mysqlErrDBAccessDenied, mysqlErrTableAccessDenied, mysqlErrColumnAccessDenied:
		return fmt.Errorf("%w: %s", action.ErrForbidden, mysqlErr.Message)
	case mysqlErrDuplicateEntry:
		return fmt.Errorf("%w: %s", backend.ErrConflict, mysqlErr.Message)
	case mysqlErrBadNull, mysqlErrNoDefault, mysqlErrDataTooLong,
		mysqlErrRowIsReferenced, mysqlErrNoReferencedRow, mysqlErrCheckViolated:
		return fmt.Errorf("%w: %s", backend.ErrInvalid, mysqlErr.Message)
	}
	return err
}
