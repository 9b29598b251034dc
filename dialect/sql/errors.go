package sql

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/syssam/batchql"
)

// SQLSTATE codes of constraint violations (class 23).
const (
	stateUnique     = "23505"
	stateForeignKey = "23503"
	stateCheck      = "23514"
)

// MySQL error numbers of constraint violations.
const (
	mysqlDuplicateEntry   = 1062
	mysqlForeignKeyParent = 1451
	mysqlForeignKeyChild  = 1452
	mysqlCheckViolation   = 3819
)

// Interfaces implemented by driver errors outside the supported drivers.
type (
	sqlStateError interface{ SQLState() string }
	errorCoder    interface{ Code() string }
	errorNumberer interface{ Number() uint16 }
)

// ConstraintKind classifies a driver error as one of the batchql
// constraint kinds, or returns "" when err is not a constraint violation.
func ConstraintKind(err error) string {
	if err == nil {
		return ""
	}
	if state := sqlState(err); state != "" {
		switch state {
		case stateUnique:
			return batchql.ConstraintUnique
		case stateForeignKey:
			return batchql.ConstraintForeignKey
		case stateCheck:
			return batchql.ConstraintCheck
		}
	}
	if n, ok := errorNumber(err); ok {
		switch n {
		case mysqlDuplicateEntry:
			return batchql.ConstraintUnique
		case mysqlForeignKeyParent, mysqlForeignKeyChild:
			return batchql.ConstraintForeignKey
		case mysqlCheckViolation:
			return batchql.ConstraintCheck
		}
	}
	msg := err.Error()
	switch {
	case containsAny(msg, "Error 1062", "violates unique constraint", "UNIQUE constraint failed"):
		return batchql.ConstraintUnique
	case containsAny(msg, "Error 1451", "Error 1452", "violates foreign key constraint", "FOREIGN KEY constraint failed"):
		return batchql.ConstraintForeignKey
	case containsAny(msg, "Error 3819", "violates check constraint", "CHECK constraint failed"):
		return batchql.ConstraintCheck
	}
	return ""
}

// IsUniqueConstraintError reports whether err is a uniqueness violation.
func IsUniqueConstraintError(err error) bool {
	return ConstraintKind(err) == batchql.ConstraintUnique
}

// IsForeignKeyConstraintError reports whether err is a foreign-key violation.
func IsForeignKeyConstraintError(err error) bool {
	return ConstraintKind(err) == batchql.ConstraintForeignKey
}

// IsCheckConstraintError reports whether err is a check constraint violation.
func IsCheckConstraintError(err error) bool {
	return ConstraintKind(err) == batchql.ConstraintCheck
}

// sqlState returns the SQLSTATE code carried by err, if any.
func sqlState(err error) string {
	var (
		pgErr *pgconn.PgError
		pqErr *pq.Error
	)
	switch {
	case errors.As(err, &pgErr):
		return pgErr.Code
	case errors.As(err, &pqErr):
		return string(pqErr.Code)
	}
	if e, ok := asError[sqlStateError](err); ok {
		return e.SQLState()
	}
	if e, ok := asError[errorCoder](err); ok {
		return e.Code()
	}
	return ""
}

// errorNumber returns the MySQL error number carried by err, if any.
func errorNumber(err error) (uint16, bool) {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number, true
	}
	if e, ok := asError[errorNumberer](err); ok {
		return e.Number(), true
	}
	return 0, false
}

func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
