package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jonathan/resume-tailor/internal/store"
)

// PostgreSQL error codes
const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
	checkViolationCode      = "23514"
	notNullViolationCode    = "23502"
)

// mapError maps a database error onto the store sentinels and tags it with
// the entity and operation.
func mapError(entity, operation string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return store.Wrap(entity, operation, store.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolationCode:
			return store.Wrap(entity, operation, fmt.Errorf("%w: %s", store.ErrDuplicate, pgErr.ConstraintName))
		case foreignKeyViolationCode, checkViolationCode:
			return store.Wrap(entity, operation, fmt.Errorf("%w: %s", store.ErrInvalidRecord, pgErr.ConstraintName))
		case notNullViolationCode:
			return store.Wrap(entity, operation, fmt.Errorf("%w: %s is required", store.ErrInvalidRecord, pgErr.ColumnName))
		}
	}

	return store.Wrap(entity, operation, err)
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
