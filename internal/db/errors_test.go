package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/jonathan/resume-tailor/internal/store"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, store.ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: uniqueViolationCode, ConstraintName: "tasks_live_job_id_key"}, store.ErrDuplicate},
		{"wrapped unique violation", fmt.Errorf("insert: %w", &pgconn.PgError{Code: uniqueViolationCode}), store.ErrDuplicate},
		{"check violation", &pgconn.PgError{Code: checkViolationCode, ConstraintName: "tasks_result_iff_done"}, store.ErrInvalidRecord},
		{"foreign key violation", &pgconn.PgError{Code: foreignKeyViolationCode}, store.ErrInvalidRecord},
		{"not null violation", &pgconn.PgError{Code: notNullViolationCode, ColumnName: "job_id"}, store.ErrInvalidRecord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError("task", "create", tt.err)
			assert.ErrorIs(t, err, tt.want)

			var storeErr *store.Error
			if assert.True(t, errors.As(err, &storeErr)) {
				assert.Equal(t, "task", storeErr.Entity)
				assert.Equal(t, "create", storeErr.Operation)
			}
		})
	}
}

func TestMapError_PassThrough(t *testing.T) {
	assert.NoError(t, mapError("job", "get", nil))

	err := mapError("job", "get", errors.New("connection reset"))
	assert.Contains(t, err.Error(), "connection reset")
	assert.True(t, store.IsRetryable(err))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: uniqueViolationCode}))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: checkViolationCode}))
	assert.False(t, isUniqueViolation(errors.New("other")))
}

func TestNullable(t *testing.T) {
	assert.Nil(t, nullable(""))
	assert.Equal(t, "abc", nullable("abc"))
	assert.Equal(t, "", deref(nil))
}
