package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/resume-tailor/internal/store"
	"github.com/jonathan/resume-tailor/internal/types"
)

const jobColumns = `id, raw_text, title, company, link, status, parsed, created_at, updated_at`

func scanJob(row scanner) (*types.Job, error) {
	var j types.Job
	var parsed []byte
	if err := row.Scan(&j.ID, &j.RawText, &j.Title, &j.Company, &j.Link, &j.Status, &parsed,
		&j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	if parsed != nil {
		var p types.ParsedJob
		if err := json.Unmarshal(parsed, &p); err != nil {
			return nil, fmt.Errorf("failed to decode parsed job: %w", err)
		}
		j.Parsed = &p
	}
	return &j, nil
}

// CreateJob inserts a job posting.
func (db *DB) CreateJob(ctx context.Context, job *types.Job) (*types.Job, error) {
	status := job.Status
	if status == "" {
		status = types.JobStatusRaw
	}
	var parsed []byte
	if job.Parsed != nil {
		var err error
		if parsed, err = json.Marshal(job.Parsed); err != nil {
			return nil, fmt.Errorf("failed to marshal parsed job: %w", err)
		}
	}

	row := db.pool.QueryRow(ctx,
		`INSERT INTO jobs (id, raw_text, title, company, link, status, parsed)
		 VALUES (COALESCE($1, gen_random_uuid()::text), $2, $3, $4, $5, $6, $7)
		 RETURNING `+jobColumns,
		nullable(job.ID), job.RawText, job.Title, job.Company, job.Link, status, parsed,
	)
	created, err := scanJob(row)
	if err != nil {
		return nil, mapError("job", "create", err)
	}
	return created, nil
}

// GetJob retrieves a live job by id.
func (db *DB) GetJob(ctx context.Context, id string) (*types.Job, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND deleted_at IS NULL`, id)
	job, err := scanJob(row)
	if err != nil {
		return nil, mapError("job", "get", err)
	}
	return job, nil
}

// GetJobsByIDs retrieves the live jobs among ids in one round trip.
func (db *DB) GetJobsByIDs(ctx context.Context, ids []string) ([]*types.Job, error) {
	if len(ids) == 0 {
		return []*types.Job{}, nil
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ANY($1) AND deleted_at IS NULL`, ids)
	if err != nil {
		return nil, mapError("job", "get_many", err)
	}
	return collectJobs(rows)
}

// ListJobs lists live jobs, newest first.
func (db *DB) ListJobs(ctx context.Context) ([]*types.Job, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, mapError("job", "list", err)
	}
	return collectJobs(rows)
}

// UpdateJob applies a partial update to a live job.
func (db *DB) UpdateJob(ctx context.Context, id string, patch store.JobPatch) (*types.Job, error) {
	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.RawText != nil {
		add("raw_text", *patch.RawText)
	}
	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Company != nil {
		add("company", *patch.Company)
	}
	if patch.Link != nil {
		add("link", *patch.Link)
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.Parsed != nil {
		parsed, err := json.Marshal(patch.Parsed)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal parsed job: %w", err)
		}
		add("parsed", parsed)
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	query := fmt.Sprintf(
		`UPDATE jobs SET %s WHERE id = $%d AND deleted_at IS NULL RETURNING `+jobColumns,
		strings.Join(sets, ", "), len(args))
	job, err := scanJob(db.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, mapError("job", "update", err)
	}
	return job, nil
}

// DeleteJob soft-deletes a job.
func (db *DB) DeleteJob(ctx context.Context, id string) error {
	return db.softDelete(ctx, "jobs", "job", id)
}

func collectJobs(rows pgx.Rows) ([]*types.Job, error) {
	defer rows.Close()
	jobs := []*types.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, mapError("job", "scan", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("job", "scan", err)
	}
	return jobs, nil
}

// softDelete marks a live row deleted and reports ErrNotFound when none matched.
func (db *DB) softDelete(ctx context.Context, table, entity, id string) error {
	result, err := db.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, table), id)
	if err != nil {
		return mapError(entity, "delete", err)
	}
	if result.RowsAffected() == 0 {
		return store.Wrap(entity, "delete", store.ErrNotFound)
	}
	return nil
}
