package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/resume-tailor/internal/store"
	"github.com/jonathan/resume-tailor/internal/types"
)

const resumeColumns = `id, content, is_raw, raw_id, job_id, created_at, updated_at`

func scanResume(row scanner) (*types.Resume, error) {
	var r types.Resume
	var content []byte
	var rawID, jobID *string
	if err := row.Scan(&r.ID, &content, &r.IsRaw, &rawID, &jobID, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	doc, err := types.ParseDocument(content)
	if err != nil {
		return nil, err
	}
	r.Content = doc
	r.RawID = deref(rawID)
	r.JobID = deref(jobID)
	return &r, nil
}

// CreateResume inserts a raw or derived resume.
func (db *DB) CreateResume(ctx context.Context, resume *types.Resume) (*types.Resume, error) {
	content, err := json.Marshal(resume.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resume content: %w", err)
	}
	row := db.pool.QueryRow(ctx,
		`INSERT INTO resumes (id, content, is_raw, raw_id, job_id)
		 VALUES (COALESCE($1, gen_random_uuid()::text), $2, $3, $4, $5)
		 RETURNING `+resumeColumns,
		nullable(resume.ID), content, resume.IsRaw, nullable(resume.RawID), nullable(resume.JobID),
	)
	created, err := scanResume(row)
	if err != nil {
		return nil, mapError("resume", "create", err)
	}
	return created, nil
}

// GetResume retrieves a live resume by id.
func (db *DB) GetResume(ctx context.Context, id string) (*types.Resume, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+resumeColumns+` FROM resumes WHERE id = $1 AND deleted_at IS NULL`, id)
	resume, err := scanResume(row)
	if err != nil {
		return nil, mapError("resume", "get", err)
	}
	return resume, nil
}

// GetResumesByIDs retrieves the live resumes among ids in one round trip.
func (db *DB) GetResumesByIDs(ctx context.Context, ids []string) ([]*types.Resume, error) {
	if len(ids) == 0 {
		return []*types.Resume{}, nil
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+resumeColumns+` FROM resumes WHERE id = ANY($1) AND deleted_at IS NULL`, ids)
	if err != nil {
		return nil, mapError("resume", "get_many", err)
	}
	return collectResumes(rows)
}

// ListResumes lists live resumes matching filter, newest first.
func (db *DB) ListResumes(ctx context.Context, filter store.ResumeFilter) ([]*types.Resume, error) {
	conditions := []string{"deleted_at IS NULL"}
	var args []any
	if filter.RawOnly {
		conditions = append(conditions, "is_raw")
	}
	if filter.JobID != "" {
		args = append(args, filter.JobID)
		conditions = append(conditions, fmt.Sprintf("job_id = $%d", len(args)))
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+resumeColumns+` FROM resumes WHERE `+strings.Join(conditions, " AND ")+` ORDER BY created_at DESC`,
		args...)
	if err != nil {
		return nil, mapError("resume", "list", err)
	}
	return collectResumes(rows)
}

// UpdateRawResume replaces the content of a raw resume. Derived resumes are immutable.
func (db *DB) UpdateRawResume(ctx context.Context, id string, content types.Document) (*types.Resume, error) {
	data, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resume content: %w", err)
	}
	row := db.pool.QueryRow(ctx,
		`UPDATE resumes SET content = $1, updated_at = NOW()
		 WHERE id = $2 AND is_raw AND deleted_at IS NULL
		 RETURNING `+resumeColumns,
		data, id,
	)
	resume, err := scanResume(row)
	if err == nil {
		return resume, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, mapError("resume", "update", err)
	}
	// Distinguish a missing resume from a derived one.
	existing, getErr := db.GetResume(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if !existing.IsRaw {
		return nil, store.Wrap("resume", "update", store.ErrImmutable)
	}
	return nil, store.Wrap("resume", "update", store.ErrConflict)
}

// DeleteResume soft-deletes a resume.
func (db *DB) DeleteResume(ctx context.Context, id string) error {
	return db.softDelete(ctx, "resumes", "resume", id)
}

func collectResumes(rows pgx.Rows) ([]*types.Resume, error) {
	defer rows.Close()
	resumes := []*types.Resume{}
	for rows.Next() {
		resume, err := scanResume(rows)
		if err != nil {
			return nil, mapError("resume", "scan", err)
		}
		resumes = append(resumes, resume)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("resume", "scan", err)
	}
	return resumes, nil
}
