package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/resume-tailor/internal/store"
	"github.com/jonathan/resume-tailor/internal/types"
)

const taskColumns = `id, job_id, raw_resume_id, new_resume_id, status, content_mode, time_used,
	error, error_kind, attempts, created_at, updated_at, started_at, finished_at`

func scanTask(row scanner) (*types.Task, error) {
	var t types.Task
	var rawResumeID, newResumeID *string
	if err := row.Scan(&t.ID, &t.JobID, &rawResumeID, &newResumeID, &t.Status, &t.ContentMode, &t.TimeUsed,
		&t.Error, &t.ErrorKind, &t.Attempts, &t.CreatedAt, &t.UpdatedAt, &t.StartedAt, &t.FinishedAt); err != nil {
		return nil, err
	}
	t.RawResumeID = deref(rawResumeID)
	t.NewResumeID = deref(newResumeID)
	return &t, nil
}

// CreateTask inserts a task. The partial unique index on live job ids turns a
// concurrent second insert for the same job into store.ErrDuplicate.
func (db *DB) CreateTask(ctx context.Context, task *types.Task) (*types.Task, error) {
	row := db.pool.QueryRow(ctx,
		`INSERT INTO tasks (id, job_id, raw_resume_id, status, content_mode)
		 VALUES (COALESCE($1, gen_random_uuid()::text), $2, $3, $4, $5)
		 RETURNING `+taskColumns,
		nullable(task.ID), task.JobID, nullable(task.RawResumeID), task.Status, task.ContentMode,
	)
	created, err := scanTask(row)
	if err != nil {
		if isUniqueViolation(err) {
			db.logger.Debug("task already exists for job", "job_id", task.JobID)
		}
		return nil, mapError("task", "create", err)
	}
	return created, nil
}

// GetTask retrieves a live task by id.
func (db *DB) GetTask(ctx context.Context, id string) (*types.Task, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND deleted_at IS NULL`, id)
	task, err := scanTask(row)
	if err != nil {
		return nil, mapError("task", "get", err)
	}
	return task, nil
}

// GetTasksByIDs retrieves the live tasks among ids in one round trip.
func (db *DB) GetTasksByIDs(ctx context.Context, ids []string) ([]*types.Task, error) {
	if len(ids) == 0 {
		return []*types.Task{}, nil
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ANY($1) AND deleted_at IS NULL`, ids)
	if err != nil {
		return nil, mapError("task", "get_many", err)
	}
	return collectTasks(rows)
}

// GetTasksByJobIDs retrieves the live task of each job in one round trip.
func (db *DB) GetTasksByJobIDs(ctx context.Context, jobIDs []string) ([]*types.Task, error) {
	if len(jobIDs) == 0 {
		return []*types.Task{}, nil
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE job_id = ANY($1) AND deleted_at IS NULL`, jobIDs)
	if err != nil {
		return nil, mapError("task", "get_by_jobs", err)
	}
	return collectTasks(rows)
}

// FindTaskByJob retrieves the live task for a job.
func (db *DB) FindTaskByJob(ctx context.Context, jobID string) (*types.Task, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE job_id = $1 AND deleted_at IS NULL`, jobID)
	task, err := scanTask(row)
	if err != nil {
		return nil, mapError("task", "find", err)
	}
	return task, nil
}

// ListTasks lists live tasks matching filter, oldest first.
func (db *DB) ListTasks(ctx context.Context, filter store.TaskFilter) ([]*types.Task, error) {
	conditions := []string{"deleted_at IS NULL"}
	var args []any
	if len(filter.Statuses) > 0 {
		statuses := make([]int16, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = int16(s)
		}
		args = append(args, statuses)
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if !filter.UpdatedBefore.IsZero() {
		args = append(args, filter.UpdatedBefore)
		conditions = append(conditions, fmt.Sprintf("updated_at < $%d", len(args)))
	}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + strings.Join(conditions, " AND ") + ` ORDER BY created_at`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError("task", "list", err)
	}
	return collectTasks(rows)
}

// UpdateTask applies patch to a live task. With expect set, the write is a
// compare-and-set on the current status.
func (db *DB) UpdateTask(ctx context.Context, id string, expect *types.TaskStatus, patch store.TaskPatch) (*types.Task, error) {
	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.ClearResult {
		sets = append(sets, "new_resume_id = NULL", "time_used = 0", "error = ''", "error_kind = ''", "finished_at = NULL")
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.RawResumeID != nil {
		add("raw_resume_id", nullable(*patch.RawResumeID))
	}
	if patch.NewResumeID != nil {
		add("new_resume_id", nullable(*patch.NewResumeID))
	}
	if patch.ContentMode != nil {
		add("content_mode", *patch.ContentMode)
	}
	if patch.TimeUsed != nil {
		add("time_used", *patch.TimeUsed)
	}
	if patch.Error != nil {
		add("error", *patch.Error)
	}
	if patch.ErrorKind != nil {
		add("error_kind", *patch.ErrorKind)
	}
	if patch.Attempts != nil {
		add("attempts", *patch.Attempts)
	}
	if patch.StartedAt != nil {
		add("started_at", *patch.StartedAt)
	}
	if patch.FinishedAt != nil {
		add("finished_at", *patch.FinishedAt)
	}
	sets = append(sets, "updated_at = NOW()")

	args = append(args, id)
	where := fmt.Sprintf("id = $%d AND deleted_at IS NULL", len(args))
	if expect != nil {
		args = append(args, *expect)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	query := fmt.Sprintf(`UPDATE tasks SET %s WHERE %s RETURNING `+taskColumns, strings.Join(sets, ", "), where)
	task, err := scanTask(db.pool.QueryRow(ctx, query, args...))
	if err == nil {
		return task, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) || expect == nil {
		return nil, mapError("task", "update", err)
	}

	// No row matched: either the task is gone or its status moved on.
	if _, getErr := db.GetTask(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, store.Wrap("task", "update", store.ErrConflict)
}

// DeleteTask soft-deletes a task, releasing its job for a new task.
func (db *DB) DeleteTask(ctx context.Context, id string) error {
	return db.softDelete(ctx, "tasks", "task", id)
}

func collectTasks(rows pgx.Rows) ([]*types.Task, error) {
	defer rows.Close()
	tasks := []*types.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, mapError("task", "scan", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("task", "scan", err)
	}
	return tasks, nil
}
