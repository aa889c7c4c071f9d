//go:build integration

package db

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-tailor/internal/store"
	"github.com/jonathan/resume-tailor/internal/types"
)

func getTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	db, err := Connect(ctx, Config{URL: dsn, MaxConns: 8}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err, "failed to connect to test database")
	require.NoError(t, db.Migrate(ctx, "up"))

	_, _ = db.pool.Exec(ctx, "DELETE FROM tasks")
	_, _ = db.pool.Exec(ctx, "DELETE FROM resumes")
	_, _ = db.pool.Exec(ctx, "DELETE FROM jobs")
	return db
}

func TestIntegration_TaskDedup(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	job, err := db.CreateJob(ctx, &types.Job{Title: "Backend Engineer", RawText: "Go, Postgres"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = db.CreateTask(ctx, &types.Task{JobID: job.ID, Status: types.TaskStatusDefault, ContentMode: types.ModeResume})
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range results {
		if err == nil {
			created++
		} else {
			assert.ErrorIs(t, err, store.ErrDuplicate)
		}
	}
	assert.Equal(t, 1, created)
}

func TestIntegration_TaskLifecycle(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	job, err := db.CreateJob(ctx, &types.Job{Title: "Backend Engineer"})
	require.NoError(t, err)
	raw, err := db.CreateResume(ctx, &types.Resume{IsRaw: true, Content: types.Document{"basics": []byte(`{"name":"Jane"}`)}})
	require.NoError(t, err)

	task, err := db.CreateTask(ctx, &types.Task{JobID: job.ID, RawResumeID: raw.ID, Status: types.TaskStatusWaiting, ContentMode: types.ModeResume})
	require.NoError(t, err)

	t.Run("compare and set", func(t *testing.T) {
		pending, err := db.UpdateTask(ctx, task.ID, store.Ptr(types.TaskStatusWaiting), store.TaskPatch{Status: store.Ptr(types.TaskStatusPending)})
		require.NoError(t, err)
		assert.Equal(t, types.TaskStatusPending, pending.Status)

		_, err = db.UpdateTask(ctx, task.ID, store.Ptr(types.TaskStatusWaiting), store.TaskPatch{Status: store.Ptr(types.TaskStatusPending)})
		assert.ErrorIs(t, err, store.ErrConflict)
	})

	t.Run("done requires new resume", func(t *testing.T) {
		_, err := db.UpdateTask(ctx, task.ID, nil, store.TaskPatch{Status: store.Ptr(types.TaskStatusDone)})
		assert.ErrorIs(t, err, store.ErrInvalidRecord)
	})

	t.Run("done with derived resume", func(t *testing.T) {
		derived, err := db.CreateResume(ctx, &types.Resume{RawID: raw.ID, JobID: job.ID, Content: raw.Content})
		require.NoError(t, err)

		done, err := db.UpdateTask(ctx, task.ID, store.Ptr(types.TaskStatusPending), store.TaskPatch{
			Status:      store.Ptr(types.TaskStatusDone),
			NewResumeID: store.Ptr(derived.ID),
			TimeUsed:    store.Ptr(1.5),
		})
		require.NoError(t, err)
		assert.Equal(t, derived.ID, done.NewResumeID)

		_, err = db.UpdateRawResume(ctx, derived.ID, types.Document{})
		assert.ErrorIs(t, err, store.ErrImmutable)
	})

	t.Run("bulk reads ignore unknown ids", func(t *testing.T) {
		tasks, err := db.GetTasksByIDs(ctx, []string{task.ID, "nonexistent"})
		require.NoError(t, err)
		assert.Len(t, tasks, 1)

		byJob, err := db.GetTasksByJobIDs(ctx, []string{job.ID})
		require.NoError(t, err)
		assert.Len(t, byJob, 1)
	})

	t.Run("soft delete", func(t *testing.T) {
		require.NoError(t, db.DeleteTask(ctx, task.ID))
		_, err := db.GetTask(ctx, task.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, db.DeleteTask(ctx, task.ID), store.ErrNotFound)
	})
}

func TestIntegration_JobParsedUpdate(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	job, err := db.CreateJob(ctx, &types.Job{RawText: "We need a Go engineer"})
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusRaw, job.Status)

	updated, err := db.UpdateJob(ctx, job.ID, store.JobPatch{
		Title:   store.Ptr("Go Engineer"),
		Company: store.Ptr("Acme"),
		Status:  store.Ptr(types.JobStatusParsed),
		Parsed:  &types.ParsedJob{Company: "Acme", JobTitle: "Go Engineer", Keywords: []string{"go"}},
	})
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusParsed, updated.Status)
	require.NotNil(t, updated.Parsed)
	assert.Equal(t, []string{"go"}, updated.Parsed.Keywords)
}
