// Package enrich tailors a résumé to a job posting. The Pipeline interface is
// what the task engine calls; Gemini is the production implementation.
package enrich

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonathan/resume-tailor/internal/types"
)

// Pipeline produces a tailored résumé update and parsed job metadata.
// Implementations must honor ctx cancellation.
type Pipeline interface {
	Enrich(ctx context.Context, job *types.Job, resume *types.Resume, mode types.ContentMode) (*Result, error)
}

// Result is the output of one enrichment run.
type Result struct {
	Update types.ResumeUpdate
	Job    types.ParsedJob
	// JobText is set when the posting text was fetched from the job link.
	JobText string
}

// PipelineError is a failed enrichment stage. Transient errors may succeed
// on retry; permanent ones will not.
type PipelineError struct {
	Stage     string
	Transient bool
	Cause     error
}

func (e *PipelineError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("enrichment %s failed (%s): %v", e.Stage, kind, e.Cause)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Transient wraps err as a retryable failure of stage.
func Transient(stage string, err error) error {
	return &PipelineError{Stage: stage, Transient: true, Cause: err}
}

// Permanent wraps err as a non-retryable failure of stage.
func Permanent(stage string, err error) error {
	return &PipelineError{Stage: stage, Cause: err}
}

// IsTransient reports whether err is a transient pipeline failure.
func IsTransient(err error) bool {
	var pe *PipelineError
	return errors.As(err, &pe) && pe.Transient
}

// PipelineFunc adapts a function to the Pipeline interface.
type PipelineFunc func(ctx context.Context, job *types.Job, resume *types.Resume, mode types.ContentMode) (*Result, error)

// Enrich calls f.
func (f PipelineFunc) Enrich(ctx context.Context, job *types.Job, resume *types.Resume, mode types.ContentMode) (*Result, error) {
	return f(ctx, job, resume, mode)
}
