package types

import (
	"fmt"
	"time"
)

// TaskStatus is the lifecycle state of a tailoring task.
type TaskStatus int

// Task statuses. The numeric values are part of the API.
const (
	TaskStatusDefault TaskStatus = -1 // job known, no resume attached yet
	TaskStatusWaiting TaskStatus = 0  // fully specified, queued
	TaskStatusPending TaskStatus = 1  // executing
	TaskStatusDone    TaskStatus = 2  // new resume produced
	TaskStatusFailed  TaskStatus = 3  // terminal failure, see Task.Error
)

var taskStatusNames = map[TaskStatus]string{
	TaskStatusDefault: "DEFAULT",
	TaskStatusWaiting: "WAITING",
	TaskStatusPending: "PENDING",
	TaskStatusDone:    "DONE",
	TaskStatusFailed:  "FAILED",
}

// Valid reports whether s is one of the defined statuses.
func (s TaskStatus) Valid() bool {
	_, ok := taskStatusNames[s]
	return ok
}

func (s TaskStatus) String() string {
	if name, ok := taskStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("TaskStatus(%d)", int(s))
}

// IsTerminal reports whether no executor transition leaves s.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusDone || s == TaskStatusFailed
}

// ParseTaskStatus accepts either the symbolic name or the numeric value.
func ParseTaskStatus(v string) (TaskStatus, error) {
	for status, name := range taskStatusNames {
		if name == v || fmt.Sprint(int(status)) == v {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown task status %q", v)
}

// ContentMode selects which résumé sections a task rewrites.
type ContentMode string

const (
	// ModeResume rewrites every tailorable section.
	ModeResume ContentMode = "resume"
	// ModeExperiences rewrites only the work section.
	ModeExperiences ContentMode = "experiences"
	// ModeSummary rewrites only the summary.
	ModeSummary ContentMode = "summary"
)

// Valid reports whether m is a known content mode.
func (m ContentMode) Valid() bool {
	switch m {
	case ModeResume, ModeExperiences, ModeSummary:
		return true
	}
	return false
}

// ErrorKind classifies why a task failed.
type ErrorKind string

// Failure kinds recorded on FAILED tasks.
const (
	ErrorKindPipelineTransient ErrorKind = "pipeline_transient"
	ErrorKindPipelinePermanent ErrorKind = "pipeline_permanent"
	ErrorKindStore             ErrorKind = "store"
	ErrorKindCancelled         ErrorKind = "cancelled"
	ErrorKindStuck             ErrorKind = "stuck"
)

// Task is one unit of asynchronous tailoring work for a job.
type Task struct {
	ID          string      `json:"id"`
	JobID       string      `json:"job_id"`
	RawResumeID string      `json:"raw_resume_id,omitempty"`
	NewResumeID string      `json:"new_resume_id,omitempty"`
	Status      TaskStatus  `json:"status"`
	ContentMode ContentMode `json:"content_mode"`
	// TimeUsed is the wall-clock execution time in seconds.
	TimeUsed   float64    `json:"time_used,omitempty"`
	Error      string     `json:"error,omitempty"`
	ErrorKind  ErrorKind  `json:"error_kind,omitempty"`
	Attempts   int        `json:"attempts"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
