package task

import "github.com/jonathan/resume-tailor/internal/types"

// allowedTransitions lists every legal status move. Status only increases,
// except that DEFAULT moves to WAITING on resume attach and FAILED moves back
// to WAITING on an explicit retry.
var allowedTransitions = map[types.TaskStatus][]types.TaskStatus{
	types.TaskStatusDefault: {types.TaskStatusWaiting, types.TaskStatusFailed},
	types.TaskStatusWaiting: {types.TaskStatusPending, types.TaskStatusFailed},
	types.TaskStatusPending: {types.TaskStatusDone, types.TaskStatusFailed},
	types.TaskStatusFailed:  {types.TaskStatusWaiting},
}

// CanTransition reports whether a task may move from one status to another.
func CanTransition(from, to types.TaskStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func validateTransition(t *types.Task, to types.TaskStatus, f Fields) error {
	reject := func(reason string) error {
		return &TransitionError{TaskID: t.ID, From: t.Status, To: to, Reason: reason}
	}

	if !to.Valid() {
		return reject("unknown status")
	}
	if !CanTransition(t.Status, to) {
		return reject("")
	}

	switch to {
	case types.TaskStatusDone:
		if f.NewResumeID == "" {
			return reject("new resume id is required")
		}
	case types.TaskStatusFailed:
		if f.Err == nil {
			return reject("error detail is required")
		}
	case types.TaskStatusWaiting:
		if t.RawResumeID == "" && f.RawResumeID == "" {
			return reject("a resume must be attached")
		}
	}
	if to != types.TaskStatusDone && f.NewResumeID != "" {
		return reject("new resume id is only set on completion")
	}
	return nil
}
