package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/jonathan/resume-tailor/internal/schemas"
	"github.com/jonathan/resume-tailor/internal/store"
	"github.com/jonathan/resume-tailor/internal/task"
	"github.com/jonathan/resume-tailor/internal/types"
)

// JobInput names an existing job or describes a new posting.
type JobInput struct {
	ID      string `json:"id,omitempty"`
	Text    string `json:"text,omitempty"`
	Title   string `json:"title,omitempty"`
	Company string `json:"company,omitempty"`
	Link    string `json:"link,omitempty" validate:"omitempty,url"`
}

func (j JobInput) ref() task.JobRef {
	return task.JobRef{ID: j.ID, Text: j.Text, Title: j.Title, Company: j.Company, Link: j.Link}
}

// ResumeInput names an existing résumé or carries a raw document.
type ResumeInput struct {
	ID      string          `json:"id,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
}

func (in *ResumeInput) ref() (task.ResumeRef, error) {
	if in == nil {
		return task.ResumeRef{}, nil
	}
	if len(in.Content) == 0 || string(in.Content) == "null" {
		return task.ResumeRef{ID: in.ID}, nil
	}
	doc, err := parseResume(in.Content)
	if err != nil {
		return task.ResumeRef{}, err
	}
	return task.ResumeRef{ID: in.ID, Content: doc}, nil
}

// parseResume checks a raw document against the résumé schema.
func parseResume(raw json.RawMessage) (types.Document, error) {
	if err := schemas.Validate(schemas.Resume, raw); err != nil {
		return nil, err
	}
	doc, err := types.ParseDocument(raw)
	if err != nil {
		return nil, &ErrValidation{Field: "content", Message: err.Error()}
	}
	return doc, nil
}

// SubmitRequest is the body of POST /v1/tasks.
type SubmitRequest struct {
	Job         JobInput     `json:"job"`
	Resume      *ResumeInput `json:"resume,omitempty"`
	ContentMode string       `json:"content_mode,omitempty" validate:"omitempty,oneof=resume experiences summary"`
}

// BatchRequest is the body of POST /v1/tasks/batch.
type BatchRequest struct {
	Resume      *ResumeInput `json:"resume" validate:"required"`
	Jobs        []JobInput   `json:"jobs" validate:"required,min=1,max=100,dive"`
	ContentMode string       `json:"content_mode,omitempty" validate:"omitempty,oneof=resume experiences summary"`
}

// AttachRequest is the body of POST /v1/tasks/attach.
type AttachRequest struct {
	Resume  *ResumeInput `json:"resume" validate:"required"`
	TaskIDs []string     `json:"task_ids" validate:"required,min=1,max=100,dive,required"`
}

// TaskIDsRequest is the body of POST /v1/tasks/status.
type TaskIDsRequest struct {
	TaskIDs []string `json:"task_ids" validate:"max=500"`
}

// JobIDsRequest is the body of POST /v1/jobs/status.
type JobIDsRequest struct {
	JobIDs []string `json:"job_ids" validate:"max=500"`
}

// UpdateTaskRequest is the body of PATCH /v1/tasks/{id}.
type UpdateTaskRequest struct {
	ContentMode *string `json:"content_mode,omitempty" validate:"omitempty,oneof=resume experiences summary"`
	RawResumeID *string `json:"raw_resume_id,omitempty"`
}

// SubmitResponse is returned by POST /v1/tasks.
type SubmitResponse struct {
	TaskID string `json:"task_id"`
}

// BatchResponse is returned by the batch submission routes.
type BatchResponse struct {
	TaskIDs []string `json:"task_ids"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	resume, err := req.Resume.ref()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	id, err := s.engine.Submit(r.Context(), req.Job.ref(), resume, types.ContentMode(req.ContentMode))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, SubmitResponse{TaskID: id})
}

func (s *Server) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	resume, err := req.Resume.ref()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jobs := make([]task.JobRef, len(req.Jobs))
	for i, j := range req.Jobs {
		jobs[i] = j.ref()
	}

	ids, err := s.engine.SubmitBatch(r.Context(), resume, jobs, types.ContentMode(req.ContentMode))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, BatchResponse{TaskIDs: ids})
}

func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	var req AttachRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	resume, err := req.Resume.ref()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ids, err := s.engine.SubmitTaskBatch(r.Context(), resume, req.TaskIDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, BatchResponse{TaskIDs: ids})
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	var req TaskIDsRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	views, err := s.engine.Status(r.Context(), req.TaskIDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, views)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	var req JobIDsRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	views, err := s.engine.StatusByJob(r.Context(), req.JobIDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, views)
}

// handleListTasks accepts ?status=WAITING,FAILED&limit=50.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	var filter store.TaskFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			st, err := types.ParseTaskStatus(strings.TrimSpace(name))
			if err != nil {
				s.writeError(w, r, &ErrValidation{Field: "status", Message: err.Error()})
				return
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			s.writeError(w, r, &ErrValidation{Field: "limit", Message: "must be a positive integer"})
			return
		}
		filter.Limit = limit
	}

	tasks, err := s.engine.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, tasks)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.engine.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, t)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var req UpdateTaskRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	var u task.FieldUpdate
	if req.ContentMode != nil {
		mode := types.ContentMode(*req.ContentMode)
		u.ContentMode = &mode
	}
	u.RawResumeID = req.RawResumeID

	t, err := s.engine.UpdateTask(r.Context(), r.PathValue("id"), u)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteTask(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.engine.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, t)
}

func (s *Server) handleRetryTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.engine.Retry(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, t)
}
