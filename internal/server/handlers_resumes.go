package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/jonathan/resume-tailor/internal/store"
	"github.com/jonathan/resume-tailor/internal/types"
)

// ResumeRequest is the body of POST and PUT /v1/resumes.
type ResumeRequest struct {
	Content json.RawMessage `json:"content" validate:"required"`
}

func (s *Server) handleCreateResume(w http.ResponseWriter, r *http.Request) {
	var req ResumeRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	doc, err := parseResume(req.Content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resume, err := s.store.CreateResume(r.Context(), &types.Resume{Content: doc, IsRaw: true})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, resume)
}

// handleListResumes accepts ?raw=true and ?job_id=.
func (s *Server) handleListResumes(w http.ResponseWriter, r *http.Request) {
	var filter store.ResumeFilter
	if raw := r.URL.Query().Get("raw"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, r, &ErrValidation{Field: "raw", Message: "must be a boolean"})
			return
		}
		filter.RawOnly = v
	}
	filter.JobID = r.URL.Query().Get("job_id")

	resumes, err := s.store.ListResumes(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, resumes)
}

func (s *Server) handleGetResume(w http.ResponseWriter, r *http.Request) {
	resume, err := s.store.GetResume(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, resume)
}

// handleUpdateResume replaces the content of a raw résumé. Derived résumés
// are immutable.
func (s *Server) handleUpdateResume(w http.ResponseWriter, r *http.Request) {
	var req ResumeRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	doc, err := parseResume(req.Content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resume, err := s.store.UpdateRawResume(r.Context(), r.PathValue("id"), doc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, resume)
}

func (s *Server) handleDeleteResume(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteResume(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
