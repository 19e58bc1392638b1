package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/orrery-dev/orrery/pkg/astro"
	"github.com/orrery-dev/orrery/pkg/subjects"
)

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	filter := subjects.Filter{
		City:   r.URL.Query().Get("city"),
		Tag:    r.URL.Query().Get("tag"),
		Search: r.URL.Query().Get("search"),
	}

	list, err := s.store.List(r.Context(), filter)
	if err != nil {
		s.fail(w, Internal(err))
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	subject, err := s.store.Get(r.Context(), id)
	if errors.Is(err, ErrSubjectNotFound) {
		s.fail(w, NotFound("Subject not found"))
		return
	}
	if err != nil {
		s.fail(w, Internal(err))
		return
	}
	writeJSON(w, http.StatusOK, subject)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if !s.allowWrite() {
		s.fail(w, TooManyRequests())
		return
	}

	var payload subjects.CreatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.fail(w, BadRequestf("Invalid request body"))
		return
	}
	if strings.TrimSpace(payload.Name) == "" {
		s.fail(w, BadRequestf("Name is required"))
		return
	}
	if payload.BornAt.IsZero() {
		s.fail(w, BadRequestf("Birth date and time are required"))
		return
	}

	created, err := s.store.Create(r.Context(), payload)
	if err != nil {
		s.fail(w, Internal(err))
		return
	}

	s.hub.Broadcast(subjects.Event{Type: "created", ID: created.ID})
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if !s.allowWrite() {
		s.fail(w, TooManyRequests())
		return
	}

	id := chi.URLParam(r, "id")
	var patch subjects.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.fail(w, BadRequestf("Invalid request body"))
		return
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		s.fail(w, BadRequestf("Name cannot be empty"))
		return
	}

	updated, err := s.store.Update(r.Context(), id, patch)
	if errors.Is(err, ErrSubjectNotFound) {
		s.fail(w, NotFound("Subject not found"))
		return
	}
	if err != nil {
		s.fail(w, Internal(err))
		return
	}

	s.hub.Broadcast(subjects.Event{Type: "updated", ID: updated.ID})
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !s.allowWrite() {
		s.fail(w, TooManyRequests())
		return
	}

	id := chi.URLParam(r, "id")
	err := s.store.Delete(r.Context(), id)
	if errors.Is(err, ErrSubjectNotFound) {
		s.fail(w, NotFound("Subject not found"))
		return
	}
	if err != nil {
		s.fail(w, Internal(err))
		return
	}

	s.hub.Broadcast(subjects.Event{Type: "deleted", ID: id})
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// exportDocument is the stored chart export shape.
type exportDocument struct {
	Subject    subjects.Subject `json:"subject"`
	Chart      astro.Chart      `json:"chart"`
	ExportedAt time.Time        `json:"exportedAt"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.astro == nil || s.exports == nil {
		s.fail(w, Unavailable("Chart export is not configured"))
		return
	}

	id := chi.URLParam(r, "id")
	subject, err := s.store.Get(r.Context(), id)
	if errors.Is(err, ErrSubjectNotFound) {
		s.fail(w, NotFound("Subject not found"))
		return
	}
	if err != nil {
		s.fail(w, Internal(err))
		return
	}

	chart, err := s.astro.NatalChart(r.Context(), astro.ChartRequest{
		Datetime:  subject.BornAt,
		Latitude:  subject.Latitude,
		Longitude: subject.Longitude,
	})
	if err != nil {
		s.fail(w, Internal(err))
		return
	}

	doc := exportDocument{Subject: subject, Chart: chart, ExportedAt: time.Now().UTC()}
	encoded, err := json.Marshal(doc)
	if err != nil {
		s.fail(w, Internal(err))
		return
	}

	key := fmt.Sprintf("%s/%d.json", subject.ID, doc.ExportedAt.UnixMilli())
	if err := s.exports.Put(r.Context(), key, "application/json", encoded); err != nil {
		s.fail(w, Internal(err))
		return
	}
	url, err := s.exports.URL(r.Context(), key)
	if err != nil {
		s.fail(w, Internal(err))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"key": key, "url": url})
}

// fail logs server-side detail and sends the client-safe envelope.
func (s *Server) fail(w http.ResponseWriter, httpErr *HTTPError) {
	if httpErr.Status >= 500 {
		s.logger.Error("request failed", "code", httpErr.Code, "error", httpErr.Err)
	}
	writeError(w, httpErr)
}
