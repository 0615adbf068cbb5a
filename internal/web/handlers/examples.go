package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/touch-guard/internal/detector"
	"github.com/kozaktomas/touch-guard/internal/knn"
)

// ExamplesHandler inspects and clears the training examples
type ExamplesHandler struct {
	session *detector.Session
}

// NewExamplesHandler creates a new examples handler
func NewExamplesHandler(session *detector.Session) *ExamplesHandler {
	return &ExamplesHandler{session: session}
}

// ExamplesResponse lists example counts per label
type ExamplesResponse struct {
	Total  int            `json:"total"`
	Dim    int            `json:"dim"`
	Labels []string       `json:"labels"`
	Counts map[string]int `json:"counts"`
}

// List returns the per-label example counts
func (h *ExamplesHandler) List(w http.ResponseWriter, r *http.Request) {
	status := h.session.Status()
	total := 0
	for _, n := range status.Counts {
		total += n
	}
	respondJSON(w, http.StatusOK, ExamplesResponse{
		Total:  total,
		Dim:    status.Dim,
		Labels: status.Labels,
		Counts: status.Counts,
	})
}

// Reset removes every example
func (h *ExamplesHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.session.ResetExamples(r.Context()); err != nil {
		respondSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearLabel removes the examples of one label
func (h *ExamplesHandler) ClearLabel(w http.ResponseWriter, r *http.Request) {
	label := knn.Label(chi.URLParam(r, "label"))
	removed, err := h.session.ClearLabel(r.Context(), label)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	if removed == 0 {
		respondError(w, http.StatusNotFound, "label not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"label": string(label), "removed": removed})
}
