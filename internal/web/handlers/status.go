package handlers

import (
	"net/http"

	"github.com/kozaktomas/touch-guard/internal/detector"
)

// StatusHandler reports the session state
type StatusHandler struct {
	session *detector.Session
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(session *detector.Session) *StatusHandler {
	return &StatusHandler{session: session}
}

// StatusResponse is the session status plus the error that ended the last loop
type StatusResponse struct {
	detector.Status
	LastError string `json:"last_error,omitempty"`
}

// Get returns the current session status
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Status: h.session.Status()}
	if err := h.session.LastRunError(); err != nil {
		resp.LastError = err.Error()
	}
	respondJSON(w, http.StatusOK, resp)
}
