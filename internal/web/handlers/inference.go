package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/touch-guard/internal/constants"
	"github.com/kozaktomas/touch-guard/internal/detector"
)

// InferenceHandler starts and stops the detection loop
type InferenceHandler struct {
	session   *detector.Session
	logger    *zap.Logger
	heartbeat time.Duration
}

// NewInferenceHandler creates a new inference handler
func NewInferenceHandler(session *detector.Session, logger *zap.Logger) *InferenceHandler {
	return &InferenceHandler{session: session, logger: logger, heartbeat: constants.SSEHeartbeatInterval}
}

// Start runs the inference loop in the background
func (h *InferenceHandler) Start(w http.ResponseWriter, r *http.Request) {
	if h.session.Classifier().Store().Len() == 0 {
		h.logger.Warn("inference started without examples")
	}
	if err := h.session.StartInference(r.Context()); err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, h.session.Status())
}

// Stop cancels the inference loop and waits for it to exit
func (h *InferenceHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.session.StopInference(); err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.session.Status())
}

// Events streams touch state changes and per-frame results via SSE
func (h *InferenceHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamBroadcast(w, r, h.session.Events(), h.session.Status(), h.heartbeat)
}
