package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kozaktomas/touch-guard/internal/detector"
	"github.com/kozaktomas/touch-guard/internal/knn"
)

// TrainingHandler handles training batch endpoints
type TrainingHandler struct {
	session    *detector.Session
	jobManager *JobManager
	logger     *zap.Logger
}

// NewTrainingHandler creates a new training handler
func NewTrainingHandler(session *detector.Session, jm *JobManager, logger *zap.Logger) *TrainingHandler {
	return &TrainingHandler{session: session, jobManager: jm, logger: logger}
}

// TrainingRequest represents a training start request
type TrainingRequest struct {
	Label string `json:"label"`
	Times int    `json:"times"`
}

// Start begins a training batch in the background
func (h *TrainingHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req TrainingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Label == "" {
		respondError(w, http.StatusBadRequest, "label is required")
		return
	}
	if req.Times < 0 {
		respondError(w, http.StatusBadRequest, "times must not be negative")
		return
	}
	if req.Times == 0 {
		req.Times = h.session.TrainingTimes()
	}

	jobID := uuid.New().String()
	label := knn.Label(req.Label)
	job := h.jobManager.CreateJob(jobID, label, req.Times)

	// The batch outlives the request, so it gets its own context.
	ctx, cancel := context.WithCancel(context.Background())
	job.setRunning(cancel)

	err := h.session.StartTraining(ctx, label, req.Times, job.setProgress, func(res detector.TrainingResult, err error) {
		defer cancel()
		job.finish(res, err)
		if err != nil && !detector.IsCancellation(err) {
			h.logger.Warn("training job failed", zap.String("job_id", jobID), zap.Error(err))
		}
	})
	if err != nil {
		cancel()
		h.jobManager.DeleteJob(jobID)
		respondSessionError(w, err)
		return
	}

	h.logger.Info("training job started",
		zap.String("job_id", jobID),
		zap.String("label", sanitizeForLog(req.Label)),
		zap.Int("times", req.Times),
	)
	respondJSON(w, http.StatusAccepted, map[string]any{
		"job_id": jobID,
		"label":  req.Label,
		"times":  req.Times,
		"status": string(JobStatusRunning),
	})
}

// List returns all known training jobs
func (h *TrainingHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.jobManager.ListJobs())
}

// Status returns the status of a training job
func (h *TrainingHandler) Status(w http.ResponseWriter, r *http.Request) {
	job := h.jobManager.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, job.View())
}

// Events streams job events via SSE
func (h *TrainingHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r,
		func(id string) SSEJob {
			job := h.jobManager.GetJob(id)
			if job == nil {
				return nil
			}
			return job
		},
		func(job SSEJob) any {
			return job.(*TrainingJob).View()
		},
	)
}

// Cancel stops a running training job
func (h *TrainingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job := h.jobManager.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	if isJobTerminal(job.GetStatus()) {
		respondError(w, http.StatusConflict, "job already finished")
		return
	}
	job.Cancel()
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}
