package handlers

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/touch-guard/internal/detector"
	"github.com/kozaktomas/touch-guard/internal/knn"
)

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// TrainingJob is one background training batch.
type TrainingJob struct {
	events detector.Broadcaster
	cancel context.CancelFunc
	mu     sync.RWMutex

	id          string
	label       knn.Label
	times       int
	status      JobStatus
	progress    int
	added       int
	err         string
	startedAt   time.Time
	completedAt *time.Time
}

// TrainingJobView is the JSON representation of a training job.
type TrainingJobView struct {
	ID          string     `json:"id"`
	Label       string     `json:"label"`
	Times       int        `json:"times"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	Added       int        `json:"added"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// View returns a consistent copy of the job state.
func (j *TrainingJob) View() TrainingJobView {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return TrainingJobView{
		ID:          j.id,
		Label:       string(j.label),
		Times:       j.times,
		Status:      j.status,
		Progress:    j.progress,
		Added:       j.added,
		Error:       j.err,
		StartedAt:   j.startedAt,
		CompletedAt: j.completedAt,
	}
}

// GetStatus returns the current job status (implements SSEJob).
func (j *TrainingJob) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// AddListener subscribes to job events (implements SSEJob).
func (j *TrainingJob) AddListener() chan detector.Event {
	return j.events.Subscribe()
}

// RemoveListener unsubscribes from job events (implements SSEJob).
func (j *TrainingJob) RemoveListener(ch chan detector.Event) {
	j.events.Unsubscribe(ch)
}

// Cancel stops the batch. Examples accepted so far are kept.
func (j *TrainingJob) Cancel() {
	if j.cancel != nil {
		j.cancel()
	}
}

func (j *TrainingJob) setRunning(cancel context.CancelFunc) {
	j.mu.Lock()
	j.cancel = cancel
	j.status = JobStatusRunning
	j.mu.Unlock()
	j.events.Publish(detector.Event{Type: detector.EventStarted, Data: j.View()})
}

func (j *TrainingJob) setProgress(p detector.Progress) {
	j.mu.Lock()
	j.progress = p.Percent
	j.added = p.Done
	j.mu.Unlock()
	j.events.Publish(detector.Event{Type: detector.EventProgress, Data: p})
}

func (j *TrainingJob) finish(res detector.TrainingResult, err error) {
	now := time.Now()
	eventType := detector.EventCompleted

	j.mu.Lock()
	j.added = res.Added
	j.completedAt = &now
	switch {
	case err == nil:
		j.status = JobStatusCompleted
	case detector.IsCancellation(err):
		j.status = JobStatusCancelled
		eventType = detector.EventCancelled
	default:
		j.status = JobStatusFailed
		j.err = err.Error()
		eventType = detector.EventFailed
	}
	j.mu.Unlock()

	j.events.Publish(detector.Event{Type: eventType, Message: j.err, Data: j.View()})
}

// SSEJob is the interface required by streamSSEEvents to stream job events via SSE.
type SSEJob interface {
	AddListener() chan detector.Event
	RemoveListener(ch chan detector.Event)
	GetStatus() JobStatus
}

// JobManager manages training jobs.
type JobManager struct {
	jobs      map[string]*TrainingJob
	retention time.Duration
	mu        sync.RWMutex
}

// NewJobManager creates a job manager that forgets finished jobs after retention.
func NewJobManager(retention time.Duration) *JobManager {
	return &JobManager{
		jobs:      make(map[string]*TrainingJob),
		retention: retention,
	}
}

// CreateJob registers a pending training job.
func (m *JobManager) CreateJob(id string, label knn.Label, times int) *TrainingJob {
	job := &TrainingJob{
		id:        id,
		label:     label,
		times:     times,
		status:    JobStatusPending,
		startedAt: time.Now(),
	}

	m.mu.Lock()
	m.prune(time.Now())
	m.jobs[id] = job
	m.mu.Unlock()

	return job
}

// prune drops finished jobs older than the retention. Callers hold m.mu.
func (m *JobManager) prune(now time.Time) {
	if m.retention <= 0 {
		return
	}
	for id, job := range m.jobs {
		v := job.View()
		if v.CompletedAt != nil && now.Sub(*v.CompletedAt) > m.retention {
			delete(m.jobs, id)
		}
	}
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *TrainingJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// DeleteJob removes a job.
func (m *JobManager) DeleteJob(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
}

// ListJobs returns all jobs, oldest first.
func (m *JobManager) ListJobs() []TrainingJobView {
	m.mu.RLock()
	defer m.mu.RUnlock()
	views := make([]TrainingJobView, 0, len(m.jobs))
	for _, job := range m.jobs {
		views = append(views, job.View())
	}
	slices.SortFunc(views, func(a, b TrainingJobView) int {
		return a.StartedAt.Compare(b.StartedAt)
	})
	return views
}
