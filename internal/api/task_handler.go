package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/trajectorie/inference-queue/internal/api/shared"
	"github.com/trajectorie/inference-queue/internal/inference"
	"github.com/trajectorie/inference-queue/internal/queue"
)

// QueueService is the slice of the queue engine the handlers need.
type QueueService interface {
	Submit(req inference.Request, opts ...queue.SubmitOption) (uuid.UUID, error)
	Cancel(id uuid.UUID) bool
	Stats() queue.Stats
	EstimateWait(p queue.Priority) (time.Duration, error)
	Snapshot(id uuid.UUID) (queue.TaskInfo, error)
	Subscribe(id uuid.UUID) (<-chan queue.Update, error)
}

// SubmitTaskRequest represents the request body for submitting a task
type SubmitTaskRequest struct {
	Operation      string `json:"operation"            validate:"required,oneof=transcription text_analysis translation"`
	Input          string `json:"input"                validate:"required,min=1"`
	TargetLanguage string `json:"target_language"      validate:"omitempty,min=2"`
	Priority       string `json:"priority"             validate:"omitempty,oneof=urgent high normal low"`
	MaxAttempts    int    `json:"max_attempts"         validate:"omitempty,gt=0,lte=10"`
}

// TaskResponse represents the response data for a task
type TaskResponse struct {
	ID          string    `json:"id"`
	Operation   string    `json:"operation"`
	Priority    string    `json:"priority"`
	Status      string    `json:"status"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	Result      string    `json:"result,omitempty"`
	Error       string    `json:"error,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// UpdateResponse is the per-transition payload streamed to observers
type UpdateResponse struct {
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	Result      string `json:"result,omitempty"`
	Error       string `json:"error,omitempty"`
}

// StatsResponse represents aggregate queue counts for dashboards
type StatsResponse struct {
	QueueSize         int            `json:"queue_size"`
	Processing        int            `json:"processing"`
	Completed         int            `json:"completed"`
	PriorityBreakdown map[string]int `json:"priority_breakdown"`
}

// EstimateResponse represents a wait-time estimate
type EstimateResponse struct {
	Priority            string  `json:"priority"`
	EstimatedWaitSecond float64 `json:"estimated_wait_seconds"`
}

// TaskHandler handles task-related HTTP requests
type TaskHandler struct {
	queue  QueueService
	logger *slog.Logger
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(queueSvc QueueService, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		queue:  queueSvc,
		logger: logger.With("component", "task_handler"),
	}
}

// SubmitTask handles POST /api/tasks requests
func (h *TaskHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	opts := []queue.SubmitOption{}
	if req.Priority != "" {
		priority, err := queue.ParsePriority(req.Priority)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Unknown priority")
			return
		}
		opts = append(opts, queue.WithPriority(priority))
	}
	if req.MaxAttempts > 0 {
		opts = append(opts, queue.WithMaxAttempts(req.MaxAttempts))
	}

	id, err := h.queue.Submit(inference.Request{
		Operation:      inference.Operation(req.Operation),
		Input:          req.Input,
		TargetLanguage: req.TargetLanguage,
	}, opts...)
	if err != nil {
		if errors.Is(err, queue.ErrEngineStopped) {
			shared.RespondWithError(w, r, http.StatusServiceUnavailable, "Queue is shutting down")
			return
		}
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task payload")
		return
	}

	info, err := h.queue.Snapshot(id)
	if err != nil {
		h.logger.Error("failed to read back submitted task", "error", err, "task_id", id)
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to submit task")
		return
	}

	// 202 since processing happens asynchronously
	shared.RespondWithJSON(w, r, http.StatusAccepted, taskToResponse(info))
}

// GetTask handles GET /api/tasks/{id} requests
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	info, err := h.queue.Snapshot(id)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(info))
}

// StreamTaskEvents handles GET /api/tasks/{id}/events requests, delivering
// one server-sent event per status transition until the task reaches a
// terminal state or the client disconnects.
func (h *TaskHandler) StreamTaskEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	updates, err := h.queue.Subscribe(id)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case u, open := <-updates:
			if !open {
				return
			}
			payload, err := json.Marshal(updateToResponse(u))
			if err != nil {
				h.logger.Error("failed to marshal task update", "error", err, "task_id", id)
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// CancelTask handles DELETE /api/tasks/{id} requests
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	if !h.queue.Cancel(id) {
		// processing, terminal, or unknown: nothing to cancel
		shared.RespondWithError(w, r, http.StatusConflict, "Task cannot be cancelled")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, map[string]bool{"cancelled": true})
}

// GetStats handles GET /api/queue/stats requests
func (h *TaskHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := h.queue.Stats()

	breakdown := make(map[string]int, len(stats.PriorityBreakdown))
	for p, n := range stats.PriorityBreakdown {
		breakdown[string(p)] = n
	}

	shared.RespondWithJSON(w, r, http.StatusOK, StatsResponse{
		QueueSize:         stats.QueueSize,
		Processing:        stats.Processing,
		Completed:         stats.Completed,
		PriorityBreakdown: breakdown,
	})
}

// GetEstimate handles GET /api/queue/estimate?priority=... requests
func (h *TaskHandler) GetEstimate(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("priority")
	if raw == "" {
		raw = string(queue.PriorityNormal)
	}

	priority, err := queue.ParsePriority(raw)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Unknown priority")
		return
	}

	estimate, err := h.queue.EstimateWait(priority)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusServiceUnavailable, "Estimate unavailable")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, EstimateResponse{
		Priority:            string(priority),
		EstimatedWaitSecond: estimate.Seconds(),
	})
}

// taskID extracts and parses the task id path parameter, writing a 400
// response when it is malformed.
func (h *TaskHandler) taskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return uuid.Nil, false
	}
	return id, true
}

// taskToResponse converts a queue.TaskInfo to a TaskResponse
func taskToResponse(info queue.TaskInfo) TaskResponse {
	resp := TaskResponse{
		ID:          info.ID.String(),
		Operation:   string(info.Operation),
		Priority:    string(info.Priority),
		Status:      string(info.Status),
		Attempts:    info.Attempts,
		MaxAttempts: info.MaxAttempts,
		SubmittedAt: info.SubmittedAt,
	}
	if info.Result != nil {
		resp.Result = info.Result.Text
	}
	if info.Err != nil {
		resp.Error = info.Err.Error()
	}
	return resp
}

// updateToResponse converts a queue.Update to an UpdateResponse
func updateToResponse(u queue.Update) UpdateResponse {
	resp := UpdateResponse{
		Status:      string(u.Status),
		Attempts:    u.Attempts,
		MaxAttempts: u.MaxAttempts,
	}
	if u.Result != nil {
		resp.Result = u.Result.Text
	}
	if u.Err != nil {
		resp.Error = u.Err.Error()
	}
	return resp
}
