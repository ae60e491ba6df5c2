package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/web-pentest/agent"
	"github.com/hairizuanbinnoorazman/web-pentest/logger"
	"github.com/hairizuanbinnoorazman/web-pentest/storage"
	"github.com/hairizuanbinnoorazman/web-pentest/testrun"
)

// DefaultPollInterval is how often the event stream checks for new events.
const DefaultPollInterval = time.Second

// Runner starts and cancels test runs. *agent.Orchestrator satisfies it.
type Runner interface {
	Submit(ctx context.Context, targetURL string) (*testrun.TestRun, error)
	Cancel(ctx context.Context, id uuid.UUID) error
}

// RunReader reads run snapshots. *testrun.Registry satisfies it.
type RunReader interface {
	Get(ctx context.Context, id uuid.UUID) (*testrun.TestRun, error)
	List(ctx context.Context, status testrun.Status) ([]*testrun.TestRun, error)
	EventsSince(ctx context.Context, id uuid.UUID, from int) ([]testrun.Event, testrun.Status, error)
}

// TestRunHandler handles the pentest run API.
type TestRunHandler struct {
	runner       Runner
	runs         RunReader
	storage      storage.BlobStorage
	logger       logger.Logger
	pollInterval time.Duration
}

// NewTestRunHandler creates a new test run handler. blobStorage may be nil.
func NewTestRunHandler(runner Runner, runs RunReader, blobStorage storage.BlobStorage, log logger.Logger) *TestRunHandler {
	return &TestRunHandler{
		runner:       runner,
		runs:         runs,
		storage:      blobStorage,
		logger:       log,
		pollInterval: DefaultPollInterval,
	}
}

// SetPollInterval changes the event stream polling interval.
func (h *TestRunHandler) SetPollInterval(d time.Duration) {
	if d > 0 {
		h.pollInterval = d
	}
}

// CreateTestRunRequest represents a test run creation request.
type CreateTestRunRequest struct {
	URL string `json:"url"`
}

// CreateTestRunResponse is returned once the run is queued.
type CreateTestRunResponse struct {
	TestID uuid.UUID      `json:"test_id"`
	Status testrun.Status `json:"status"`
	URL    string         `json:"url"`
}

// Create handles starting a new pentest.
func (h *TestRunHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTestRunRequest
	if err := parseJSON(r, &req, h.logger); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	run, err := h.runner.Submit(r.Context(), req.URL)
	if err != nil {
		switch {
		case errors.Is(err, testrun.ErrInvalidTargetURL):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, agent.ErrQueueFull):
			respondError(w, http.StatusServiceUnavailable, err.Error())
		default:
			h.logger.Error(r.Context(), "failed to start test run", logger.Fields{
				"error": err.Error(),
				"url":   req.URL,
			})
			respondError(w, http.StatusInternalServerError, "failed to start test run")
		}
		return
	}

	respondJSON(w, http.StatusOK, CreateTestRunResponse{
		TestID: run.ID,
		Status: run.Status,
		URL:    run.TargetURL,
	})
}

// List handles listing runs, newest first, with an optional status filter.
func (h *TestRunHandler) List(w http.ResponseWriter, r *http.Request) {
	status := testrun.Status(r.URL.Query().Get("status"))
	if status != "" && !status.IsValid() {
		respondError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	runs, err := h.runs.List(r.Context(), status)
	if err != nil {
		h.logger.Error(r.Context(), "failed to list test runs", logger.Fields{
			"error": err.Error(),
		})
		respondError(w, http.StatusInternalServerError, "failed to list test runs")
		return
	}

	respondJSON(w, http.StatusOK, runs)
}

// GetByID handles reading one run's status, events and findings.
func (h *TestRunHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// Cancel handles cancelling a pending or running test.
func (h *TestRunHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDOrRespond(w, r, "id", "test")
	if !ok {
		return
	}

	if err := h.runner.Cancel(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, testrun.ErrTestRunNotFound):
			respondError(w, http.StatusNotFound, "Test not found")
		case errors.Is(err, testrun.ErrTestRunFinal):
			respondError(w, http.StatusBadRequest, "Cannot cancel completed test")
		default:
			h.logger.Error(r.Context(), "failed to cancel test run", logger.Fields{
				"error":       err.Error(),
				"test_run_id": id.String(),
			})
			respondError(w, http.StatusInternalServerError, "failed to cancel test run")
		}
		return
	}

	respondSuccess(w, fmt.Sprintf("Test %s cancelled successfully", id))
}

// streamEvent is one server-sent event payload.
type streamEvent struct {
	Event     string         `json:"event"`
	TestID    string         `json:"test_id,omitempty"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
	Message   string         `json:"message,omitempty"`
	Details   testrun.Detail `json:"details,omitempty"`
	Status    testrun.Status `json:"status,omitempty"`
}

// Events streams a run's events as server-sent events. The stream opens with
// a connected event, replays events from the ?from= index, polls for new ones
// and ends with test_completed once the run is final.
func (h *TestRunHandler) Events(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDOrRespond(w, r, "id", "test")
	if !ok {
		return
	}
	from := 0
	if raw := r.URL.Query().Get("from"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "from must be a non-negative integer")
			return
		}
		from = n
	}

	ctx := r.Context()
	if _, err := h.runs.Get(ctx, id); err != nil {
		h.respondLookupError(w, r, id, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(ev streamEvent) bool {
		data, err := json.Marshal(ev)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send(streamEvent{Event: "connected", TestID: id.String()}) {
		return
	}

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	next := from
	for {
		events, status, err := h.runs.EventsSince(ctx, id, next)
		if err != nil {
			send(streamEvent{Event: "error", Message: "Test not found"})
			return
		}

		for _, e := range events {
			ts := e.Timestamp
			if !send(streamEvent{
				Event:     string(e.Kind),
				Timestamp: &ts,
				Message:   e.Message,
				Details:   e.Detail,
			}) {
				return
			}
		}
		next += len(events)

		if status.IsFinal() {
			send(streamEvent{Event: "test_completed", Status: status})
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Report handles downloading the final report of a finished run. The archived
// report is served when blob storage has one; otherwise it is built from the
// run's current state.
func (h *TestRunHandler) Report(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if !run.Status.IsFinal() {
		respondError(w, http.StatusConflict, "test has not finished yet")
		return
	}

	if h.storage != nil {
		data, err := storage.ReadAll(r.Context(), h.storage, agent.ReportPath(run.ID))
		switch {
		case err == nil:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write(data)
			return
		case !errors.Is(err, storage.ErrFileNotFound):
			h.logger.Warn(r.Context(), "failed to read archived report", logger.Fields{
				"error":       err.Error(),
				"test_run_id": run.ID.String(),
			})
		}
	}

	respondJSON(w, http.StatusOK, agent.BuildReport(run, ""))
}

func (h *TestRunHandler) lookup(w http.ResponseWriter, r *http.Request) (*testrun.TestRun, bool) {
	id, ok := parseUUIDOrRespond(w, r, "id", "test")
	if !ok {
		return nil, false
	}
	run, err := h.runs.Get(r.Context(), id)
	if err != nil {
		h.respondLookupError(w, r, id, err)
		return nil, false
	}
	return run, true
}

func (h *TestRunHandler) respondLookupError(w http.ResponseWriter, r *http.Request, id uuid.UUID, err error) {
	if errors.Is(err, testrun.ErrTestRunNotFound) {
		respondError(w, http.StatusNotFound, "Test not found")
		return
	}
	h.logger.Error(r.Context(), "failed to get test run", logger.Fields{
		"error":       err.Error(),
		"test_run_id": id.String(),
	})
	respondError(w, http.StatusInternalServerError, "failed to get test run")
}
