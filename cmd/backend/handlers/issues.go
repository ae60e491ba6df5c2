package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/hairizuanbinnoorazman/web-pentest/issuetracker"
	"github.com/hairizuanbinnoorazman/web-pentest/logger"
	"github.com/hairizuanbinnoorazman/web-pentest/testrun"
)

// FindingExporter files a run's findings. *issuetracker.Exporter satisfies it.
type FindingExporter interface {
	Export(ctx context.Context, run *testrun.TestRun) (*issuetracker.ExportResult, error)
}

// IssueHandler exports findings to the configured issue tracker.
type IssueHandler struct {
	runs     RunReader
	exporter FindingExporter
	logger   logger.Logger
}

// NewIssueHandler creates an issue handler. exporter is nil when no tracker
// is configured.
func NewIssueHandler(runs RunReader, exporter FindingExporter, log logger.Logger) *IssueHandler {
	return &IssueHandler{
		runs:     runs,
		exporter: exporter,
		logger:   log,
	}
}

// Export files one issue per finding of a finished run.
func (h *IssueHandler) Export(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		respondError(w, http.StatusNotImplemented, "issue tracker not configured")
		return
	}

	id, ok := parseUUIDOrRespond(w, r, "id", "test")
	if !ok {
		return
	}
	run, err := h.runs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, testrun.ErrTestRunNotFound) {
			respondError(w, http.StatusNotFound, "Test not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get test run")
		return
	}
	if !run.Status.IsFinal() {
		respondError(w, http.StatusConflict, "test has not finished yet")
		return
	}

	result, err := h.exporter.Export(r.Context(), run)
	if err != nil {
		h.logger.Error(r.Context(), "failed to export findings", logger.Fields{
			"error":       err.Error(),
			"test_run_id": id.String(),
		})
		respondError(w, http.StatusBadGateway, "failed to export findings: "+err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, result)
}
