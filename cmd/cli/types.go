package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/web-pentest/testrun"
)

// ErrorResponse matches handlers.ErrorResponse.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse matches handlers.SuccessResponse.
type SuccessResponse struct {
	Message string `json:"message"`
}

// CreateTestRequest matches handlers.CreateTestRunRequest.
type CreateTestRequest struct {
	URL string `json:"url"`
}

// CreateTestResponse matches handlers.CreateTestRunResponse.
type CreateTestResponse struct {
	TestID uuid.UUID      `json:"test_id"`
	Status testrun.Status `json:"status"`
	URL    string         `json:"url"`
}

// TestResponse matches the JSON form of testrun.TestRun.
type TestResponse struct {
	TestID      uuid.UUID         `json:"test_id"`
	URL         string            `json:"url"`
	Status      testrun.Status    `json:"status"`
	Progress    int               `json:"progress_percentage"`
	Phase       string            `json:"current_phase"`
	Events      []testrun.Event   `json:"events"`
	Results     []testrun.Finding `json:"results"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// StreamEvent is one payload of the events stream.
type StreamEvent struct {
	Event     string                 `json:"event"`
	TestID    string                 `json:"test_id,omitempty"`
	Timestamp *time.Time             `json:"timestamp,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Status    testrun.Status         `json:"status,omitempty"`
}
