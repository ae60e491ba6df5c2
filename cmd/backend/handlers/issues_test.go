package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/hairizuanbinnoorazman/web-pentest/issuetracker"
	"github.com/hairizuanbinnoorazman/web-pentest/logger"
	"github.com/hairizuanbinnoorazman/web-pentest/testrun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExporter struct {
	err      error
	exported []uuid.UUID
}

func (f *fakeExporter) Export(ctx context.Context, run *testrun.TestRun) (*issuetracker.ExportResult, error) {
	f.exported = append(f.exported, run.ID)
	if f.err != nil {
		return nil, f.err
	}
	res := &issuetracker.ExportResult{}
	for i, finding := range run.Findings {
		res.Issues = append(res.Issues, &issuetracker.Issue{
			ExternalID: fmt.Sprintf("acme/webapp#%d", i+1),
			Title:      "[" + string(finding.Severity) + "] " + finding.Title,
			Provider:   issuetracker.ProviderGitHub,
		})
	}
	return res, nil
}

func TestIssueHandler_Export(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		exporter   *fakeExporter
		target     string
		wantStatus int
		wantIssues int
	}{
		{name: "exports finished run", exporter: &fakeExporter{}, target: "done", wantStatus: http.StatusCreated, wantIssues: 1},
		{name: "tracker failure", exporter: &fakeExporter{err: errors.New("github: 401")}, target: "done", wantStatus: http.StatusBadGateway},
		{name: "unfinished run", exporter: &fakeExporter{}, target: "running", wantStatus: http.StatusConflict},
		{name: "unknown run", exporter: &fakeExporter{}, target: "unknown", wantStatus: http.StatusNotFound},
		{name: "no tracker", exporter: nil, target: "done", wantStatus: http.StatusNotImplemented},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newHandlerFixture(t)
			runs := map[string]uuid.UUID{
				"done":    f.addRun(t, "http://done.local", time.Now(), completed(t)).ID,
				"running": f.addRun(t, "http://running.local", time.Now(), started(t)).ID,
				"unknown": uuid.New(),
			}

			var exporter FindingExporter
			if tt.exporter != nil {
				exporter = tt.exporter
			}
			h := NewIssueHandler(f.registry, exporter, logger.NewTestLogger())
			router := mux.NewRouter()
			router.HandleFunc("/api/v1/tests/{id}/issues", h.Export).Methods("POST")

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/tests/"+runs[tt.target].String()+"/issues", nil))
			require.Equal(t, tt.wantStatus, w.Code)

			if tt.wantStatus != http.StatusCreated {
				return
			}
			var res issuetracker.ExportResult
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
			assert.Len(t, res.Issues, tt.wantIssues)
			assert.Equal(t, "[HIGH] SQL Injection Authentication Bypass", res.Issues[0].Title)
			assert.Equal(t, []uuid.UUID{runs["done"]}, tt.exporter.exported)
		})
	}
}
