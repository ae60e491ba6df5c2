package testrun

import (
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrTestRunNotFound is returned when a test run is not found.
	ErrTestRunNotFound = errors.New("test run not found")

	// ErrInvalidTargetURL is returned when the target is not an absolute http(s) URL.
	ErrInvalidTargetURL = errors.New("target url must be an absolute http or https URL")

	// ErrInvalidStatus is returned when status is invalid.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrTestRunAlreadyStarted is returned when trying to start a run that has left pending.
	ErrTestRunAlreadyStarted = errors.New("test run already started")

	// ErrTestRunNotRunning is returned when trying to complete a run that's not running.
	ErrTestRunNotRunning = errors.New("test run is not running")

	// ErrTestRunFinal is returned when a completed or failed run is asked to change.
	ErrTestRunFinal = errors.New("test run already finished")

	// ErrDuplicateTestRun is returned when a run id is registered twice.
	ErrDuplicateTestRun = errors.New("test run already registered")
)

// Status represents the status of a test run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// IsFinal checks if the status is a final status (can't be changed).
func (s Status) IsFinal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Phase names reported in current_phase.
const (
	PhaseInitializing     = "Initializing"
	PhaseReconnaissance   = "Reconnaissance"
	PhaseWebAppTesting    = "Web Application Testing"
	PhaseReportGeneration = "Report Generation"
	PhaseCompleted        = "Completed"
	PhaseCancelled        = "Cancelled"
	PhaseFailed           = "Failed"
)

// TestRun is one vulnerability assessment against one target URL.
//
// The owning orchestrator goroutine is the only writer; HTTP readers use
// Snapshot and EventsSince. All field access after registration goes through
// the methods below.
type TestRun struct {
	ID          uuid.UUID   `json:"test_id" gorm:"type:char(36);primaryKey"`
	TargetURL   string      `json:"url" gorm:"type:varchar(2048);not null"`
	Status      Status      `json:"status" gorm:"type:varchar(20);not null;default:'pending';index:idx_status"`
	Progress    int         `json:"progress_percentage" gorm:"not null;default:0"`
	Phase       string      `json:"current_phase" gorm:"type:varchar(64);not null"`
	Events      EventLog    `json:"events" gorm:"type:json"`
	Findings    FindingList `json:"results" gorm:"type:json"`
	Error       string      `json:"error,omitempty" gorm:"type:text"`
	CreatedAt   time.Time   `json:"created_at" gorm:"index:idx_created_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at"`

	mu sync.RWMutex
}

// New creates a pending run for targetURL.
func New(targetURL string) (*TestRun, error) {
	if err := validateTargetURL(targetURL); err != nil {
		return nil, err
	}
	return &TestRun{
		ID:        uuid.New(),
		TargetURL: targetURL,
		Status:    StatusPending,
		Phase:     PhaseInitializing,
		Events:    EventLog{},
		Findings:  FindingList{},
		CreatedAt: time.Now(),
	}, nil
}

func validateTargetURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidTargetURL
	}
	return nil
}

// BeforeCreate hook to generate UUID before creating a new test run
func (tr *TestRun) BeforeCreate(tx *gorm.DB) error {
	if tr.ID == uuid.Nil {
		tr.ID = uuid.New()
	}
	return nil
}

// Validate checks if the test run has valid required fields.
func (tr *TestRun) Validate() error {
	if err := validateTargetURL(tr.TargetURL); err != nil {
		return err
	}
	if !tr.Status.IsValid() {
		return ErrInvalidStatus
	}
	return nil
}

// CurrentStatus returns the status under the read lock.
func (tr *TestRun) CurrentStatus() Status {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return tr.Status
}

// IsFinal reports whether the run reached completed or failed.
func (tr *TestRun) IsFinal() bool {
	return tr.CurrentStatus().IsFinal()
}

// Start moves a pending run to running and records the start event.
func (tr *TestRun) Start() error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.Status.IsFinal() {
		return ErrTestRunFinal
	}
	if tr.Status != StatusPending {
		return ErrTestRunAlreadyStarted
	}
	now := time.Now()
	tr.StartedAt = &now
	tr.Status = StatusRunning
	tr.appendEvent(EventInfo, "Pentest started", Detail{"url": tr.TargetURL})
	return nil
}

// EnterPhase sets the phase and progress and records msg as an info event.
// Progress never decreases. A finished run is left untouched.
func (tr *TestRun) EnterPhase(phase string, progress int, msg string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.Status.IsFinal() {
		return ErrTestRunFinal
	}
	tr.Phase = phase
	if progress > tr.Progress {
		tr.Progress = min(progress, 100)
	}
	if msg != "" {
		tr.appendEvent(EventInfo, msg, nil)
	}
	return nil
}

// AddEvent appends an event. Events reported after the run finished are
// dropped and false is returned.
func (tr *TestRun) AddEvent(kind EventKind, msg string, detail Detail) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.Status.IsFinal() {
		return false
	}
	tr.appendEvent(kind, msg, detail)
	return true
}

// AddFinding appends f and its vulnerability event unless a finding with the
// same title exists or the run has finished.
func (tr *TestRun) AddFinding(f Finding) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.Status.IsFinal() {
		return false
	}
	for _, existing := range tr.Findings {
		if existing.Title == f.Title {
			return false
		}
	}
	tr.Findings = append(tr.Findings, f)
	tr.appendEvent(EventVulnerability, "Vulnerability detected: "+f.Title, f.Detail())
	return true
}

// Complete marks a running run as completed.
func (tr *TestRun) Complete() error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.Status.IsFinal() {
		return ErrTestRunFinal
	}
	if tr.Status != StatusRunning {
		return ErrTestRunNotRunning
	}
	tr.finish(StatusCompleted, PhaseCompleted)
	tr.Progress = 100
	tr.appendEvent(EventInfo, "Pentest completed", Detail{"vulnerabilities_found": len(tr.Findings)})
	return nil
}

// Fail marks the run as failed with reason. It is the only path a run takes
// to failed other than Cancel.
func (tr *TestRun) Fail(reason string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.Status.IsFinal() {
		return ErrTestRunFinal
	}
	tr.finish(StatusFailed, PhaseFailed)
	tr.Error = reason
	tr.appendEvent(EventError, "Pentest failed: "+reason, Detail{"message": reason})
	return nil
}

// Cancel moves a pending or running run to failed with phase Cancelled.
func (tr *TestRun) Cancel() error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.Status.IsFinal() {
		return ErrTestRunFinal
	}
	tr.finish(StatusFailed, PhaseCancelled)
	tr.Error = "cancelled"
	tr.appendEvent(EventError, "Test cancelled by user", nil)
	return nil
}

func (tr *TestRun) finish(status Status, phase string) {
	now := time.Now()
	tr.Status = status
	tr.Phase = phase
	tr.CompletedAt = &now
}

func (tr *TestRun) appendEvent(kind EventKind, msg string, detail Detail) {
	tr.Events = append(tr.Events, Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Message:   msg,
		Detail:    detail,
	})
	tr.UpdatedAt = time.Now()
}

// EventsSince returns a copy of the events at index from onwards together
// with the status observed in the same critical section.
func (tr *TestRun) EventsSince(from int) ([]Event, Status) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	if from < 0 {
		from = 0
	}
	if from >= len(tr.Events) {
		return []Event{}, tr.Status
	}
	out := make([]Event, len(tr.Events)-from)
	copy(out, tr.Events[from:])
	return out, tr.Status
}

// FindingsSnapshot returns a copy of the findings recorded so far.
func (tr *TestRun) FindingsSnapshot() []Finding {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	out := make([]Finding, len(tr.Findings))
	copy(out, tr.Findings)
	return out
}

// Snapshot returns a detached copy safe to read and serialize while the run
// keeps changing.
func (tr *TestRun) Snapshot() *TestRun {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	cp := &TestRun{
		ID:          tr.ID,
		TargetURL:   tr.TargetURL,
		Status:      tr.Status,
		Progress:    tr.Progress,
		Phase:       tr.Phase,
		Events:      make(EventLog, len(tr.Events)),
		Findings:    make(FindingList, len(tr.Findings)),
		Error:       tr.Error,
		CreatedAt:   tr.CreatedAt,
		StartedAt:   copyTime(tr.StartedAt),
		CompletedAt: copyTime(tr.CompletedAt),
		UpdatedAt:   tr.UpdatedAt,
	}
	copy(cp.Events, tr.Events)
	copy(cp.Findings, tr.Findings)
	return cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
