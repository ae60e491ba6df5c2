package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/web-pentest/browser"
	"github.com/hairizuanbinnoorazman/web-pentest/logger"
	"github.com/hairizuanbinnoorazman/web-pentest/storage"
	"github.com/hairizuanbinnoorazman/web-pentest/testrun"
	"github.com/hairizuanbinnoorazman/web-pentest/toolset"
)

var errCancelled = errors.New("test run cancelled")

const (
	outputPreviewLimit = 500
	finalizeTimeout    = 30 * time.Second
)

// Session is the browser session a run drives. *browser.Session satisfies it.
type Session interface {
	toolset.Page
	Start(ctx context.Context) error
	Close() error
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
}

// SessionFactory opens a fresh, unstarted session for one run.
type SessionFactory func(targetURL string) Session

// RunObserver receives run and tool metrics. *metrics.Metrics satisfies it.
type RunObserver interface {
	toolset.Observer
	RunStarted()
	RunFinished(status string, elapsed time.Duration)
	// RunEnded counts a run that reached a final status without starting.
	RunEnded(status string)
	FindingRecorded(severity string)
}

type nopObserver struct{}

func (nopObserver) ObserveToolCall(string, bool, time.Duration) {}
func (nopObserver) RunStarted()                                 {}
func (nopObserver) RunFinished(string, time.Duration)           {}
func (nopObserver) RunEnded(string)                             {}
func (nopObserver) FindingRecorded(string)                      {}

// FinishHook is called once with the final snapshot of every run, including
// runs cancelled or rejected before they started.
type FinishHook func(ctx context.Context, run *testrun.TestRun)

// Orchestrator runs test runs through their phases on a worker pool.
type Orchestrator struct {
	config     Config
	registry   *testrun.Registry
	planner    Planner
	storage    storage.BlobStorage
	assets     testrun.AssetStore
	newSession SessionFactory
	observer   RunObserver
	onFinish   FinishHook
	logger     logger.Logger
	pool       *WorkerPool

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

// NewOrchestrator creates an orchestrator. blobStorage and assetStore may be nil.
func NewOrchestrator(
	config Config,
	registry *testrun.Registry,
	planner Planner,
	blobStorage storage.BlobStorage,
	assetStore testrun.AssetStore,
	log logger.Logger,
) *Orchestrator {
	o := &Orchestrator{
		config:   config,
		registry: registry,
		planner:  planner,
		storage:  blobStorage,
		assets:   assetStore,
		observer: nopObserver{},
		logger:   log,
		cancels:  make(map[uuid.UUID]context.CancelFunc),
	}
	o.newSession = func(targetURL string) Session {
		return browser.NewSession(targetURL, config.Browser, log)
	}
	o.pool = NewWorkerPool(config.MaxConcurrentWorkers, config.QueueSize, o.process, log)
	return o
}

// SetSessionFactory replaces how sessions are opened.
func (o *Orchestrator) SetSessionFactory(f SessionFactory) {
	o.newSession = f
}

// SetObserver sets the metrics observer.
func (o *Orchestrator) SetObserver(obs RunObserver) {
	if obs == nil {
		obs = nopObserver{}
	}
	o.observer = obs
}

// SetFinishHook registers h to run after each final run is archived.
func (o *Orchestrator) SetFinishHook(h FinishHook) {
	o.onFinish = h
}

// Registry returns the run registry.
func (o *Orchestrator) Registry() *testrun.Registry {
	return o.registry
}

// Start starts the worker pool.
func (o *Orchestrator) Start(ctx context.Context) {
	o.pool.Start(ctx)
}

// Stop interrupts running tests and waits for the workers to exit.
func (o *Orchestrator) Stop() {
	o.pool.Stop()
}

// Submit registers a pending run for targetURL and queues it.
func (o *Orchestrator) Submit(ctx context.Context, targetURL string) (*testrun.TestRun, error) {
	run, err := testrun.New(targetURL)
	if err != nil {
		return nil, err
	}
	if err := o.registry.Add(run); err != nil {
		return nil, err
	}
	o.registry.Archive(ctx, run)
	queued := run.Snapshot()

	if err := o.pool.Enqueue(run.ID); err != nil {
		if ferr := run.Fail(err.Error()); ferr == nil {
			o.endUnstarted(ctx, run)
		}
		return nil, err
	}

	o.logger.Info(ctx, "test run queued", logger.Fields{
		"test_run_id": run.ID.String(),
		"target_url":  targetURL,
	})
	return queued, nil
}

// Cancel moves a pending or running run to failed with phase Cancelled and
// stops its goroutine at the next checkpoint.
func (o *Orchestrator) Cancel(ctx context.Context, id uuid.UUID) error {
	run, err := o.registry.Live(id)
	if err != nil {
		archived, gerr := o.registry.Get(ctx, id)
		if gerr != nil {
			return testrun.ErrTestRunNotFound
		}
		if archived.Status.IsFinal() {
			return testrun.ErrTestRunFinal
		}
		return testrun.ErrTestRunNotFound
	}
	if err := run.Cancel(); err != nil {
		return err
	}
	o.logger.Info(ctx, "test run cancelled", logger.Fields{
		"test_run_id": id.String(),
	})

	// Runs cancelled while pending never reach Execute's finish path.
	if run.Snapshot().StartedAt == nil {
		o.endUnstarted(ctx, run)
		return nil
	}

	o.mu.Lock()
	if cancel, ok := o.cancels[id]; ok {
		cancel()
	}
	o.mu.Unlock()

	o.registry.Archive(ctx, run)
	return nil
}

// endUnstarted archives a run that became final while still pending and
// reports it to the finish hook and observer.
func (o *Orchestrator) endUnstarted(ctx context.Context, run *testrun.TestRun) {
	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	o.finalize(finalCtx, run, &artifacts{})
	if o.onFinish != nil {
		o.onFinish(finalCtx, run.Snapshot())
	}
	o.observer.RunEnded(string(run.CurrentStatus()))
}

func (o *Orchestrator) process(ctx context.Context, id uuid.UUID) {
	run, err := o.registry.Live(id)
	if err != nil {
		o.logger.Warn(ctx, "queued test run disappeared", logger.Fields{
			"test_run_id": id.String(),
		})
		return
	}
	o.Execute(ctx, run)
}

// artifacts collects what a run produced for the report.
type artifacts struct {
	output     string
	screenshot []byte
}

// Execute runs one test run to a final state. It is called by the worker
// pool and may be called directly for a registered run.
func (o *Orchestrator) Execute(ctx context.Context, run *testrun.TestRun) {
	if o.config.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.TimeLimit)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.mu.Lock()
	o.cancels[run.ID] = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.cancels, run.ID)
		o.mu.Unlock()
	}()

	log := o.logger.WithField("test_run_id", run.ID.String())
	ctx = logger.IntoContext(ctx, log)

	if err := run.Start(); err != nil {
		log.Info(ctx, "skipping test run that is no longer pending", logger.Fields{
			"error": err.Error(),
		})
		return
	}
	started := time.Now()
	o.observer.RunStarted()
	o.registry.Archive(ctx, run)

	art := &artifacts{}
	err := o.runPhases(ctx, run, art)
	switch {
	case err == nil:
		if cerr := run.Complete(); cerr != nil {
			log.Info(ctx, "test run finished elsewhere before completion", logger.Fields{
				"error": cerr.Error(),
			})
		}
	case run.IsFinal():
		log.Info(ctx, "test run stopped after cancellation", nil)
	default:
		log.Error(ctx, "test run failed", logger.Fields{
			"error": err.Error(),
		})
		_ = run.Fail(err.Error())
	}

	finalCtx, finalCancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer finalCancel()
	o.finalize(finalCtx, run, art)
	if o.onFinish != nil {
		o.onFinish(finalCtx, run.Snapshot())
	}

	status := run.CurrentStatus()
	o.observer.RunFinished(string(status), time.Since(started))
	log.Info(ctx, "test run finished", logger.Fields{
		"status":      string(status),
		"duration_ms": time.Since(started).Milliseconds(),
	})
}

// checkpoint reports whether the run may keep going.
func checkpoint(ctx context.Context, run *testrun.TestRun) error {
	if run.IsFinal() {
		return errCancelled
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("test run interrupted: %w", err)
	}
	return nil
}

func enterPhase(ctx context.Context, run *testrun.TestRun, phase string, progress int, msg string) error {
	if err := checkpoint(ctx, run); err != nil {
		return err
	}
	if err := run.EnterPhase(phase, progress, msg); err != nil {
		return errCancelled
	}
	return nil
}

func (o *Orchestrator) runPhases(ctx context.Context, run *testrun.TestRun, art *artifacts) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected error: %v", r)
		}
	}()

	if err := enterPhase(ctx, run, testrun.PhaseReconnaissance, 15, "Starting reconnaissance phase"); err != nil {
		return err
	}
	if err := enterPhase(ctx, run, testrun.PhaseWebAppTesting, 50, "Starting web application testing with AI agent"); err != nil {
		return err
	}
	run.AddEvent(testrun.EventLoad, "Loading page: "+run.TargetURL, testrun.Detail{"url": run.TargetURL})

	output, err := o.webAppTest(ctx, run, art)
	if err != nil {
		if cerr := checkpoint(ctx, run); errors.Is(cerr, errCancelled) {
			return cerr
		}
		return err
	}
	if err := checkpoint(ctx, run); err != nil {
		return err
	}
	art.output = output

	run.AddEvent(testrun.EventInfo, "AI agent completed analysis", testrun.Detail{
		"message": preview(output, outputPreviewLimit),
	})

	findings, tier := ExtractFindings(output)
	o.logger.Debug(ctx, "findings extracted", logger.Fields{
		"test_run_id": run.ID.String(),
		"tier":        string(tier),
		"count":       len(findings),
	})
	for _, f := range findings {
		run.AddFinding(f)
	}

	if n := len(run.FindingsSnapshot()); n > 0 {
		run.AddEvent(testrun.EventInfo, fmt.Sprintf("Total vulnerabilities found: %d", n), testrun.Detail{"vulnerability_count": n})
	} else {
		run.AddEvent(testrun.EventInfo, "No vulnerabilities detected", testrun.Detail{"vulnerability_count": 0})
	}

	return enterPhase(ctx, run, testrun.PhaseReportGeneration, 100, "Generating final report")
}

func (o *Orchestrator) webAppTest(ctx context.Context, run *testrun.TestRun, art *artifacts) (string, error) {
	sess := o.newSession(run.TargetURL)
	defer func() {
		if err := sess.Close(); err != nil {
			o.logger.Warn(ctx, "failed to close browser session", logger.Fields{
				"test_run_id": run.ID.String(),
				"error":       err.Error(),
			})
		}
	}()

	if err := sess.Start(ctx); err != nil {
		return "", err
	}

	tools := toolset.New(sess, run, o.config.Toolset, o.logger).WithObserver(o.observer)
	output, err := o.planner.Plan(ctx, run.TargetURL, tools)

	if o.config.CaptureScreenshot && ctx.Err() == nil {
		shot, serr := sess.Screenshot(ctx, true)
		if serr != nil {
			o.logger.Warn(ctx, "failed to capture screenshot", logger.Fields{
				"test_run_id": run.ID.String(),
				"error":       serr.Error(),
			})
		} else {
			art.screenshot = shot
		}
	}

	if err != nil {
		return "", fmt.Errorf("planner failed: %w", err)
	}
	return output, nil
}

// finalize archives the run and uploads its report and screenshot.
func (o *Orchestrator) finalize(ctx context.Context, run *testrun.TestRun, art *artifacts) {
	snap := run.Snapshot()
	for _, f := range snap.Findings {
		o.observer.FindingRecorded(string(f.Severity))
	}
	o.registry.Archive(ctx, run)

	if o.storage == nil {
		return
	}

	report := BuildReport(snap, art.output)
	if len(art.screenshot) > 0 {
		path := ScreenshotPath(run.ID)
		if o.upload(ctx, run.ID, testrun.AssetTypeScreenshot, path, "image/png", art.screenshot) {
			report.ScreenshotPath = path
		}
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		o.logger.Error(ctx, "failed to encode report", logger.Fields{
			"test_run_id": run.ID.String(),
			"error":       err.Error(),
		})
		return
	}
	o.upload(ctx, run.ID, testrun.AssetTypeReport, ReportPath(run.ID), "application/json", data)
}

func (o *Orchestrator) upload(ctx context.Context, id uuid.UUID, kind testrun.AssetType, path, mimeType string, data []byte) bool {
	if err := o.storage.Upload(ctx, path, bytes.NewReader(data)); err != nil {
		o.logger.Error(ctx, "failed to upload asset", logger.Fields{
			"test_run_id": id.String(),
			"asset_path":  path,
			"error":       err.Error(),
		})
		return false
	}
	if o.assets == nil {
		return true
	}
	err := o.assets.Create(ctx, &testrun.TestRunAsset{
		TestRunID: id,
		AssetType: kind,
		AssetPath: path,
		FileSize:  int64(len(data)),
		MimeType:  mimeType,
	})
	if err != nil {
		o.logger.Warn(ctx, "failed to record asset", logger.Fields{
			"test_run_id": id.String(),
			"asset_path":  path,
			"error":       err.Error(),
		})
	}
	return true
}

func preview(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
