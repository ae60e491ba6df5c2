package testrun

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/web-pentest/logger"
)

// Registry maps run ids to live runs for the lifetime of the process. When a
// Store is configured, finished runs are archived to it and remain readable
// after they are evicted from memory.
type Registry struct {
	mu     sync.RWMutex
	runs   map[uuid.UUID]*TestRun
	store  Store
	logger logger.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewRegistry creates a registry. store may be nil.
func NewRegistry(store Store, log logger.Logger) *Registry {
	return &Registry{
		runs:   make(map[uuid.UUID]*TestRun),
		store:  store,
		logger: log,
		stopCh: make(chan struct{}),
	}
}

// Add registers a new run.
func (r *Registry) Add(run *TestRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[run.ID]; exists {
		return ErrDuplicateTestRun
	}
	r.runs[run.ID] = run
	return nil
}

// Live returns the in-memory run for id. Archived runs are not returned.
func (r *Registry) Live(id uuid.UUID) (*TestRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, ErrTestRunNotFound
	}
	return run, nil
}

// Get returns a snapshot of the run, looking in memory first and then in the
// archive.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*TestRun, error) {
	if run, err := r.Live(id); err == nil {
		return run.Snapshot(), nil
	}
	if r.store == nil {
		return nil, ErrTestRunNotFound
	}
	return r.store.GetByID(ctx, id)
}

// EventsSince returns the events of run id from index from onwards and the
// run's status without copying the rest of the run.
func (r *Registry) EventsSince(ctx context.Context, id uuid.UUID, from int) ([]Event, Status, error) {
	run, err := r.Live(id)
	if err != nil {
		if r.store == nil {
			return nil, "", ErrTestRunNotFound
		}
		if run, err = r.store.GetByID(ctx, id); err != nil {
			return nil, "", err
		}
	}
	events, status := run.EventsSince(from)
	return events, status, nil
}

// List returns snapshots newest first, optionally filtered by status. Archived
// runs that are no longer in memory are merged in.
func (r *Registry) List(ctx context.Context, status Status) ([]*TestRun, error) {
	r.mu.RLock()
	live := make([]*TestRun, 0, len(r.runs))
	for _, run := range r.runs {
		live = append(live, run)
	}
	r.mu.RUnlock()

	seen := make(map[uuid.UUID]struct{}, len(live))
	out := make([]*TestRun, 0, len(live))
	for _, run := range live {
		snap := run.Snapshot()
		seen[snap.ID] = struct{}{}
		if status != "" && snap.Status != status {
			continue
		}
		out = append(out, snap)
	}

	if r.store != nil {
		archived, err := r.store.List(ctx, status, 0, 0)
		if err != nil {
			return nil, err
		}
		for _, run := range archived {
			if _, ok := seen[run.ID]; ok {
				continue
			}
			out = append(out, run)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Archive persists a snapshot of run when a store is configured.
func (r *Registry) Archive(ctx context.Context, run *TestRun) {
	if r.store == nil {
		return
	}
	if err := r.store.Save(ctx, run); err != nil {
		r.logger.Warn(ctx, "failed to archive test run", logger.Fields{
			"test_run_id": run.ID.String(),
			"error":       err.Error(),
		})
	}
}

// RecoverInterrupted marks archived runs that were pending or running when
// the previous process stopped as failed. It returns the number of runs fixed.
func (r *Registry) RecoverInterrupted(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, nil
	}
	stale, err := r.store.ListUnfinished(ctx)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, run := range stale {
		if _, err := r.Live(run.ID); err == nil {
			continue
		}
		const reason = "backend restarted before the test finished"
		err := r.store.Update(ctx, run.ID,
			SetStatus(StatusFailed),
			SetPhase(PhaseFailed),
			SetError(reason),
			SetCompletedAt(time.Now()),
			AppendEvent(EventError, "Pentest failed: "+reason, nil),
		)
		if err != nil {
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}

// Cleanup evicts finished runs whose completion is older than retention.
func (r *Registry) Cleanup(retention time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-retention)
	for id, run := range r.runs {
		snap := run.Snapshot()
		if !snap.Status.IsFinal() || snap.CompletedAt == nil {
			continue
		}
		if snap.CompletedAt.Before(cutoff) {
			delete(r.runs, id)
			removed++
		}
	}
	return removed
}

// StartCleanup evicts expired runs every interval until StopCleanup is called.
// A non-positive interval disables eviction.
func (r *Registry) StartCleanup(interval, retention time.Duration) {
	if interval <= 0 {
		r.logger.Warn(context.Background(), "registry cleanup disabled", logger.Fields{
			"cleanup_interval": interval.String(),
		})
		return
	}
	r.done = make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer close(r.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed := r.Cleanup(retention); removed > 0 {
					r.logger.Info(context.Background(), "evicted finished test runs", logger.Fields{
						"removed_count": removed,
					})
				}
			case <-r.stopCh:
				return
			}
		}
	}()
}

// StopCleanup stops the cleanup goroutine and waits for it to exit.
func (r *Registry) StopCleanup() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	if r.done != nil {
		<-r.done
	}
}

// Len returns the number of runs held in memory.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}
