package agent

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/web-pentest/logger"
)

// ErrQueueFull is returned when no worker slot or queue space is available.
var ErrQueueFull = errors.New("test run queue is full")

// RunHandler processes one queued run.
type RunHandler func(ctx context.Context, id uuid.UUID)

// WorkerPool runs queued test runs on a fixed number of goroutines. Each run
// is processed start to finish by a single worker.
type WorkerPool struct {
	Work       chan uuid.UUID
	maxWorkers int
	handler    RunHandler
	logger     logger.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(maxWorkers, queueSize int, handler RunHandler, log logger.Logger) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &WorkerPool{
		Work:       make(chan uuid.UUID, queueSize),
		maxWorkers: maxWorkers,
		handler:    handler,
		logger:     log,
	}
}

// Start spawns worker goroutines that listen for queued runs.
func (p *WorkerPool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.logger.Info(ctx, "starting worker pool", logger.Fields{
		"max_workers": p.maxWorkers,
	})
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Enqueue queues a run without blocking.
func (p *WorkerPool) Enqueue(id uuid.UUID) error {
	select {
	case p.Work <- id:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop cancels in-flight runs and waits for every worker to exit.
func (p *WorkerPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	p.logger.Debug(ctx, "worker started", logger.Fields{
		"worker_id": id,
	})
	for {
		select {
		case runID := <-p.Work:
			p.logger.Info(ctx, "worker processing test run", logger.Fields{
				"worker_id":   id,
				"test_run_id": runID.String(),
			})
			p.handler(ctx, runID)
		case <-ctx.Done():
			p.logger.Debug(ctx, "worker stopping", logger.Fields{
				"worker_id": id,
			})
			return
		}
	}
}
