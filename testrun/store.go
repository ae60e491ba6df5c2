package testrun

import (
	"context"

	"github.com/google/uuid"
)

// Store defines durable persistence for test runs. The in-memory Registry is
// authoritative while a run is live; the store archives snapshots.
type Store interface {
	// Save inserts the run or replaces the stored copy with the same ID.
	Save(ctx context.Context, testRun *TestRun) error

	// GetByID retrieves a test run by its ID.
	GetByID(ctx context.Context, id uuid.UUID) (*TestRun, error)

	// Update updates a stored test run with the given setters.
	Update(ctx context.Context, id uuid.UUID, setters ...UpdateSetter) error

	// List returns runs newest first, optionally filtered by status.
	List(ctx context.Context, status Status, limit, offset int) ([]*TestRun, error)

	// ListUnfinished returns runs stored as pending or running.
	ListUnfinished(ctx context.Context) ([]*TestRun, error)
}

// UpdateSetter is a function that updates a test run field.
type UpdateSetter func(*TestRun) error
