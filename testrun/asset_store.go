package testrun

import (
	"context"

	"github.com/google/uuid"
)

// AssetStore records which artifacts a run uploaded.
type AssetStore interface {
	Create(ctx context.Context, asset *TestRunAsset) error

	// ListByTestRun returns a run's assets oldest first.
	ListByTestRun(ctx context.Context, testRunID uuid.UUID) ([]*TestRunAsset, error)
}
