package testrun

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/web-pentest/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MySQLStore implements the Store interface using GORM and MySQL.
type MySQLStore struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewMySQLStore creates a new MySQL-backed test run store.
func NewMySQLStore(db *gorm.DB, log logger.Logger) *MySQLStore {
	return &MySQLStore{
		db:     db,
		logger: log,
	}
}

// Save upserts a snapshot of the run.
func (s *MySQLStore) Save(ctx context.Context, testRun *TestRun) error {
	snap := testRun.Snapshot()
	if snap.Status == "" {
		snap.Status = StatusPending
	}
	if err := snap.Validate(); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(snap).Error
	if err != nil {
		s.logger.Error(ctx, "failed to save test run", logger.Fields{
			"error":       err.Error(),
			"test_run_id": snap.ID,
		})
		return err
	}

	s.logger.Debug(ctx, "test run saved", logger.Fields{
		"test_run_id": snap.ID,
		"status":      snap.Status,
	})
	return nil
}

// GetByID retrieves a test run by its ID.
func (s *MySQLStore) GetByID(ctx context.Context, id uuid.UUID) (*TestRun, error) {
	var testRun TestRun
	err := s.db.WithContext(ctx).
		Where("id = ?", id).
		First(&testRun).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTestRunNotFound
		}
		s.logger.Error(ctx, "failed to get test run by ID", logger.Fields{
			"error":       err.Error(),
			"test_run_id": id,
		})
		return nil, err
	}

	return &testRun, nil
}

// Update updates a test run with the given setters.
func (s *MySQLStore) Update(ctx context.Context, id uuid.UUID, setters ...UpdateSetter) error {
	testRun, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	for _, setter := range setters {
		if err := setter(testRun); err != nil {
			return err
		}
	}

	if err := s.db.WithContext(ctx).Save(testRun).Error; err != nil {
		s.logger.Error(ctx, "failed to update test run", logger.Fields{
			"error":       err.Error(),
			"test_run_id": id,
		})
		return err
	}

	s.logger.Info(ctx, "test run updated", logger.Fields{
		"test_run_id": id,
	})

	return nil
}

// List returns stored runs newest first. An empty status lists all runs; a
// non-positive limit returns every match.
func (s *MySQLStore) List(ctx context.Context, status Status, limit, offset int) ([]*TestRun, error) {
	var testRuns []*TestRun
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}

	if err := q.Find(&testRuns).Error; err != nil {
		s.logger.Error(ctx, "failed to list test runs", logger.Fields{
			"error":  err.Error(),
			"status": status,
			"limit":  limit,
			"offset": offset,
		})
		return nil, err
	}

	return testRuns, nil
}

// ListUnfinished returns runs stored as pending or running.
func (s *MySQLStore) ListUnfinished(ctx context.Context) ([]*TestRun, error) {
	var testRuns []*TestRun
	err := s.db.WithContext(ctx).
		Where("status IN ?", []Status{StatusPending, StatusRunning}).
		Order("created_at ASC").
		Find(&testRuns).Error
	if err != nil {
		s.logger.Error(ctx, "failed to list unfinished test runs", logger.Fields{
			"error": err.Error(),
		})
		return nil, err
	}
	return testRuns, nil
}
