package testrun

import (
	"context"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/web-pentest/logger"
	"gorm.io/gorm"
)

// MySQLAssetStore implements the AssetStore interface using GORM and MySQL.
type MySQLAssetStore struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewMySQLAssetStore creates a new MySQL-backed asset store.
func NewMySQLAssetStore(db *gorm.DB, log logger.Logger) *MySQLAssetStore {
	return &MySQLAssetStore{
		db:     db,
		logger: log,
	}
}

// Create creates a new asset in the database.
func (s *MySQLAssetStore) Create(ctx context.Context, asset *TestRunAsset) error {
	if err := asset.Validate(); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Create(asset).Error; err != nil {
		s.logger.Error(ctx, "failed to create asset", logger.Fields{
			"error":       err.Error(),
			"test_run_id": asset.TestRunID,
			"asset_path":  asset.AssetPath,
		})
		return err
	}

	s.logger.Info(ctx, "asset created", logger.Fields{
		"asset_id":    asset.ID,
		"test_run_id": asset.TestRunID,
		"asset_type":  asset.AssetType,
	})

	return nil
}

// ListByTestRun retrieves all assets for a specific test run.
func (s *MySQLAssetStore) ListByTestRun(ctx context.Context, testRunID uuid.UUID) ([]*TestRunAsset, error) {
	var assets []*TestRunAsset
	err := s.db.WithContext(ctx).
		Where("test_run_id = ?", testRunID).
		Order("uploaded_at ASC").
		Find(&assets).Error

	if err != nil {
		s.logger.Error(ctx, "failed to list assets by test run", logger.Fields{
			"error":       err.Error(),
			"test_run_id": testRunID,
		})
		return nil, err
	}

	return assets, nil
}
