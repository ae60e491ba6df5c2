package testrun

import (
	"testing"
	"time"

	"github.com/hairizuanbinnoorazman/web-pentest/logger"
	"github.com/hairizuanbinnoorazman/web-pentest/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// setupTestStore creates a test database and test run stores for testing.
func setupTestStore(t *testing.T) (*gorm.DB, *MySQLStore, *MySQLAssetStore) {
	db := testutil.SetupTestDB(t)
	testutil.AutoMigrate(t, db, &TestRun{}, &TestRunAsset{})

	log := logger.NewTestLogger()
	return db, NewMySQLStore(db, log), NewMySQLAssetStore(db, log)
}

// createTestRun creates a pending run for url created at the given time.
func createTestRun(t *testing.T, url string, createdAt time.Time) *TestRun {
	t.Helper()
	run, err := New(url)
	require.NoError(t, err)
	run.CreatedAt = createdAt
	return run
}

// runningTestRun creates a run that already left pending.
func runningTestRun(t *testing.T) *TestRun {
	t.Helper()
	run := createTestRun(t, "http://target.local/login", time.Now())
	require.NoError(t, run.Start())
	return run
}
