package testutil

import (
	"testing"

	"gorm.io/gorm"
)

// CreateFixtures inserts each model in order, failing the test on the first error.
func CreateFixtures(t *testing.T, db *gorm.DB, models ...interface{}) {
	t.Helper()
	for i, model := range models {
		if err := db.Create(model).Error; err != nil {
			t.Fatalf("failed to create fixture %d (%T): %v", i, model, err)
		}
	}
}
