// Package storetest provides an isolated in-memory database for tests.
package storetest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/capitalize-ai/assistant-engine/internal/store"
)

// Open returns a freshly migrated in-memory sqlite database that is closed
// when the test finishes.
func Open(tb testing.TB) *gorm.DB {
	tb.Helper()

	url := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := store.Open(store.Options{URL: url, Silent: true})
	if err != nil {
		tb.Fatalf("open test db: %v", err)
	}
	if err := store.Migrate(db); err != nil {
		tb.Fatalf("migrate test db: %v", err)
	}

	tb.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
