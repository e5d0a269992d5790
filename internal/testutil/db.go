// Package testutil opens throwaway stores for package tests.
package testutil

import (
	"testing"

	"gorm.io/gorm"

	"review-api/internal/core/database"
)

// NewDB returns a migrated in-memory SQLite database private to t. A single
// connection keeps the in-memory schema alive for the whole test.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.NewGorm(database.Opts{
		Driver:       "sqlite",
		DSN:          ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     "silent",
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
