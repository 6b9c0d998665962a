// Package tests holds shared helpers for package-level tests.
package tests

import (
	"github.com/google/uuid"
	"github.com/groupfi/treasury-engine/internal/sqlite"
	"gorm.io/gorm"
)

// GetSqliteDatabaseConnection returns a uniquely named in-memory database so
// tests can run in parallel without sharing state.
func GetSqliteDatabaseConnection() (*gorm.DB, error) {
	name := uuid.New().String()
	return sqlite.NewGormSqliteFromSqlite(sqlite.NewInMemorySqliteWithName(name))
}
