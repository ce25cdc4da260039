// Package storetest provides throwaway stores for tests.
package storetest

import (
	"testing"

	"github.com/efuayankey/aimes-sub001/internal/store"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New opens an isolated in-memory SQLite store with the schema
// migrated. A single connection serializes writers the way row locks do on
// PostgreSQL.
func New(t testing.TB) *store.Store {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("test db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(store.Models()...); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return store.New(db)
}
