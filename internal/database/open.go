package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/efuayankey/aimes-sub001/internal/config"
	"github.com/efuayankey/aimes-sub001/internal/store"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the configured database. PostgreSQL schemas are managed
// by goose migrations; the SQLite file used for local runs is auto-migrated.
func Open(cfg *config.Config) (*gorm.DB, error) {
	gcfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}
	if strings.EqualFold(cfg.Log.Level, "debug") {
		gcfg.Logger = logger.Default.LogMode(logger.Info)
	}

	switch cfg.DB.Driver {
	case "sqlite":
		if dir := filepath.Dir(cfg.DB.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite dir: %w", err)
			}
		}
		db, err := gorm.Open(sqlite.Open(cfg.DB.SQLitePath+"?_busy_timeout=5000&_journal_mode=WAL"), gcfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// SQLite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
		if err := db.AutoMigrate(store.Models()...); err != nil {
			return nil, fmt.Errorf("automigrate: %w", err)
		}
		return db, nil
	default:
		db, err := gorm.Open(postgres.Open(cfg.DSN()), gcfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(time.Hour)
		return db, nil
	}
}
