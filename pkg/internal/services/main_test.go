package services_test

import (
	"fmt"
	"testing"

	"github.com/richmwhite1/hangouts-consensus/pkg/internal/cache"
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/database"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// useTestDB points the global gorm handle at a fresh in-memory sqlite store
// and resets the local cache, so tests cannot see each other's state.
func useTestDB(t *testing.T) {
	t.Helper()

	if err := cache.NewStore(); err != nil {
		t.Fatalf("init cache: %v", err)
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sqlite: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	database.C = db
	if err := database.RunMigration(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}
