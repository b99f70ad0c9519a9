package orchestrator

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/talkincode/waconsole/internal/domain"
	"github.com/talkincode/waconsole/pkg/common"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(domain.Tables...); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func seedProfile(t *testing.T, db *gorm.DB, status string, isConnected bool) *domain.Profile {
	t.Helper()
	p := &domain.Profile{
		ID:          common.UUIDint64(),
		ClientID:    common.UUID(),
		Name:        "test profile",
		Status:      status,
		IsConnected: isConnected,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	return p
}

func reloadProfile(t *testing.T, db *gorm.DB, id int64) *domain.Profile {
	t.Helper()
	var p domain.Profile
	if err := db.Where("id = ?", id).First(&p).Error; err != nil {
		t.Fatalf("reload profile: %v", err)
	}
	return &p
}
