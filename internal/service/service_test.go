package service

import (
	"testing"

	"github.com/dushixiang/vole/internal/models"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// newTestDB 创建内存数据库，限制为单连接避免内存库分裂
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开内存数据库失败: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取底层连接失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&models.Host{},
		&models.CPUSample{},
		&models.MemorySample{},
		&models.DiskSample{},
		&models.ProcessSample{},
		&models.AlertRecord{},
		&models.User{},
	); err != nil {
		t.Fatalf("数据库迁移失败: %v", err)
	}
	return db
}
