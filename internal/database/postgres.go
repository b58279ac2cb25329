package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aihub/vectorstore-go/internal/config"
	"github.com/aihub/vectorstore-go/internal/models"
)

var DB *gorm.DB

// InitDB 初始化集合目录数据库
func InitDB() (*gorm.DB, error) {
	cfg := config.AppConfig
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.URL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 获取底层的sql.DB设置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	// 自动迁移集合目录表（正式环境用cmd/migrate）
	if err := db.AutoMigrate(&models.Collection{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	DB = db
	return db, nil
}

// Database 包装gorm.DB实现DatabaseInterface
type Database struct {
	db *gorm.DB
}

// NewDatabase 创建数据库包装
func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// GetDB 返回底层gorm.DB
func (d *Database) GetDB() *gorm.DB {
	return d.db
}

// Close 关闭数据库连接
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// HealthCheck 检查数据库连通性
func (d *Database) HealthCheck() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
