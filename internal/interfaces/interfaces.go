package interfaces

import (
	"context"

	"gorm.io/gorm"
)

// DatabaseInterface 数据库接口
type DatabaseInterface interface {
	GetDB() *gorm.DB
	Close() error
	HealthCheck() error
}

// QueueInterface 队列接口
type QueueInterface interface {
	Publish(ctx context.Context, eventType string, payload interface{}) error
	Close() error
}
