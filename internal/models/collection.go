package models

import (
	"time"
)

// Collection 集合元数据表
// 向量与文档内容由向量后端持久化，这里只保存集合目录
type Collection struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"size:255;uniqueIndex;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	VectorDim   int       `gorm:"not null" json:"vector_dim"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (Collection) TableName() string {
	return "collections"
}
