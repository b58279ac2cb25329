package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/aihub/vectorstore-go/internal/models"
)

// ErrRecordNotFound 仓库层未找到记录
var ErrRecordNotFound = gorm.ErrRecordNotFound

// collectionRepository 集合目录仓库实现
type collectionRepository struct {
	db *gorm.DB
}

// NewCollectionRepository 创建集合目录仓库
func NewCollectionRepository(db *gorm.DB) CollectionRepository {
	return &collectionRepository{db: db}
}

// Create 创建集合记录
func (r *collectionRepository) Create(ctx context.Context, c *models.Collection) error {
	return r.db.WithContext(ctx).Create(c).Error
}

// GetByID 根据ID获取集合
func (r *collectionRepository) GetByID(ctx context.Context, id string) (*models.Collection, error) {
	var c models.Collection
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByName 根据名称获取集合，未找到返回ErrRecordNotFound
func (r *collectionRepository) GetByName(ctx context.Context, name string) (*models.Collection, error) {
	var c models.Collection
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// List 列出全部集合，顺序稳定
func (r *collectionRepository) List(ctx context.Context) ([]models.Collection, error) {
	var collections []models.Collection
	err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Order("id ASC").
		Find(&collections).Error
	if err != nil {
		return nil, err
	}
	return collections, nil
}

// Update 部分更新集合记录
func (r *collectionRepository) Update(ctx context.Context, id string, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.Collection{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete 删除集合记录
func (r *collectionRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Collection{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// IsNotFound 判断是否为记录未找到错误
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
