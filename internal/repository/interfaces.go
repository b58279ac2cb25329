package repository

import (
	"context"

	"github.com/aihub/vectorstore-go/internal/models"
)

// CollectionRepository 集合目录仓库接口
type CollectionRepository interface {
	Create(ctx context.Context, c *models.Collection) error
	GetByID(ctx context.Context, id string) (*models.Collection, error)
	GetByName(ctx context.Context, name string) (*models.Collection, error)
	List(ctx context.Context) ([]models.Collection, error)
	Update(ctx context.Context, id string, updates map[string]interface{}) error
	Delete(ctx context.Context, id string) error
}
