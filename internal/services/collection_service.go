package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/aihub/vectorstore-go/internal/errors"
	"github.com/aihub/vectorstore-go/internal/interfaces"
	"github.com/aihub/vectorstore-go/internal/logger"
	"github.com/aihub/vectorstore-go/internal/models"
	"github.com/aihub/vectorstore-go/internal/repository"
	"github.com/aihub/vectorstore-go/internal/vector"
)

const maxVectorDim = 8192

// CollectionService 集合生命周期管理
type CollectionService struct {
	repo     repository.CollectionRepository
	backend  vector.Backend
	embedder vector.Embedder
	queue    interfaces.QueueInterface
	prefix   string
	logger   *zap.Logger
}

// NewCollectionService 创建集合服务
func NewCollectionService(repo repository.CollectionRepository, backend vector.Backend, embedder vector.Embedder, queue interfaces.QueueInterface, prefix string) *CollectionService {
	return &CollectionService{
		repo:     repo,
		backend:  backend,
		embedder: embedder,
		queue:    queue,
		prefix:   prefix,
		logger:   logger.Named("collection_service"),
	}
}

// CreateCollectionRequest 创建集合请求
// VectorDim为0时取嵌入服务的模型维度
type CreateCollectionRequest struct {
	Name        string `json:"name" validate:"required,max=128"`
	Description string `json:"description" validate:"max=1024"`
	VectorDim   int    `json:"vector_dim" validate:"gte=0"`
}

// UpdateCollectionRequest 更新集合请求，维度不可变更
type UpdateCollectionRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=128"`
	Description *string `json:"description" validate:"omitempty,max=1024"`
}

// BackendCollectionName 集合在向量后端的物理名称
func (s *CollectionService) BackendCollectionName(collectionID string) string {
	return vector.CollectionName(s.prefix, collectionID)
}

// CreateCollection 创建集合并在后端初始化对应存储
func (s *CollectionService) CreateCollection(ctx context.Context, req CreateCollectionRequest) (*models.Collection, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperrors.NewValidationError("collection name is required")
	}
	if req.VectorDim == 0 && s.embedder != nil && s.embedder.Ready() {
		req.VectorDim = s.embedder.Dimensions()
	}
	if req.VectorDim <= 0 {
		return nil, apperrors.NewValidationError("vector_dim must be positive or an embedding provider must be configured")
	}
	if req.VectorDim > maxVectorDim {
		return nil, apperrors.NewValidationError(fmt.Sprintf("vector_dim must not exceed %d", maxVectorDim))
	}

	if existing, err := s.repo.GetByName(ctx, name); err == nil && existing != nil {
		return nil, apperrors.NewConflictError(fmt.Sprintf("collection %q already exists", name))
	}

	collection := &models.Collection{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		VectorDim:   req.VectorDim,
	}

	if err := s.repo.Create(ctx, collection); err != nil {
		return nil, err
	}

	if err := s.backend.EnsureCollection(ctx, s.BackendCollectionName(collection.ID), collection.VectorDim); err != nil {
		// 后端初始化失败时回滚目录记录
		if delErr := s.repo.Delete(ctx, collection.ID); delErr != nil {
			s.logger.Error("Failed to roll back collection after backend error",
				zap.String("collection_id", collection.ID), zap.Error(delErr))
		}
		return nil, apperrors.NewBackendError(apperrors.ErrCodeBackendError,
			fmt.Sprintf("failed to initialize vector backend: %v", err), true)
	}

	s.publishEvent(ctx, "collection.created", map[string]interface{}{
		"collection_id": collection.ID,
		"name":          collection.Name,
		"vector_dim":    collection.VectorDim,
	})

	s.logger.Info("Collection created",
		zap.String("collection_id", collection.ID),
		zap.String("name", collection.Name),
		zap.Int("vector_dim", collection.VectorDim))

	return collection, nil
}

// GetCollection 获取单个集合
func (s *CollectionService) GetCollection(ctx context.Context, id string) (*models.Collection, error) {
	collection, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NewNotFoundError("collection")
		}
		return nil, err
	}
	return collection, nil
}

// ListCollections 列出全部集合，创建时间升序
func (s *CollectionService) ListCollections(ctx context.Context) ([]models.Collection, error) {
	return s.repo.List(ctx)
}

// UpdateCollection 更新集合名称或描述
func (s *CollectionService) UpdateCollection(ctx context.Context, id string, req UpdateCollectionRequest) (*models.Collection, error) {
	collection, err := s.GetCollection(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperrors.NewValidationError("collection name cannot be empty")
		}
		if name != collection.Name {
			if existing, err := s.repo.GetByName(ctx, name); err == nil && existing != nil {
				return nil, apperrors.NewConflictError(fmt.Sprintf("collection %q already exists", name))
			}
			updates["name"] = name
		}
	}
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}

	if len(updates) == 0 {
		return collection, nil
	}

	if err := s.repo.Update(ctx, id, updates); err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NewNotFoundError("collection")
		}
		return nil, err
	}

	return s.GetCollection(ctx, id)
}

// DeleteCollection 删除集合并级联清理后端全部向量数据
func (s *CollectionService) DeleteCollection(ctx context.Context, id string) error {
	collection, err := s.GetCollection(ctx, id)
	if err != nil {
		return err
	}

	if err := s.backend.DropCollection(ctx, s.BackendCollectionName(id)); err != nil {
		return apperrors.NewBackendError(apperrors.ErrCodeBackendError,
			fmt.Sprintf("failed to drop vector backend collection: %v", err), true)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if repository.IsNotFound(err) {
			return apperrors.NewNotFoundError("collection")
		}
		return err
	}

	s.publishEvent(ctx, "collection.deleted", map[string]interface{}{
		"collection_id": id,
		"name":          collection.Name,
	})

	s.logger.Info("Collection deleted",
		zap.String("collection_id", id),
		zap.String("name", collection.Name))

	return nil
}

func (s *CollectionService) publishEvent(ctx context.Context, eventType string, payload map[string]interface{}) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Publish(ctx, eventType, payload); err != nil {
		s.logger.Warn("Failed to publish event",
			zap.String("event_type", eventType), zap.Error(err))
	}
}
