package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/aihub/vectorstore-go/internal/errors"
	"github.com/aihub/vectorstore-go/internal/interfaces"
	"github.com/aihub/vectorstore-go/internal/logger"
	"github.com/aihub/vectorstore-go/internal/metrics"
	"github.com/aihub/vectorstore-go/internal/models"
	"github.com/aihub/vectorstore-go/internal/vector"
)

// DocumentServiceOptions 文档服务并发与重试配置
type DocumentServiceOptions struct {
	MaxParallel int
	MaxRetries  int
	RetryBase   time.Duration
}

// DocumentService 文档写入、读取与删除
type DocumentService struct {
	collections *CollectionService
	backend     vector.Backend
	embedder    vector.Embedder
	queue       interfaces.QueueInterface
	maxParallel int
	maxRetries  int
	retryBase   time.Duration
	logger      *zap.Logger
}

// NewDocumentService 创建文档服务
func NewDocumentService(collections *CollectionService, backend vector.Backend, embedder vector.Embedder, queue interfaces.QueueInterface, opts DocumentServiceOptions) *DocumentService {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 4
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 200 * time.Millisecond
	}
	return &DocumentService{
		collections: collections,
		backend:     backend,
		embedder:    embedder,
		queue:       queue,
		maxParallel: opts.MaxParallel,
		maxRetries:  opts.MaxRetries,
		retryBase:   opts.RetryBase,
		logger:      logger.Named("document_service"),
	}
}

// DocumentInput 单条文档写入请求，ID为空时自动生成
// Embedding缺省时由服务端向量化Content
type DocumentInput struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata"`
	Embedding []float32         `json:"embedding"`
}

// DocumentResult 单条文档写入结果
type DocumentResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BatchResult 批量写入汇总，部分失败不影响其余条目
type BatchResult struct {
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Results   []DocumentResult `json:"results"`
}

// UpsertDocuments 批量写入文档，同ID覆盖旧记录
// 向量化按maxParallel并发执行，限流错误指数退避重试
func (s *DocumentService) UpsertDocuments(ctx context.Context, collectionID string, docs []DocumentInput) (*BatchResult, error) {
	collection, err := s.collections.GetCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, apperrors.NewValidationError("documents list is empty")
	}

	type prepared struct {
		index  int
		record vector.Record
		err    error
	}

	results := make([]DocumentResult, len(docs))
	preparedRecords := make([]prepared, len(docs))

	// 预生成ID，失败条目也能回传ID
	ids := make([]string, len(docs))
	seen := make(map[string]int, len(docs))
	for i, doc := range docs {
		id := strings.TrimSpace(doc.ID)
		if id == "" {
			id = uuid.NewString()
		}
		ids[i] = id
		if prev, dup := seen[id]; dup {
			s.logger.Debug("Duplicate document id in batch, later entry wins",
				zap.String("id", id), zap.Int("first_index", prev), zap.Int("index", i))
		}
		seen[id] = i
	}

	sem := make(chan struct{}, s.maxParallel)
	var wg sync.WaitGroup

	for i := range docs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			rec, err := s.prepareRecord(ctx, collection, ids[i], docs[i])
			if err != nil {
				preparedRecords[i] = prepared{index: i, err: err}
				return
			}
			preparedRecords[i] = prepared{index: i, record: *rec}
		}(i)
	}
	wg.Wait()

	// 批内同ID只落库最后一条校验通过的记录；
	// 该ID全部条目校验失败时各自回传自身错误
	winner := make(map[string]int, len(docs))
	for i, p := range preparedRecords {
		if p.err == nil {
			winner[ids[i]] = i
		}
	}

	var records []vector.Record
	var pending []int
	shadowed := make(map[string][]int)
	for i, p := range preparedRecords {
		if p.err != nil {
			results[i] = failureResult(ids[i], p.err)
			continue
		}
		if w := winner[ids[i]]; w != i {
			// 被同ID后续条目覆盖，结果跟随获胜条目
			shadowed[ids[i]] = append(shadowed[ids[i]], i)
			continue
		}
		records = append(records, p.record)
		pending = append(pending, i)
	}

	if len(records) > 0 {
		backendName := s.collections.BackendCollectionName(collectionID)
		err := withRetry(ctx, s.maxRetries, s.retryBase, "upsert_documents", func() error {
			return s.backend.Upsert(ctx, backendName, records)
		})
		for _, i := range pending {
			var res DocumentResult
			if err != nil {
				res = failureResult(ids[i], apperrors.NewBackendError(
					apperrors.ErrCodeBackendError, err.Error(), true))
			} else {
				res = DocumentResult{ID: ids[i], Success: true}
			}
			results[i] = res
			for _, j := range shadowed[ids[i]] {
				results[j] = res
			}
		}
	}

	batch := &BatchResult{Results: results}
	for _, r := range results {
		if r.Success {
			batch.Succeeded++
		} else {
			batch.Failed++
		}
	}

	metrics.RecordUpsert(collectionID, batch.Succeeded, batch.Failed)

	if batch.Succeeded > 0 {
		s.publishEvent(ctx, "documents.upserted", map[string]interface{}{
			"collection_id": collectionID,
			"count":         batch.Succeeded,
		})
	}

	s.logger.Info("Documents upserted",
		zap.String("collection_id", collectionID),
		zap.Int("succeeded", batch.Succeeded),
		zap.Int("failed", batch.Failed))

	return batch, nil
}

// prepareRecord 校验单条文档并按需向量化
func (s *DocumentService) prepareRecord(ctx context.Context, collection *models.Collection, id string, doc DocumentInput) (*vector.Record, error) {
	content := strings.TrimSpace(doc.Content)
	if content == "" {
		return nil, apperrors.NewValidationError("content is required")
	}

	embedding := doc.Embedding
	if len(embedding) > 0 {
		if len(embedding) != collection.VectorDim {
			return nil, apperrors.NewDimensionMismatchError(collection.VectorDim, len(embedding))
		}
	} else {
		if s.embedder == nil || !s.embedder.Ready() {
			return nil, apperrors.NewValidationError("embedding is required: no embedding provider configured")
		}
		start := time.Now()
		err := withRetry(ctx, s.maxRetries, s.retryBase, "embed_document", func() error {
			var embedErr error
			embedding, embedErr = s.embedder.Embed(ctx, content)
			return embedErr
		})
		metrics.RecordEmbedding(time.Since(start))
		if err != nil {
			return nil, err
		}
		if len(embedding) != collection.VectorDim {
			return nil, apperrors.NewDimensionMismatchError(collection.VectorDim, len(embedding))
		}
	}

	metadata := vector.Metadata{}
	for k, v := range doc.Metadata {
		if strings.TrimSpace(k) == "" {
			return nil, apperrors.NewValidationError("metadata keys cannot be empty")
		}
		metadata[k] = v
	}

	return &vector.Record{
		ID:        id,
		Content:   content,
		Metadata:  metadata,
		Embedding: embedding,
		UpdatedAt: time.Now(),
	}, nil
}

// DocumentUpdate 单条文档更新请求
// Content存在时重新向量化并替换，Metadata存在时整体替换
type DocumentUpdate struct {
	ID       string             `json:"id"`
	Content  *string            `json:"content"`
	Metadata *map[string]string `json:"metadata"`
}

// UpdateResult 批量更新汇总，不存在的ID跳过并回报
type UpdateResult struct {
	UpdatedIDs []string `json:"updated_ids"`
	SkippedIDs []string `json:"skipped_ids"`
}

// UpdateDocuments 批量更新已存在的文档
func (s *DocumentService) UpdateDocuments(ctx context.Context, collectionID string, updates []DocumentUpdate) (*UpdateResult, error) {
	collection, err := s.collections.GetCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return nil, apperrors.NewValidationError("updates list is empty")
	}
	for _, u := range updates {
		if strings.TrimSpace(u.ID) == "" {
			return nil, apperrors.NewValidationError("update entries require an id")
		}
		if u.Content == nil && u.Metadata == nil {
			return nil, apperrors.NewValidationError(
				fmt.Sprintf("update for %q changes nothing: content or metadata required", u.ID))
		}
	}

	backendName := s.collections.BackendCollectionName(collectionID)
	result := &UpdateResult{UpdatedIDs: []string{}, SkippedIDs: []string{}}
	var records []vector.Record

	for _, u := range updates {
		existing, err := s.backend.Fetch(ctx, backendName, u.ID)
		if err != nil {
			if err == vector.ErrRecordNotFound {
				result.SkippedIDs = append(result.SkippedIDs, u.ID)
				continue
			}
			return nil, apperrors.NewBackendError(apperrors.ErrCodeBackendError, err.Error(), true)
		}

		record := *existing
		if u.Content != nil {
			content := strings.TrimSpace(*u.Content)
			if content == "" {
				return nil, apperrors.NewValidationError(
					fmt.Sprintf("update for %q has empty content", u.ID))
			}
			if s.embedder == nil || !s.embedder.Ready() {
				return nil, apperrors.NewValidationError("content update requires an embedding provider")
			}

			var embedding []float32
			start := time.Now()
			err := withRetry(ctx, s.maxRetries, s.retryBase, "embed_document", func() error {
				var embedErr error
				embedding, embedErr = s.embedder.Embed(ctx, content)
				return embedErr
			})
			metrics.RecordEmbedding(time.Since(start))
			if err != nil {
				return nil, err
			}
			if len(embedding) != collection.VectorDim {
				return nil, apperrors.NewDimensionMismatchError(collection.VectorDim, len(embedding))
			}
			record.Content = content
			record.Embedding = embedding
		}
		if u.Metadata != nil {
			metadata := vector.Metadata{}
			for k, v := range *u.Metadata {
				metadata[k] = v
			}
			record.Metadata = metadata
		}
		record.UpdatedAt = time.Now()

		records = append(records, record)
		result.UpdatedIDs = append(result.UpdatedIDs, u.ID)
	}

	if len(records) > 0 {
		err := withRetry(ctx, s.maxRetries, s.retryBase, "update_documents", func() error {
			return s.backend.Upsert(ctx, backendName, records)
		})
		if err != nil {
			return nil, apperrors.NewBackendError(apperrors.ErrCodeBackendError, err.Error(), true)
		}

		s.publishEvent(ctx, "documents.updated", map[string]interface{}{
			"collection_id": collectionID,
			"count":         len(records),
		})
	}

	s.logger.Info("Documents updated",
		zap.String("collection_id", collectionID),
		zap.Int("updated", len(result.UpdatedIDs)),
		zap.Int("skipped", len(result.SkippedIDs)))

	return result, nil
}

// GetDocument 按ID读取文档
func (s *DocumentService) GetDocument(ctx context.Context, collectionID, docID string) (*vector.Record, error) {
	if _, err := s.collections.GetCollection(ctx, collectionID); err != nil {
		return nil, err
	}

	record, err := s.backend.Fetch(ctx, s.collections.BackendCollectionName(collectionID), docID)
	if err != nil {
		if err == vector.ErrRecordNotFound {
			return nil, apperrors.NewNotFoundError("document")
		}
		return nil, apperrors.NewBackendError(apperrors.ErrCodeBackendError, err.Error(), true)
	}
	return record, nil
}

// DeleteDocument 删除单个文档，不存在时返回NotFound
func (s *DocumentService) DeleteDocument(ctx context.Context, collectionID, docID string) error {
	if strings.TrimSpace(docID) == "" {
		return apperrors.NewValidationError("document id is required")
	}

	deleted, err := s.DeleteDocuments(ctx, collectionID, []string{docID})
	if err != nil {
		return err
	}
	if deleted == 0 {
		return apperrors.NewNotFoundError("document")
	}
	return nil
}

// DeleteDocuments 按ID批量删除，返回实际删除数量
// 不存在的ID静默跳过
func (s *DocumentService) DeleteDocuments(ctx context.Context, collectionID string, ids []string) (int64, error) {
	if _, err := s.collections.GetCollection(ctx, collectionID); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, apperrors.NewValidationError("ids list is empty")
	}
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return 0, apperrors.NewValidationError("ids cannot contain empty values")
		}
	}

	deleted, err := s.backend.Delete(ctx, s.collections.BackendCollectionName(collectionID), ids)
	if err != nil {
		return 0, apperrors.NewBackendError(apperrors.ErrCodeBackendError, err.Error(), true)
	}

	if deleted > 0 {
		s.publishEvent(ctx, "documents.deleted", map[string]interface{}{
			"collection_id": collectionID,
			"count":         deleted,
		})
	}
	return deleted, nil
}

// DeleteByFilter 按元数据过滤删除，空过滤条件必须显式确认
func (s *DocumentService) DeleteByFilter(ctx context.Context, collectionID string, filter map[string]string, confirmAll bool) (int64, error) {
	if _, err := s.collections.GetCollection(ctx, collectionID); err != nil {
		return 0, err
	}
	if len(filter) == 0 && !confirmAll {
		return 0, apperrors.NewValidationError("empty filter deletes all documents: set confirm_all to proceed")
	}

	deleted, err := s.backend.DeleteByFilter(ctx, s.collections.BackendCollectionName(collectionID), vector.Filter(filter))
	if err != nil {
		return 0, apperrors.NewBackendError(apperrors.ErrCodeBackendError, err.Error(), true)
	}

	if deleted > 0 {
		s.publishEvent(ctx, "documents.deleted", map[string]interface{}{
			"collection_id": collectionID,
			"count":         deleted,
		})
	}
	return deleted, nil
}

func (s *DocumentService) publishEvent(ctx context.Context, eventType string, payload map[string]interface{}) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Publish(ctx, eventType, payload); err != nil {
		s.logger.Warn("Failed to publish event",
			zap.String("event_type", eventType), zap.Error(err))
	}
}

func failureResult(id string, err error) DocumentResult {
	appErr := apperrors.GetAppError(err)
	return DocumentResult{
		ID:      id,
		Success: false,
		Code:    string(appErr.Code),
		Error:   appErr.Message,
	}
}
