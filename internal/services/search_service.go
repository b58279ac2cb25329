package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/aihub/vectorstore-go/internal/errors"
	"github.com/aihub/vectorstore-go/internal/logger"
	"github.com/aihub/vectorstore-go/internal/metrics"
	"github.com/aihub/vectorstore-go/internal/vector"
)

// SearchService 相似度检索
type SearchService struct {
	collections *CollectionService
	backend     vector.Backend
	embedder    vector.Embedder
	defaultTopK int
	maxRetries  int
	retryBase   time.Duration
	logger      *zap.Logger
}

// NewSearchService 创建检索服务
func NewSearchService(collections *CollectionService, backend vector.Backend, embedder vector.Embedder, defaultTopK int) *SearchService {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &SearchService{
		collections: collections,
		backend:     backend,
		embedder:    embedder,
		defaultTopK: defaultTopK,
		maxRetries:  2,
		retryBase:   200 * time.Millisecond,
		logger:      logger.Named("search_service"),
	}
}

// SearchRequest 检索请求，Query与Embedding二选一
type SearchRequest struct {
	Query     string            `json:"query"`
	Embedding []float32         `json:"embedding"`
	TopK      int               `json:"top_k"`
	Filter    map[string]string `json:"filter"`
}

// SearchResponse 检索结果，空结果是正常返回而非错误
type SearchResponse struct {
	Matches []vector.Match `json:"matches"`
	TopK    int            `json:"top_k"`
}

// Search 在集合内做相似度检索，结果按分值降序、同分按ID升序
func (s *SearchService) Search(ctx context.Context, collectionID string, req SearchRequest) (*SearchResponse, error) {
	collection, err := s.collections.GetCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}

	topK := req.TopK
	if topK == 0 {
		topK = s.defaultTopK
	}
	if topK < 0 {
		return nil, apperrors.NewValidationError("top_k must be positive")
	}

	embedding := req.Embedding
	query := strings.TrimSpace(req.Query)
	switch {
	case len(embedding) > 0:
		if len(embedding) != collection.VectorDim {
			return nil, apperrors.NewDimensionMismatchError(collection.VectorDim, len(embedding))
		}
	case query != "":
		if s.embedder == nil || !s.embedder.Ready() {
			return nil, apperrors.NewValidationError("query text search requires an embedding provider")
		}
		start := time.Now()
		err := withRetry(ctx, s.maxRetries, s.retryBase, "embed_query", func() error {
			var embedErr error
			embedding, embedErr = s.embedder.Embed(ctx, query)
			return embedErr
		})
		metrics.RecordEmbedding(time.Since(start))
		if err != nil {
			return nil, err
		}
		if len(embedding) != collection.VectorDim {
			return nil, apperrors.NewDimensionMismatchError(collection.VectorDim, len(embedding))
		}
	default:
		return nil, apperrors.NewValidationError("either query or embedding is required")
	}

	matches, err := s.backend.Query(ctx, s.collections.BackendCollectionName(collectionID),
		embedding, topK, vector.Filter(req.Filter))
	metrics.RecordSearch(collectionID, err)
	if err != nil {
		return nil, apperrors.NewBackendError(apperrors.ErrCodeBackendError, err.Error(), true)
	}

	// 后端排序不可全信，统一兜底排序与截断
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	if matches == nil {
		matches = []vector.Match{}
	}

	s.logger.Debug("Search completed",
		zap.String("collection_id", collectionID),
		zap.Int("top_k", topK),
		zap.Int("matches", len(matches)))

	return &SearchResponse{Matches: matches, TopK: topK}, nil
}
