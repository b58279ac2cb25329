package services

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/aihub/vectorstore-go/internal/errors"
	"github.com/aihub/vectorstore-go/internal/logger"
	"github.com/aihub/vectorstore-go/internal/vector"
)

// IngestDefaults 分块缺省参数
type IngestDefaults struct {
	ChunkSize    int
	ChunkOverlap int
	Unit         vector.ChunkUnit
}

// IngestService 文件抓取、解析、分块、入库流水线
type IngestService struct {
	documents *DocumentService
	fetcher   *vector.Fetcher
	parsers   *vector.FileParserManager
	defaults  IngestDefaults
	logger    *zap.Logger
}

// NewIngestService 创建摄入服务
func NewIngestService(documents *DocumentService, fetcher *vector.Fetcher, parsers *vector.FileParserManager, defaults IngestDefaults) *IngestService {
	if defaults.ChunkSize <= 0 {
		defaults.ChunkSize = 800
	}
	if defaults.ChunkOverlap < 0 || defaults.ChunkOverlap >= defaults.ChunkSize {
		defaults.ChunkOverlap = defaults.ChunkSize / 4
	}
	if defaults.Unit == "" {
		defaults.Unit = vector.ChunkUnitRune
	}
	return &IngestService{
		documents: documents,
		fetcher:   fetcher,
		parsers:   parsers,
		defaults:  defaults,
		logger:    logger.Named("ingest_service"),
	}
}

// IngestRequest 文件摄入请求
// ChunkSize与ChunkOverlap为0时使用服务缺省值
type IngestRequest struct {
	SourceURL    string            `json:"source_url" validate:"required"`
	SourceType   string            `json:"source_type"`
	ChunkSize    int               `json:"chunk_size"`
	ChunkOverlap int               `json:"chunk_overlap"`
	Unit         string            `json:"unit"`
	Metadata     map[string]string `json:"metadata"`
}

// IngestResponse 摄入结果
type IngestResponse struct {
	SourceURL string       `json:"source_url"`
	Chunks    int          `json:"chunks"`
	Batch     *BatchResult `json:"batch"`
}

// Ingest 抓取并摄入单个文件
// 分块参数在抓取之前校验，非法参数不产生任何网络请求
func (s *IngestService) Ingest(ctx context.Context, collectionID string, req IngestRequest) (*IngestResponse, error) {
	sourceURL := strings.TrimSpace(req.SourceURL)
	if sourceURL == "" {
		return nil, apperrors.NewValidationError("source_url is required")
	}

	chunkSize := req.ChunkSize
	if chunkSize == 0 {
		chunkSize = s.defaults.ChunkSize
	}
	if chunkSize <= 0 {
		return nil, apperrors.NewValidationError("chunk_size must be positive")
	}

	overlap := req.ChunkOverlap
	if overlap == 0 && req.ChunkSize == 0 {
		overlap = s.defaults.ChunkOverlap
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("chunk_overlap must be in [0, chunk_size): got overlap=%d size=%d", overlap, chunkSize))
	}

	unit := s.defaults.Unit
	switch strings.ToLower(strings.TrimSpace(req.Unit)) {
	case "":
	case string(vector.ChunkUnitRune):
		unit = vector.ChunkUnitRune
	case string(vector.ChunkUnitToken):
		unit = vector.ChunkUnitToken
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown chunk unit: %s", req.Unit))
	}

	// 集合必须存在且来源类型可解析，失败则不抓取
	if _, err := s.documents.collections.GetCollection(ctx, collectionID); err != nil {
		return nil, err
	}
	filename := path.Base(sourceURL)
	sourceType, ok := s.parsers.ResolveType(req.SourceType, filename)
	if !ok {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("unsupported source type %q for %s", req.SourceType, filename))
	}

	data, err := s.fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	content, err := s.parsers.ParseFile(bytes.NewReader(data), req.SourceType, filename)
	if err != nil {
		if apperrors.IsAppError(err) {
			return nil, err
		}
		return nil, apperrors.NewBackendError(apperrors.ErrCodeParseFailed, err.Error(), false)
	}

	chunker := vector.NewChunker(chunkSize, overlap, unit)
	chunks := chunker.Split(content)
	if len(chunks) == 0 {
		s.logger.Info("No chunks produced from source",
			zap.String("collection_id", collectionID),
			zap.String("source_url", sourceURL))
		return &IngestResponse{
			SourceURL: sourceURL,
			Chunks:    0,
			Batch:     &BatchResult{Results: []DocumentResult{}},
		}, nil
	}

	docs := make([]DocumentInput, 0, len(chunks))
	for _, chunk := range chunks {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		metadata := map[string]string{}
		for k, v := range req.Metadata {
			metadata[k] = v
		}
		metadata[vector.MetaSourceURL] = sourceURL
		metadata[vector.MetaSourceType] = sourceType
		metadata[vector.MetaChunkIndex] = strconv.Itoa(chunk.Index)

		docs = append(docs, DocumentInput{
			ID:       uuid.NewString(),
			Content:  chunk.Text,
			Metadata: metadata,
		})
	}

	batch, err := s.documents.UpsertDocuments(ctx, collectionID, docs)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Source ingested",
		zap.String("collection_id", collectionID),
		zap.String("source_url", sourceURL),
		zap.Int("chunks", len(chunks)),
		zap.Int("succeeded", batch.Succeeded),
		zap.Int("failed", batch.Failed))

	return &IngestResponse{
		SourceURL: sourceURL,
		Chunks:    len(chunks),
		Batch:     batch,
	}, nil
}
