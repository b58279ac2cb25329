package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aihub/vectorstore-go/internal/errors"
	"github.com/aihub/vectorstore-go/internal/vector"
)

func mustCreateCollection(t *testing.T, collections *CollectionService, dim int) string {
	t.Helper()
	created, err := collections.CreateCollection(context.Background(), CreateCollectionRequest{
		Name:      "docs-" + t.Name(),
		VectorDim: dim,
	})
	require.NoError(t, err)
	return created.ID
}

func TestDocumentService_Upsert(t *testing.T) {
	collections, documents, _, _ := newTestStack(4)
	ctx := context.Background()
	collectionID := mustCreateCollection(t, collections, 4)

	batch, err := documents.UpsertDocuments(ctx, collectionID, []DocumentInput{
		{ID: "doc-1", Content: "hello", Metadata: map[string]string{"lang": "en"}},
		{Content: "auto id"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Succeeded)
	assert.Zero(t, batch.Failed)
	require.Len(t, batch.Results, 2)
	assert.Equal(t, "doc-1", batch.Results[0].ID)
	// 未提供ID时服务端生成
	assert.NotEmpty(t, batch.Results[1].ID)

	rec, err := documents.GetDocument(ctx, collectionID, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", rec.Content)
	assert.Equal(t, "en", rec.Metadata["lang"])
	assert.Len(t, rec.Embedding, 4)
}

func TestDocumentService_UpsertReplacesSameID(t *testing.T) {
	collections, documents, _, _ := newTestStack(4)
	ctx := context.Background()
	collectionID := mustCreateCollection(t, collections, 4)

	_, err := documents.UpsertDocuments(ctx, collectionID, []DocumentInput{{ID: "a", Content: "v1"}})
	require.NoError(t, err)
	_, err = documents.UpsertDocuments(ctx, collectionID, []DocumentInput{{ID: "a", Content: "v2"}})
	require.NoError(t, err)

	rec, err := documents.GetDocument(ctx, collectionID, "a")
	require.NoError(t, err)
	assert.Equal(t, "v2", rec.Content)
}

func TestDocumentService_UpsertBatchDuplicateLastWins(t *testing.T) {
	collections, documents, _, _ := newTestStack(4)
	ctx := context.Background()
	collectionID := mustCreateCollection(t, collections, 4)

	batch, err := documents.UpsertDocuments(ctx, collectionID, []DocumentInput{
		{ID: "dup", Content: "first"},
		{ID: "dup", Content: "second"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Succeeded)

	rec, err := documents.GetDocument(ctx, collectionID, "dup")
	require.NoError(t, err)
	assert.Equal(t, "second", rec.Content)
}

func TestDocumentService_UpsertBatchDuplicateInvalidLastEntry(t *testing.T) {
	collections, documents, _, _ := newTestStack(4)
	ctx := context.Background()
	collectionID := mustCreateCollection(t, collections, 4)

	// 同ID最后一条校验失败时回退到前一条有效条目，成功结果与落库保持一致
	batch, err := documents.UpsertDocuments(ctx, collectionID, []DocumentInput{
		{ID: "dup", Content: "valid"},
		{ID: "dup", Content: ""},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Succeeded)
	assert.Equal(t, 1, batch.Failed)
	assert.True(t, batch.Results[0].Success)
	assert.False(t, batch.Results[1].Success)
	assert.Equal(t, string(apperrors.ErrCodeValidationFailed), batch.Results[1].Code)

	rec, err := documents.GetDocument(ctx, collectionID, "dup")
	require.NoError(t, err)
	assert.Equal(t, "valid", rec.Content)
}

func TestDocumentService_UpsertBatchDuplicateAllInvalid(t *testing.T) {
	collections, documents, _, _ := newTestStack(4)
	ctx := context.Background()
	collectionID := mustCreateCollection(t, collections, 4)

	// 同ID全部条目校验失败时各自回传失败，不得虚报成功
	batch, err := documents.UpsertDocuments(ctx, collectionID, []DocumentInput{
		{ID: "dup", Content: ""},
		{ID: "dup", Content: "", Embedding: []float32{1}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, batch.Succeeded)
	assert.Equal(t, 2, batch.Failed)

	_, err = documents.GetDocument(ctx, collectionID, "dup")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDocumentService_UpsertPartialFailure(t *testing.T) {
	collections, documents, _, _ := newTestStack(4)
	ctx := context.Background()
	collectionID := mustCreateCollection(t, collections, 4)

	batch, err := documents.UpsertDocuments(ctx, collectionID, []DocumentInput{
		{ID: "ok", Content: "fine"},
		{ID: "bad", Content: ""},
		{ID: "wrong-dim", Content: "x", Embedding: []float32{1, 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Succeeded)
	assert.Equal(t, 2, batch.Failed)

	assert.True(t, batch.Results[0].Success)
	assert.False(t, batch.Results[1].Success)
	assert.Equal(t, string(apperrors.ErrCodeValidationFailed), batch.Results[1].Code)
	assert.False(t, batch.Results[2].Success)
	assert.Equal(t, string(apperrors.ErrCodeDimensionMismatch), batch.Results[2].Code)

	// 失败条目不入库
	_, err = documents.GetDocument(ctx, collectionID, "bad")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDocumentService_UpsertProvidedEmbeddingSkipsEmbedder(t *testing.T) {
	repo := newFakeCollectionRepo()
	backend := vector.NewMemoryBackend()
	embedder := &fakeEmbedder{dim: 3}
	collections := NewCollectionService(repo, backend, embedder, nil, "vs")
	documents := NewDocumentService(collections, backend, embedder, nil, DocumentServiceOptions{})

	collectionID := mustCreateCollection(t, collections, 3)

	_, err := documents.UpsertDocuments(context.Background(), collectionID, []DocumentInput{
		{ID: "a", Content: "x", Embedding: []float32{1, 2, 3}},
	})
	require.NoError(t, err)
	assert.Zero(t, embedder.callCount())
}

func TestDocumentService_UpsertEmptyBatch(t *testing.T) {
	collections, documents, _, _ := newTestStack(4)
	collectionID := mustCreateCollection(t, collections, 4)

	_, err := documents.UpsertDocuments(context.Background(), collectionID, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.GetAppError(err).Code)
}

func TestDocumentService_UpsertUnknownCollection(t *testing.T) {
	_, documents, _, _ := newTestStack(4)

	_, err := documents.UpsertDocuments(context.Background(), "missing", []DocumentInput{{Content: "x"}})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDocumentService_UpdateDocuments(t *testing.T) {
	collections, documents, _, _ := newTestStack(4)
	ctx := context.Background()
	collectionID := mustCreateCollection(t, collections, 4)

	_, err := documents.UpsertDocuments(ctx, collectionID, []DocumentInput{
		{ID: "a", Content: "original", Metadata: map[string]string{"keep": "no"}},
	})
	require.NoError(t, err)

	newContent := "rewritten"
	newMeta := map[string]string{"keep": "yes"}
	result, err := documents.UpdateDocuments(ctx, collectionID, []DocumentUpdate{
		{ID: "a", Content: &newContent, Metadata: &newMeta},
		{ID: "ghost", Content: &newContent},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, result.UpdatedIDs)
	// 不存在的ID跳过而非新建
	assert.Equal(t, []string{"ghost"}, result.SkippedIDs)

	rec, err := documents.GetDocument(ctx, collectionID, "a")
	require.NoError(t, err)
	assert.Equal(t, "rewritten", rec.Content)
	assert.Equal(t, vector.Metadata{"keep": "yes"}, rec.Metadata)

	_, err = documents.GetDocument(ctx, collectionID, "ghost")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDocumentService_UpdateMetadataReplacesWhole(t *testing.T) {
	collections, documents, _, _ := newTestStack(4)
	ctx := context.Background()
	collectionID := mustCreateCollection(t, collections, 4)

	_, err := documents.UpsertDocuments(ctx, collectionID, []DocumentInput{
		{ID: "a", Content: "text", Metadata: map[string]string{"old": "1", "other": "2"}},
	})
	require.NoError(t, err)

	newMeta := map[string]string{"new": "3"}
	_, err = documents.UpdateDocuments(ctx, collectionID, []DocumentUpdate{{ID: "a", Metadata: &newMeta}})
	require.NoError(t, err)

	rec, err := documents.GetDocument(ctx, collectionID, "a")
	require.NoError(t, err)
	// 元数据整体替换，旧键不保留
	assert.Equal(t, vector.Metadata{"new": "3"}, rec.Metadata)
	// 内容未变
	assert.Equal(t, "text", rec.Content)
}

func TestDocumentService_UpdateValidation(t *testing.T) {
	collections, documents, _, _ := newTestStack(4)
	ctx := context.Background()
	collectionID := mustCreateCollection(t, collections, 4)

	_, err := documents.UpdateDocuments(ctx, collectionID, nil)
	assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.GetAppError(err).Code)

	// id缺失
	content := "x"
	_, err = documents.UpdateDocuments(ctx, collectionID, []DocumentUpdate{{Content: &content}})
	assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.GetAppError(err).Code)

	// 空更新
	_, err = documents.UpdateDocuments(ctx, collectionID, []DocumentUpdate{{ID: "a"}})
	assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.GetAppError(err).Code)
}

func TestDocumentService_GetDocumentNotFound(t *testing.T) {
	collections, documents, _, _ := newTestStack(4)
	collectionID := mustCreateCollection(t, collections, 4)

	_, err := documents.GetDocument(context.Background(), collectionID, "missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDocumentService_DeleteDocument(t *testing.T) {
	collections, documents, _, _ := newTestStack(4)
	ctx := context.Background()
	collectionID := mustCreateCollection(t, collections, 4)

	_, err := documents.UpsertDocuments(ctx, collectionID, []DocumentInput{{ID: "a", Content: "x"}})
	require.NoError(t, err)

	require.NoError(t, documents.DeleteDocument(ctx, collectionID, "a"))

	// 再次删除返回NotFound
	err = documents.DeleteDocument(ctx, collectionID, "a")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDocumentService_DeleteDocumentsSkipsMissing(t *testing.T) {
	collections, documents, _, _ := newTestStack(4)
	ctx := context.Background()
	collectionID := mustCreateCollection(t, collections, 4)

	_, err := documents.UpsertDocuments(ctx, collectionID, []DocumentInput{
		{ID: "a", Content: "x"},
		{ID: "b", Content: "y"},
	})
	require.NoError(t, err)

	deleted, err := documents.DeleteDocuments(ctx, collectionID, []string{"a", "ghost", "b"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, err = documents.DeleteDocuments(ctx, collectionID, []string{"a", ""})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.GetAppError(err).Code)
}

func TestDocumentService_DeleteByFilter(t *testing.T) {
	collections, documents, _, _ := newTestStack(4)
	ctx := context.Background()
	collectionID := mustCreateCollection(t, collections, 4)

	_, err := documents.UpsertDocuments(ctx, collectionID, []DocumentInput{
		{ID: "a", Content: "x", Metadata: map[string]string{"source": "wiki"}},
		{ID: "b", Content: "y", Metadata: map[string]string{"source": "news"}},
		{ID: "c", Content: "z", Metadata: map[string]string{"source": "wiki"}},
	})
	require.NoError(t, err)

	deleted, err := documents.DeleteByFilter(ctx, collectionID, map[string]string{"source": "wiki"}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	// 空过滤必须显式确认
	_, err = documents.DeleteByFilter(ctx, collectionID, nil, false)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.GetAppError(err).Code)

	deleted, err = documents.DeleteByFilter(ctx, collectionID, nil, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestDocumentService_EmbedderRequiredWithoutEmbedding(t *testing.T) {
	repo := newFakeCollectionRepo()
	backend := vector.NewMemoryBackend()
	collections := NewCollectionService(repo, backend, &vector.NoopEmbedder{}, nil, "vs")
	documents := NewDocumentService(collections, backend, &vector.NoopEmbedder{}, nil, DocumentServiceOptions{})

	created, err := collections.CreateCollection(context.Background(), CreateCollectionRequest{Name: "docs", VectorDim: 3})
	require.NoError(t, err)

	batch, err := documents.UpsertDocuments(context.Background(), created.ID, []DocumentInput{{Content: "no vector"}})
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Failed)
	assert.Equal(t, string(apperrors.ErrCodeValidationFailed), batch.Results[0].Code)
}
