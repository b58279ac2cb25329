package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aihub/vectorstore-go/internal/errors"
	"github.com/aihub/vectorstore-go/internal/vector"
)

func seedSearchCollection(t *testing.T, collections *CollectionService, backend vector.Backend) string {
	t.Helper()
	ctx := context.Background()
	created, err := collections.CreateCollection(ctx, CreateCollectionRequest{Name: "search-" + t.Name(), VectorDim: 2})
	require.NoError(t, err)

	backendName := collections.BackendCollectionName(created.ID)
	require.NoError(t, backend.Upsert(ctx, backendName, []vector.Record{
		{ID: "exact", Content: "exact", Embedding: []float32{1, 0}, Metadata: vector.Metadata{"lang": "zh"}},
		{ID: "near", Content: "near", Embedding: []float32{1, 0.2}, Metadata: vector.Metadata{"lang": "en"}},
		{ID: "far", Content: "far", Embedding: []float32{0, 1}, Metadata: vector.Metadata{"lang": "zh"}},
	}))
	return created.ID
}

func TestSearchService_SearchByEmbedding(t *testing.T) {
	collections, _, search, backend := newTestStack(2)
	collectionID := seedSearchCollection(t, collections, backend)

	resp, err := search.Search(context.Background(), collectionID, SearchRequest{
		Embedding: []float32{1, 0},
		TopK:      2,
	})
	require.NoError(t, err)
	require.Len(t, resp.Matches, 2)
	assert.Equal(t, "exact", resp.Matches[0].ID)
	assert.Equal(t, "near", resp.Matches[1].ID)
	assert.GreaterOrEqual(t, resp.Matches[0].Score, resp.Matches[1].Score)
	assert.Equal(t, 2, resp.TopK)
}

func TestSearchService_SearchByQueryText(t *testing.T) {
	collections, _, search, backend := newTestStack(2)
	collectionID := seedSearchCollection(t, collections, backend)

	resp, err := search.Search(context.Background(), collectionID, SearchRequest{Query: "some question"})
	require.NoError(t, err)
	// 缺省topK为5
	assert.Equal(t, 5, resp.TopK)
	assert.NotEmpty(t, resp.Matches)
}

func TestSearchService_SearchWithFilter(t *testing.T) {
	collections, _, search, backend := newTestStack(2)
	collectionID := seedSearchCollection(t, collections, backend)

	resp, err := search.Search(context.Background(), collectionID, SearchRequest{
		Embedding: []float32{1, 0},
		Filter:    map[string]string{"lang": "zh"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Matches, 2)
	for _, m := range resp.Matches {
		assert.Equal(t, "zh", m.Metadata["lang"])
	}
}

func TestSearchService_EmptyResultIsNotError(t *testing.T) {
	collections, _, search, backend := newTestStack(2)
	collectionID := seedSearchCollection(t, collections, backend)

	resp, err := search.Search(context.Background(), collectionID, SearchRequest{
		Embedding: []float32{1, 0},
		Filter:    map[string]string{"lang": "fr"},
	})
	require.NoError(t, err)
	assert.NotNil(t, resp.Matches)
	assert.Empty(t, resp.Matches)
}

func TestSearchService_Validation(t *testing.T) {
	collections, _, search, backend := newTestStack(2)
	collectionID := seedSearchCollection(t, collections, backend)
	ctx := context.Background()

	// query与embedding都缺失
	_, err := search.Search(ctx, collectionID, SearchRequest{})
	assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.GetAppError(err).Code)

	// 负数topK
	_, err = search.Search(ctx, collectionID, SearchRequest{Embedding: []float32{1, 0}, TopK: -1})
	assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.GetAppError(err).Code)

	// 维度不匹配
	_, err = search.Search(ctx, collectionID, SearchRequest{Embedding: []float32{1, 0, 0}})
	assert.Equal(t, apperrors.ErrCodeDimensionMismatch, apperrors.GetAppError(err).Code)
}

func TestSearchService_UnknownCollection(t *testing.T) {
	_, _, search, _ := newTestStack(2)

	_, err := search.Search(context.Background(), "missing", SearchRequest{Embedding: []float32{1, 0}})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSearchService_QueryTextRequiresEmbedder(t *testing.T) {
	repo := newFakeCollectionRepo()
	backend := vector.NewMemoryBackend()
	collections := NewCollectionService(repo, backend, &vector.NoopEmbedder{}, nil, "vs")
	search := NewSearchService(collections, backend, &vector.NoopEmbedder{}, 5)

	created, err := collections.CreateCollection(context.Background(), CreateCollectionRequest{Name: "docs", VectorDim: 2})
	require.NoError(t, err)

	_, err = search.Search(context.Background(), created.ID, SearchRequest{Query: "hello"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.GetAppError(err).Code)
}

func TestSearchService_EmbeddingWinsOverQuery(t *testing.T) {
	collections, _, search, backend := newTestStack(2)
	collectionID := seedSearchCollection(t, collections, backend)

	// 同时给出embedding与query时使用embedding
	resp, err := search.Search(context.Background(), collectionID, SearchRequest{
		Query:     "irrelevant",
		Embedding: []float32{0, 1},
		TopK:      1,
	})
	require.NoError(t, err)
	require.Len(t, resp.Matches, 1)
	assert.Equal(t, "far", resp.Matches[0].ID)
}
