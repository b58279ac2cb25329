package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aihub/vectorstore-go/internal/errors"
	"github.com/aihub/vectorstore-go/internal/vector"
)

func newIngestStack(t *testing.T) (*CollectionService, *IngestService, *DocumentService) {
	t.Helper()
	collections, documents, _, _ := newTestStack(4)
	fetcher, err := vector.NewFetcher(vector.FetcherOptions{MaxBytes: 1 << 20})
	require.NoError(t, err)
	ingest := NewIngestService(documents, fetcher, vector.NewFileParserManager(), IngestDefaults{
		ChunkSize:    20,
		ChunkOverlap: 4,
		Unit:         vector.ChunkUnitRune,
	})
	return collections, ingest, documents
}

func TestIngestService_Ingest(t *testing.T) {
	collections, ingest, documents := newIngestStack(t)
	ctx := context.Background()
	collectionID := mustCreateCollection(t, collections, 4)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("chunked content ", 10)))
	}))
	defer server.Close()

	resp, err := ingest.Ingest(ctx, collectionID, IngestRequest{
		SourceURL: server.URL + "/corpus.txt",
		Metadata:  map[string]string{"origin": "test"},
	})
	require.NoError(t, err)
	assert.Greater(t, resp.Chunks, 1)
	assert.Equal(t, resp.Chunks, resp.Batch.Succeeded)
	assert.Zero(t, resp.Batch.Failed)

	// 每个chunk带来源出处元数据
	first, err := documents.GetDocument(ctx, collectionID, resp.Batch.Results[0].ID)
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/corpus.txt", first.Metadata[vector.MetaSourceURL])
	// 未显式给source_type时按扩展名推断的类型也要入库
	assert.Equal(t, "text", first.Metadata[vector.MetaSourceType])
	assert.Equal(t, "0", first.Metadata[vector.MetaChunkIndex])
	assert.Equal(t, "test", first.Metadata["origin"])
}

func TestIngestService_ValidatesChunkParamsBeforeFetch(t *testing.T) {
	collections, ingest, _ := newIngestStack(t)
	collectionID := mustCreateCollection(t, collections, 4)

	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("content"))
	}))
	defer server.Close()

	// overlap不小于size：校验失败，不触发抓取
	_, err := ingest.Ingest(context.Background(), collectionID, IngestRequest{
		SourceURL:    server.URL + "/doc.txt",
		ChunkSize:    10,
		ChunkOverlap: 10,
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.GetAppError(err).Code)

	_, err = ingest.Ingest(context.Background(), collectionID, IngestRequest{
		SourceURL:    server.URL + "/doc.txt",
		ChunkSize:    10,
		ChunkOverlap: -1,
	})
	require.Error(t, err)

	_, err = ingest.Ingest(context.Background(), collectionID, IngestRequest{
		SourceURL: server.URL + "/doc.txt",
		Unit:      "paragraph",
	})
	require.Error(t, err)

	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestIngestService_UnsupportedSourceType(t *testing.T) {
	collections, ingest, _ := newIngestStack(t)
	collectionID := mustCreateCollection(t, collections, 4)

	_, err := ingest.Ingest(context.Background(), collectionID, IngestRequest{
		SourceURL: "http://example.com/archive.zip",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.GetAppError(err).Code)
}

func TestIngestService_UnknownCollection(t *testing.T) {
	_, ingest, _ := newIngestStack(t)

	_, err := ingest.Ingest(context.Background(), "missing", IngestRequest{
		SourceURL: "http://example.com/doc.txt",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestIngestService_MissingSourceURL(t *testing.T) {
	collections, ingest, _ := newIngestStack(t)
	collectionID := mustCreateCollection(t, collections, 4)

	_, err := ingest.Ingest(context.Background(), collectionID, IngestRequest{})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.GetAppError(err).Code)
}

func TestIngestService_EmptyContentProducesNoChunks(t *testing.T) {
	collections, ingest, _ := newIngestStack(t)
	collectionID := mustCreateCollection(t, collections, 4)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("   \n\t  "))
	}))
	defer server.Close()

	resp, err := ingest.Ingest(context.Background(), collectionID, IngestRequest{
		SourceURL: server.URL + "/empty.txt",
	})
	require.NoError(t, err)
	assert.Zero(t, resp.Chunks)
	assert.Empty(t, resp.Batch.Results)
}

func TestIngestService_SourceTypeOverridesExtension(t *testing.T) {
	collections, ingest, documents := newIngestStack(t)
	ctx := context.Background()
	collectionID := mustCreateCollection(t, collections, 4)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>页面正文</p></body></html>"))
	}))
	defer server.Close()

	resp, err := ingest.Ingest(ctx, collectionID, IngestRequest{
		SourceURL:  server.URL + "/download",
		SourceType: "html",
	})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Chunks)

	rec, err := documents.GetDocument(ctx, collectionID, resp.Batch.Results[0].ID)
	require.NoError(t, err)
	assert.Contains(t, rec.Content, "页面正文")
	assert.Equal(t, "html", rec.Metadata[vector.MetaSourceType])
}
