package vector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aihub/vectorstore-go/internal/errors"
)

func TestDashScopeEmbedder_Embed(t *testing.T) {
	var gotAuth string
	var gotReq dashscopeEmbeddingRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/compatible-mode/v1/embeddings", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"index": 0, "embedding": []float64{0.1, 0.2, 0.3}},
			},
			"usage": map[string]int{"total_tokens": 5},
		})
	}))
	defer server.Close()

	embedder := NewDashScopeEmbedder("sk-test", "text-embedding-v1", server.URL)
	embedding, err := embedder.Embed(context.Background(), "你好世界")
	require.NoError(t, err)

	assert.Equal(t, []float32{0.1, 0.2, 0.3}, embedding)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "text-embedding-v1", gotReq.Model)
	assert.Equal(t, []string{"你好世界"}, gotReq.Input)
}

func TestDashScopeEmbedder_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	embedder := NewDashScopeEmbedder("sk-test", "text-embedding-v1", server.URL)
	_, err := embedder.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.True(t, apperrors.IsRateLimited(err))
	assert.True(t, apperrors.IsRetryable(err))
}

func TestDashScopeEmbedder_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(dashscopeError{
			Code:    "InvalidParameter",
			Message: "input too long",
		})
	}))
	defer server.Close()

	embedder := NewDashScopeEmbedder("sk-test", "text-embedding-v1", server.URL)
	_, err := embedder.Embed(context.Background(), "text")
	require.Error(t, err)

	appErr := apperrors.GetAppError(err)
	assert.Equal(t, apperrors.ErrCodeEmbeddingFailed, appErr.Code)
	assert.Contains(t, appErr.Message, "input too long")
	// 4xx不可重试
	assert.False(t, appErr.Retryable)
}

func TestDashScopeEmbedder_ServerErrorRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	embedder := NewDashScopeEmbedder("sk-test", "text-embedding-v1", server.URL)
	_, err := embedder.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestDashScopeEmbedder_CustomDimensionsForV3(t *testing.T) {
	var gotReq dashscopeEmbeddingRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"index": 0, "embedding": []float64{0.1}}},
		})
	}))
	defer server.Close()

	embedder := NewDashScopeEmbedder("sk-test", "text-embedding-v3", server.URL)
	_, err := embedder.Embed(context.Background(), "text")
	require.NoError(t, err)
	require.NotNil(t, gotReq.Dimensions)
	assert.Equal(t, 1536, *gotReq.Dimensions)
}
