package vector

import (
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 建索引时HNSW与IVF_FLAT降级互换，两种索引必须能走同一条CreateIndex路径
func TestMilvusIndexFallbackAssignable(t *testing.T) {
	var index entity.Index

	hnsw, err := entity.NewIndexHNSW(entity.COSINE, 8, 64)
	require.NoError(t, err)
	index = hnsw
	assert.Equal(t, entity.HNSW, index.IndexType())

	ivf, err := entity.NewIndexIvfFlat(entity.COSINE, 128)
	require.NoError(t, err)
	index = ivf
	assert.Equal(t, entity.IvfFlat, index.IndexType())
}
