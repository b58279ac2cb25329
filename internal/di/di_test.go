package di

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aihub/vectorstore-go/internal/config"
	"github.com/aihub/vectorstore-go/internal/vector"
)

func TestInitContainer(t *testing.T) {
	container := InitContainer()
	assert.NotNil(t, container)
	assert.Same(t, container, GetContainer())
}

func TestContainerProvideInvoke(t *testing.T) {
	InitContainer()

	type testService struct {
		Name string
	}

	require.NoError(t, Provide(func() *testService {
		return &testService{Name: "test"}
	}))

	err := Invoke(func(svc *testService) {
		assert.Equal(t, "test", svc.Name)
	})
	assert.NoError(t, err)
}

func TestNewBackend(t *testing.T) {
	backend, err := NewBackend(&config.Config{Store: config.StoreConfig{Provider: "memory"}})
	require.NoError(t, err)
	assert.NotNil(t, backend)

	// 空provider默认内存后端
	backend, err = NewBackend(&config.Config{})
	require.NoError(t, err)
	assert.NotNil(t, backend)

	_, err = NewBackend(&config.Config{Store: config.StoreConfig{Provider: "bogus"}})
	assert.Error(t, err)
}

func TestNewEmbedder(t *testing.T) {
	embedder, err := NewEmbedder(&config.Config{Embedding: config.EmbeddingConfig{Provider: "noop"}})
	require.NoError(t, err)
	assert.False(t, embedder.Ready())

	embedder, err = NewEmbedder(&config.Config{Embedding: config.EmbeddingConfig{
		Provider: "openai",
		APIKey:   "sk-test",
		Model:    "text-embedding-3-small",
	}})
	require.NoError(t, err)
	assert.Equal(t, 1536, embedder.Dimensions())

	_, err = NewEmbedder(&config.Config{Embedding: config.EmbeddingConfig{Provider: "bogus"}})
	assert.Error(t, err)
}

func TestNewQueue_DisabledReturnsNil(t *testing.T) {
	queue, err := NewQueue(&config.Config{Kafka: config.KafkaConfig{Enabled: false}})
	require.NoError(t, err)
	assert.Nil(t, queue)
}

func TestNewBackend_ImplementsInterface(t *testing.T) {
	backend, err := NewBackend(&config.Config{Store: config.StoreConfig{Provider: "memory"}})
	require.NoError(t, err)

	var _ vector.Backend = backend
}
