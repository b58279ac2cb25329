package di

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/dig"
	"gorm.io/gorm"

	"github.com/aihub/vectorstore-go/internal/auth"
	"github.com/aihub/vectorstore-go/internal/config"
	"github.com/aihub/vectorstore-go/internal/database"
	"github.com/aihub/vectorstore-go/internal/interfaces"
	"github.com/aihub/vectorstore-go/internal/kafka"
	"github.com/aihub/vectorstore-go/internal/repository"
	"github.com/aihub/vectorstore-go/internal/services"
	"github.com/aihub/vectorstore-go/internal/vector"
)

// RegisterProviders 注册所有依赖提供者
func RegisterProviders(container *dig.Container) error {
	// 注册配置
	if err := container.Provide(func() (*config.Config, error) {
		cfg := config.AppConfig
		if cfg == nil {
			return nil, fmt.Errorf("config not loaded")
		}
		return cfg, nil
	}); err != nil {
		return err
	}

	// 注册数据库
	if err := container.Provide(func() (*gorm.DB, error) {
		if database.DB == nil {
			return nil, fmt.Errorf("database not initialized")
		}
		return database.DB, nil
	}); err != nil {
		return err
	}

	if err := container.Provide(func(db *gorm.DB) interfaces.DatabaseInterface {
		return database.NewDatabase(db)
	}); err != nil {
		return err
	}

	// 注册集合目录仓储
	if err := container.Provide(repository.NewCollectionRepository); err != nil {
		return err
	}

	// 注册向量后端
	if err := container.Provide(NewBackend); err != nil {
		return err
	}

	// 注册嵌入服务
	if err := container.Provide(NewEmbedder); err != nil {
		return err
	}

	// 注册事件队列（未启用Kafka时为空实现）
	if err := container.Provide(NewQueue); err != nil {
		return err
	}

	// 注册认证服务
	if err := container.Provide(func(cfg *config.Config) *auth.Service {
		return auth.NewService(cfg.Auth.APIKeys, cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	}); err != nil {
		return err
	}

	// 注册业务服务
	if err := container.Provide(func(repo repository.CollectionRepository, backend vector.Backend, embedder vector.Embedder, queue interfaces.QueueInterface, cfg *config.Config) *services.CollectionService {
		return services.NewCollectionService(repo, backend, embedder, queue, cfg.Store.CollectionPrefix)
	}); err != nil {
		return err
	}

	if err := container.Provide(func(collections *services.CollectionService, backend vector.Backend, embedder vector.Embedder, queue interfaces.QueueInterface, cfg *config.Config) *services.DocumentService {
		return services.NewDocumentService(collections, backend, embedder, queue, services.DocumentServiceOptions{
			MaxParallel: cfg.Ingest.MaxParallel,
			MaxRetries:  cfg.Ingest.MaxRetries,
			RetryBase:   time.Duration(cfg.Ingest.RetryBaseMS) * time.Millisecond,
		})
	}); err != nil {
		return err
	}

	if err := container.Provide(func(collections *services.CollectionService, backend vector.Backend, embedder vector.Embedder, cfg *config.Config) *services.SearchService {
		return services.NewSearchService(collections, backend, embedder, cfg.Search.TopK)
	}); err != nil {
		return err
	}

	if err := container.Provide(func(cfg *config.Config) (*vector.Fetcher, error) {
		return vector.NewFetcher(vector.FetcherOptions{
			MaxBytes:       cfg.Ingest.MaxFetchBytes,
			Timeout:        time.Duration(cfg.Ingest.FetchTimeout) * time.Second,
			MinioEndpoint:  cfg.Storage.Endpoint,
			MinioAccessKey: cfg.Storage.AccessKey,
			MinioSecretKey: cfg.Storage.SecretKey,
			MinioUseSSL:    cfg.Storage.UseSSL,
		})
	}); err != nil {
		return err
	}

	if err := container.Provide(vector.NewFileParserManager); err != nil {
		return err
	}

	if err := container.Provide(func(documents *services.DocumentService, fetcher *vector.Fetcher, parsers *vector.FileParserManager, cfg *config.Config) *services.IngestService {
		return services.NewIngestService(documents, fetcher, parsers, services.IngestDefaults{
			ChunkSize:    cfg.Ingest.ChunkSize,
			ChunkOverlap: cfg.Ingest.ChunkOverlap,
			Unit:         vector.ChunkUnit(cfg.Ingest.Unit),
		})
	}); err != nil {
		return err
	}

	return nil
}

// NewBackend 按store.provider配置创建向量后端
func NewBackend(cfg *config.Config) (vector.Backend, error) {
	switch cfg.Store.Provider {
	case "", "memory":
		return vector.NewMemoryBackend(), nil
	case "qdrant":
		return vector.NewQdrantBackend(vector.QdrantOptions{
			Endpoint: cfg.Store.Qdrant.Endpoint,
			APIKey:   cfg.Store.Qdrant.APIKey,
			UseTLS:   cfg.Store.Qdrant.TLS,
			Timeout:  time.Duration(cfg.Store.Qdrant.Timeout) * time.Second,
		})
	case "milvus":
		return vector.NewMilvusBackend(vector.MilvusOptions{
			Address:  cfg.Store.Milvus.Address,
			Username: cfg.Store.Milvus.Username,
			Password: cfg.Store.Milvus.Password,
			Database: cfg.Store.Milvus.Database,
			UseTLS:   cfg.Store.Milvus.TLS,
		})
	case "pgvector":
		connStr := cfg.Store.Pgvector.URL
		if connStr == "" {
			connStr = cfg.Database.URL
		}
		return vector.NewPgvectorBackend(context.Background(), connStr)
	case "elasticsearch":
		return vector.NewElasticBackend(vector.ElasticOptions{
			Addresses: cfg.Store.Elasticsearch.Addresses,
			Username:  cfg.Store.Elasticsearch.Username,
			Password:  cfg.Store.Elasticsearch.Password,
			APIKey:    cfg.Store.Elasticsearch.APIKey,
		})
	default:
		return nil, fmt.Errorf("unknown store provider: %s", cfg.Store.Provider)
	}
}

// NewEmbedder 按embedding.provider配置创建嵌入服务
// 启用缓存且Redis可用时包装为缓存嵌入器
func NewEmbedder(cfg *config.Config) (vector.Embedder, error) {
	var embedder vector.Embedder
	switch cfg.Embedding.Provider {
	case "openai":
		embedder = vector.NewOpenAIEmbedder(cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.BaseURL)
	case "dashscope":
		embedder = vector.NewDashScopeEmbedder(cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.BaseURL)
	case "noop":
		embedder = &vector.NoopEmbedder{}
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Embedding.Provider)
	}

	if cfg.Embedding.Cache.Enabled && database.RedisClient != nil {
		ttl := time.Duration(cfg.Embedding.Cache.TTL) * time.Second
		embedder = vector.NewCachedEmbedder(embedder, database.RedisClient, ttl)
	}
	return embedder, nil
}

// NewQueue 按kafka.enabled配置创建事件队列
func NewQueue(cfg *config.Config) (interfaces.QueueInterface, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		return nil, err
	}
	return producer, nil
}
