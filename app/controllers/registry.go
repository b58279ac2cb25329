package controllers

import (
	"github.com/aihub/vectorstore-go/internal/services"
	"github.com/aihub/vectorstore-go/internal/vector"
)

// serviceRegistry 控制器依赖的服务集合
// beego按请求重建控制器实例，服务引用通过Prepare从这里获取
type serviceRegistry struct {
	collections *services.CollectionService
	documents   *services.DocumentService
	search      *services.SearchService
	ingest      *services.IngestService
	backend     vector.Backend
	embedder    vector.Embedder
}

var registry serviceRegistry

// Setup 注入控制器依赖，必须在路由注册前调用
func Setup(collections *services.CollectionService, documents *services.DocumentService, search *services.SearchService, ingest *services.IngestService, backend vector.Backend, embedder vector.Embedder) {
	registry = serviceRegistry{
		collections: collections,
		documents:   documents,
		search:      search,
		ingest:      ingest,
		backend:     backend,
		embedder:    embedder,
	}
}
