package router

import (
	"github.com/beego/beego/v2/server/web"

	"github.com/aihub/vectorstore-go/app/controllers"
	"github.com/aihub/vectorstore-go/app/middleware"
)

// Init registers all routes. Must be called after controllers.Setup.
func Init() {
	web.Router("/", &controllers.RootController{}, "get:Index")
	web.Router("/health", &controllers.HealthController{}, "get:Health")
	web.Router("/metrics", &controllers.MetricsController{}, "get:Metrics")

	// /api/* 统一走bearer认证
	web.InsertFilter("/api/*", web.BeforeRouter, middleware.AuthMiddleware)
	web.InsertFilter("/*", web.BeforeRouter, middleware.MetricsBefore)
	web.InsertFilter("/*", web.FinishRouter, middleware.MetricsAfter, web.WithReturnOnOutput(false))

	collectionController := &controllers.CollectionController{}
	web.Router("/api/collections", collectionController, "get:List;post:Create")
	web.Router("/api/collections/:id", collectionController, "get:Get;patch:Update;delete:Delete")

	documentController := &controllers.DocumentController{}
	web.Router("/api/collections/:id/documents", documentController, "post:Upsert;patch:Update")
	// 注意：具体路由必须在:doc_id参数路由之前注册
	web.Router("/api/collections/:id/documents/delete-by-filter", documentController, "post:DeleteByFilter")

	searchController := &controllers.SearchController{}
	web.Router("/api/collections/:id/documents/search", searchController, "post:Search")

	ingestController := &controllers.IngestController{}
	web.Router("/api/collections/:id/documents/chunk-file", ingestController, "post:ChunkFile")

	web.Router("/api/collections/:id/documents/:doc_id", documentController, "get:Get;delete:Delete")
}
