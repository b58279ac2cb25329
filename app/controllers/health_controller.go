package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/aihub/vectorstore-go/internal/database"
	"github.com/aihub/vectorstore-go/internal/metrics"
)

// RootController 根路径
type RootController struct {
	BaseController
}

// GET /
func (c *RootController) Index() {
	c.JSONSuccess(map[string]interface{}{
		"service": "vectorstore",
		"status":  "running",
	})
}

// HealthController 健康检查
type HealthController struct {
	BaseController
}

// GET /health
func (c *HealthController) Health() {
	ctx, cancel := context.WithTimeout(c.Ctx.Request.Context(), 3*time.Second)
	defer cancel()

	components := map[string]string{}
	healthy := true

	if database.DB != nil {
		if sqlDB, err := database.DB.DB(); err == nil && sqlDB.PingContext(ctx) == nil {
			components["database"] = "healthy"
		} else {
			components["database"] = "unhealthy"
			healthy = false
		}
	} else {
		components["database"] = "not_configured"
	}

	if database.RedisClient != nil {
		if err := database.RedisClient.Ping(ctx).Err(); err == nil {
			components["redis"] = "healthy"
		} else {
			components["redis"] = "unhealthy"
		}
	} else {
		components["redis"] = "not_configured"
	}

	if registry.backend != nil {
		if registry.backend.Ready(ctx) {
			components["vector_backend"] = "healthy"
		} else {
			components["vector_backend"] = "unhealthy"
			healthy = false
		}
	}

	if registry.embedder != nil && registry.embedder.Ready() {
		components["embedder"] = "healthy"
	} else {
		components["embedder"] = "not_configured"
	}

	status := http.StatusOK
	overall := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "unhealthy"
	}

	c.JSON(status, map[string]interface{}{
		"status":     overall,
		"components": components,
		"timestamp":  time.Now().Format(time.RFC3339),
	})
}

// MetricsController Prometheus指标导出
type MetricsController struct {
	BaseController
}

// GET /metrics
func (c *MetricsController) Metrics() {
	metrics.Handler().ServeHTTP(c.Ctx.ResponseWriter, c.Ctx.Request)
}
