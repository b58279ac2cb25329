package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/beego/beego/v2/server/web/context"
	"go.uber.org/zap"

	"github.com/aihub/vectorstore-go/internal/auth"
	"github.com/aihub/vectorstore-go/internal/logger"
)

var authService *auth.Service

// SetupAuth 注入认证服务，必须在路由注册前调用
func SetupAuth(service *auth.Service) {
	authService = service
}

// AuthMiddleware /api/* 的bearer认证过滤器
// 未配置任何凭证时放行全部请求
func AuthMiddleware(ctx *context.Context) {
	if authService == nil || !authService.Enabled() {
		return
	}

	token, ok := auth.ExtractBearer(ctx.Input.Header("Authorization"))
	if !ok {
		writeAuthError(ctx, "missing bearer token")
		return
	}

	if err := authService.ValidateToken(token); err != nil {
		logger.Warn("Rejected request with invalid credentials",
			zap.String("path", ctx.Request.RequestURI),
			zap.String("ip", ctx.Input.IP()))
		writeAuthError(ctx, "invalid credentials")
		return
	}
}

func writeAuthError(ctx *context.Context, message string) {
	ctx.Output.SetStatus(http.StatusUnauthorized)
	ctx.Output.Header("Content-Type", "application/json; charset=utf-8")
	body, _ := json.Marshal(map[string]interface{}{
		"success": false,
		"error": map[string]interface{}{
			"code":    "UNAUTHORIZED",
			"message": message,
		},
	})
	ctx.Output.Body(body)
}
