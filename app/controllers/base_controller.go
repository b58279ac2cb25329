package controllers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/beego/beego/v2/server/web"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	apperrors "github.com/aihub/vectorstore-go/internal/errors"
	"github.com/aihub/vectorstore-go/internal/logger"
)

var validate = validator.New()

// BaseController provides helpers for consistent JSON responses.
type BaseController struct {
	web.Controller
}

// JSON writes a JSON response with the supplied HTTP status code.
func (c *BaseController) JSON(status int, payload interface{}) {
	c.Ctx.Output.SetStatus(status)
	c.Data["json"] = payload
	c.ServeJSON()
}

// JSONSuccess writes a standard success envelope.
func (c *BaseController) JSONSuccess(data interface{}) {
	c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// JSONCreated writes a success envelope with 201 status.
func (c *BaseController) JSONCreated(data interface{}) {
	c.JSON(http.StatusCreated, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// JSONError writes an error envelope with message.
func (c *BaseController) JSONError(status int, code, message string) {
	c.JSON(status, map[string]interface{}{
		"success": false,
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	})
}

// JSONAppError 按错误分类映射HTTP状态与错误码
func (c *BaseController) JSONAppError(err error) {
	appErr := apperrors.GetAppError(err)
	if appErr.Type == apperrors.ErrorTypeSystem {
		logger.Error("Request failed",
			zap.String("path", c.Ctx.Request.RequestURI),
			zap.String("method", c.Ctx.Request.Method),
			zap.String("client_ip", c.getClientIP()),
			zap.Error(err))
	}

	payload := map[string]interface{}{
		"code":    string(appErr.Code),
		"message": appErr.Message,
	}
	if appErr.Details != nil {
		payload["details"] = appErr.Details
	}
	c.JSON(appErr.HTTPCode, map[string]interface{}{
		"success": false,
		"error":   payload,
	})
}

// bindJSON 解析请求体并做结构校验
func (c *BaseController) bindJSON(target interface{}) bool {
	body := c.Ctx.Input.RequestBody
	if len(body) == 0 {
		c.JSONError(http.StatusBadRequest, string(apperrors.ErrCodeValidationFailed), "request body is empty")
		return false
	}
	if err := json.Unmarshal(body, target); err != nil {
		c.JSONError(http.StatusBadRequest, string(apperrors.ErrCodeValidationFailed), "invalid JSON request body")
		return false
	}
	if err := validate.Struct(target); err != nil {
		c.JSONError(http.StatusBadRequest, string(apperrors.ErrCodeValidationFailed), validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field()+" failed "+fe.Tag())
	}
	return "validation failed: " + strings.Join(fields, "; ")
}

// getClientIP 获取客户端真实IP地址
func (c *BaseController) getClientIP() string {
	if xForwardedFor := c.Ctx.Input.Header("X-Forwarded-For"); xForwardedFor != "" {
		ips := strings.Split(xForwardedFor, ",")
		return strings.TrimSpace(ips[0])
	}
	if xRealIP := c.Ctx.Input.Header("X-Real-IP"); xRealIP != "" {
		return xRealIP
	}
	return c.Ctx.Input.IP()
}
