package middleware

import (
	"strconv"
	"time"

	"github.com/beego/beego/v2/server/web/context"

	"github.com/aihub/vectorstore-go/internal/metrics"
)

const requestStartKey = "metrics_request_start"

// MetricsBefore 记录请求开始时间
func MetricsBefore(ctx *context.Context) {
	ctx.Input.SetData(requestStartKey, time.Now())
}

// MetricsAfter 上报请求计数与耗时
func MetricsAfter(ctx *context.Context) {
	start, ok := ctx.Input.GetData(requestStartKey).(time.Time)
	if !ok {
		return
	}

	// 以路由模板而非实际路径做标签，避免基数爆炸
	path := ctx.Input.GetData("RouterPattern")
	pattern, _ := path.(string)
	if pattern == "" {
		pattern = ctx.Request.URL.Path
	}

	metrics.RecordRequest(
		ctx.Request.Method,
		pattern,
		strconv.Itoa(ctx.ResponseWriter.Status),
		time.Since(start))
}
