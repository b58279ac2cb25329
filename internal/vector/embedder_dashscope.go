package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/aihub/vectorstore-go/internal/errors"
	"github.com/aihub/vectorstore-go/internal/logger"
)

const dashscopeDefaultBaseURL = "https://dashscope.aliyuncs.com"

// 千问Embedding模型维度映射
var dashscopeEmbeddingDimensions = map[string]int{
	"text-embedding-v1": 1536,
	"text-embedding-v2": 1536,
	"text-embedding-v3": 1536,
	"text-embedding-v4": 1536,
}

// DashScopeEmbedder 使用阿里云DashScope Embedding API（OpenAI兼容模式）
type DashScopeEmbedder struct {
	apiKey     string
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
}

type dashscopeEmbeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
	Dimensions     *int     `json:"dimensions,omitempty"`
}

type dashscopeEmbeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type dashscopeError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// NewDashScopeEmbedder 创建DashScope嵌入向量生成器
func NewDashScopeEmbedder(apiKey, model, baseURL string) Embedder {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return &NoopEmbedder{}
	}
	if model == "" {
		model = "text-embedding-v1"
	}
	if baseURL = strings.TrimSpace(baseURL); baseURL == "" {
		baseURL = dashscopeDefaultBaseURL
	}

	dims, ok := dashscopeEmbeddingDimensions[model]
	if !ok {
		dims = 1536
	}

	return &DashScopeEmbedder{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		dimensions: dims,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (e *DashScopeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewValidationError("text is empty")
	}

	req := dashscopeEmbeddingRequest{
		Model:          e.model,
		Input:          []string{text},
		EncodingFormat: "float",
	}
	// v3和v4模型支持自定义维度
	if e.model == "text-embedding-v3" || e.model == "text-embedding-v4" {
		req.Dimensions = &e.dimensions
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	url := fmt.Sprintf("%s/compatible-mode/v1/embeddings", e.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", e.apiKey))

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, apperrors.NewBackendError(apperrors.ErrCodeEmbeddingFailed, err.Error(), true)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, apperrors.NewRateLimitError("embedding provider rate limited")
	}
	if resp.StatusCode != http.StatusOK {
		var errorResp dashscopeError
		if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Message != "" {
			return nil, apperrors.NewBackendError(apperrors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("DashScope API错误: %s (code: %s, request_id: %s)",
					errorResp.Message, errorResp.Code, errorResp.RequestID),
				resp.StatusCode >= 500)
		}
		return nil, apperrors.NewBackendError(apperrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("DashScope API错误: HTTP %d - %s", resp.StatusCode, string(body)),
			resp.StatusCode >= 500)
	}

	var embeddingResp dashscopeEmbeddingResponse
	if err := json.Unmarshal(body, &embeddingResp); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}
	if len(embeddingResp.Data) == 0 {
		return nil, apperrors.NewBackendError(apperrors.ErrCodeEmbeddingFailed, "embedding response empty", false)
	}

	logger.Debug("DashScope CreateEmbeddings success",
		zap.String("model", e.model),
		zap.Int("total_tokens", embeddingResp.Usage.TotalTokens))

	// 转换float64到float32
	embedding := embeddingResp.Data[0].Embedding
	result := make([]float32, len(embedding))
	for i, v := range embedding {
		result[i] = float32(v)
	}
	return result, nil
}

func (e *DashScopeEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *DashScopeEmbedder) Ready() bool {
	return e.client != nil
}
