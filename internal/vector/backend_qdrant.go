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

	"github.com/google/uuid"
)

// QdrantOptions Qdrant客户端配置
type QdrantOptions struct {
	Endpoint string
	APIKey   string
	UseTLS   bool
	Timeout  time.Duration
}

type qdrantBackend struct {
	client   *http.Client
	endpoint string
	apiKey   string
}

// qdrant point id必须是UUID或无符号整数
// 文档ID任意字符串，用确定性UUIDv5映射，原始ID存在payload里
var qdrantIDNamespace = uuid.MustParse("9a3e7f10-4cfb-4f6e-9d3a-52f1c0ffee00")

// NewQdrantBackend 创建Qdrant向量存储
func NewQdrantBackend(opts QdrantOptions) (Backend, error) {
	if opts.Endpoint == "" {
		scheme := "http"
		if opts.UseTLS {
			scheme = "https"
		}
		opts.Endpoint = fmt.Sprintf("%s://localhost:6333", scheme)
	}
	if !strings.HasPrefix(opts.Endpoint, "http") {
		scheme := "http"
		if opts.UseTLS {
			scheme = "https"
		}
		opts.Endpoint = fmt.Sprintf("%s://%s", scheme, opts.Endpoint)
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &qdrantBackend{
		client:   &http.Client{Timeout: timeout},
		endpoint: strings.TrimSuffix(opts.Endpoint, "/"),
		apiKey:   opts.APIKey,
	}, nil
}

func qdrantPointID(id string) string {
	return uuid.NewSHA1(qdrantIDNamespace, []byte(id)).String()
}

func (b *qdrantBackend) EnsureCollection(ctx context.Context, collection string, dim int) error {
	resp, err := b.doRequest(ctx, http.MethodGet, fmt.Sprintf("/collections/%s", collection), nil)
	if err == nil && resp.StatusCode == http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil
	}
	if resp != nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     dim,
			"distance": "Cosine",
		},
	}
	resp, err = b.doRequest(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", collection), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("create collection %s failed: %s", collection, resp.Status)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (b *qdrantBackend) DropCollection(ctx context.Context, collection string) error {
	resp, err := b.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/collections/%s", collection), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("drop collection %s failed: %s", collection, resp.Status)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (b *qdrantBackend) Upsert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		updatedAt := rec.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now()
		}
		payload := map[string]interface{}{
			"_id":        rec.ID,
			"content":    rec.Content,
			"updated_at": updatedAt.UTC().Format(time.RFC3339Nano),
		}
		for k, v := range rec.Metadata {
			payload["md_"+k] = v
		}
		points = append(points, map[string]interface{}{
			"id":      qdrantPointID(rec.ID),
			"vector":  rec.Embedding,
			"payload": payload,
		})
	}

	body := map[string]interface{}{"points": points}
	resp, err := b.doRequest(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", collection), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant upsert failed: %s", readQdrantError(resp))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (b *qdrantBackend) Fetch(ctx context.Context, collection string, id string) (*Record, error) {
	body := map[string]interface{}{
		"ids":          []string{qdrantPointID(id)},
		"with_payload": true,
		"with_vector":  true,
	}
	resp, err := b.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points", collection), body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("qdrant retrieve failed: %s", readQdrantError(resp))
	}

	var parsed struct {
		Result []qdrantPoint `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode qdrant response: %w", err)
	}
	if len(parsed.Result) == 0 {
		return nil, ErrRecordNotFound
	}
	rec := parsed.Result[0].toRecord()
	return &rec, nil
}

func (b *qdrantBackend) Delete(ctx context.Context, collection string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	// qdrant删除接口不返回条数，先检索确认存在的点
	pointIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrantPointID(id))
	}
	retrieveBody := map[string]interface{}{"ids": pointIDs}
	resp, err := b.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points", collection), retrieveBody)
	if err != nil {
		return 0, err
	}
	var parsed struct {
		Result []qdrantPoint `json:"result"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)
	resp.Body.Close()
	if decodeErr != nil {
		return 0, fmt.Errorf("decode qdrant response: %w", decodeErr)
	}
	existing := int64(len(parsed.Result))
	if existing == 0 {
		return 0, nil
	}

	deleteBody := map[string]interface{}{"points": pointIDs}
	resp, err = b.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/delete?wait=true", collection), deleteBody)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("qdrant delete failed: %s", readQdrantError(resp))
	}
	io.Copy(io.Discard, resp.Body)
	return existing, nil
}

func (b *qdrantBackend) DeleteByFilter(ctx context.Context, collection string, filter Filter) (int64, error) {
	qdrantFilter := buildQdrantFilter(filter)

	// 先精确计数再删除
	countBody := map[string]interface{}{"exact": true}
	if qdrantFilter != nil {
		countBody["filter"] = qdrantFilter
	}
	resp, err := b.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/count", collection), countBody)
	if err != nil {
		return 0, err
	}
	var counted struct {
		Result struct {
			Count int64 `json:"count"`
		} `json:"result"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&counted)
	resp.Body.Close()
	if decodeErr != nil {
		return 0, fmt.Errorf("decode qdrant count: %w", decodeErr)
	}
	if counted.Result.Count == 0 {
		return 0, nil
	}

	deleteBody := map[string]interface{}{}
	if qdrantFilter != nil {
		deleteBody["filter"] = qdrantFilter
	} else {
		// 空过滤删除全部
		deleteBody["filter"] = map[string]interface{}{}
	}
	resp, err = b.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/delete?wait=true", collection), deleteBody)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("qdrant delete by filter failed: %s", readQdrantError(resp))
	}
	io.Copy(io.Discard, resp.Body)
	return counted.Result.Count, nil
}

func (b *qdrantBackend) Query(ctx context.Context, collection string, embedding []float32, topK int, filter Filter) ([]Match, error) {
	if topK <= 0 {
		topK = 10
	}
	body := map[string]interface{}{
		"vector":       embedding,
		"limit":        topK,
		"with_payload": true,
	}
	if f := buildQdrantFilter(filter); f != nil {
		body["filter"] = f
	}

	resp, err := b.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", collection), body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("qdrant search failed: %s", readQdrantError(resp))
	}

	var parsed struct {
		Result []struct {
			qdrantPoint
			Score float64 `json:"score"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode qdrant search response: %w", err)
	}

	matches := make([]Match, 0, len(parsed.Result))
	for _, hit := range parsed.Result {
		rec := hit.toRecord()
		matches = append(matches, Match{
			ID:       rec.ID,
			Content:  rec.Content,
			Metadata: rec.Metadata,
			Score:    hit.Score,
		})
	}
	return matches, nil
}

func (b *qdrantBackend) Ready(ctx context.Context) bool {
	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	resp, err := b.doRequest(reqCtx, http.MethodGet, "/collections", nil)
	if err != nil {
		return false
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// qdrantPoint 检索/查询返回的点结构
type qdrantPoint struct {
	Payload map[string]interface{} `json:"payload"`
	Vector  []float32              `json:"vector"`
}

func (p qdrantPoint) toRecord() Record {
	rec := Record{
		Embedding: p.Vector,
		Metadata:  Metadata{},
	}
	for k, v := range p.Payload {
		switch {
		case k == "_id":
			rec.ID, _ = v.(string)
		case k == "content":
			rec.Content, _ = v.(string)
		case k == "updated_at":
			if s, ok := v.(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
					rec.UpdatedAt = t
				}
			}
		case strings.HasPrefix(k, "md_"):
			if s, ok := v.(string); ok {
				rec.Metadata[strings.TrimPrefix(k, "md_")] = s
			}
		}
	}
	return rec
}

func buildQdrantFilter(filter Filter) map[string]interface{} {
	if len(filter) == 0 {
		return nil
	}
	must := make([]map[string]interface{}, 0, len(filter))
	for k, v := range filter {
		must = append(must, map[string]interface{}{
			"key":   "md_" + k,
			"match": map[string]interface{}{"value": v},
		})
	}
	return map[string]interface{}{"must": must}
}

func (b *qdrantBackend) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal qdrant request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.endpoint+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("api-key", b.apiKey)
	}
	return b.client.Do(req)
}

func readQdrantError(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if len(data) == 0 {
		return resp.Status
	}
	return fmt.Sprintf("%s: %s", resp.Status, string(data))
}
