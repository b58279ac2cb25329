package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ElasticOptions Elasticsearch连接配置
type ElasticOptions struct {
	Addresses []string
	Username  string
	Password  string
	APIKey    string
}

// elasticBackend 基于ES dense_vector的向量存储
// 每个集合一个索引，embedding字段启用kNN，metadata动态映射为keyword
type elasticBackend struct {
	client     *elasticsearch.Client
	indexCache map[string]bool
	mu         sync.Mutex
}

// NewElasticBackend 创建ES向量存储
func NewElasticBackend(opts ElasticOptions) (Backend, error) {
	if len(opts.Addresses) == 0 {
		return nil, fmt.Errorf("elasticsearch addresses required")
	}

	cfg := elasticsearch.Config{
		Addresses: opts.Addresses,
		Username:  opts.Username,
		Password:  opts.Password,
		APIKey:    opts.APIKey,
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	return &elasticBackend{
		client:     client,
		indexCache: make(map[string]bool),
	}, nil
}

func (e *elasticBackend) EnsureCollection(ctx context.Context, collection string, dim int) error {
	e.mu.Lock()
	if e.indexCache[collection] {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	existsReq := esapi.IndicesExistsRequest{
		Index: []string{collection},
	}
	resp, err := existsReq.Do(ctx, e.client)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == 200 {
		e.mu.Lock()
		e.indexCache[collection] = true
		e.mu.Unlock()
		return nil
	}

	mapping := map[string]interface{}{
		"mappings": map[string]interface{}{
			"dynamic_templates": []interface{}{
				map[string]interface{}{
					"metadata_as_keyword": map[string]interface{}{
						"path_match": "metadata.*",
						"mapping":    map[string]interface{}{"type": "keyword"},
					},
				},
			},
			"properties": map[string]interface{}{
				"content":    map[string]interface{}{"type": "text"},
				"metadata":   map[string]interface{}{"type": "object", "dynamic": true},
				"updated_at": map[string]interface{}{"type": "date"},
				"embedding": map[string]interface{}{
					"type":       "dense_vector",
					"dims":       dim,
					"index":      true,
					"similarity": "cosine",
				},
			},
		},
	}

	body, _ := json.Marshal(mapping)
	createReq := esapi.IndicesCreateRequest{
		Index: collection,
		Body:  bytes.NewReader(body),
	}
	createResp, err := createReq.Do(ctx, e.client)
	if err != nil {
		return err
	}
	defer createResp.Body.Close()

	if createResp.IsError() {
		return fmt.Errorf("create index error: %s", createResp.String())
	}

	e.mu.Lock()
	e.indexCache[collection] = true
	e.mu.Unlock()
	return nil
}

func (e *elasticBackend) DropCollection(ctx context.Context, collection string) error {
	req := esapi.IndicesDeleteRequest{
		Index:             []string{collection},
		IgnoreUnavailable: esapi.BoolPtr(true),
	}
	resp, err := req.Do(ctx, e.client)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return fmt.Errorf("delete index error: %s", resp.String())
	}

	e.mu.Lock()
	delete(e.indexCache, collection)
	e.mu.Unlock()
	return nil
}

func (e *elasticBackend) Upsert(ctx context.Context, collection string, records []Record) error {
	for _, rec := range records {
		md := rec.Metadata
		if md == nil {
			md = Metadata{}
		}
		updatedAt := rec.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now()
		}
		doc := map[string]interface{}{
			"content":    rec.Content,
			"metadata":   md,
			"embedding":  rec.Embedding,
			"updated_at": updatedAt.UTC().Format(time.RFC3339Nano),
		}

		payload, _ := json.Marshal(doc)
		req := esapi.IndexRequest{
			Index:      collection,
			DocumentID: rec.ID,
			Body:       bytes.NewReader(payload),
			Refresh:    "true",
		}

		resp, err := req.Do(ctx, e.client)
		if err != nil {
			return err
		}
		if resp.IsError() {
			msg := resp.String()
			resp.Body.Close()
			return fmt.Errorf("index record error: %s", msg)
		}
		resp.Body.Close()
	}
	return nil
}

func (e *elasticBackend) Fetch(ctx context.Context, collection string, id string) (*Record, error) {
	req := esapi.GetRequest{
		Index:      collection,
		DocumentID: id,
	}
	resp, err := req.Do(ctx, e.client)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == 404 {
		return nil, ErrRecordNotFound
	}
	if resp.IsError() {
		return nil, fmt.Errorf("get record error: %s", resp.String())
	}

	var result struct {
		Source struct {
			Content   string    `json:"content"`
			Metadata  Metadata  `json:"metadata"`
			Embedding []float32 `json:"embedding"`
			UpdatedAt time.Time `json:"updated_at"`
		} `json:"_source"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	md := result.Source.Metadata
	if md == nil {
		md = Metadata{}
	}
	return &Record{
		ID:        id,
		Content:   result.Source.Content,
		Metadata:  md,
		Embedding: result.Source.Embedding,
		UpdatedAt: result.Source.UpdatedAt,
	}, nil
}

func (e *elasticBackend) Delete(ctx context.Context, collection string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"ids": map[string]interface{}{
				"values": ids,
			},
		},
	}
	return e.deleteByQuery(ctx, collection, query)
}

func (e *elasticBackend) DeleteByFilter(ctx context.Context, collection string, filter Filter) (int64, error) {
	query := map[string]interface{}{
		"query": e.filterQuery(filter),
	}
	return e.deleteByQuery(ctx, collection, query)
}

func (e *elasticBackend) deleteByQuery(ctx context.Context, collection string, query map[string]interface{}) (int64, error) {
	body, _ := json.Marshal(query)
	req := esapi.DeleteByQueryRequest{
		Index:             []string{collection},
		Body:              bytes.NewReader(body),
		Refresh:           esapi.BoolPtr(true),
		IgnoreUnavailable: esapi.BoolPtr(true),
	}

	resp, err := req.Do(ctx, e.client)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return 0, fmt.Errorf("delete by query error: %s", resp.String())
	}

	var result struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, err
	}
	return result.Deleted, nil
}

func (e *elasticBackend) filterQuery(filter Filter) map[string]interface{} {
	if len(filter) == 0 {
		return map[string]interface{}{"match_all": map[string]interface{}{}}
	}

	must := make([]interface{}, 0, len(filter))
	for key, value := range filter {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{
				"metadata." + key: value,
			},
		})
	}
	return map[string]interface{}{
		"bool": map[string]interface{}{"must": must},
	}
}

func (e *elasticBackend) Query(ctx context.Context, collection string, embedding []float32, topK int, filter Filter) ([]Match, error) {
	if topK <= 0 {
		topK = 10
	}

	knn := map[string]interface{}{
		"field":          "embedding",
		"query_vector":   embedding,
		"k":              topK,
		"num_candidates": topK * 10,
	}
	if len(filter) > 0 {
		knn["filter"] = e.filterQuery(filter)
	}

	body := map[string]interface{}{
		"size":    topK,
		"knn":     knn,
		"_source": []string{"content", "metadata"},
	}

	payload, _ := json.Marshal(body)
	searchReq := esapi.SearchRequest{
		Index:             []string{collection},
		Body:              bytes.NewReader(payload),
		IgnoreUnavailable: esapi.BoolPtr(true),
	}

	resp, err := searchReq.Do(ctx, e.client)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, fmt.Errorf("knn search error: %s", resp.String())
	}

	var result struct {
		Hits struct {
			Hits []struct {
				ID     string  `json:"_id"`
				Score  float64 `json:"_score"`
				Source struct {
					Content  string   `json:"content"`
					Metadata Metadata `json:"metadata"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		md := hit.Source.Metadata
		if md == nil {
			md = Metadata{}
		}
		matches = append(matches, Match{
			ID:       hit.ID,
			Content:  hit.Source.Content,
			Metadata: md,
			Score:    hit.Score,
		})
	}

	// 同分按ID升序
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})

	return matches, nil
}

func (e *elasticBackend) Ready(ctx context.Context) bool {
	req := esapi.PingRequest{}
	resp, err := req.Do(ctx, e.client)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return !resp.IsError()
}
