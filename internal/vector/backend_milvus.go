package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// MilvusOptions Milvus客户端配置
type MilvusOptions struct {
	Address  string
	Username string
	Password string
	Database string
	UseTLS   bool
	Timeout  time.Duration
}

type milvusBackend struct {
	milvusClient client.Client
}

// NewMilvusBackend 创建Milvus向量存储
func NewMilvusBackend(opts MilvusOptions) (Backend, error) {
	if opts.Address == "" {
		opts.Address = "localhost:19530"
	}
	if opts.Database == "" {
		opts.Database = "default"
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	milvusClient, err := client.NewClient(ctx, client.Config{
		Address:       opts.Address,
		DBName:        opts.Database,
		Username:      opts.Username,
		Password:      opts.Password,
		EnableTLSAuth: opts.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	return &milvusBackend{milvusClient: milvusClient}, nil
}

func (b *milvusBackend) EnsureCollection(ctx context.Context, collection string, dim int) error {
	hasCollection, err := b.milvusClient.HasCollection(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if hasCollection {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: collection,
		Description:    "document vectors",
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": "256"},
			},
			{
				Name:       "content",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "65535"},
			},
			{
				Name:     "metadata",
				DataType: entity.FieldTypeJSON,
			},
			{
				Name:       "updated_at",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "vector",
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": fmt.Sprintf("%d", dim)},
			},
		},
	}

	if err := b.milvusClient.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	// HNSW失败时退回IVF_FLAT
	var index entity.Index
	hnsw, indexErr := entity.NewIndexHNSW(entity.COSINE, 8, 64)
	if indexErr != nil {
		ivf, ivfErr := entity.NewIndexIvfFlat(entity.COSINE, 128)
		if ivfErr != nil {
			return fmt.Errorf("failed to create index: %w", ivfErr)
		}
		index = ivf
	} else {
		index = hnsw
	}
	if err := b.milvusClient.CreateIndex(ctx, collection, "vector", index, false); err != nil {
		return fmt.Errorf("failed to create index for collection %s: %w", collection, err)
	}

	if err := b.milvusClient.LoadCollection(ctx, collection, false); err != nil {
		return fmt.Errorf("failed to load collection %s: %w", collection, err)
	}
	return nil
}

func (b *milvusBackend) DropCollection(ctx context.Context, collection string) error {
	hasCollection, err := b.milvusClient.HasCollection(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !hasCollection {
		return nil
	}
	if err := b.milvusClient.DropCollection(ctx, collection); err != nil {
		return fmt.Errorf("milvus drop collection failed: %w", err)
	}
	return nil
}

func (b *milvusBackend) Upsert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]string, 0, len(records))
	contents := make([]string, 0, len(records))
	metadatas := make([][]byte, 0, len(records))
	updatedAts := make([]string, 0, len(records))
	vectors := make([][]float32, 0, len(records))

	dim := len(records[0].Embedding)
	for _, rec := range records {
		if len(rec.Embedding) != dim {
			return fmt.Errorf("inconsistent embedding dimensions in batch: %d and %d", dim, len(rec.Embedding))
		}
		md := rec.Metadata
		if md == nil {
			md = Metadata{}
		}
		mdBytes, err := json.Marshal(md)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		updatedAt := rec.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now()
		}
		ids = append(ids, rec.ID)
		contents = append(contents, rec.Content)
		metadatas = append(metadatas, mdBytes)
		updatedAts = append(updatedAts, updatedAt.UTC().Format(time.RFC3339Nano))
		vectors = append(vectors, rec.Embedding)
	}

	_, err := b.milvusClient.Upsert(ctx, collection, "",
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnJSONBytes("metadata", metadatas),
		entity.NewColumnVarChar("updated_at", updatedAts),
		entity.NewColumnFloatVector("vector", dim, vectors),
	)
	if err != nil {
		return fmt.Errorf("milvus upsert failed: %w", err)
	}

	if err := b.milvusClient.Flush(ctx, collection, false); err != nil {
		return fmt.Errorf("milvus flush failed: %w", err)
	}
	return nil
}

func (b *milvusBackend) Fetch(ctx context.Context, collection string, id string) (*Record, error) {
	expr := fmt.Sprintf("id == %s", milvusQuote(id))
	rs, err := b.milvusClient.Query(ctx, collection, nil, expr,
		[]string{"id", "content", "metadata", "updated_at"})
	if err != nil {
		return nil, fmt.Errorf("milvus query failed: %w", err)
	}

	records := milvusResultToRecords(rs)
	if len(records) == 0 {
		return nil, ErrRecordNotFound
	}
	return &records[0], nil
}

func (b *milvusBackend) Delete(ctx context.Context, collection string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	quoted := make([]string, 0, len(ids))
	for _, id := range ids {
		quoted = append(quoted, milvusQuote(id))
	}
	expr := fmt.Sprintf("id in [%s]", strings.Join(quoted, ", "))

	// 删除接口不返回条数，先查出存在的记录
	rs, err := b.milvusClient.Query(ctx, collection, nil, expr, []string{"id"})
	if err != nil {
		return 0, fmt.Errorf("milvus query failed: %w", err)
	}
	existing := milvusRowCount(rs)
	if existing == 0 {
		return 0, nil
	}

	if err := b.milvusClient.Delete(ctx, collection, "", expr); err != nil {
		return 0, fmt.Errorf("milvus delete failed: %w", err)
	}
	if err := b.milvusClient.Flush(ctx, collection, false); err != nil {
		return 0, fmt.Errorf("milvus flush failed: %w", err)
	}
	return existing, nil
}

func (b *milvusBackend) DeleteByFilter(ctx context.Context, collection string, filter Filter) (int64, error) {
	expr := buildMilvusFilter(filter)
	if expr == "" {
		// 空过滤删除全部
		expr = `id != ""`
	}

	rs, err := b.milvusClient.Query(ctx, collection, nil, expr, []string{"id"})
	if err != nil {
		return 0, fmt.Errorf("milvus query failed: %w", err)
	}
	matched := milvusRowCount(rs)
	if matched == 0 {
		return 0, nil
	}

	if err := b.milvusClient.Delete(ctx, collection, "", expr); err != nil {
		return 0, fmt.Errorf("milvus delete failed: %w", err)
	}
	if err := b.milvusClient.Flush(ctx, collection, false); err != nil {
		return 0, fmt.Errorf("milvus flush failed: %w", err)
	}
	return matched, nil
}

func (b *milvusBackend) Query(ctx context.Context, collection string, embedding []float32, topK int, filter Filter) ([]Match, error) {
	if len(embedding) == 0 {
		return []Match{}, nil
	}
	if topK <= 0 {
		topK = 10
	}

	sp, _ := entity.NewIndexHNSWSearchParam(64)
	expr := buildMilvusFilter(filter)
	searchResults, err := b.milvusClient.Search(
		ctx,
		collection,
		nil,
		expr,
		[]string{"id", "content", "metadata"},
		[]entity.Vector{entity.FloatVector(embedding)},
		"vector",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}
	if len(searchResults) == 0 {
		return []Match{}, nil
	}
	result := searchResults[0]
	if result.Err != nil {
		return nil, fmt.Errorf("milvus search error: %w", result.Err)
	}
	if result.ResultCount == 0 {
		return []Match{}, nil
	}

	var ids []string
	var contents []string
	var metadatas [][]byte
	for _, field := range result.Fields {
		switch field.Name() {
		case "id":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				ids = col.Data()
			}
		case "content":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				contents = col.Data()
			}
		case "metadata":
			if col, ok := field.(*entity.ColumnJSONBytes); ok {
				metadatas = col.Data()
			}
		}
	}

	matches := make([]Match, 0, result.ResultCount)
	for i := 0; i < result.ResultCount; i++ {
		m := Match{Metadata: Metadata{}}
		if i < len(ids) {
			m.ID = ids[i]
		}
		if i < len(contents) {
			m.Content = contents[i]
		}
		if i < len(metadatas) {
			json.Unmarshal(metadatas[i], &m.Metadata)
		}
		if i < len(result.Scores) {
			m.Score = float64(result.Scores[i])
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func (b *milvusBackend) Ready(ctx context.Context) bool {
	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := b.milvusClient.ListCollections(reqCtx)
	return err == nil
}

// Close 关闭Milvus连接
func (b *milvusBackend) Close() error {
	return b.milvusClient.Close()
}

// buildMilvusFilter 构建JSON字段等值过滤表达式
func buildMilvusFilter(filter Filter) string {
	if len(filter) == 0 {
		return ""
	}
	conditions := make([]string, 0, len(filter))
	for k, v := range filter {
		conditions = append(conditions, fmt.Sprintf(`metadata[%s] == %s`, milvusQuote(k), milvusQuote(v)))
	}
	sort.Strings(conditions)
	return strings.Join(conditions, " and ")
}

func milvusQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func milvusResultToRecords(rs client.ResultSet) []Record {
	var ids, contents, updatedAts []string
	var metadatas [][]byte
	for _, col := range rs {
		switch col.Name() {
		case "id":
			if c, ok := col.(*entity.ColumnVarChar); ok {
				ids = c.Data()
			}
		case "content":
			if c, ok := col.(*entity.ColumnVarChar); ok {
				contents = c.Data()
			}
		case "metadata":
			if c, ok := col.(*entity.ColumnJSONBytes); ok {
				metadatas = c.Data()
			}
		case "updated_at":
			if c, ok := col.(*entity.ColumnVarChar); ok {
				updatedAts = c.Data()
			}
		}
	}

	records := make([]Record, 0, len(ids))
	for i := range ids {
		rec := Record{ID: ids[i], Metadata: Metadata{}}
		if i < len(contents) {
			rec.Content = contents[i]
		}
		if i < len(metadatas) {
			json.Unmarshal(metadatas[i], &rec.Metadata)
		}
		if i < len(updatedAts) {
			if t, err := time.Parse(time.RFC3339Nano, updatedAts[i]); err == nil {
				rec.UpdatedAt = t
			}
		}
		records = append(records, rec)
	}
	return records
}

func milvusRowCount(rs client.ResultSet) int64 {
	for _, col := range rs {
		if col.Name() == "id" {
			return int64(col.Len())
		}
	}
	return 0
}
