package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// memoryBackend 进程内向量存储
// 用于开发模式与测试，余弦相似度暴力检索
type memoryBackend struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	dim     int
	records map[string]Record
}

// NewMemoryBackend 创建内存向量存储
func NewMemoryBackend() Backend {
	return &memoryBackend{
		collections: make(map[string]*memoryCollection),
	}
}

func (b *memoryBackend) EnsureCollection(ctx context.Context, collection string, dim int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.collections[collection]; ok {
		if existing.dim != dim {
			return fmt.Errorf("collection %s exists with dimension %d, requested %d", collection, existing.dim, dim)
		}
		return nil
	}
	b.collections[collection] = &memoryCollection{
		dim:     dim,
		records: make(map[string]Record),
	}
	return nil
}

func (b *memoryBackend) DropCollection(ctx context.Context, collection string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.collections, collection)
	return nil
}

func (b *memoryBackend) Upsert(ctx context.Context, collection string, records []Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	col, ok := b.collections[collection]
	if !ok {
		return fmt.Errorf("collection %s does not exist", collection)
	}
	for _, rec := range records {
		if len(rec.Embedding) != col.dim {
			return fmt.Errorf("embedding dimension %d does not match collection dimension %d", len(rec.Embedding), col.dim)
		}
		if rec.UpdatedAt.IsZero() {
			rec.UpdatedAt = time.Now()
		}
		col.records[rec.ID] = cloneRecord(rec)
	}
	return nil
}

func (b *memoryBackend) Fetch(ctx context.Context, collection string, id string) (*Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	col, ok := b.collections[collection]
	if !ok {
		return nil, ErrRecordNotFound
	}
	rec, ok := col.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	out := cloneRecord(rec)
	return &out, nil
}

func (b *memoryBackend) Delete(ctx context.Context, collection string, ids []string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	col, ok := b.collections[collection]
	if !ok {
		return 0, nil
	}
	var deleted int64
	for _, id := range ids {
		if _, ok := col.records[id]; ok {
			delete(col.records, id)
			deleted++
		}
	}
	return deleted, nil
}

func (b *memoryBackend) DeleteByFilter(ctx context.Context, collection string, filter Filter) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	col, ok := b.collections[collection]
	if !ok {
		return 0, nil
	}
	var deleted int64
	for id, rec := range col.records {
		if filter.Matches(rec.Metadata) {
			delete(col.records, id)
			deleted++
		}
	}
	return deleted, nil
}

func (b *memoryBackend) Query(ctx context.Context, collection string, embedding []float32, topK int, filter Filter) ([]Match, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	col, ok := b.collections[collection]
	if !ok {
		return []Match{}, nil
	}
	if len(embedding) != col.dim {
		return nil, fmt.Errorf("query dimension %d does not match collection dimension %d", len(embedding), col.dim)
	}

	matches := make([]Match, 0, len(col.records))
	for _, rec := range col.records {
		if !filter.Matches(rec.Metadata) {
			continue
		}
		matches = append(matches, Match{
			ID:       rec.ID,
			Content:  rec.Content,
			Metadata: cloneMetadata(rec.Metadata),
			Score:    cosineSimilarity(embedding, rec.Embedding),
		})
	}

	// 降序排序，同分按ID升序保证确定性
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})

	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (b *memoryBackend) Ready(ctx context.Context) bool {
	return true
}

// cosineSimilarity 余弦相似度，零向量返回0
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func cloneRecord(rec Record) Record {
	out := rec
	out.Metadata = cloneMetadata(rec.Metadata)
	out.Embedding = make([]float32, len(rec.Embedding))
	copy(out.Embedding, rec.Embedding)
	return out
}

func cloneMetadata(md Metadata) Metadata {
	if md == nil {
		return nil
	}
	out := make(Metadata, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
