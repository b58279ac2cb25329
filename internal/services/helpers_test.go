package services

import (
	"context"
	"sort"
	"sync"

	"gorm.io/gorm"

	"github.com/aihub/vectorstore-go/internal/models"
	"github.com/aihub/vectorstore-go/internal/vector"
)

// fakeCollectionRepo 内存版集合目录仓库
type fakeCollectionRepo struct {
	mu   sync.Mutex
	byID map[string]*models.Collection
}

func newFakeCollectionRepo() *fakeCollectionRepo {
	return &fakeCollectionRepo{byID: map[string]*models.Collection{}}
}

func (r *fakeCollectionRepo) Create(ctx context.Context, c *models.Collection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *c
	r.byID[c.ID] = &clone
	return nil
}

func (r *fakeCollectionRepo) GetByID(ctx context.Context, id string) (*models.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byID[id]; ok {
		clone := *c
		return &clone, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeCollectionRepo) GetByName(ctx context.Context, name string) (*models.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.byID {
		if c.Name == name {
			clone := *c
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeCollectionRepo) List(ctx context.Context) ([]models.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Collection, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeCollectionRepo) Update(ctx context.Context, id string, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if name, ok := updates["name"].(string); ok {
		c.Name = name
	}
	if desc, ok := updates["description"].(string); ok {
		c.Description = desc
	}
	return nil
}

func (r *fakeCollectionRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.byID, id)
	return nil
}

// fakeEmbedder 返回固定维度的确定性向量
type fakeEmbedder struct {
	dim   int
	err   error
	calls int
	mu    sync.Mutex
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	out := make([]float32, e.dim)
	for i := range out {
		out[i] = float32((len(text)+i)%7) + 0.5
	}
	return out, nil
}

func (e *fakeEmbedder) Dimensions() int { return e.dim }
func (e *fakeEmbedder) Ready() bool     { return e.dim > 0 }

func (e *fakeEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// fakeQueue 记录发布的事件类型
type fakeQueue struct {
	mu     sync.Mutex
	events []string
}

func (q *fakeQueue) Publish(ctx context.Context, eventType string, payload interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, eventType)
	return nil
}

func (q *fakeQueue) Close() error { return nil }

func (q *fakeQueue) published() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.events...)
}

// newTestStack 组装基于内存后端的服务栈
func newTestStack(dim int) (*CollectionService, *DocumentService, *SearchService, vector.Backend) {
	repo := newFakeCollectionRepo()
	backend := vector.NewMemoryBackend()
	embedder := &fakeEmbedder{dim: dim}

	collections := NewCollectionService(repo, backend, embedder, nil, "vs")
	documents := NewDocumentService(collections, backend, embedder, nil, DocumentServiceOptions{})
	search := NewSearchService(collections, backend, embedder, 5)
	return collections, documents, search, backend
}
