package vector

import (
	"context"
	"errors"
)

// ErrRecordNotFound 后端中没有对应记录
var ErrRecordNotFound = errors.New("vector: record not found")

// Backend 向量存储抽象
// 同一文档ID的并发写入由后端自身的单键原子性保证（last-write-wins），
// 存储层不做跨调用加锁
type Backend interface {
	// EnsureCollection 确保后端集合存在，维度在创建后不可变
	EnsureCollection(ctx context.Context, collection string, dim int) error

	// DropCollection 删除后端集合及其全部记录
	DropCollection(ctx context.Context, collection string) error

	// Upsert 写入记录，已存在的ID整体替换（内容、元数据、向量）
	Upsert(ctx context.Context, collection string, records []Record) error

	// Fetch 按ID读取记录，不存在返回ErrRecordNotFound
	Fetch(ctx context.Context, collection string, id string) (*Record, error)

	// Delete 按ID删除记录，返回实际删除条数
	Delete(ctx context.Context, collection string, ids []string) (int64, error)

	// DeleteByFilter 删除满足过滤条件的记录，空过滤删除全部；返回删除条数
	DeleteByFilter(ctx context.Context, collection string, filter Filter) (int64, error)

	// Query 近邻检索，filter限定候选集；结果按Score降序
	Query(ctx context.Context, collection string, embedding []float32, topK int, filter Filter) ([]Match, error)

	// Ready 后端连通性检查
	Ready(ctx context.Context) bool
}
