package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// pgvectorBackend PostgreSQL + pgvector向量存储
// 每个集合一张表，维度固化在vector列类型上
type pgvectorBackend struct {
	pool *pgxpool.Pool
}

// NewPgvectorBackend 创建pgvector向量存储
func NewPgvectorBackend(ctx context.Context, connStr string) (Backend, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse pgvector config: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgvector pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pgvector: %w", err)
	}

	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create vector extension: %w", err)
	}

	return &pgvectorBackend{pool: pool}, nil
}

func (b *pgvectorBackend) EnsureCollection(ctx context.Context, collection string, dim int) error {
	// collection名已规范化为合法标识符
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		id text PRIMARY KEY,
		content text NOT NULL,
		metadata jsonb NOT NULL DEFAULT '{}',
		embedding vector(%d) NOT NULL,
		updated_at timestamptz NOT NULL DEFAULT now()
	)`, collection, dim)
	if _, err := b.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create collection table: %w", err)
	}

	indexQuery := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %q ON %q USING hnsw (embedding vector_cosine_ops)`,
		collection+"_embedding_idx", collection)
	if _, err := b.pool.Exec(ctx, indexQuery); err != nil {
		return fmt.Errorf("create embedding index: %w", err)
	}
	return nil
}

func (b *pgvectorBackend) DropCollection(ctx context.Context, collection string) error {
	query := fmt.Sprintf(`DROP TABLE IF EXISTS %q`, collection)
	if _, err := b.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("drop collection table: %w", err)
	}
	return nil
}

func (b *pgvectorBackend) Upsert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	query := fmt.Sprintf(`INSERT INTO %q (id, content, metadata, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			updated_at = EXCLUDED.updated_at`, collection)

	batch := &pgx.Batch{}
	for _, rec := range records {
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
		batch.Queue(query, rec.ID, rec.Content, mdBytes, pgvector.NewVector(rec.Embedding), updatedAt)
	}

	results := b.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("pgvector upsert failed: %w", err)
		}
	}
	return nil
}

func (b *pgvectorBackend) Fetch(ctx context.Context, collection string, id string) (*Record, error) {
	query := fmt.Sprintf(
		`SELECT id, content, metadata, embedding, updated_at FROM %q WHERE id = $1`, collection)

	var rec Record
	var mdBytes []byte
	var embedding pgvector.Vector
	err := b.pool.QueryRow(ctx, query, id).Scan(&rec.ID, &rec.Content, &mdBytes, &embedding, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("pgvector fetch failed: %w", err)
	}

	rec.Embedding = embedding.Slice()
	rec.Metadata = Metadata{}
	if err := json.Unmarshal(mdBytes, &rec.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &rec, nil
}

func (b *pgvectorBackend) Delete(ctx context.Context, collection string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`DELETE FROM %q WHERE id = ANY($1)`, collection)
	tag, err := b.pool.Exec(ctx, query, ids)
	if err != nil {
		return 0, fmt.Errorf("pgvector delete failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (b *pgvectorBackend) DeleteByFilter(ctx context.Context, collection string, filter Filter) (int64, error) {
	if len(filter) == 0 {
		query := fmt.Sprintf(`DELETE FROM %q`, collection)
		tag, err := b.pool.Exec(ctx, query)
		if err != nil {
			return 0, fmt.Errorf("pgvector delete failed: %w", err)
		}
		return tag.RowsAffected(), nil
	}

	filterBytes, err := json.Marshal(filter)
	if err != nil {
		return 0, fmt.Errorf("marshal filter: %w", err)
	}
	// jsonb包含即全部键值对等值匹配
	query := fmt.Sprintf(`DELETE FROM %q WHERE metadata @> $1::jsonb`, collection)
	tag, err := b.pool.Exec(ctx, query, filterBytes)
	if err != nil {
		return 0, fmt.Errorf("pgvector delete by filter failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (b *pgvectorBackend) Query(ctx context.Context, collection string, embedding []float32, topK int, filter Filter) ([]Match, error) {
	if topK <= 0 {
		topK = 10
	}

	// 余弦距离换算为相似度，越大越相似
	query := fmt.Sprintf(`SELECT id, content, metadata, 1 - (embedding <=> $1) AS score
		FROM %q`, collection)
	args := []interface{}{pgvector.NewVector(embedding)}

	if len(filter) > 0 {
		filterBytes, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("marshal filter: %w", err)
		}
		query += ` WHERE metadata @> $2::jsonb`
		args = append(args, filterBytes)
	}
	query += fmt.Sprintf(` ORDER BY embedding <=> $1 ASC, id ASC LIMIT %d`, topK)

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector search failed: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var mdBytes []byte
		if err := rows.Scan(&m.ID, &m.Content, &mdBytes, &m.Score); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		m.Metadata = Metadata{}
		if err := json.Unmarshal(mdBytes, &m.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search results: %w", err)
	}
	if matches == nil {
		matches = []Match{}
	}
	return matches, nil
}

func (b *pgvectorBackend) Ready(ctx context.Context) bool {
	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return b.pool.Ping(reqCtx) == nil
}

// Close 关闭连接池
func (b *pgvectorBackend) Close() error {
	b.pool.Close()
	return nil
}
