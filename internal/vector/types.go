package vector

import (
	"strings"
	"time"
)

// Metadata 文档元数据，扁平的string键值对
// 只支持等值过滤，不保证范围/否定语义（跨后端统一的最小约定）
type Metadata map[string]string

// Filter 元数据过滤条件，所有键值对为AND关系
type Filter map[string]string

// Matches 判断元数据是否满足过滤条件，空过滤匹配一切
func (f Filter) Matches(md Metadata) bool {
	for k, v := range f {
		if md[k] != v {
			return false
		}
	}
	return true
}

// Record 后端持久化的一条文档记录
type Record struct {
	ID        string
	Content   string
	Metadata  Metadata
	Embedding []float32
	UpdatedAt time.Time
}

// Match 一条检索命中，Score已归一化为越大越相似
type Match struct {
	ID       string
	Content  string
	Metadata Metadata
	Score    float64
}

// 分块产出的来源元数据键
const (
	MetaSourceURL  = "source_url"
	MetaSourceType = "source_type"
	MetaChunkIndex = "chunk_index"
)

// CollectionName 根据集合ID生成后端集合名
// Milvus/Elasticsearch对名称字符有限制，统一替换连字符
func CollectionName(prefix, collectionID string) string {
	return prefix + "_" + strings.ReplaceAll(collectionID, "-", "_")
}
