package vector

import (
	"strings"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

// ChunkUnit 分块计量单位
type ChunkUnit string

const (
	// ChunkUnitRune 按Unicode字符计数
	ChunkUnitRune ChunkUnit = "rune"
	// ChunkUnitToken 按cl100k_base token计数
	ChunkUnitToken ChunkUnit = "token"
)

// Chunk 表示分块后的文本结构
type Chunk struct {
	Index int
	Text  string
}

// Chunker 文本分块器，固定窗口加重叠滑动
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	unit         ChunkUnit
	encoder      *tiktoken.Tiktoken
}

// NewChunker 创建分块器，参数非法时回退默认值
func NewChunker(chunkSize, overlap int, unit ChunkUnit) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 800
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}

	c := &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: overlap,
		unit:         ChunkUnitRune,
	}

	if unit == ChunkUnitToken {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			c.unit = ChunkUnitToken
			c.encoder = enc
		}
	}
	return c
}

// Split 将文本切分为多个chunk
func (c *Chunker) Split(text string) []Chunk {
	clean := normalizeWhitespace(text)
	if clean == "" {
		return nil
	}

	if c.unit == ChunkUnitToken && c.encoder != nil {
		return c.splitTokens(clean)
	}
	return c.splitRunes(clean)
}

func (c *Chunker) splitRunes(clean string) []Chunk {
	runes := []rune(clean)
	var chunks []Chunk

	step := c.step()
	for start := 0; start < len(runes); start += step {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunkText := strings.TrimSpace(string(runes[start:end]))
		if chunkText == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  chunkText,
		})

		if end == len(runes) {
			break
		}
	}

	return chunks
}

func (c *Chunker) splitTokens(clean string) []Chunk {
	tokens := c.encoder.Encode(clean, nil, nil)
	var chunks []Chunk

	step := c.step()
	for start := 0; start < len(tokens); start += step {
		end := start + c.chunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		chunkText := strings.TrimSpace(c.encoder.Decode(tokens[start:end]))
		if chunkText == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  chunkText,
		})

		if end == len(tokens) {
			break
		}
	}

	return chunks
}

func (c *Chunker) step() int {
	step := c.chunkSize - c.chunkOverlap
	if step <= 0 {
		step = c.chunkSize
	}
	return step
}

func normalizeWhitespace(s string) string {
	var builder strings.Builder
	builder.Grow(len(s))

	var prevSpace bool
	for _, r := range s {
		if unicode.IsSpace(r) {
			if prevSpace {
				continue
			}
			builder.WriteRune(' ')
			prevSpace = true
			continue
		}
		builder.WriteRune(r)
		prevSpace = false
	}

	return strings.TrimSpace(builder.String())
}
