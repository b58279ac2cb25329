package vector

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/unidoc/unioffice/document"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"

	apperrors "github.com/aihub/vectorstore-go/internal/errors"
)

// FileParser 文件解析器接口，按来源类型或文件扩展名匹配
type FileParser interface {
	Parse(reader io.Reader, filename string) (string, error)
	Supports(sourceType, filename string) bool
	SourceType() string
}

// TextParser 纯文本与Markdown解析器
type TextParser struct{}

func (p *TextParser) SourceType() string {
	return "text"
}

func (p *TextParser) Supports(sourceType, filename string) bool {
	if sourceType == "text" || sourceType == "txt" || sourceType == "md" || sourceType == "markdown" {
		return true
	}
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".txt" || ext == ".md" || ext == ".markdown"
}

func (p *TextParser) Parse(reader io.Reader, filename string) (string, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("读取文件失败: %w", err)
	}
	return string(content), nil
}

// HTMLParser HTML页面解析器，剥离脚本样式后提取正文
type HTMLParser struct{}

func (p *HTMLParser) SourceType() string {
	return "html"
}

func (p *HTMLParser) Supports(sourceType, filename string) bool {
	if sourceType == "html" {
		return true
	}
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".html" || ext == ".htm"
}

func (p *HTMLParser) Parse(reader io.Reader, filename string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return "", fmt.Errorf("解析HTML失败: %w", err)
	}

	doc.Find("script, style, noscript").Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	var textBuilder strings.Builder
	root.Find("h1, h2, h3, h4, h5, h6, p, li, td, th, pre, blockquote").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		textBuilder.WriteString(text)
		textBuilder.WriteString("\n")
	})

	// 无结构化标签时退回整体文本
	if textBuilder.Len() == 0 {
		return strings.TrimSpace(root.Text()), nil
	}
	return textBuilder.String(), nil
}

// PDFParser PDF文件解析器
type PDFParser struct{}

func (p *PDFParser) SourceType() string {
	return "pdf"
}

func (p *PDFParser) Supports(sourceType, filename string) bool {
	if sourceType == "pdf" {
		return true
	}
	return strings.ToLower(filepath.Ext(filename)) == ".pdf"
}

func (p *PDFParser) Parse(reader io.Reader, filename string) (string, error) {
	pdfBytes, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("读取PDF文件失败: %w", err)
	}

	pdfReader, err := model.NewPdfReader(bytes.NewReader(pdfBytes))
	if err != nil {
		return "", fmt.Errorf("解析PDF失败: %w", err)
	}

	var textBuilder strings.Builder
	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return "", fmt.Errorf("获取PDF页数失败: %w", err)
	}

	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			continue
		}

		ex, err := extractor.New(page)
		if err != nil {
			continue
		}

		text, err := ex.ExtractText()
		if err != nil {
			continue
		}

		textBuilder.WriteString(text)
		textBuilder.WriteString("\n")
	}

	return textBuilder.String(), nil
}

// WordParser Word文档解析器
type WordParser struct{}

func (p *WordParser) SourceType() string {
	return "docx"
}

func (p *WordParser) Supports(sourceType, filename string) bool {
	if sourceType == "docx" || sourceType == "doc" {
		return true
	}
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".docx" || ext == ".doc"
}

func (p *WordParser) Parse(reader io.Reader, filename string) (string, error) {
	docBytes, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("读取Word文件失败: %w", err)
	}

	// 仅支持.docx格式
	if strings.ToLower(filepath.Ext(filename)) == ".doc" {
		return "", apperrors.NewValidationError("暂不支持.doc格式，请使用.docx格式")
	}

	readerAt := bytes.NewReader(docBytes)
	doc, err := document.Read(readerAt, int64(len(docBytes)))
	if err != nil {
		return "", fmt.Errorf("解析Word文档失败: %w", err)
	}
	defer doc.Close()

	var textBuilder strings.Builder
	for _, para := range doc.Paragraphs() {
		for _, run := range para.Runs() {
			textBuilder.WriteString(run.Text())
		}
		textBuilder.WriteString("\n")
	}

	return textBuilder.String(), nil
}

// FileParserManager 文件解析器管理器
type FileParserManager struct {
	parsers []FileParser
}

// NewFileParserManager 创建文件解析器管理器
func NewFileParserManager() *FileParserManager {
	return &FileParserManager{
		parsers: []FileParser{
			&PDFParser{},
			&WordParser{},
			&HTMLParser{},
			&TextParser{},
		},
	}
}

// ParseFile 解析文件，sourceType为空时按扩展名匹配
func (m *FileParserManager) ParseFile(reader io.Reader, sourceType, filename string) (string, error) {
	sourceType = strings.ToLower(strings.TrimSpace(sourceType))
	for _, parser := range m.parsers {
		if parser.Supports(sourceType, filename) {
			return parser.Parse(reader, filename)
		}
	}
	return "", apperrors.NewValidationError(fmt.Sprintf("不支持的文件格式: %s", filename))
}

// ResolveType 返回匹配解析器的规范来源类型
// 来源类型为空时按扩展名匹配，无匹配返回false
func (m *FileParserManager) ResolveType(sourceType, filename string) (string, bool) {
	sourceType = strings.ToLower(strings.TrimSpace(sourceType))
	for _, parser := range m.parsers {
		if parser.Supports(sourceType, filename) {
			return parser.SourceType(), true
		}
	}
	return "", false
}

// Supports 判断来源类型或文件名是否可解析
func (m *FileParserManager) Supports(sourceType, filename string) bool {
	sourceType = strings.ToLower(strings.TrimSpace(sourceType))
	for _, parser := range m.parsers {
		if parser.Supports(sourceType, filename) {
			return true
		}
	}
	return false
}

// SupportedTypes 获取支持的来源类型
func (m *FileParserManager) SupportedTypes() []string {
	types := make([]string, 0, len(m.parsers))
	for _, parser := range m.parsers {
		types = append(types, parser.SourceType())
	}
	return types
}
