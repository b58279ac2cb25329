package vector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aihub/vectorstore-go/internal/errors"
)

func TestTextParser_Parse(t *testing.T) {
	parser := &TextParser{}

	content, err := parser.Parse(strings.NewReader("# 标题\n\n正文内容"), "readme.md")
	require.NoError(t, err)
	assert.Equal(t, "# 标题\n\n正文内容", content)
}

func TestTextParser_Supports(t *testing.T) {
	parser := &TextParser{}

	assert.True(t, parser.Supports("text", ""))
	assert.True(t, parser.Supports("markdown", ""))
	assert.True(t, parser.Supports("", "notes.TXT"))
	assert.True(t, parser.Supports("", "doc.md"))
	assert.False(t, parser.Supports("", "page.html"))
	assert.False(t, parser.Supports("pdf", "file.bin"))
}

func TestHTMLParser_Parse(t *testing.T) {
	parser := &HTMLParser{}
	html := `<html><head><style>p{color:red}</style></head><body>
		<script>alert("x")</script>
		<h1>标题</h1>
		<p>第一段</p>
		<ul><li>条目一</li><li>条目二</li></ul>
	</body></html>`

	content, err := parser.Parse(strings.NewReader(html), "page.html")
	require.NoError(t, err)
	assert.Contains(t, content, "标题")
	assert.Contains(t, content, "第一段")
	assert.Contains(t, content, "条目二")
	assert.NotContains(t, content, "alert")
	assert.NotContains(t, content, "color:red")
}

func TestHTMLParser_FallbackToBodyText(t *testing.T) {
	parser := &HTMLParser{}

	content, err := parser.Parse(strings.NewReader("<html><body>裸文本没有标签</body></html>"), "page.html")
	require.NoError(t, err)
	assert.Equal(t, "裸文本没有标签", content)
}

func TestWordParser_RejectsLegacyDoc(t *testing.T) {
	parser := &WordParser{}

	_, err := parser.Parse(strings.NewReader("legacy"), "old.doc")
	require.Error(t, err)
	assert.True(t, apperrors.IsAppError(err))
}

func TestFileParserManager_ParseFile(t *testing.T) {
	manager := NewFileParserManager()

	content, err := manager.ParseFile(strings.NewReader("plain text"), "", "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "plain text", content)

	// sourceType优先于扩展名
	content, err = manager.ParseFile(strings.NewReader("<p>hi</p>"), "html", "download")
	require.NoError(t, err)
	assert.Contains(t, content, "hi")

	_, err = manager.ParseFile(strings.NewReader("x"), "", "archive.zip")
	require.Error(t, err)
	assert.True(t, apperrors.IsAppError(err))
}

func TestFileParserManager_Supports(t *testing.T) {
	manager := NewFileParserManager()

	assert.True(t, manager.Supports("", "a.pdf"))
	assert.True(t, manager.Supports("docx", ""))
	assert.True(t, manager.Supports("HTML", "download"))
	assert.False(t, manager.Supports("", "a.exe"))
}

func TestFileParserManager_SupportedTypes(t *testing.T) {
	types := NewFileParserManager().SupportedTypes()
	assert.ElementsMatch(t, []string{"pdf", "docx", "html", "text"}, types)
}

func TestFileParserManager_ResolveType(t *testing.T) {
	manager := NewFileParserManager()

	// 扩展名推断与别名都归一到解析器的规范类型
	cases := []struct {
		sourceType string
		filename   string
		want       string
	}{
		{"", "notes.txt", "text"},
		{"", "guide.MD", "text"},
		{"markdown", "download", "text"},
		{"", "page.htm", "html"},
		{"doc", "file.bin", "docx"},
		{"", "report.pdf", "pdf"},
	}
	for _, tc := range cases {
		got, ok := manager.ResolveType(tc.sourceType, tc.filename)
		require.True(t, ok, "%s %s", tc.sourceType, tc.filename)
		assert.Equal(t, tc.want, got)
	}

	_, ok := manager.ResolveType("", "archive.zip")
	assert.False(t, ok)
}
