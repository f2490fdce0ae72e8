package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/galaxia-dev/starchive/internal/archive"
)

func writeClassified(t *testing.T, dir string, topicID int64, topic string, tags []string, body string) {
	t.Helper()
	store, err := archive.NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(&archive.Record{
		Meta: archive.Meta{
			TopicID:    topicID,
			Author:     "作者",
			CreateTime: "2024-05-01 08:00:00.000",
			Topic:      topic,
			Tags:       tags,
			Digest:     "摘要",
			Likes:      3,
		},
		Body: body,
	}))
}

func TestRunBuildsIndex(t *testing.T) {
	processed, raw, out := t.TempDir(), t.TempDir(), filepath.Join(t.TempDir(), "web")
	writeClassified(t, processed, 100, "技术分享", []string{"AI", "后端"}, "# 标题\n\n正文内容")
	writeClassified(t, processed, 200, "生活美学", []string{"旅行"}, "另一篇 **加粗**")

	r, err := New(Config{Title: "测试站点"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	sum, err := r.Run(processed, raw, out)
	require.NoError(t, err)
	assert.Equal(t, Summary{Posts: 2, Tags: 3, Topics: 2}, sum)

	html, err := os.ReadFile(filepath.Join(out, "index.html"))
	require.NoError(t, err)
	page := string(html)
	assert.Contains(t, page, "<title>测试站点</title>")
	assert.Contains(t, page, "<h1>标题</h1>")
	assert.Contains(t, page, "<strong>加粗</strong>")
	assert.Contains(t, page, `<option value="技术分享">`)
	assert.Contains(t, page, `data-tag="旅行"`)
	// Newest (highest id) post first.
	assert.Less(t, strings.Index(page, `id="post-200"`), strings.Index(page, `id="post-100"`))
}

func TestRunCopiesAssets(t *testing.T) {
	processed, raw, out := t.TempDir(), t.TempDir(), t.TempDir()
	writeClassified(t, processed, 77, "随想杂谈", nil, "![image](77/pic.jpg)")
	require.NoError(t, os.MkdirAll(filepath.Join(raw, "77"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(raw, "77", "pic.jpg"), []byte("jpeg"), 0o644))

	r, err := New(Config{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	_, err = r.Run(processed, raw, out)
	require.NoError(t, err)

	copied, err := os.ReadFile(filepath.Join(out, "77", "pic.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(copied))
}

func TestRunEmptySourceErrors(t *testing.T) {
	r, err := New(Config{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	_, err = r.Run(t.TempDir(), t.TempDir(), t.TempDir())
	assert.Error(t, err)
}
