package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() *Record {
	return &Record{
		Meta: Meta{
			TopicID:       581234981234,
			Author:        "张三",
			CreateTime:    "2024-03-05 09:12:44.123",
			Digested:      true,
			ImagePaths:    []string{"581234981234_0.jpg"},
			FilePaths:     []string{"报告.pdf"},
			Likes:         12,
			CommentsCount: 3,
		},
		Body: "正文第一行\n\n**图片附件:**\n\n![image](581234981234_0.jpg)",
	}
}

func TestRecordRoundTrip(t *testing.T) {
	rec := sampleRecord()
	data, err := rec.Encode()
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, rec.Meta, got.Meta)
	assert.Equal(t, rec.Body+"\n", got.Body)
}

func TestRecordEncodeLayout(t *testing.T) {
	rec := sampleRecord()
	data, err := rec.Encode()
	require.NoError(t, err)

	text := string(data)
	assert.True(t, len(text) > 0 && text[0] == '-', "starts with fence")
	assert.Contains(t, text, "---\n\n正文第一行")
	assert.Contains(t, text, "topic_id: 581234981234")
	assert.NotContains(t, text, "tags:", "unclassified record carries no tags key")
	assert.NotContains(t, text, "topic:", "unclassified record carries no topic key")
}

func TestClassifiedFlag(t *testing.T) {
	rec := sampleRecord()
	assert.False(t, rec.Meta.Classified())

	rec.Meta.Tags = []string{"效率工具"}
	rec.Meta.Digest = "一句话摘要"
	rec.Meta.Topic = "职业发展"
	assert.True(t, rec.Meta.Classified())

	data, err := rec.Encode()
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)
	assert.True(t, got.Meta.Classified())
	assert.Equal(t, []string{"效率工具"}, got.Meta.Tags)
}

func TestDecodeWithoutFrontmatter(t *testing.T) {
	rec, err := Decode([]byte("just a body\n"))
	require.NoError(t, err)
	assert.Equal(t, "just a body\n", rec.Body)
	assert.False(t, rec.Meta.Classified())
}

func TestDecodeUnterminatedFence(t *testing.T) {
	_, err := Decode([]byte("---\ntopic_id: 1\n"))
	assert.Error(t, err)
}

func TestStoreSaveLoadExists(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	rec := sampleRecord()
	assert.False(t, store.Exists(rec.Meta.TopicID))
	require.NoError(t, store.Save(rec))
	assert.True(t, store.Exists(rec.Meta.TopicID))

	got, err := store.Load(store.Path(rec.Meta.TopicID))
	require.NoError(t, err)
	assert.Equal(t, rec.Meta, got.Meta)

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "581234981234.md", entries[0].Name())
}

func TestStoreListSkipsNonRecords(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(sampleRecord()))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "photo.jpg"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	paths, err := store.List()
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, store.Path(581234981234), paths[0])
}

func TestStoreAssetHelpers(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	assert.False(t, store.AssetExists("a.jpg"))
	require.NoError(t, os.WriteFile(store.AssetPath("a.jpg"), []byte("x"), 0o644))
	assert.True(t, store.AssetExists("a.jpg"))
}
