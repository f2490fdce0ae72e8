package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "output", cfg.Crawl.OutputDir)
	assert.Equal(t, 20, cfg.Crawl.CountsPerPage)
	assert.Equal(t, 5, cfg.Crawl.ImageWorkers)
	assert.Equal(t, 3, cfg.Crawl.FileWorkers)
	assert.True(t, cfg.Crawl.DownloadImages)
	assert.True(t, cfg.Crawl.DownloadComments)
	assert.Equal(t, "https://api.deepseek.com", cfg.Classify.BaseURL)
	assert.Equal(t, "deepseek-chat", cfg.Classify.Model)
	assert.Equal(t, 4, cfg.Classify.Concurrency)
	assert.Equal(t, "output/web", cfg.Render.OutputDir)
	assert.Equal(t, 8080, cfg.Serve.Port)
	assert.Equal(t, "output/starchive.db", cfg.History.Path)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `crawl:
  group_id: "88888888"
  access_token: tok-abc
  sleep_seconds: 3
classify:
  api_key: sk-test
render:
  title: 我的星球
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "88888888", cfg.Crawl.GroupID)
	assert.Equal(t, "tok-abc", cfg.Crawl.AccessToken)
	assert.Equal(t, 3*time.Second, cfg.Crawl.PageDelay())
	assert.Equal(t, "我的星球", cfg.Render.Title)
	// Untouched keys keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Crawl.RequestTimeout())
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("STARCHIVE_CRAWL_GROUP_ID", "424242")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "424242", cfg.Crawl.GroupID)
}

func TestValidateCrawl(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	err = cfg.ValidateCrawl()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "group_id")

	cfg.Crawl.GroupID = "123"
	err = cfg.ValidateCrawl()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_token")

	cfg.Crawl.AccessToken = "tok"
	assert.NoError(t, cfg.ValidateCrawl())
}

func TestValidateClassify(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	err = cfg.ValidateClassify()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")

	cfg.Classify.APIKey = "not-a-key"
	assert.Error(t, cfg.ValidateClassify())

	cfg.Classify.APIKey = "sk-abc123"
	assert.NoError(t, cfg.ValidateClassify())
}
