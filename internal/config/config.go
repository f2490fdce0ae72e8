// Package config loads and validates starchive configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all application configuration knobs loaded via Viper.
type Config struct {
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	Classify ClassifyConfig `mapstructure:"classify"`
	Render   RenderConfig   `mapstructure:"render"`
	Serve    ServeConfig    `mapstructure:"serve"`
	History  HistoryConfig  `mapstructure:"history"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// CrawlConfig governs the zsxq crawl pipeline.
type CrawlConfig struct {
	GroupID          string `mapstructure:"group_id"`
	AccessToken      string `mapstructure:"access_token"`
	UserAgent        string `mapstructure:"user_agent"`
	OutputDir        string `mapstructure:"output_dir"`
	CountsPerPage    int    `mapstructure:"counts_per_page"`
	SleepSeconds     int    `mapstructure:"sleep_seconds"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	DownloadImages   bool   `mapstructure:"download_images"`
	DownloadFiles    bool   `mapstructure:"download_files"`
	DownloadComments bool   `mapstructure:"download_comments"`
	ImageWorkers     int    `mapstructure:"image_workers"`
	FileWorkers      int    `mapstructure:"file_workers"`
	// AssetRPS caps per-host asset downloads; 0 means unpaced.
	AssetRPS float64 `mapstructure:"asset_rps"`
}

// ClassifyConfig governs the LLM classification pipeline.
type ClassifyConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	Concurrency    int    `mapstructure:"concurrency"`
	RetrySeconds   int    `mapstructure:"retry_seconds"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// RenderConfig controls static site generation.
type RenderConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	Title     string `mapstructure:"title"`
}

// ServeConfig controls the local preview HTTP server.
type ServeConfig struct {
	Port int `mapstructure:"port"`
}

// HistoryConfig locates the run-history database.
type HistoryConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STARCHIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.starchive")
		// A missing config file is fine; env vars and defaults still apply.
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Empty defaults keep the keys visible to Unmarshal, so env-only
	// values such as STARCHIVE_CRAWL_ACCESS_TOKEN bind.
	v.SetDefault("crawl.group_id", "")
	v.SetDefault("crawl.access_token", "")
	v.SetDefault("classify.api_key", "")
	v.SetDefault("crawl.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:79.0) Gecko/20100101 Firefox/79.0")
	v.SetDefault("crawl.output_dir", "output")
	v.SetDefault("crawl.counts_per_page", 20)
	v.SetDefault("crawl.sleep_seconds", 1)
	v.SetDefault("crawl.timeout_seconds", 30)
	v.SetDefault("crawl.download_images", true)
	v.SetDefault("crawl.download_files", true)
	v.SetDefault("crawl.download_comments", true)
	v.SetDefault("crawl.image_workers", 5)
	v.SetDefault("crawl.file_workers", 3)
	v.SetDefault("crawl.asset_rps", 0)
	v.SetDefault("classify.base_url", "https://api.deepseek.com")
	v.SetDefault("classify.model", "deepseek-chat")
	v.SetDefault("classify.concurrency", 4)
	v.SetDefault("classify.retry_seconds", 2)
	v.SetDefault("classify.timeout_seconds", 120)
	v.SetDefault("render.output_dir", "output/web")
	v.SetDefault("render.title", "星球档案")
	v.SetDefault("serve.port", 8080)
	v.SetDefault("history.path", "output/starchive.db")
	v.SetDefault("logging.development", true)
}

// ValidateCrawl enforces the values the crawl pipeline cannot run without.
func (c Config) ValidateCrawl() error {
	if strings.TrimSpace(c.Crawl.GroupID) == "" {
		return fmt.Errorf("crawl.group_id is required")
	}
	if strings.TrimSpace(c.Crawl.AccessToken) == "" {
		return fmt.Errorf("crawl.access_token is required")
	}
	if c.Crawl.CountsPerPage <= 0 {
		return fmt.Errorf("crawl.counts_per_page must be > 0")
	}
	if c.Crawl.ImageWorkers <= 0 || c.Crawl.FileWorkers <= 0 {
		return fmt.Errorf("crawl.image_workers and crawl.file_workers must be > 0")
	}
	return nil
}

// ValidateClassify enforces the values the classification pipeline cannot run without.
func (c Config) ValidateClassify() error {
	key := strings.TrimSpace(c.Classify.APIKey)
	if key == "" || !strings.Contains(key, "sk-") {
		return fmt.Errorf("classify.api_key is missing or malformed")
	}
	if strings.TrimSpace(c.Classify.BaseURL) == "" {
		return fmt.Errorf("classify.base_url is required")
	}
	if c.Classify.Concurrency <= 0 {
		return fmt.Errorf("classify.concurrency must be > 0")
	}
	return nil
}

// RequestTimeout converts the crawl timeout config into a duration.
func (c CrawlConfig) RequestTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PageDelay converts the pacing sleep config into a duration.
func (c CrawlConfig) PageDelay() time.Duration {
	return time.Duration(c.SleepSeconds) * time.Second
}

// RetryDelay converts the malformed-response retry config into a duration.
func (c ClassifyConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetrySeconds) * time.Second
}
