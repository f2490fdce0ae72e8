// Package classify enriches archived records with model-generated tags, a
// digest, and a topic, normalized against the official taxonomy.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// promptTemplate instructs the model in the archive's native language and
// pins the response to a bare JSON object.
const promptTemplate = `你是一个优秀的内容分类专家。请仔细阅读以下帖子内容，并为它完成三项任务：
1.  **生成标签(tags)**: 提取3至5个核心关键词作为标签。
2.  **生成摘要(digest)**: 写一个不超过50字的摘要，总结帖子主要内容。
3.  **指定主题(topic)**: 从以下列表中选择一个最合适的主题：%s。如果都不合适，请生成一个新的、不超过5个字的主题。

请严格按照以下JSON格式返回结果，不要包含任何额外的解释或文本。

{
    "tags": ["关键词1", "关键词2"],
    "digest": "这是一个关于...",
    "topic": "技术分享"
}

---
帖子内容如下：
%s
`

// Analysis is the model's verdict for one record, before normalization.
type Analysis struct {
	Tags   []string `json:"tags"`
	Digest string   `json:"digest"`
	Topic  string   `json:"topic"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// LLMConfig configures the chat-completions client.
type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	RetryDelay  time.Duration
	Timeout     time.Duration
}

// LLMClient talks to an OpenAI-compatible chat-completions endpoint.
type LLMClient struct {
	cfg    LLMConfig
	topics []string
	httpc  *http.Client
	log    *zap.Logger
}

// NewLLMClient builds a client offering the given topic vocabulary in its
// prompt.
func NewLLMClient(cfg LLMConfig, topics []string, log *zap.Logger) *LLMClient {
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.2
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &LLMClient{
		cfg:    cfg,
		topics: topics,
		httpc:  &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

// WithHTTPClient swaps the underlying HTTP client, for tests.
func (c *LLMClient) WithHTTPClient(httpc *http.Client) *LLMClient {
	c.httpc = httpc
	return c
}

// Analyze sends the record body for classification. Malformed model output
// is retried until the context is canceled; transport and API failures are
// returned so the caller can fall back to copying the record through.
func (c *LLMClient) Analyze(ctx context.Context, content string) (Analysis, error) {
	prompt := fmt.Sprintf(promptTemplate, formatTopics(c.topics), content)
	for {
		raw, err := c.complete(ctx, prompt)
		if err != nil {
			return Analysis{}, err
		}
		jsonText, ok := extractJSON(raw)
		if !ok {
			c.log.Warn("model reply carries no JSON object, retrying")
			if err := sleep(ctx, c.cfg.RetryDelay); err != nil {
				return Analysis{}, err
			}
			continue
		}
		var a Analysis
		if err := json.Unmarshal([]byte(jsonText), &a); err != nil {
			c.log.Warn("model reply is not valid JSON, retrying", zap.Error(err))
			if err := sleep(ctx, c.cfg.RetryDelay); err != nil {
				return Analysis{}, err
			}
			continue
		}
		return a, nil
	}
}

func (c *LLMClient) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", err
	}

	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling chat completions: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading chat completions reply: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat completions status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("decoding chat completions reply: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat completions reply has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// extractJSON cuts the widest {...} span out of the model's reply, which
// routinely wraps its JSON in prose or code fences.
func extractJSON(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// formatTopics renders the vocabulary the way the prompt expects it:
// a quoted, bracketed list.
func formatTopics(topics []string) string {
	quoted := make([]string, len(topics))
	for i, t := range topics {
		quoted[i] = "'" + t + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
