package zsxq

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ErrAPIFailure marks a response the API itself reported as failed with a
// code the client does not know how to retry. It is fatal to the page fetch.
type ErrAPIFailure struct {
	Code int
	Body string
}

func (e *ErrAPIFailure) Error() string {
	return fmt.Sprintf("zsxq api failure: code=%d body=%s", e.Code, e.Body)
}

// Config captures the settings required to talk to the API.
type Config struct {
	AccessToken string
	UserAgent   string
	Timeout     time.Duration
	RetryDelay  time.Duration
}

// Client issues authenticated requests against the zsxq API. Transient
// failures (network errors, malformed JSON, the known internal error code)
// are retried indefinitely with a fixed delay; only context cancellation or
// an unrecognized API failure stops a fetch.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient constructs a Client using the supplied configuration.
func NewClient(cfg Config, logger *zap.Logger, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchPage requests one page of topics from url and normalizes the envelope
// into a flat topic list. The url may point at the listing, search, or
// single-topic endpoint; all three shapes are handled.
func (c *Client) FetchPage(ctx context.Context, url string) ([]Topic, error) {
	env, err := c.getEnvelope(ctx, url)
	if err != nil {
		return nil, err
	}
	return normalizeTopics(env.RespData)
}

// ResolveFileURL asks the file metadata endpoint for the signed download URL
// of an attachment. Unlike page fetches this is a single attempt: a failed
// attachment is skipped, not retried forever.
func (c *Client) ResolveFileURL(ctx context.Context, fileID int64) (string, error) {
	url := fmt.Sprintf("https://api.zsxq.com/v2/files/%d/download_url", fileID)
	req, err := c.newRequest(ctx, url)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("resolve file url: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("resolve file url: read body: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("resolve file url: decode: %w", err)
	}
	if !env.Succeeded {
		return "", &ErrAPIFailure{Code: env.Code, Body: string(body)}
	}
	var data downloadData
	if err := json.Unmarshal(env.RespData, &data); err != nil {
		return "", fmt.Errorf("resolve file url: decode resp_data: %w", err)
	}
	if data.DownloadURL == "" {
		return "", fmt.Errorf("resolve file url: no download_url for file %d", fileID)
	}
	return data.DownloadURL, nil
}

// getEnvelope performs the GET with the never-give-up transient retry policy.
func (c *Client) getEnvelope(ctx context.Context, url string) (envelope, error) {
	attempt := 0
	for {
		env, err := c.getOnce(ctx, url)
		switch {
		case err == nil && env.Succeeded:
			return env, nil
		case err == nil && env.Code == codeTransient:
			attempt++
			c.logger.Warn("api reported transient error, retrying",
				zap.Int("code", env.Code), zap.Int("attempt", attempt))
		case err == nil:
			return envelope{}, &ErrAPIFailure{Code: env.Code, Body: url}
		default:
			if ctx.Err() != nil {
				return envelope{}, ctx.Err()
			}
			attempt++
			c.logger.Warn("page fetch failed, retrying",
				zap.Error(err), zap.Int("attempt", attempt))
		}
		if err := sleep(ctx, c.cfg.RetryDelay); err != nil {
			return envelope{}, err
		}
	}
}

func (c *Client) getOnce(ctx context.Context, url string) (envelope, error) {
	req, err := c.newRequest(ctx, url)
	if err != nil {
		return envelope{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return envelope{}, fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return envelope{}, fmt.Errorf("read body: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

func (c *Client) newRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Cookie", "zsxq_access_token="+c.cfg.AccessToken)
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	return req, nil
}

// normalizeTopics flattens the three resp_data shapes into one topic list.
func normalizeTopics(respData json.RawMessage) ([]Topic, error) {
	if len(respData) == 0 {
		return nil, nil
	}

	var list listData
	if err := json.Unmarshal(respData, &list); err != nil {
		return nil, fmt.Errorf("decode resp_data: %w", err)
	}
	if list.Topics == nil {
		// Single-topic lookup: resp_data carries one topic object.
		var single singleData
		if err := json.Unmarshal(respData, &single); err != nil {
			return nil, fmt.Errorf("decode resp_data: %w", err)
		}
		if single.Topic == nil {
			return nil, nil
		}
		return []Topic{*single.Topic}, nil
	}

	topics := make([]Topic, 0, len(list.Topics))
	for _, raw := range list.Topics {
		// Search results wrap each element as {"topic": {...}}; the listing
		// endpoint returns topic objects directly. Probe the wrapper first.
		var wrapped wrappedTopic
		if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Topic != nil {
			topics = append(topics, *wrapped.Topic)
			continue
		}
		var topic Topic
		if err := json.Unmarshal(raw, &topic); err != nil {
			return nil, fmt.Errorf("decode topic: %w", err)
		}
		if topic.TopicID != 0 {
			topics = append(topics, topic)
		}
	}
	return topics, nil
}

// sleep blocks for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
