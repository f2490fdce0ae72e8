// Package assets downloads the images and file attachments referenced by a
// post into its per-post asset directory. Downloads for one post run on
// small bounded pools; each asset fails independently and a failure never
// aborts the post it belongs to.
package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/galaxia-dev/starchive/internal/ratelimit"
	"github.com/galaxia-dev/starchive/internal/zsxq"
)

const (
	imageTimeout = 20 * time.Second
	fileTimeout  = 60 * time.Second
)

// URLResolver turns a file attachment id into its short-lived download URL.
// *zsxq.Client implements it.
type URLResolver interface {
	ResolveFileURL(ctx context.Context, fileID int64) (string, error)
}

// Config sets the pool widths and the per-host download rate for one
// fetcher. A zero RequestsPerSecond leaves downloads unpaced.
type Config struct {
	ImageWorkers      int
	FileWorkers       int
	RequestsPerSecond float64
}

func (c *Config) defaults() {
	if c.ImageWorkers <= 0 {
		c.ImageWorkers = 5
	}
	if c.FileWorkers <= 0 {
		c.FileWorkers = 3
	}
}

// Fetcher downloads post assets.
type Fetcher struct {
	cfg      Config
	client   *http.Client
	resolver URLResolver
	limiter  *ratelimit.Limiter
	log      *zap.Logger
}

// NewFetcher builds a fetcher. The HTTP client carries no global timeout;
// each download gets its own deadline.
func NewFetcher(cfg Config, resolver URLResolver, log *zap.Logger) *Fetcher {
	cfg.defaults()
	return &Fetcher{
		cfg:      cfg,
		client:   &http.Client{},
		resolver: resolver,
		limiter:  ratelimit.New(ratelimit.Config{RequestsPerSecond: cfg.RequestsPerSecond}),
		log:      log,
	}
}

// WithHTTPClient swaps the underlying HTTP client, for tests.
func (f *Fetcher) WithHTTPClient(c *http.Client) *Fetcher {
	f.client = c
	return f
}

// ImageFilename derives the local file name for an image URL: the URL
// path's base name with any query string stripped.
func ImageFilename(rawURL string) string {
	trimmed, _, _ := strings.Cut(rawURL, "?")
	return path.Base(trimmed)
}

// FetchImages downloads every image URL into dir and returns the local
// paths of the successful downloads, in input order, plus the number of
// failures.
func (f *Fetcher) FetchImages(ctx context.Context, dir string, urls []string) ([]string, int) {
	return f.fetchAll(ctx, f.cfg.ImageWorkers, len(urls), func(ctx context.Context, i int) (string, error) {
		dest := filepath.Join(dir, ImageFilename(urls[i]))
		if err := f.downloadImage(ctx, urls[i], dest); err != nil {
			f.log.Warn("image download failed", zap.String("url", urls[i]), zap.Error(err))
			return "", err
		}
		return dest, nil
	})
}

// FetchFiles downloads every file attachment into dir and returns the
// local paths of the successful downloads, in input order, plus the number
// of failures.
func (f *Fetcher) FetchFiles(ctx context.Context, dir string, files []zsxq.File) ([]string, int) {
	return f.fetchAll(ctx, f.cfg.FileWorkers, len(files), func(ctx context.Context, i int) (string, error) {
		dest := filepath.Join(dir, files[i].Name)
		if err := f.downloadFile(ctx, files[i].FileID, dest); err != nil {
			f.log.Warn("file download failed",
				zap.Int64("file_id", files[i].FileID),
				zap.String("name", files[i].Name),
				zap.Error(err))
			return "", err
		}
		return dest, nil
	})
}

// fetchAll runs n download jobs on a pool of the given width and collects
// the successful results in input order.
func (f *Fetcher) fetchAll(ctx context.Context, workers, n int, job func(context.Context, int) (string, error)) ([]string, int) {
	if n == 0 {
		return nil, 0
	}
	results := make([]string, n)
	errs := make([]error, n)

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i], errs[i] = job(ctx, i)
		}(i)
	}
	wg.Wait()

	var paths []string
	failed := 0
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			failed++
			continue
		}
		paths = append(paths, results[i])
	}
	return paths, failed
}

func (f *Fetcher) downloadImage(ctx context.Context, url, dest string) error {
	ctx, cancel := context.WithTimeout(ctx, imageTimeout)
	defer cancel()
	return f.downloadTo(ctx, url, dest)
}

// downloadFile is a two-phase fetch: resolve the attachment id to its real
// download URL, then stream the body.
func (f *Fetcher) downloadFile(ctx context.Context, fileID int64, dest string) error {
	resolveCtx, cancel := context.WithTimeout(ctx, imageTimeout)
	defer cancel()
	url, err := f.resolver.ResolveFileURL(resolveCtx, fileID)
	if err != nil {
		return fmt.Errorf("resolving download url: %w", err)
	}

	dlCtx, cancel := context.WithTimeout(ctx, fileTimeout)
	defer cancel()
	return f.downloadTo(dlCtx, url, dest)
}

// downloadTo streams a URL into dest via a temp file and rename so a
// partial download never masquerades as a finished asset.
func (f *Fetcher) downloadTo(ctx context.Context, url, dest string) error {
	if err := f.limiter.Wait(ctx, url); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, dest)
}
