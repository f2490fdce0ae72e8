// Package crawler drives the end-to-end archive crawl: sequential
// pagination, per-item idempotent persistence, and bounded per-item asset
// fan-out.
package crawler

import (
	"context"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/galaxia-dev/starchive/internal/archive"
	"github.com/galaxia-dev/starchive/internal/progress"
	"github.com/galaxia-dev/starchive/internal/richtext"
	"github.com/galaxia-dev/starchive/internal/zsxq"
)

const (
	anonymousAuthor = "匿名用户"
	unknownAuthor   = "未知用户"
)

// PageFetcher yields one page of topics for a request URL. *zsxq.Client
// implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) ([]zsxq.Topic, error)
}

// AssetFetcher downloads one item's assets into a directory. The assets
// package implements it.
type AssetFetcher interface {
	FetchImages(ctx context.Context, dir string, urls []string) ([]string, int)
	FetchFiles(ctx context.Context, dir string, files []zsxq.File) ([]string, int)
}

// Config parametrizes one crawl run.
type Config struct {
	Mode    zsxq.Mode
	GroupID string
	Keyword string
	TopicID string

	CountsPerPage int
	// Budget caps the number of newly processed items; 0 means unlimited.
	// Items skipped by the resume check do not consume budget.
	Budget    int
	PageDelay time.Duration

	DownloadImages   bool
	DownloadFiles    bool
	DownloadComments bool

	RunID uuid.UUID
}

// Summary is the outcome tally of one crawl run.
type Summary struct {
	Pages        int
	Saved        int
	Skipped      int
	Failed       int
	AssetsSaved  int
	AssetsFailed int
	Elapsed      time.Duration
}

// Crawler walks the paginated listing and persists one record per topic.
type Crawler struct {
	cfg     Config
	fetcher PageFetcher
	assets  AssetFetcher
	store   *archive.Store
	emitter progress.Emitter
	log     *zap.Logger

	attempted int
}

// New builds a crawler writing into the given store.
func New(cfg Config, fetcher PageFetcher, assets AssetFetcher, store *archive.Store, emitter progress.Emitter, log *zap.Logger) *Crawler {
	return &Crawler{
		cfg:     cfg,
		fetcher: fetcher,
		assets:  assets,
		store:   store,
		emitter: emitter,
		log:     log,
	}
}

// Run executes the crawl until the listing is exhausted, the item budget is
// reached, or the fetcher reports a fatal failure. Pagination is strictly
// sequential: the next page's URL depends on the last item of the current
// one.
func (c *Crawler) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	summary := Summary{}
	c.attempted = 0

	url := zsxq.StartURL(c.cfg.Mode, c.cfg.GroupID, c.cfg.Keyword, c.cfg.TopicID, c.cfg.CountsPerPage)
	c.emitRun(progress.StageRunStart, 0, "")
	c.log.Info("crawl starting",
		zap.String("mode", string(c.cfg.Mode)),
		zap.String("url", url))

	for {
		pageStart := time.Now()
		topics, err := c.fetcher.FetchPage(ctx, url)
		if err != nil {
			summary.Elapsed = time.Since(start)
			c.emitRun(progress.StageRunError, summary.Elapsed, err.Error())
			return summary, fmt.Errorf("fetching page: %w", err)
		}
		summary.Pages++
		c.emit(progress.Event{
			Stage: progress.StagePageFetched,
			URL:   url,
			Count: len(topics),
			Dur:   time.Since(pageStart),
		})
		if len(topics) == 0 {
			c.log.Info("listing exhausted", zap.Int("pages", summary.Pages))
			break
		}

		budgetReached := false
		for i := range topics {
			if c.cfg.Budget > 0 && c.attempted >= c.cfg.Budget {
				budgetReached = true
				break
			}
			c.processTopic(ctx, &topics[i], &summary)
		}

		if budgetReached {
			c.log.Info("item budget reached", zap.Int("budget", c.cfg.Budget))
			break
		}
		if c.cfg.Mode == zsxq.ModeSingle {
			break
		}
		if err := ctx.Err(); err != nil {
			summary.Elapsed = time.Since(start)
			c.emitRun(progress.StageRunError, summary.Elapsed, err.Error())
			return summary, err
		}

		url = zsxq.NextPageURL(url, topics[len(topics)-1].CreateTime)
		if err := sleep(ctx, c.cfg.PageDelay); err != nil {
			summary.Elapsed = time.Since(start)
			c.emitRun(progress.StageRunError, summary.Elapsed, err.Error())
			return summary, err
		}
	}

	summary.Elapsed = time.Since(start)
	c.emitRun(progress.StageRunDone, summary.Elapsed, "")
	c.log.Info("crawl finished",
		zap.Int("pages", summary.Pages),
		zap.Int("saved", summary.Saved),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", summary.Elapsed))
	return summary, nil
}

func (c *Crawler) processTopic(ctx context.Context, t *zsxq.Topic, summary *Summary) {
	if t.TopicID == 0 {
		c.log.Warn("topic without id, skipping")
		return
	}
	id := strconv.FormatInt(t.TopicID, 10)

	// Presence of the record file is the sole resume mechanism.
	if c.store.Exists(t.TopicID) {
		summary.Skipped++
		c.emit(progress.Event{Stage: progress.StageItemSkipped, ItemID: id})
		return
	}
	c.attempted++

	content := t.Body()
	if content == nil {
		c.log.Warn("topic has no content slot", zap.String("topic_id", id))
		summary.Failed++
		c.emit(progress.Event{Stage: progress.StageItemFailed, ItemID: id, Note: "empty content"})
		return
	}

	text := richtext.Transcode(content.Text)
	if a := content.Article; a != nil && a.ArticleURL != "" {
		title := a.Title
		if title == "" {
			title = "阅读原文"
		}
		text += fmt.Sprintf("\n\n---\n🔗 [%s](%s)", title, a.ArticleURL)
	}

	imageRels, fileRels := c.fetchAssets(ctx, id, content, summary)

	rec := &archive.Record{
		Meta: archive.Meta{
			TopicID:       t.TopicID,
			Author:        authorName(content),
			CreateTime:    normalizeCreateTime(t.CreateTime),
			Digested:      t.Digested,
			ImagePaths:    imageRels,
			FilePaths:     fileRels,
			Likes:         t.LikesCount,
			CommentsCount: t.CommentsCount,
		},
		Body: composeBody(text, imageRels, fileRels, c.answerSection(t), c.commentLines(t)),
	}

	if err := c.store.Save(rec); err != nil {
		c.log.Error("saving record", zap.String("topic_id", id), zap.Error(err))
		summary.Failed++
		c.emit(progress.Event{Stage: progress.StageItemFailed, ItemID: id, Note: err.Error()})
		return
	}
	summary.Saved++
	c.emit(progress.Event{Stage: progress.StageItemSaved, ItemID: id})
}

// fetchAssets downloads the item's images and files into its per-item
// subdirectory and returns their record-relative paths. Failures are
// logged and omitted; they never abort the item.
func (c *Crawler) fetchAssets(ctx context.Context, id string, content *zsxq.Content, summary *Summary) (imageRels, fileRels []string) {
	wantImages := c.cfg.DownloadImages && len(content.Images) > 0
	wantFiles := c.cfg.DownloadFiles && len(content.Files) > 0
	if !wantImages && !wantFiles {
		return nil, nil
	}

	dir := c.store.AssetPath(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.log.Error("creating asset dir", zap.String("topic_id", id), zap.Error(err))
		summary.AssetsFailed += len(content.Images) + len(content.Files)
		return nil, nil
	}

	if wantImages {
		var urls []string
		for _, img := range content.Images {
			if img.Large.URL != "" {
				urls = append(urls, img.Large.URL)
			}
		}
		paths, failed := c.assets.FetchImages(ctx, dir, urls)
		imageRels = relativize(id, paths)
		c.tallyAssets(id, len(paths), failed, summary)
	}
	if wantFiles {
		var files []zsxq.File
		for _, f := range content.Files {
			if f.FileID != 0 && f.Name != "" {
				files = append(files, f)
			}
		}
		paths, failed := c.assets.FetchFiles(ctx, dir, files)
		fileRels = relativize(id, paths)
		c.tallyAssets(id, len(paths), failed, summary)
	}
	return imageRels, fileRels
}

func (c *Crawler) tallyAssets(id string, saved, failed int, summary *Summary) {
	summary.AssetsSaved += saved
	summary.AssetsFailed += failed
	if saved > 0 {
		c.emit(progress.Event{Stage: progress.StageAssetSaved, ItemID: id, Count: saved})
	}
	if failed > 0 {
		c.emit(progress.Event{Stage: progress.StageAssetFailed, ItemID: id, Count: failed})
	}
}

func (c *Crawler) answerSection(t *zsxq.Topic) string {
	if t.Question == nil || t.Answer == nil {
		return ""
	}
	text := richtext.Transcode(t.Answer.Text)
	if text == "" {
		return ""
	}
	return fmt.Sprintf("\n\n---\n\n**回答 by %s:**\n\n%s", t.Answer.Owner.Name, text)
}

func (c *Crawler) commentLines(t *zsxq.Topic) []string {
	if !c.cfg.DownloadComments {
		return nil
	}
	var lines []string
	for _, cm := range t.ShowComments {
		author := cm.Owner.Name
		if author == "" {
			author = unknownAuthor
		}
		text := richtext.Transcode(cm.Text)
		if cm.Repliee != nil && cm.Repliee.Name != "" {
			lines = append(lines, fmt.Sprintf("> **%s** 回复 **%s**: %s\n", author, cm.Repliee.Name, text))
		} else {
			lines = append(lines, fmt.Sprintf("> **%s**: %s\n", author, text))
		}
	}
	return lines
}

// composeBody assembles the record body: main text, asset link sections,
// the answer for question-shaped items, and the comment section, in that
// order.
func composeBody(text string, imageRels, fileRels []string, answer string, comments []string) string {
	parts := []string{text}
	if len(imageRels) > 0 {
		parts = append(parts, "\n\n**图片附件:**\n")
		for _, rel := range imageRels {
			parts = append(parts, fmt.Sprintf("![image](%s)", rel))
		}
	}
	if len(fileRels) > 0 {
		parts = append(parts, "\n\n**文件附件:**\n")
		for _, rel := range fileRels {
			parts = append(parts, fmt.Sprintf("- [%s](%s)", path.Base(rel), rel))
		}
	}
	if answer != "" {
		parts = append(parts, answer)
	}
	if len(comments) > 0 {
		parts = append(parts, "\n\n---\n\n### 评论区\n\n")
		parts = append(parts, comments...)
	}
	return strings.Join(parts, "\n")
}

// relativize turns the fetcher's absolute asset paths into record-relative
// ones of the form <id>/<name>, which is how the body links them.
func relativize(id string, paths []string) []string {
	rels := make([]string, 0, len(paths))
	for _, p := range paths {
		rels = append(rels, path.Join(id, path.Base(strings.ReplaceAll(p, "\\", "/"))))
	}
	return rels
}

func authorName(content *zsxq.Content) string {
	if content.Anonymous || content.Owner.Name == "" {
		return anonymousAuthor
	}
	return content.Owner.Name
}

// normalizeCreateTime trims the timestamp to millisecond precision and
// swaps the T separator for a space: 2024-03-05T09:12:44.123+0800 becomes
// 2024-03-05 09:12:44.123.
func normalizeCreateTime(createTime string) string {
	if len(createTime) > 23 {
		createTime = createTime[:23]
	}
	return strings.Replace(createTime, "T", " ", 1)
}

func (c *Crawler) emitRun(stage progress.Stage, dur time.Duration, note string) {
	c.emit(progress.Event{Stage: stage, Dur: dur, Note: note})
}

func (c *Crawler) emit(ev progress.Event) {
	if c.emitter == nil {
		return
	}
	ev.RunID = c.cfg.RunID
	ev.TS = time.Now().UTC()
	c.emitter.Emit(ev)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
