// Package render turns a classified archive into a self-contained static
// site: one index.html with every post converted to HTML, plus the posts'
// asset directories copied alongside it.
package render

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
	"go.uber.org/zap"

	"github.com/galaxia-dev/starchive/internal/archive"
)

//go:embed template.html
var templateFS embed.FS

// Post is one rendered record as exposed to the page template and to the
// embedded JSON used for client-side filtering.
type Post struct {
	TopicID       int64         `json:"topic_id"`
	Author        string        `json:"author"`
	CreateTime    string        `json:"create_time"`
	Digested      bool          `json:"digested"`
	Likes         int           `json:"likes"`
	CommentsCount int           `json:"comments_count"`
	Tags          []string      `json:"tags"`
	Digest        string        `json:"digest"`
	Topic         string        `json:"topic"`
	ContentHTML   template.HTML `json:"content"`
}

// Summary is the outcome tally of one render run.
type Summary struct {
	Posts  int
	Tags   int
	Topics int
}

// Config parametrizes the renderer.
type Config struct {
	Title string
}

// Renderer builds the static site.
type Renderer struct {
	cfg Config
	md  goldmark.Markdown
	tpl *template.Template
	log *zap.Logger
}

// New builds a renderer. The Markdown converter mirrors the archive's
// authoring conventions: tables, hard line breaks, and raw inline HTML.
func New(cfg Config, log *zap.Logger) (*Renderer, error) {
	if cfg.Title == "" {
		cfg.Title = "星球档案"
	}
	tpl, err := template.ParseFS(templateFS, "template.html")
	if err != nil {
		return nil, fmt.Errorf("parsing page template: %w", err)
	}
	return &Renderer{
		cfg: cfg,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(
				goldmarkhtml.WithHardWraps(),
				goldmarkhtml.WithUnsafe(),
			),
		),
		tpl: tpl,
		log: log,
	}, nil
}

// Run renders every record under processedDir into outDir/index.html,
// copying each post's asset directory out of rawDir. Posts render newest
// first.
func (r *Renderer) Run(processedDir, rawDir, outDir string) (Summary, error) {
	store, err := archive.NewStore(processedDir)
	if err != nil {
		return Summary{}, err
	}
	paths, err := store.List()
	if err != nil {
		return Summary{}, err
	}
	if len(paths) == 0 {
		return Summary{}, fmt.Errorf("no records found in %s; classify first", processedDir)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Summary{}, fmt.Errorf("creating site dir: %w", err)
	}

	// Descending file name order puts newer topic ids first.
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))

	var (
		posts    []Post
		tagSet   = map[string]struct{}{}
		topicSet = map[string]struct{}{}
	)
	for _, path := range paths {
		rec, err := store.Load(path)
		if err != nil {
			r.log.Warn("unreadable record skipped", zap.String("file", filepath.Base(path)), zap.Error(err))
			continue
		}
		if rec.Meta.TopicID == 0 {
			r.log.Warn("record without topic_id skipped", zap.String("file", filepath.Base(path)))
			continue
		}

		var buf bytes.Buffer
		if err := r.md.Convert([]byte(rec.Body), &buf); err != nil {
			r.log.Warn("markdown conversion failed, skipping post",
				zap.Int64("topic_id", rec.Meta.TopicID), zap.Error(err))
			continue
		}
		posts = append(posts, Post{
			TopicID:       rec.Meta.TopicID,
			Author:        rec.Meta.Author,
			CreateTime:    rec.Meta.CreateTime,
			Digested:      rec.Meta.Digested,
			Likes:         rec.Meta.Likes,
			CommentsCount: rec.Meta.CommentsCount,
			Tags:          rec.Meta.Tags,
			Digest:        rec.Meta.Digest,
			Topic:         rec.Meta.Topic,
			ContentHTML:   template.HTML(buf.String()),
		})
		for _, tag := range rec.Meta.Tags {
			tagSet[tag] = struct{}{}
		}
		if rec.Meta.Topic != "" {
			topicSet[rec.Meta.Topic] = struct{}{}
		}

		if err := r.copyAssets(rawDir, outDir, rec.Meta.TopicID); err != nil {
			r.log.Warn("asset copy failed", zap.Int64("topic_id", rec.Meta.TopicID), zap.Error(err))
		}
	}

	if err := r.writeIndex(outDir, posts, sortedKeys(tagSet), sortedKeys(topicSet)); err != nil {
		return Summary{}, err
	}

	sum := Summary{Posts: len(posts), Tags: len(tagSet), Topics: len(topicSet)}
	r.log.Info("site rendered",
		zap.String("dir", outDir),
		zap.Int("posts", sum.Posts),
		zap.Int("tags", sum.Tags),
		zap.Int("topics", sum.Topics))
	return sum, nil
}

// copyAssets mirrors a post's asset subdirectory into the site. Assets
// always live beside the raw records, never the processed ones.
func (r *Renderer) copyAssets(rawDir, outDir string, topicID int64) error {
	id := strconv.FormatInt(topicID, 10)
	src := filepath.Join(rawDir, id)
	info, err := os.Stat(src)
	if err != nil || !info.IsDir() {
		return nil
	}
	dest := filepath.Join(outDir, id)
	if err := os.RemoveAll(dest); err != nil {
		return err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	return os.CopyFS(dest, os.DirFS(src))
}

func (r *Renderer) writeIndex(outDir string, posts []Post, tags, topics []string) error {
	postsJSON, err := json.Marshal(posts)
	if err != nil {
		return fmt.Errorf("encoding posts: %w", err)
	}
	var buf bytes.Buffer
	err = r.tpl.Execute(&buf, map[string]any{
		"Title":     r.cfg.Title,
		"Posts":     posts,
		"PostsJSON": template.JS(postsJSON),
		"Tags":      tags,
		"Topics":    topics,
	})
	if err != nil {
		return fmt.Errorf("rendering page: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "index.html"), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing index.html: %w", err)
	}
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
