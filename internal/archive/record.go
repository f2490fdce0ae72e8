// Package archive persists crawled posts as Markdown files with YAML
// frontmatter. One file per post, named <topic_id>.md, inside the mode's
// output directory alongside the post's downloaded assets.
package archive

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Meta is the YAML frontmatter of an archived post. Field order matters:
// it is the order readers of the raw files see.
type Meta struct {
	TopicID       int64    `yaml:"topic_id"`
	Author        string   `yaml:"author"`
	CreateTime    string   `yaml:"create_time"`
	Digested      bool     `yaml:"digested"`
	ImagePaths    []string `yaml:"image_urls"`
	FilePaths     []string `yaml:"file_paths"`
	Likes         int      `yaml:"likes"`
	CommentsCount int      `yaml:"comments_count"`

	// Classification output, absent until the classify stage runs.
	Tags   []string `yaml:"tags,omitempty"`
	Digest string   `yaml:"digest,omitempty"`
	Topic  string   `yaml:"topic,omitempty"`
}

// Classified reports whether the classify stage has already produced a
// usable topic for this record. Records with an empty topic are treated as
// unprocessed and picked up again on the next run.
func (m *Meta) Classified() bool {
	return m.Topic != ""
}

// Record is one archived post: frontmatter plus Markdown body.
type Record struct {
	Meta Meta
	Body string
}

// Filename returns the canonical file name for the record.
func (r *Record) Filename() string {
	return fmt.Sprintf("%d.md", r.Meta.TopicID)
}

// Encode serializes the record in python-frontmatter layout: a fenced YAML
// block followed by a blank line and the body.
func (r *Record) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&r.Meta); err != nil {
		return nil, fmt.Errorf("encoding frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding frontmatter: %w", err)
	}
	buf.WriteString("---\n\n")
	buf.WriteString(r.Body)
	if !strings.HasSuffix(r.Body, "\n") {
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// Decode parses an archived file back into a record. A file without a
// frontmatter fence decodes to a record with empty metadata; that matches
// how hand-edited files behave downstream.
func Decode(data []byte) (*Record, error) {
	text := string(data)
	if !strings.HasPrefix(text, "---\n") {
		return &Record{Body: text}, nil
	}
	rest := text[len("---\n"):]
	end := strings.Index(rest, "\n---\n")
	if end < 0 {
		return nil, fmt.Errorf("unterminated frontmatter block")
	}
	rec := &Record{}
	if err := yaml.Unmarshal([]byte(rest[:end]), &rec.Meta); err != nil {
		return nil, fmt.Errorf("decoding frontmatter: %w", err)
	}
	body := rest[end+len("\n---\n"):]
	rec.Body = strings.TrimPrefix(body, "\n")
	return rec, nil
}
