// Package zsxq implements the client for the Knowledge Planet (zsxq) API.
package zsxq

import "encoding/json"

// API error code the server returns for transient internal failures. The
// original endpoints emit it under load; it is always worth retrying.
const codeTransient = 1059

// envelope is the uniform wrapper every zsxq endpoint responds with.
type envelope struct {
	Succeeded bool            `json:"succeeded"`
	Code      int             `json:"code"`
	RespData  json.RawMessage `json:"resp_data"`
}

// listData is the resp_data payload of the listing and search endpoints.
// The topics list arrives in one of two shapes depending on the endpoint:
// a flat list of topic objects, or a list of {"topic": {...}} wrappers.
type listData struct {
	Topics []json.RawMessage `json:"topics"`
}

// singleData is the resp_data payload of the single-topic endpoint.
type singleData struct {
	Topic *Topic `json:"topic"`
}

// wrappedTopic is one element of the search endpoint's topics list.
type wrappedTopic struct {
	Topic *Topic `json:"topic"`
}

// downloadData is the resp_data payload of the file download-url endpoint.
type downloadData struct {
	DownloadURL string `json:"download_url"`
}

// Topic is one unit of remote content: a talk, question, task, or solution.
type Topic struct {
	TopicID       int64    `json:"topic_id"`
	CreateTime    string   `json:"create_time"`
	Digested      bool     `json:"digested"`
	LikesCount    int      `json:"likes_count"`
	CommentsCount int      `json:"comments_count"`
	Talk          *Content `json:"talk"`
	Question      *Content `json:"question"`
	Task          *Content `json:"task"`
	Solution      *Content `json:"solution"`
	Answer        *Answer  `json:"answer"`
	ShowComments  []Comment `json:"show_comments"`
}

// Content carries the author-generated body of a topic. Exactly one of the
// four content slots on Topic is populated.
type Content struct {
	Anonymous bool     `json:"anonymous"`
	Owner     Owner    `json:"owner"`
	Text      string   `json:"text"`
	Article   *Article `json:"article"`
	Images    []Image  `json:"images"`
	Files     []File   `json:"files"`
}

// Body returns the populated content slot, preferring the question for
// question/answer-shaped topics, or nil when the topic has none.
func (t *Topic) Body() *Content {
	for _, c := range []*Content{t.Question, t.Talk, t.Task, t.Solution} {
		if c != nil {
			return c
		}
	}
	return nil
}

// Answer is the accepted response attached to a question topic.
type Answer struct {
	Owner Owner  `json:"owner"`
	Text  string `json:"text"`
}

// Owner identifies the author of a content block or comment.
type Owner struct {
	Name string `json:"name"`
}

// Article is an optional long-form attachment linked from a topic.
type Article struct {
	Title      string `json:"title"`
	ArticleURL string `json:"article_url"`
}

// Image describes one attached picture; only the large rendition is archived.
type Image struct {
	Large ImageRendition `json:"large"`
}

// ImageRendition is one size variant of an attached picture.
type ImageRendition struct {
	URL string `json:"url"`
}

// File describes one downloadable attachment.
type File struct {
	FileID int64  `json:"file_id"`
	Name   string `json:"name"`
}

// Comment is one visible comment under a topic.
type Comment struct {
	Owner   Owner  `json:"owner"`
	Text    string `json:"text"`
	Repliee *Owner `json:"repliee"`
}
