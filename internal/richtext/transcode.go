// Package richtext converts zsxq inline markup into portable Markdown.
//
// The platform encodes mentions, hashtags, bold headings, and embedded links
// as <e> elements with percent-encoded attributes. Transcode rewrites those
// into their Markdown equivalents and strips whatever markup remains.
package richtext

import (
	"html"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Transcode converts raw zsxq markup into Markdown text. It is pure and
// total: empty input yields empty output and malformed markup degrades to
// the input's visible text, never an error.
func Transcode(raw string) string {
	if raw == "" {
		return ""
	}
	// Break markup becomes newlines before parsing; the parser would
	// otherwise swallow <br> elements entirely.
	text := strings.ReplaceAll(raw, "<br/>", "\n")
	text = strings.ReplaceAll(text, "<br>", "\n")

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return text
	}

	doc.Find(`e[type="text_bold"]`).Each(func(_ int, s *goquery.Selection) {
		title := percentDecode(s.AttrOr("title", ""))
		replaceWithText(s, "# "+title+"\n\n")
	})
	doc.Find(`e[type="mention"]`).Each(func(_ int, s *goquery.Selection) {
		replaceWithText(s, "@"+s.AttrOr("title", ""))
	})
	doc.Find(`e[type="hashtag"]`).Each(func(_ int, s *goquery.Selection) {
		replaceWithText(s, "#"+percentDecode(s.AttrOr("title", "")))
	})
	doc.Find(`e[type="web"]`).Each(func(_ int, s *goquery.Selection) {
		title := percentDecode(s.AttrOr("title", ""))
		href := percentDecode(s.AttrOr("href", ""))
		replaceWithText(s, "["+title+"]("+href+")")
	})

	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		href := s.AttrOr("href", "")
		linkText := strings.TrimSpace(s.Text())
		switch {
		case href != "" && linkText != "" && linkText == href:
			replaceWithText(s, href)
		case href != "" && linkText != "":
			replaceWithText(s, "["+linkText+"]("+href+")")
		case href != "":
			replaceWithText(s, href)
		default:
			replaceWithText(s, s.Text())
		}
	})

	return doc.Text()
}

// replaceWithText swaps a selection for a plain text node. The text is
// escaped on the way in so Markdown punctuation survives re-parsing, and
// unescaped again when the document text is extracted.
func replaceWithText(s *goquery.Selection, text string) {
	s.ReplaceWithHtml(html.EscapeString(text))
}

// percentDecode unescapes an attribute value, tolerating malformed escapes
// by returning the value unchanged.
func percentDecode(v string) string {
	decoded, err := url.PathUnescape(v)
	if err != nil {
		return v
	}
	return decoded
}
