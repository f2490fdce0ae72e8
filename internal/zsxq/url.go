package zsxq

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Mode selects which slice of a group the crawl targets.
type Mode string

// Supported crawl modes.
const (
	ModeAll     Mode = "all"
	ModeDigests Mode = "digests"
	ModeSearch  Mode = "search"
	ModeSingle  Mode = "single"
)

// Valid reports whether the mode is one of the supported values.
func (m Mode) Valid() bool {
	switch m {
	case ModeAll, ModeDigests, ModeSearch, ModeSingle:
		return true
	}
	return false
}

var keywordUnsafe = regexp.MustCompile(`[\s\\/*?:"<>|]+`)

// SanitizeKeyword makes a search keyword safe to use as a directory name.
func SanitizeKeyword(keyword string) string {
	return strings.Trim(keywordUnsafe.ReplaceAllString(keyword, "_"), "_")
}

// StartURL builds the first request URL for the given crawl mode.
func StartURL(mode Mode, groupID, keyword, topicID string, count int) string {
	base := fmt.Sprintf("https://api.zsxq.com/v2/groups/%s", groupID)
	switch mode {
	case ModeDigests:
		return fmt.Sprintf("%s/topics?scope=digests&count=%d", base, count)
	case ModeSearch:
		return fmt.Sprintf(
			"https://api.zsxq.com/v2/search/topics?keyword=%s&group_id=%s&count=%d&sort=create_time",
			url.QueryEscape(keyword), groupID, count,
		)
	case ModeSingle:
		return fmt.Sprintf("https://api.zsxq.com/v2/topics/%s", topicID)
	default:
		return fmt.Sprintf("%s/topics?count=%d", base, count)
	}
}

// EncodeEndTime percent-encodes a topic create_time for the end_time query
// parameter. Timestamps with two-digit milliseconds encode to 33 characters
// and need a padding zero spliced in or the API rejects the cursor.
func EncodeEndTime(createTime string) string {
	encoded := url.QueryEscape(createTime)
	if len(encoded) == 33 {
		encoded = encoded[:24] + "0" + encoded[24:]
	}
	return encoded
}

// NextPageURL derives the request URL for the page following the one fetched
// from current, using the create_time of that page's last topic as cursor.
func NextPageURL(current, lastCreateTime string) string {
	base, _, _ := strings.Cut(current, "&end_time=")
	return base + "&end_time=" + EncodeEndTime(lastCreateTime)
}

// OutputDirName maps a crawl mode onto its record directory name.
func OutputDirName(mode Mode, keyword, topicID string) string {
	switch mode {
	case ModeDigests:
		return "raw_md_digests"
	case ModeSearch:
		return "raw_md_search_" + SanitizeKeyword(keyword)
	case ModeSingle:
		return "raw_md_post_" + topicID
	default:
		return "raw_md"
	}
}
