// Package taxonomy holds the controlled classification vocabulary and the
// fuzzy normalization that snaps model output onto it.
package taxonomy

// OfficialTopics is the closed topic list offered to the model. Order is
// significant: fuzzy matching scans it top to bottom and keeps the first
// topic within the threshold.
var OfficialTopics = []string{
	// 专业技能与职场
	"技术分享",
	"产品与设计",
	"运营与营销",
	"内容创作",
	"职场进阶",

	// 商业洞察与价值创造
	"行业观察",
	"商业模式",
	"投资理财",
	"创业之路",

	// 个人成长与生活方式
	"思维与方法",
	"效率工具",
	"生活美学",
	"随想杂谈",

	// 元分类
	"星球互动与公告",
}

// OfficialTags is the preferred tag vocabulary. Unlike topics, tags outside
// the list survive normalization unchanged.
var OfficialTags = []string{
	// 技术
	"AI", "算法", "后端", "前端", "数据库", "架构", "DevOps", "安全", "Android", "iOS", "小程序",
	// 产品
	"产品设计", "产品经理", "用户体验", "UI", "UX", "需求分析",
	// 运营
	"用户增长", "新媒体", "市场营销", "SEO", "品牌", "内容运营",
	// 职场
	"求职面试", "职业规划", "管理", "沟通", "晋升", "远程工作",
	// 商业
	"商业模式", "案例分析", "行业动态", "电商", "金融科技", "SaaS",
	// 投资
	"投资理财", "股票", "基金", "房产", "财商", "加密货币",
	// 创业
	"创业", "融资", "团队管理", "MVP", "独立开发",
	// 成长
	"思维模型", "学习方法", "知识管理", "阅读", "决策",
	// 工具
	"效率工具", "Notion", "Obsidian", "ChatGPT", "自动化",
	// 生活
	"生活记录", "健康", "旅行", "摄影",
}

const (
	topicThreshold = 2
	tagThreshold   = 1
)

// EditDistance returns the Levenshtein distance between two strings,
// counted in runes so CJK text measures by character, not byte.
func EditDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i, c1 := range ra {
		cur[0] = i + 1
		for j, c2 := range rb {
			sub := prev[j]
			if c1 != c2 {
				sub++
			}
			cur[j+1] = min(prev[j+1]+1, cur[j]+1, sub)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// NormalizeTopic snaps a model-produced topic onto the official list. An
// exact member passes through; otherwise the first official topic within
// edit distance 2, in declaration order, wins. Topics matching nothing are
// kept verbatim as emergent topics.
func NormalizeTopic(topic string) (string, bool) {
	for _, official := range OfficialTopics {
		if topic == official {
			return topic, true
		}
	}
	for _, official := range OfficialTopics {
		if EditDistance(topic, official) <= topicThreshold {
			return official, true
		}
	}
	return topic, false
}

// NormalizeTags snaps each tag onto the official vocabulary and
// deduplicates, preserving first-occurrence order. A tag normalizes to the
// official tag at minimum edit distance when that minimum is at most 1;
// ties keep the earlier official tag. Anything further away is kept as-is.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		norm := normalizeTag(tag)
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out
}

func normalizeTag(tag string) string {
	for _, official := range OfficialTags {
		if tag == official {
			return tag
		}
	}
	best := ""
	minDist := tagThreshold + 1
	for _, official := range OfficialTags {
		if d := EditDistance(tag, official); d < minDist {
			minDist = d
			best = official
		}
	}
	if minDist <= tagThreshold {
		return best
	}
	return tag
}
