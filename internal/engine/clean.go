package engine

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MinSceneRunes is the shortest scene text accepted from the backend.
const MinSceneRunes = 10

const (
	FillerScene     = "你仔细观察周围的环境，准备采取行动。"
	SceneFailedText = "剧情生成失败，请重试。"
)

// garbagePatterns are backend error phrases and model artifacts that leak into
// scene text. The error phrases are bounded to one clause so narration that
// happens to contain 请 ... 重试 far apart survives.
var garbagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`请求[^。！？\n]{0,12}?失败`),
	regexp.MustCompile(`申请[^。！？\n]{0,12}?失败`),
	regexp.MustCompile(`请[^。！？\n]{0,12}?重试`),
	regexp.MustCompile(`侧向请求|生化或者失败联盟|出让角1|遣代表试`),
	// runs of symbols outside letters, digits, whitespace and common CJK/ASCII punctuation
	regexp.MustCompile(`[^\p{L}\p{N}\s，。！？、：；“”‘’（）《》【】…—·,.!?:;"'()\-]+`),
}

var (
	boldMarks   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicMarks = regexp.MustCompile(`\*(.*?)\*`)
)

// ValidScene reports whether backend scene text is usable as is.
func ValidScene(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && utf8.RuneCountInString(s) >= MinSceneRunes
}

// CleanSceneText strips known garbage and returns the filler line when too
// little text survives.
func CleanSceneText(s string) string {
	for _, re := range garbagePatterns {
		s = re.ReplaceAllString(s, "")
	}
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) < MinSceneRunes {
		return FillerScene
	}
	return s
}

// StripMarkdown removes **bold** and *italic* markers from worldview text.
func StripMarkdown(s string) string {
	if s == "" {
		return "未设置"
	}
	s = boldMarks.ReplaceAllString(s, "$1")
	return italicMarks.ReplaceAllString(s, "$1")
}
