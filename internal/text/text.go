package text

import (
	"strings"
	"unicode"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// Keywords are the story terms emphasised while a scene is revealed.
var Keywords = []string{"迷雾森林", "上古神器", "古老神庙", "怪异"}

// Sanitize drops escape sequences and control characters from backend prose
// so it cannot corrupt the terminal. Newlines survive.
func Sanitize(s string) string {
	s = ansi.Strip(s)
	return strings.Map(func(r rune) rune {
		if r == '\n' {
			return r
		}
		if r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// Highlight sanitizes s and renders every keyword with style.
func Highlight(s string, style lipgloss.Style) string {
	s = Sanitize(s)
	for _, kw := range Keywords {
		if strings.Contains(s, kw) {
			s = strings.ReplaceAll(s, kw, style.Render(kw))
		}
	}
	return s
}
