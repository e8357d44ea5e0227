package text

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestSanitize(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"plain", "你好，旅人。", "你好，旅人。"},
		{"color codes", "\x1b[31m危险\x1b[0m来临", "危险来临"},
		{"cursor movement", "前\x1b[2J\x1b[H后", "前后"},
		{"control chars", "a\x07b\x00c\rd", "abcd"},
		{"tabs become spaces", "甲\t乙", "甲 乙"},
		{"newlines survive", "第一行\n第二行", "第一行\n第二行"},
	}
	for _, tc := range cases {
		if got := Sanitize(tc.in); got != tc.want {
			t.Fatalf("%s: Sanitize(%q) = %q, want %q", tc.name, tc.in, got, tc.want)
		}
	}
}

func TestHighlightKeepsTextWithoutKeywords(t *testing.T) {
	in := "风从山谷吹来。"
	if got := Highlight(in, lipgloss.NewStyle().Bold(true)); got != in {
		t.Fatalf("Highlight changed plain text: %q", got)
	}
}
