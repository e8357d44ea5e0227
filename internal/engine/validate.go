package engine

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxThemeRunes    = 20
	MaxSaveNameRunes = 15
)

var (
	themeCharset    = regexp.MustCompile(`^[\p{Han}a-zA-Z0-9\s\-_（）()《》<>【】\[\]{}，。,.:;"'!?！？]+$`)
	saveNameCharset = regexp.MustCompile(`^[\p{Han}a-zA-Z0-9\s\-_]+$`)
)

var (
	ErrThemeEmpty      = errors.New("游戏主题不能为空")
	ErrThemeTooLong    = errors.New("游戏主题不能超过20个字符")
	ErrThemeCharset    = errors.New("游戏主题包含非法字符")
	ErrSaveNameEmpty   = errors.New("存档名称不能为空")
	ErrSaveNameTooLong = errors.New("存档名称不能超过15个字符")
	ErrSaveNameCharset = errors.New("存档名称包含非法字符")
)

// ValidateTheme checks the free-text game theme and returns it trimmed.
func ValidateTheme(s string) (string, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return "", ErrThemeEmpty
	case utf8.RuneCountInString(s) > MaxThemeRunes:
		return "", ErrThemeTooLong
	case !themeCharset.MatchString(s):
		return "", ErrThemeCharset
	}
	return s, nil
}

// ValidateSaveName checks a save slot name and returns it trimmed.
func ValidateSaveName(s string) (string, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return "", ErrSaveNameEmpty
	case utf8.RuneCountInString(s) > MaxSaveNameRunes:
		return "", ErrSaveNameTooLong
	case !saveNameCharset.MatchString(s):
		return "", ErrSaveNameCharset
	}
	return s, nil
}
