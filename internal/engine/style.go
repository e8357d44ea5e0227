package engine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StyleKind is the image style family.
type StyleKind string

const (
	StyleRealistic StyleKind = "realistic"
	StyleAnime     StyleKind = "anime"
	StyleInk       StyleKind = "ink_painting"
	StyleCyberpunk StyleKind = "cyberpunk"
	StyleOil       StyleKind = "oil_painting"
	StyleCustom    StyleKind = "custom"
)

// StyleChoice is one entry of the style picker.
type StyleChoice struct {
	Kind  StyleKind
	Label string
}

var StyleChoices = []StyleChoice{
	{StyleRealistic, "写实"},
	{StyleAnime, "动漫"},
	{StyleInk, "水墨"},
	{StyleOil, "油画"},
	{StyleCyberpunk, "赛博朋克"},
	{StyleCustom, "自定义"},
}

// OilSubtypes are the sub-choices shown when oil painting is picked.
var OilSubtypes = []StyleChoice{
	{"classical", "古典油画"},
	{"impressionism", "印象派"},
	{"modern", "现代油画"},
}

// ImageStyle is a tagged variant: a predefined kind, oil painting with a subtype,
// or custom free text.
type ImageStyle struct {
	Type    StyleKind `json:"type"`
	Subtype string    `json:"subtype,omitempty"`
	Value   string    `json:"value,omitempty"`
}

func PredefinedStyle(k StyleKind) ImageStyle { return ImageStyle{Type: k} }
func OilPainting(subtype string) ImageStyle  { return ImageStyle{Type: StyleOil, Subtype: subtype} }
func CustomStyle(text string) ImageStyle {
	return ImageStyle{Type: StyleCustom, Value: strings.TrimSpace(text)}
}

func (s ImageStyle) IsZero() bool { return s.Type == "" }

// Validate reports whether the variant carries the data its kind needs.
func (s ImageStyle) Validate() error {
	switch s.Type {
	case StyleRealistic, StyleAnime, StyleInk, StyleCyberpunk:
		return nil
	case StyleOil:
		for _, c := range OilSubtypes {
			if string(c.Kind) == s.Subtype {
				return nil
			}
		}
		return fmt.Errorf("unknown oil painting subtype %q", s.Subtype)
	case StyleCustom:
		if s.Value == "" {
			return fmt.Errorf("custom style text is empty")
		}
		return nil
	case "":
		return fmt.Errorf("no style selected")
	}
	return fmt.Errorf("unknown style %q", s.Type)
}

// Label is the picker text shown after selection.
func (s ImageStyle) Label() string {
	switch s.Type {
	case StyleOil:
		for _, c := range OilSubtypes {
			if string(c.Kind) == s.Subtype {
				return "油画风格 - " + c.Label
			}
		}
		return "油画风格"
	case StyleCustom:
		return "自定义 - " + s.Value
	}
	for _, c := range StyleChoices {
		if c.Kind == s.Type {
			return c.Label
		}
	}
	return string(s.Type)
}

// StyleParam returns the value sent as "style" to the image endpoint:
// the stored style object, or "default".
func StyleParam(d GameData, fallback ImageStyle) json.RawMessage {
	if len(d.ImageStyle) > 0 && string(d.ImageStyle) != "null" {
		return d.ImageStyle
	}
	if !fallback.IsZero() {
		if raw, err := json.Marshal(fallback); err == nil {
			return raw
		}
	}
	return json.RawMessage(`"default"`)
}
