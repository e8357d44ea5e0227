package engine

import (
	"strings"

	"github.com/tidwall/gjson"
)

// ImageDescriptor is a validated scene image reference.
type ImageDescriptor struct {
	URL string `json:"url"`
}

// ParseImageDescriptor accepts a bare string or an object carrying url,
// image_url or src. Anything without a usable non-empty string yields nil.
func ParseImageDescriptor(raw []byte) *ImageDescriptor {
	if len(raw) == 0 {
		return nil
	}
	return ImageFromResult(gjson.ParseBytes(raw))
}

// ImageFromResult is ParseImageDescriptor for an already parsed value.
func ImageFromResult(v gjson.Result) *ImageDescriptor {
	var u gjson.Result
	switch {
	case v.Type == gjson.String:
		u = v
	case v.IsObject():
		for _, k := range []string{"url", "image_url", "src"} {
			if f := v.Get(k); f.Exists() && f.Type != gjson.Null && f.String() != "" {
				u = f
				break
			}
		}
	default:
		return nil
	}
	if u.Type != gjson.String {
		return nil
	}
	s := strings.TrimSpace(u.String())
	if s == "" {
		return nil
	}
	return &ImageDescriptor{URL: s}
}
