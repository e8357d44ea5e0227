package visual

import (
	"errors"
	"fmt"
	"strings"
)

const cacheMarker = "image_cache"

// ErrUnusableURL is returned for image references that cannot be resolved.
var ErrUnusableURL = errors.New("unusable image url")

// NormalizeURL resolves a backend image reference against origin.
//
//	/image_cache/x.png  -> origin/image_cache/x.png
//	image_cache/x.png   -> origin/image_cache/x.png
//	http(s)://, data:   -> unchanged
//	//host/x.png        -> https://host/x.png
//	...image_cache...   -> origin/image_cache/<tail>
func NormalizeURL(origin, raw string) (string, error) {
	u := strings.TrimSpace(raw)
	origin = strings.TrimSuffix(origin, "/")
	switch {
	case u == "":
		return "", fmt.Errorf("%w: empty", ErrUnusableURL)
	case strings.HasPrefix(u, "/"+cacheMarker+"/"):
		return origin + u, nil
	case strings.HasPrefix(u, cacheMarker+"/"):
		return origin + "/" + u, nil
	case strings.HasPrefix(u, "http://"), strings.HasPrefix(u, "https://"), strings.HasPrefix(u, "data:"):
		return u, nil
	case strings.HasPrefix(u, "//"):
		return "https:" + u, nil
	case strings.Contains(u, cacheMarker):
		i := strings.Index(u, cacheMarker)
		tail := strings.TrimLeft(u[i+len(cacheMarker):], `/\`)
		if tail == "" {
			return "", fmt.Errorf("%w: %q", ErrUnusableURL, raw)
		}
		return origin + "/" + cacheMarker + "/" + tail, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnusableURL, raw)
}

// ResolvePath joins a backend-relative path such as /initial/... to the origin.
// Absolute and data URLs are returned unchanged.
func ResolvePath(origin, p string) string {
	p = strings.TrimSpace(p)
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") || strings.HasPrefix(p, "data:") {
		return p
	}
	return strings.TrimSuffix(origin, "/") + "/" + strings.TrimLeft(p, "/")
}
