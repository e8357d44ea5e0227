package visual

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/singleflight"

	"github.com/DaanHessen/storyloom/internal/backend"
	"github.com/DaanHessen/storyloom/internal/engine"
)

const (
	// PreloadTimeout bounds a single image fetch and decode.
	PreloadTimeout = 10 * time.Second

	defaultCacheExpiration = 30 * time.Minute
	cacheCleanupInterval   = time.Hour
	fingerprintRunes       = 200
	maxImageBytes          = 32 << 20
)

// ErrBackfillInFlight is returned when the same backfill is already running.
var ErrBackfillInFlight = errors.New("backfill already in flight")

// Background is the committed scene background. Image is nil when the preload
// failed and the URL was applied without it.
type Background struct {
	URL   string
	Image image.Image
}

// ImageGenerator produces scene images on demand.
type ImageGenerator interface {
	GenerateSceneImage(ctx context.Context, req backend.SceneImageRequest) (*engine.ImageDescriptor, error)
}

// Manager resolves, preloads and commits scene backgrounds.
type Manager struct {
	origin string
	client *http.Client
	cache  *cache.Cache
	group  singleflight.Group
	logger *zap.Logger

	mu             sync.Mutex
	current        Background
	backfillKey    string
	backfillCancel context.CancelFunc
}

// NewManager creates a manager that resolves cached paths against origin.
func NewManager(origin string, client *http.Client, logger *zap.Logger) *Manager {
	if client == nil {
		client = http.DefaultClient
	}
	return &Manager{
		origin: strings.TrimSuffix(origin, "/"),
		client: client,
		cache:  cache.New(defaultCacheExpiration, cacheCleanupInterval),
		logger: logger.Named("VisualManager"),
	}
}

// Resolve joins a backend-relative path to the manager's origin.
func (m *Manager) Resolve(p string) string { return ResolvePath(m.origin, p) }

// Current returns the committed background.
func (m *Manager) Current() Background {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Show normalizes desc, preloads it and commits it as the background. Unusable
// descriptors leave the previous background in place and return an error. A
// failed preload still commits the URL.
func (m *Manager) Show(ctx context.Context, desc *engine.ImageDescriptor) (Background, error) {
	if desc == nil {
		return m.Current(), fmt.Errorf("%w: no descriptor", ErrUnusableURL)
	}
	u, err := NormalizeURL(m.origin, desc.URL)
	if err != nil {
		m.logger.Warn("Dropping scene image", zap.String("raw", desc.URL), zap.Error(err))
		return m.Current(), err
	}
	img, err := m.Preload(ctx, u)
	if err != nil {
		m.logger.Warn("Preload failed, applying url directly", zap.String("url", u), zap.Error(err))
		img = nil
	}
	bg := Background{URL: u, Image: img}
	m.mu.Lock()
	m.current = bg
	m.mu.Unlock()
	return bg, nil
}

// Preload fetches and decodes an image, sharing concurrent loads of one URL.
func (m *Manager) Preload(ctx context.Context, u string) (image.Image, error) {
	if v, ok := m.cache.Get(u); ok {
		return v.(image.Image), nil
	}
	v, err, _ := m.group.Do(u, func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, PreloadTimeout)
		defer cancel()
		img, err := m.load(ctx, u)
		if err != nil {
			return nil, err
		}
		m.cache.Set(u, img, cache.DefaultExpiration)
		return img, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(image.Image), nil
}

func (m *Manager) load(ctx context.Context, u string) (image.Image, error) {
	if strings.HasPrefix(u, "data:") {
		return decodeDataURI(u)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}
	img, _, err := image.Decode(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

func decodeDataURI(u string) (image.Image, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(u, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("malformed data uri")
	}
	var data []byte
	if strings.HasSuffix(meta, ";base64") {
		b, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("data uri: %w", err)
		}
		data = b
	} else {
		s, err := url.PathUnescape(payload)
		if err != nil {
			return nil, fmt.Errorf("data uri: %w", err)
		}
		data = []byte(s)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Fingerprint identifies a backfill by scene id and the head of the scene text.
func Fingerprint(sceneID, text string) string {
	if sceneID == "" {
		sceneID = "no_scene_id"
	}
	r := []rune(text)
	if len(r) > fingerprintRunes {
		r = r[:fingerprintRunes]
	}
	return sceneID + "|" + string(r)
}

// BackfillRequest describes a scene that arrived without an image.
type BackfillRequest struct {
	SceneID       string
	Text          string
	GlobalState   engine.GameData
	Style         json.RawMessage
	PreviousImage *engine.ImageDescriptor
	PreviousText  string
	Width, Height int
}

// Backfill asks gen for an image for the scene. A running backfill for a
// different scene is cancelled; a duplicate for the same scene returns
// ErrBackfillInFlight. The returned key must be compared with the scene on
// screen before the image is applied.
func (m *Manager) Backfill(ctx context.Context, gen ImageGenerator, req BackfillRequest) (*engine.ImageDescriptor, string, error) {
	key := Fingerprint(req.SceneID, req.Text)

	m.mu.Lock()
	if m.backfillCancel != nil {
		if m.backfillKey == key {
			m.mu.Unlock()
			return nil, key, ErrBackfillInFlight
		}
		m.logger.Debug("Cancelling superseded backfill", zap.String("key", m.backfillKey))
		m.backfillCancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	m.backfillKey, m.backfillCancel = key, cancel
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		if m.backfillKey == key {
			m.backfillKey, m.backfillCancel = "", nil
		}
		m.mu.Unlock()
		cancel()
	}()

	gs, err := visualContext(req)
	if err != nil {
		return nil, key, err
	}
	style := req.Style
	if len(style) == 0 {
		style = json.RawMessage(`"default"`)
	}
	desc, err := gen.GenerateSceneImage(ctx, backend.SceneImageRequest{
		SceneDescription: req.Text,
		GlobalState:      gs,
		Style:            style,
		ViewportWidth:    req.Width,
		ViewportHeight:   req.Height,
	})
	if err != nil {
		return nil, key, err
	}
	return desc, key, nil
}

// CancelBackfill aborts any running backfill.
func (m *Manager) CancelBackfill() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backfillCancel != nil {
		m.backfillCancel()
		m.backfillKey, m.backfillCancel = "", nil
	}
}

func visualContext(req BackfillRequest) (json.RawMessage, error) {
	raw, err := json.Marshal(req.GlobalState)
	if err != nil {
		return nil, err
	}
	vc := map[string]any{
		"sceneId":            req.SceneID,
		"previousSceneImage": req.PreviousImage,
		"previousSceneText":  req.PreviousText,
	}
	out, err := sjson.SetBytes(raw, "_visual_context", vc)
	if err != nil {
		return nil, err
	}
	return out, nil
}
