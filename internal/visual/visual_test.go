package visual

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/DaanHessen/storyloom/internal/backend"
	"github.com/DaanHessen/storyloom/internal/engine"
)

const origin = "http://127.0.0.1:5001"

func TestNormalizeURL(t *testing.T) {
	cases := map[string]string{
		"/image_cache/x.png":            origin + "/image_cache/x.png",
		"image_cache/x.png":             origin + "/image_cache/x.png",
		"//host/x.png":                  "https://host/x.png",
		"https://cdn.example/a.png":     "https://cdn.example/a.png",
		"http://cdn.example/a.png":      "http://cdn.example/a.png",
		"data:image/png;base64,AAAA":    "data:image/png;base64,AAAA",
		`C:\game\image_cache\\y.png`:    origin + "/image_cache/y.png",
		"  /image_cache/pad.png  ":      origin + "/image_cache/pad.png",
		"static/../image_cache//z.webp": origin + "/image_cache/z.webp",
	}
	for in, want := range cases {
		got, err := NormalizeURL(origin+"/", in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "   ", "ftp://x/y.png", "relative/pic.png", "image_cache"} {
		_, err := NormalizeURL(origin, bad)
		assert.ErrorIs(t, err, ErrUnusableURL, bad)
	}
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, origin+"/initial/main_character/g1/main_character.png",
		ResolvePath(origin+"/", "/initial/main_character/g1/main_character.png"))
	assert.Equal(t, origin+"/static/p.png", ResolvePath(origin, "static/p.png"))
	assert.Equal(t, "https://cdn.example/p.png", ResolvePath(origin, " https://cdn.example/p.png "))
}

func pngBytes(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestShowPreloadsAndCaches(t *testing.T) {
	var hits atomic.Int32
	data := pngBytes(t, color.RGBA{R: 200, A: 255})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/image_cache/a.png", r.URL.Path)
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	m := NewManager(srv.URL, srv.Client(), zap.NewNop())
	bg, err := m.Show(context.Background(), &engine.ImageDescriptor{URL: "/image_cache/a.png"})
	require.NoError(t, err)
	require.NotNil(t, bg.Image)
	assert.Equal(t, srv.URL+"/image_cache/a.png", bg.URL)
	assert.Equal(t, bg.URL, m.Current().URL)

	_, err = m.Show(context.Background(), &engine.ImageDescriptor{URL: "image_cache/a.png"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "second show should hit the cache")
}

func TestShowFallsBackWhenPreloadFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	m := NewManager(srv.URL, srv.Client(), zap.NewNop())
	bg, err := m.Show(context.Background(), &engine.ImageDescriptor{URL: "/image_cache/missing.png"})
	require.NoError(t, err)
	assert.Nil(t, bg.Image)
	assert.Equal(t, srv.URL+"/image_cache/missing.png", m.Current().URL)
}

func TestShowRejectsUnusableKeepsPrevious(t *testing.T) {
	m := NewManager(origin, nil, zap.NewNop())
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t, color.White))
	_, err := m.Show(context.Background(), &engine.ImageDescriptor{URL: uri})
	require.NoError(t, err)

	_, err = m.Show(context.Background(), &engine.ImageDescriptor{URL: "nonsense"})
	require.Error(t, err)
	assert.Equal(t, uri, m.Current().URL)
	assert.NotNil(t, m.Current().Image)

	_, err = m.Show(context.Background(), nil)
	require.Error(t, err)
}

type stubGenerator struct {
	delay time.Duration
	calls atomic.Int32
	last  backend.SceneImageRequest
}

func (s *stubGenerator) GenerateSceneImage(ctx context.Context, req backend.SceneImageRequest) (*engine.ImageDescriptor, error) {
	d := s.delay
	s.last = req
	s.calls.Add(1)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(d):
	}
	return &engine.ImageDescriptor{URL: "/image_cache/new.png"}, nil
}

func TestBackfillSendsVisualContext(t *testing.T) {
	gen := &stubGenerator{}
	m := NewManager(origin, nil, zap.NewNop())
	desc, key, err := m.Backfill(context.Background(), gen, BackfillRequest{
		SceneID:      "scene_1",
		Text:         "你来到一片废墟。",
		GlobalState:  engine.NewGameData(),
		PreviousText: "上一幕",
		Width:        80,
		Height:       24,
	})
	require.NoError(t, err)
	assert.Equal(t, "/image_cache/new.png", desc.URL)
	assert.Equal(t, "scene_1|你来到一片废墟。", key)
	assert.Equal(t, "scene_1", gjson.GetBytes(gen.last.GlobalState, "_visual_context.sceneId").String())
	assert.Equal(t, "上一幕", gjson.GetBytes(gen.last.GlobalState, "_visual_context.previousSceneText").String())
	assert.JSONEq(t, `"default"`, string(gen.last.Style))
	assert.Equal(t, 80, gen.last.ViewportWidth)
}

func TestBackfillSupersedesAndDedupes(t *testing.T) {
	gen := &stubGenerator{delay: time.Second}
	m := NewManager(origin, nil, zap.NewNop())

	first := make(chan error, 1)
	go func() {
		_, _, err := m.Backfill(context.Background(), gen, BackfillRequest{SceneID: "a", Text: "一"})
		first <- err
	}()
	require.Eventually(t, func() bool { return gen.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	_, _, err := m.Backfill(context.Background(), gen, BackfillRequest{SceneID: "a", Text: "一"})
	assert.ErrorIs(t, err, ErrBackfillInFlight)

	gen.delay = 0
	_, key, err := m.Backfill(context.Background(), gen, BackfillRequest{SceneID: "b", Text: "二", Style: json.RawMessage(`{"type":"anime"}`)})
	require.NoError(t, err)
	assert.Equal(t, "b|二", key)

	select {
	case err := <-first:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("superseded backfill was not cancelled")
	}
}

func TestFingerprintTruncates(t *testing.T) {
	long := make([]rune, 300)
	for i := range long {
		long[i] = '字'
	}
	fp := Fingerprint("", string(long))
	assert.Equal(t, "no_scene_id|"+string(long[:200]), fp)
}

func TestCoverRect(t *testing.T) {
	// wide source into square target crops the sides
	r := CoverRect(image.Rect(0, 0, 200, 100), 10, 10)
	assert.Equal(t, image.Rect(50, 0, 150, 100), r)
	// tall source into wide target crops top and bottom
	r = CoverRect(image.Rect(0, 0, 100, 200), 20, 10)
	assert.Equal(t, image.Rect(0, 75, 100, 125), r)
}

func TestRenderDimensions(t *testing.T) {
	img, _, err := image.Decode(bytes.NewReader(pngBytes(t, color.Black)))
	require.NoError(t, err)
	out := Render(img, 6, 3)
	assert.Equal(t, 2, bytes.Count([]byte(out), []byte("\n")))
	assert.Equal(t, "", Render(nil, 6, 3))
}
