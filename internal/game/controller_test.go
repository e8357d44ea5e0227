package game

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/DaanHessen/storyloom/internal/backend"
	"github.com/DaanHessen/storyloom/internal/engine"
)

type stubBackend struct {
	mu       sync.Mutex
	options  []backend.OptionRequest
	replies  []backend.OptionResult
	optErr   error
	pregen   int
	ending   engine.EndingPrediction
	endErr   error
	worldErr error
}

func (s *stubBackend) GenerateWorldview(ctx context.Context, req backend.WorldviewRequest) (engine.GameData, error) {
	if s.worldErr != nil {
		return engine.GameData{}, s.worldErr
	}
	d := engine.NewGameData()
	d.Worldline.CurrentChapter = ""
	return d, nil
}

func (s *stubBackend) GenerateOption(ctx context.Context, req backend.OptionRequest) (backend.OptionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.options = append(s.options, req)
	if s.optErr != nil {
		return backend.OptionResult{}, s.optErr
	}
	if len(s.replies) == 0 {
		return backend.OptionResult{}, errors.New("no reply queued")
	}
	r := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return r, nil
}

func (s *stubBackend) Pregenerate(ctx context.Context, req backend.PregenerateRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pregen++
	return "scene_backend", nil
}

func (s *stubBackend) GenerateSceneImage(ctx context.Context, req backend.SceneImageRequest) (*engine.ImageDescriptor, error) {
	return nil, errors.New("no images")
}

func (s *stubBackend) GenerateEnding(ctx context.Context, gs engine.GameData) (engine.EndingPrediction, error) {
	return s.ending, s.endErr
}

func (s *stubBackend) calls() []backend.OptionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]backend.OptionRequest(nil), s.options...)
}

func newController(api Backend) *Controller {
	seed, _ := engine.NewSessionSeed("controller-test")
	return NewController(api, nil, Config{
		BackendURL:       "http://127.0.0.1:5001",
		Seed:             seed,
		RetryDelay:       time.Millisecond,
		PregenerateEvery: time.Hour,
		Now:              func() time.Time { return time.UnixMilli(1700000000000) },
	}, zap.NewNop())
}

func playingState() *engine.GameState {
	st := engine.NewGameState()
	st.Theme = "奇幻冒险"
	st.Data = engine.DefaultGameData(st.Theme, st.Attributes, engine.ToneNormal)
	st.Scene = "你站在迷雾森林的入口，四周一片寂静。"
	st.SceneID = "scene_old"
	st.Options = []string{"进入森林", "原路返回"}
	st.SetProgress(10)
	st.Screen = engine.ScreenGameplay
	return st
}

const longScene = "你推开沉重的石门，一条幽深的走廊在火光中向前延伸。"

func TestChooseOptionAppliesScene(t *testing.T) {
	api := &stubBackend{replies: []backend.OptionResult{{
		Scene:      longScene,
		Options:    []string{"沿走廊前进", "退回门外"},
		Image:      &engine.ImageDescriptor{URL: "/image_cache/a.png"},
		FlowUpdate: json.RawMessage(`{"quest_progress":"进入神庙","characters":{"配角1":{"deep_background_unlocked":true}}}`),
	}}}
	c := newController(api)
	st := playingState()

	turn := c.ChooseOption(context.Background(), st, 1, "原路返回")
	require.NoError(t, turn.Err)
	assert.False(t, turn.Ending)

	reqs := api.calls()
	require.Len(t, reqs, 1)
	require.NotNil(t, reqs[0].SceneID)
	assert.Equal(t, "scene_old", *reqs[0].SceneID)
	assert.Equal(t, "scene_old", reqs[0].PreviousSceneID)
	assert.Equal(t, 1, reqs[0].OptionIndex)
	assert.Contains(t, reqs[0].PreviousSceneText, "迷雾森林")

	got := turn.State
	assert.Equal(t, longScene, got.Scene)
	assert.NotEmpty(t, got.Segments)
	assert.Equal(t, []string{"沿走廊前进", "退回门外"}, got.Options)
	assert.Equal(t, "scene_old", got.PreviousSceneID)
	assert.True(t, strings.HasPrefix(got.SceneID, "scene_1700000000000_"))
	assert.Contains(t, got.PreviousSceneText, "迷雾森林")
	require.NotNil(t, got.LastImage)
	assert.Equal(t, "/image_cache/a.png", got.LastImage.URL)

	assert.Greater(t, got.Progress, 10.0)
	assert.LessOrEqual(t, got.Progress, 95.0)
	assert.Equal(t, got.Progress, got.Data.Worldline.ChapterProgress)
	assert.Equal(t, "进入神庙", got.Data.Worldline.QuestProgress)

	assert.Equal(t, []string{"配角1"}, turn.Unlocked)
	assert.Equal(t, []string{"配角1"}, got.Unlocked)
}

func TestChooseOptionSolvedConflict(t *testing.T) {
	api := &stubBackend{replies: []backend.OptionResult{{
		Scene:      longScene,
		FlowUpdate: json.RawMessage(`{"chapter_conflict_solved":true}`),
	}}}
	turn := newController(api).ChooseOption(context.Background(), playingState(), 0, "进入森林")
	require.NoError(t, turn.Err)
	assert.Equal(t, 100.0, turn.State.Progress)
	assert.True(t, turn.State.Data.Worldline.ConflictSolved)
	assert.Equal(t, engine.DefaultOptions, turn.State.Options)
}

func TestChooseOptionWithoutFlowUpdateAdvancesProgress(t *testing.T) {
	api := &stubBackend{replies: []backend.OptionResult{{Scene: "短"}}}
	turn := newController(api).ChooseOption(context.Background(), playingState(), 0, "进入森林")
	require.NoError(t, turn.Err)
	assert.Greater(t, turn.State.Progress, 10.0)
	assert.Equal(t, turn.State.Progress, turn.State.Data.Worldline.ChapterProgress)
	assert.Equal(t, engine.SceneFailedText, turn.State.Scene)
	assert.Empty(t, turn.Unlocked)
}

func TestProgressClimbsAcrossPlainChoices(t *testing.T) {
	api := &stubBackend{replies: []backend.OptionResult{{Scene: longScene, Options: []string{"继续"}}}}
	c := newController(api)
	st := playingState()
	prev := st.Progress
	for i := 0; i < 3; i++ {
		turn := c.ChooseOption(context.Background(), st, 0, "继续")
		require.NoError(t, turn.Err)
		assert.Greater(t, turn.State.Progress, prev, "choice %d", i)
		assert.Less(t, turn.State.Progress, 95.0)
		prev = turn.State.Progress
		st = turn.State
	}
}

func TestChooseOptionEndGame(t *testing.T) {
	api := &stubBackend{}
	turn := newController(api).ChooseOption(context.Background(), playingState(), 1, engine.EndGameMarker)
	assert.True(t, turn.Ending)
	assert.Empty(t, api.calls())
}

func TestChooseOptionNetworkFailure(t *testing.T) {
	api := &stubBackend{optErr: &backend.Error{Kind: engine.FailureNetwork, Msg: "connection failed"}}
	turn := newController(api).ChooseOption(context.Background(), playingState(), 0, "进入森林")
	require.Error(t, turn.Err)
	assert.Equal(t, engine.SceneFailureText(engine.FailureNetwork, ""), turn.State.Scene)
	assert.Equal(t, engine.RecoveryOptions, turn.State.Options)
	assert.Equal(t, 10.0, turn.State.Progress)
}

func TestChooseOptionRejectedOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate-option", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"error","message":"生成超时，请稍后重试"}`))
	}))
	defer srv.Close()

	c := newController(backend.NewClient(srv.URL, zap.NewNop()))
	turn := c.ChooseOption(context.Background(), playingState(), 0, "进入森林")
	require.Error(t, turn.Err)
	assert.Equal(t, "生成超时，请稍后重试", turn.State.Scene)
	assert.Equal(t, engine.RecoveryOptions, turn.State.Options)
}

func TestFirstSceneRetriesShortScenes(t *testing.T) {
	api := &stubBackend{replies: []backend.OptionResult{
		{Scene: "太短"},
		{Scene: "   "},
		{Scene: longScene, Options: []string{"走进去"}},
	}}
	st := playingState()
	st.SceneID = ""
	st.SetProgress(0)

	turn := newController(api).FirstScene(context.Background(), st)
	require.NoError(t, turn.Err)

	reqs := api.calls()
	require.Len(t, reqs, 3)
	for _, r := range reqs {
		assert.Equal(t, StartOption, r.Option)
		assert.Nil(t, r.SceneID)
		assert.Zero(t, r.OptionIndex)
	}
	assert.Equal(t, longScene, turn.State.Scene)
	assert.Equal(t, []string{"走进去", "继续深入探索"}, turn.State.Options)
	assert.GreaterOrEqual(t, turn.State.Progress, 1.0)
	assert.LessOrEqual(t, turn.State.Progress, 3.0)
}

func TestFirstSceneFallback(t *testing.T) {
	api := &stubBackend{replies: []backend.OptionResult{{Scene: "短"}}}
	st := playingState()
	st.SetProgress(0)

	turn := newController(api).FirstScene(context.Background(), st)
	require.Error(t, turn.Err)
	assert.Len(t, api.calls(), 3)
	assert.Equal(t, engine.FallbackScene(st.Data.Worldline), turn.State.Scene)
	assert.Equal(t, engine.FirstSceneFallbacks, turn.State.Options)
	assert.GreaterOrEqual(t, turn.State.Progress, 1.0)
	assert.LessOrEqual(t, turn.State.Progress, 3.0)
}

func TestFirstSceneEmptyOptionList(t *testing.T) {
	api := &stubBackend{replies: []backend.OptionResult{{Scene: longScene, Options: []string{}}}}
	turn := newController(api).FirstScene(context.Background(), playingState())
	require.NoError(t, turn.Err)
	assert.Equal(t, engine.FirstSceneOptions[:2], turn.State.Options)
}

func TestFirstSceneHonoursCancel(t *testing.T) {
	api := &stubBackend{replies: []backend.OptionResult{{Scene: "短"}}}
	seed, _ := engine.NewSessionSeed("cancel")
	c := NewController(api, nil, Config{Seed: seed, RetryDelay: time.Hour}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	turn := c.FirstScene(ctx, playingState())
	assert.ErrorIs(t, turn.Err, context.Canceled)
	assert.Len(t, api.calls(), 1)
}

func TestPregenerateThrottled(t *testing.T) {
	api := &stubBackend{}
	c := newController(api)
	st := playingState()

	id, err := c.Pregenerate(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, "scene_backend", id)

	_, err = c.Pregenerate(context.Background(), st)
	assert.ErrorIs(t, err, ErrThrottled)
	assert.Equal(t, 1, api.pregen)

	st.Options = nil
	id, err = c.Pregenerate(context.Background(), st)
	assert.NoError(t, err)
	assert.Empty(t, id)
}

func TestGenerateEndingFallsBackToPrediction(t *testing.T) {
	api := &stubBackend{endErr: errors.New("boom")}
	st := playingState()
	st.Data.Ending = engine.EndingPrediction{MainTone: "BE", Content: "一切归于沉寂"}

	e, err := newController(api).GenerateEnding(context.Background(), st)
	require.Error(t, err)
	assert.Equal(t, "BE", e.Tone)
	assert.Equal(t, "悲剧结局 - 奇幻冒险", e.Title)
	assert.Equal(t, "一切归于沉寂", e.Content)

	api = &stubBackend{ending: engine.EndingPrediction{MainTone: "HE", Content: "光明重临"}}
	e, err = newController(api).GenerateEnding(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, "圆满结局 - 奇幻冒险", e.Title)
}

func TestGenerateWorldview(t *testing.T) {
	setup := Setup{
		Theme:      "赛博朋克",
		Attributes: engine.DefaultAttributes(),
		Difficulty: engine.DifficultyMedium,
		Tone:       engine.ToneNormal,
		Style:      engine.PredefinedStyle(engine.StyleOil),
	}

	d, err := newController(&stubBackend{}).GenerateWorldview(context.Background(), setup)
	require.NoError(t, err)
	assert.Equal(t, "chapter1", d.Worldline.CurrentChapter)
	assert.NotEmpty(t, d.Worldview.Str("game_style"))
	assert.Equal(t, string(engine.StyleOil), gjson.GetBytes(d.ImageStyle, "type").String())

	c := newController(&stubBackend{worldErr: &backend.Error{Kind: engine.FailureNetwork, Msg: "connection failed"}})
	d, err = c.GenerateWorldview(context.Background(), setup)
	require.Error(t, err)
	assert.Equal(t, "赛博朋克", d.Worldview.Str("game_style"))
	assert.NotEmpty(t, d.Worldline.Characters())
	assert.Contains(t, c.WorldviewFailureText(err), "http://127.0.0.1:5001")
}

func TestBackfillKeyTracksScene(t *testing.T) {
	st := playingState()
	k := BackfillKey(st)
	st.Scene = longScene
	assert.NotEqual(t, k, BackfillKey(st))

	_, _, err := newController(&stubBackend{}).Backfill(context.Background(), st, 80, 24)
	assert.Error(t, err)
}
