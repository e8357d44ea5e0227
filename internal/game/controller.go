package game

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/DaanHessen/storyloom/internal/backend"
	"github.com/DaanHessen/storyloom/internal/engine"
	"github.com/DaanHessen/storyloom/internal/visual"
)

const (
	// StartOption is the choice sent to open the first scene.
	StartOption = "开始游戏"

	firstSceneRetries = 2
	defaultRetryDelay = 2 * time.Second
)

// ErrThrottled is returned when a pregeneration request was dropped by the limiter.
var ErrThrottled = errors.New("pregeneration throttled")

// Backend is the generation half of the content API.
type Backend interface {
	GenerateWorldview(ctx context.Context, req backend.WorldviewRequest) (engine.GameData, error)
	GenerateOption(ctx context.Context, req backend.OptionRequest) (backend.OptionResult, error)
	Pregenerate(ctx context.Context, req backend.PregenerateRequest) (string, error)
	GenerateSceneImage(ctx context.Context, req backend.SceneImageRequest) (*engine.ImageDescriptor, error)
	GenerateEnding(ctx context.Context, gs engine.GameData) (engine.EndingPrediction, error)
}

// Config tunes a Controller. Zero values pick the defaults.
type Config struct {
	BackendURL string
	Seed       engine.SessionSeed
	RetryDelay time.Duration
	// PregenerateEvery is the minimum spacing of pregeneration requests.
	PregenerateEvery time.Duration
	// PortraitPoll and PortraitWait pace the wait for the protagonist portrait.
	PortraitPoll time.Duration
	PortraitWait time.Duration
	Now          func() time.Time
}

// Controller turns player decisions into backend exchanges. Its methods work on
// a session copy owned by the call, so they are safe to run off the UI loop;
// the caller swaps the returned state in.
type Controller struct {
	api     Backend
	visual  *visual.Manager
	limiter *rate.Limiter
	logger  *zap.Logger
	cfg     Config

	mu  sync.Mutex
	rng *engine.Stream
}

func NewController(api Backend, vm *visual.Manager, cfg Config, logger *zap.Logger) *Controller {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.PregenerateEvery <= 0 {
		cfg.PregenerateEvery = 2 * time.Second
	}
	if cfg.PortraitPoll <= 0 {
		cfg.PortraitPoll = defaultPortraitPoll
	}
	if cfg.PortraitWait <= 0 {
		cfg.PortraitWait = defaultPortraitWait
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Controller{
		api:     api,
		visual:  vm,
		limiter: rate.NewLimiter(rate.Every(cfg.PregenerateEvery), 1),
		logger:  logger.Named("GameController"),
		cfg:     cfg,
		rng:     cfg.Seed.Stream("game"),
	}
}

// Visual returns the background manager, nil when images are disabled.
func (c *Controller) Visual() *visual.Manager { return c.visual }

func (c *Controller) float64() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Float64()
}

func (c *Controller) sceneID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return engine.NewSceneID(c.cfg.Now(), c.rng)
}

type randFunc func() float64

func (f randFunc) Float64() float64 { return f() }

// Setup is what the player picked before the world is generated.
type Setup struct {
	Theme      string
	Attributes engine.Attributes
	Difficulty engine.Difficulty
	Tone       engine.Tone
	Style      engine.ImageStyle
}

// GenerateWorldview authors the world. On failure it still returns the
// built-in default world together with the error, so play can continue.
func (c *Controller) GenerateWorldview(ctx context.Context, s Setup) (engine.GameData, error) {
	d, err := c.api.GenerateWorldview(ctx, backend.WorldviewRequest{
		GameTheme:       s.Theme,
		ProtagonistAttr: s.Attributes,
		Difficulty:      s.Difficulty,
		ToneKey:         s.Tone,
		ImageStyle:      s.Style,
	})
	if err != nil {
		c.logger.Warn("Worldview generation failed, using defaults", zap.Error(err))
		d = engine.DefaultGameData(s.Theme, s.Attributes, s.Tone)
	} else {
		d.Worldview = engine.FillWorldviewDefaults(d.Worldview, s.Theme, s.Attributes)
		if d.Worldline.CurrentChapter == "" {
			d.Worldline.CurrentChapter = "chapter1"
		}
	}
	if len(d.ImageStyle) == 0 && !s.Style.IsZero() {
		if raw, merr := json.Marshal(s.Style); merr == nil {
			d.ImageStyle = raw
		}
	}
	return d, err
}

// WorldviewFailureText is the modal text for a failed world generation.
func (c *Controller) WorldviewFailureText(err error) string {
	return engine.WorldviewFailureText(backend.Kind(err), c.cfg.BackendURL, backend.Detail(err))
}

// Turn is the outcome of one exchange.
type Turn struct {
	State *engine.GameState
	// Image is the image delivered with the scene, nil when a backfill is needed.
	Image    *engine.ImageDescriptor
	Unlocked []string
	// Ending is set when the choice asked for the ending instead of a scene.
	Ending bool
	// Err is the backend failure; State then shows the failure text.
	Err error
}

// FirstScene opens the story. Invalid scenes are retried twice before the
// worldline's fallback scene is used.
func (c *Controller) FirstScene(ctx context.Context, st *engine.GameState) Turn {
	var (
		res     backend.OptionResult
		lastErr error
		ok      bool
	)
retry:
	for attempt := 0; attempt <= firstSceneRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				break retry
			case <-time.After(c.cfg.RetryDelay):
			}
			c.logger.Info("Retrying first scene", zap.Int("attempt", attempt))
		}
		r, err := c.api.GenerateOption(ctx, backend.OptionRequest{
			Option:      StartOption,
			GlobalState: st.Data,
		})
		if err == nil && engine.ValidScene(r.Scene) {
			res, ok = r, true
			break
		}
		if err == nil {
			err = errors.New("first scene too short")
		}
		lastErr = err
		c.logger.Warn("First scene unusable", zap.Int("attempt", attempt), zap.Error(err))
	}

	base := st.Progress
	if base <= 0 {
		base = engine.InitialProgress(randFunc(c.float64))
	}
	if !ok {
		st.SetProgress(base)
		c.present(st, engine.FallbackScene(st.Data.Worldline), engine.FirstSceneFallbacks, nil)
		return Turn{State: st, Err: lastErr}
	}

	if len(res.FlowUpdate) > 0 {
		c.applyFlow(st, res.FlowUpdate, base)
	} else {
		st.SetProgress(base)
	}
	opts := res.Options
	if res.Options != nil && len(res.Options) == 0 {
		opts = engine.FirstSceneOptions
	}
	unlocked := c.detectUnlocks(st)
	c.present(st, engine.CleanSceneText(res.Scene), engine.NormalizeOptions(opts, engine.FirstSceneFallbacks), res.Image)
	return Turn{State: st, Image: res.Image, Unlocked: unlocked}
}

// ChooseOption resolves the option at index. The end-game option short-cuts to
// the ending; failures leave recovery options on screen.
func (c *Controller) ChooseOption(ctx context.Context, st *engine.GameState, index int, option string) Turn {
	if engine.IsEndGame(option) {
		return Turn{State: st, Ending: true}
	}
	req := backend.OptionRequest{
		Option:             option,
		GlobalState:        st.Data,
		OptionIndex:        index,
		PreviousSceneID:    st.SceneID,
		PreviousSceneImage: st.LastImage,
		PreviousSceneText:  st.Scene,
	}
	if st.SceneID != "" {
		id := st.SceneID
		req.SceneID = &id
	}
	res, err := c.api.GenerateOption(ctx, req)
	if err != nil {
		c.logger.Warn("Option failed", zap.String("option", option), zap.Error(err))
		c.present(st, c.SceneFailureText(err), engine.RecoveryOptions, nil)
		return Turn{State: st, Err: err}
	}

	scene := engine.SceneFailedText
	if engine.ValidScene(res.Scene) {
		scene = engine.CleanSceneText(res.Scene)
	} else {
		c.logger.Warn("Scene text invalid", zap.Int("len", len([]rune(res.Scene))))
	}
	c.applyFlow(st, res.FlowUpdate, st.Progress)
	unlocked := c.detectUnlocks(st)
	c.present(st, scene, engine.NormalizeOptions(res.Options, nil), res.Image)
	return Turn{State: st, Image: res.Image, Unlocked: unlocked}
}

// SceneFailureText is the scene shown when an option could not be resolved.
func (c *Controller) SceneFailureText(err error) string {
	if msg, ok := backend.Rejection(err); ok {
		if msg == "" {
			return engine.SceneFailedText
		}
		return msg
	}
	return engine.SceneFailureText(backend.Kind(err), backend.Detail(err))
}

// applyFlow advances progress on every resolved scene and merges the backend's
// worldline update when there is one. The locally computed progress always
// wins over the backend's.
func (c *Controller) applyFlow(st *engine.GameState, update json.RawMessage, base float64) {
	solved := len(update) > 0 && gjson.GetBytes(update, "chapter_conflict_solved").Type == gjson.True
	next := engine.NextProgress(base, solved, randFunc(c.float64))
	if len(update) > 0 {
		if err := st.Data.Worldline.Merge(update); err != nil {
			c.logger.Warn("flow_update merge failed", zap.Error(err))
		}
	}
	st.SetProgress(next)
}

// detectUnlocks reveals deep backgrounds the worldline now marks as unlocked.
func (c *Controller) detectUnlocks(st *engine.GameState) []string {
	var out []string
	for _, name := range st.Data.Worldline.Characters() {
		if !st.Data.Worldline.CharacterUnlocked(name) || slices.Contains(st.Unlocked, name) {
			continue
		}
		fresh, err := st.UnlockDeepBackground(name)
		if err != nil {
			c.logger.Warn("Unlock failed", zap.String("character", name), zap.Error(err))
			continue
		}
		if fresh {
			out = append(out, name)
		}
	}
	return out
}

// present commits a scene to the session and gives it a fresh id.
func (c *Controller) present(st *engine.GameState, text string, opts []string, img *engine.ImageDescriptor) {
	st.PreviousSceneID = st.SceneID
	st.PreviousSceneText = st.Scene
	st.Scene = text
	st.Segments = engine.SplitTextIntoSegments(text)
	st.Options = slices.Clone(opts)
	if img != nil {
		st.LastImage = img
	}
	st.SceneID = c.sceneID()
	st.Screen = engine.ScreenGameplay
}

// Pregenerate asks the backend to prepare the scenes behind the current
// options. It returns the scene id the backend settled on.
func (c *Controller) Pregenerate(ctx context.Context, st *engine.GameState) (string, error) {
	if len(st.Options) == 0 {
		return "", nil
	}
	if !c.limiter.Allow() {
		return "", ErrThrottled
	}
	id, err := c.api.Pregenerate(ctx, backend.PregenerateRequest{
		GlobalState:       st.Data,
		CurrentOptions:    st.Options,
		SceneID:           st.SceneID,
		CurrentSceneImage: st.LastImage,
		CurrentSceneText:  st.Scene,
	})
	if err != nil {
		c.logger.Debug("Pregeneration failed", zap.Error(err))
		return "", err
	}
	return id, nil
}

// Ending is what the ending screen shows.
type Ending struct {
	Tone    string
	Title   string
	Content string
}

// GenerateEnding asks for the final ending, falling back to the hidden
// prediction carried in the game data.
func (c *Controller) GenerateEnding(ctx context.Context, st *engine.GameState) (Ending, error) {
	e, err := c.api.GenerateEnding(ctx, st.Data)
	if err != nil {
		c.logger.Warn("Ending generation failed, using prediction", zap.Error(err))
		e = st.Data.Ending
	}
	if e.MainTone == "" {
		e.MainTone = "NE"
	}
	return Ending{
		Tone:    e.MainTone,
		Title:   engine.EndingTitle(e, st.Theme),
		Content: engine.EndingContent(e),
	}, err
}

// Backfill requests an image for a scene that arrived without one. The key
// identifies the scene; compare it with BackfillKey before applying.
func (c *Controller) Backfill(ctx context.Context, st *engine.GameState, width, height int) (*engine.ImageDescriptor, string, error) {
	if c.visual == nil {
		return nil, "", errors.New("visual manager disabled")
	}
	return c.visual.Backfill(ctx, c.api, visual.BackfillRequest{
		SceneID:       st.SceneID,
		Text:          st.Scene,
		GlobalState:   st.Data,
		Style:         engine.StyleParam(st.Data, st.Style),
		PreviousImage: st.LastImage,
		PreviousText:  st.PreviousSceneText,
		Width:         width,
		Height:        height,
	})
}

// BackfillKey is the key of the scene currently shown in st.
func BackfillKey(st *engine.GameState) string { return visual.Fingerprint(st.SceneID, st.Scene) }
