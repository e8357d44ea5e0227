package ui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"go.uber.org/zap"

	"github.com/DaanHessen/storyloom/internal/audio"
	"github.com/DaanHessen/storyloom/internal/engine"
	"github.com/DaanHessen/storyloom/internal/game"
	"github.com/DaanHessen/storyloom/internal/store"
	"github.com/DaanHessen/storyloom/internal/text"
	"github.com/DaanHessen/storyloom/internal/visual"
)

const (
	fadeDuration     = 120 * time.Millisecond
	dispatchDelay    = 500 * time.Millisecond
	slowHintAfter    = 30 * time.Second
	toastDuration    = 3 * time.Second
	loadingHint      = "正在生成剧情，请稍候..."
	slowLoadingHint  = "正在生成场景图片，请稍候...（图片生成最多需要6分钟）"
	defaultWidth     = 100
	defaultHeight    = 30
	backgroundHeight = 12
)

// Deps are the collaborators the TUI drives.
type Deps struct {
	Controller *game.Controller
	Saves      *store.Bridge
	Sound      audio.Player
	Logger     *zap.Logger
	// Palette forces a palette instead of following the chosen tone.
	Palette string
	Version string
}

// views binds every widget the screens render into.
type views struct {
	themeInput textinput.Model
	styleInput textinput.Model
	saveInput  textinput.Model
	setting    viewport.Model
	ending     viewport.Model
	spinner    spinner.Model
	background *visual.Renderer
}

type modal struct {
	title     string
	text      string
	cancel    bool
	onConfirm func(m *model) tea.Cmd
}

type model struct {
	ctx    context.Context
	deps   Deps
	logger *zap.Logger
	sound  audio.Player

	state     *engine.GameState
	screen    engine.Screen
	presenter *text.Presenter
	views     views
	styles    styles
	palette   string
	width     int
	height    int

	fadeFrame string
	modal     *modal
	toast     string
	toastGen  int

	menuCursor int

	attrCursor int

	difficultyCursor int
	difficultyPicked bool

	toneCursor int
	tonePicked bool

	styleCursor     int
	styleSubCursor  int
	styleOilOpen    bool
	styleCustomOpen bool

	settingTab int
	// resuming turns the setting screen into the info panel of a loaded save
	resuming bool

	// loading covers both the loading screen and the in-game overlay
	loading      bool
	loadingGen   int
	loadingHint  string
	loadingLabel string

	selected      int
	hover         int
	dispatchGen   int
	showCharacter bool
	background    visual.Background
	portrait      visual.Background

	exitOpen   bool
	exitCursor int

	saves          []store.SaveRecord
	savesFromCache bool
	saveCursor     int
	savesReturn    engine.Screen
	prompt         *savePrompt

	ending game.Ending
}

type savePrompt struct {
	thenMenu bool
}

// messages ---------------------------------------------------------------------

type fadeDoneMsg struct{}

type toastDoneMsg struct{ gen int }

type hintMsg struct{ gen int }

type dispatchMsg struct {
	gen    int
	index  int
	option string
}

type worldviewMsg struct {
	data engine.GameData
	err  error
}

type portraitMsg struct {
	st  *engine.GameState
	bg  visual.Background
	err error
}

type turnMsg struct{ turn game.Turn }

type endingMsg struct {
	ending game.Ending
	err    error
}

type pregenMsg struct {
	sceneID string
	id      string
	err     error
}

type backfillMsg struct {
	key string
	img *engine.ImageDescriptor
	err error
}

type backgroundMsg struct {
	bg  visual.Background
	err error
}

type savesMsg struct {
	recs      []store.SaveRecord
	fromCache bool
	err       error
}

type savedMsg struct {
	res      store.Result
	err      error
	thenMenu bool
}

type loadedMsg struct {
	st  *engine.GameState
	res store.Result
	err error
}

type deletedMsg struct {
	res store.Result
	err error
}

func newModel(ctx context.Context, deps Deps) model {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Sound == nil {
		deps.Sound = audio.Silent{}
	}
	m := model{
		ctx:       ctx,
		deps:      deps,
		logger:    deps.Logger.Named("ScreenController"),
		sound:     deps.Sound,
		state:     engine.NewGameState(),
		screen:    engine.ScreenMenu,
		presenter: text.New(),
		selected:  -1,
		width:     defaultWidth,
		height:    defaultHeight,
	}

	ti := textinput.New()
	ti.Placeholder = "例如：赛博朋克都市、修仙门派、末日废土"
	ti.CharLimit = engine.MaxThemeRunes * 2
	m.views.themeInput = ti

	si := textinput.New()
	si.Placeholder = "描述你想要的画面风格"
	si.CharLimit = 60
	m.views.styleInput = si

	sv := textinput.New()
	sv.Placeholder = "存档名称"
	sv.CharLimit = engine.MaxSaveNameRunes * 2
	m.views.saveInput = sv

	m.views.setting = viewport.New(defaultWidth-4, defaultHeight-8)
	m.views.ending = viewport.New(defaultWidth-4, defaultHeight-8)
	m.views.spinner = spinner.New(spinner.WithSpinner(spinner.Dot))
	m.views.background = &visual.Renderer{}

	m.applyPalette()
	return m
}

// applyPalette picks the palette override or the session tone.
func (m *model) applyPalette() {
	name := m.deps.Palette
	if name == "" {
		name = string(m.state.Tone)
	}
	m.palette = name
	m.styles = newStyles(paletteFor(name))
	m.views.spinner.Style = m.styles.accent
}

// switchScreen records s as current and runs its setup. Unknown screens are
// logged and ignored.
func (m *model) switchScreen(s engine.Screen) tea.Cmd {
	if !s.Valid() {
		m.logger.Error("Unknown screen", zap.String("screen", string(s)))
		return nil
	}
	if m.screen != s {
		m.fadeFrame = m.dimmed()
	}
	m.screen = s
	m.state.Screen = s
	m.sound.Play(audio.CueSwitch)

	cmds := []tea.Cmd{tea.Tick(fadeDuration, func(time.Time) tea.Msg { return fadeDoneMsg{} })}
	switch s {
	case engine.ScreenThemeInput:
		m.views.themeInput.Reset()
		cmds = append(cmds, m.views.themeInput.Focus())
	case engine.ScreenImageStyleSelection:
		m.state.Style = engine.ImageStyle{}
		m.styleCursor, m.styleSubCursor = 0, 0
		m.styleOilOpen, m.styleCustomOpen = false, false
		m.views.styleInput.Reset()
		m.views.styleInput.Blur()
	case engine.ScreenSaveManagement:
		m.saveCursor = 0
		cmds = append(cmds, m.loadSaves())
	case engine.ScreenGameplay:
		m.showCharacter = true
	case engine.ScreenAttrSelection:
		m.state.Attributes = engine.DefaultAttributes()
		m.attrCursor = 0
	case engine.ScreenMenu:
		m.presenter.Stop()
		m.exitOpen = false
		m.prompt = nil
	}
	if s != engine.ScreenThemeInput {
		m.views.themeInput.Blur()
	}
	return tea.Batch(cmds...)
}

// dimmed is the outgoing frame shown for one tick during a screen change.
func (m *model) dimmed() string {
	return lipgloss.NewStyle().Faint(true).Render(ansi.Strip(m.render()))
}

func (m *model) showModal(title, body string, cancel bool, onConfirm func(m *model) tea.Cmd) {
	m.modal = &modal{title: title, text: body, cancel: cancel, onConfirm: onConfirm}
}

func (m *model) showToast(msg string) tea.Cmd {
	m.toast = msg
	m.toastGen++
	gen := m.toastGen
	return tea.Tick(toastDuration, func(time.Time) tea.Msg { return toastDoneMsg{gen: gen} })
}

// startLoading shows the spinner and schedules the slow-generation hint.
func (m *model) startLoading(label string) tea.Cmd {
	m.loading = true
	m.loadingGen++
	m.loadingHint = loadingHint
	m.loadingLabel = label
	gen := m.loadingGen
	return tea.Batch(
		m.views.spinner.Tick,
		tea.Tick(slowHintAfter, func(time.Time) tea.Msg { return hintMsg{gen: gen} }),
	)
}

func (m *model) stopLoading() {
	m.loading = false
	m.loadingGen++
}

// newGame drops the session and starts the setup flow.
func (m *model) newGame() tea.Cmd {
	m.presenter.Stop()
	m.state = engine.NewGameState()
	m.background = visual.Background{}
	m.difficultyPicked, m.tonePicked = false, false
	m.difficultyCursor, m.toneCursor = 0, 0
	m.applyPalette()
	return m.switchScreen(engine.ScreenAttrSelection)
}

// tea.Model implementation ---------------------------------------------------

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil
	case fadeDoneMsg:
		m.fadeFrame = ""
		return m, nil
	case toastDoneMsg:
		if msg.gen == m.toastGen {
			m.toast = ""
		}
		return m, nil
	case hintMsg:
		if msg.gen == m.loadingGen && m.loading {
			m.loadingHint = slowLoadingHint
		}
		return m, nil
	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.views.spinner, cmd = m.views.spinner.Update(msg)
		return m, cmd
	case text.TickMsg:
		return m, m.onTick(msg)
	case dispatchMsg:
		return m, m.onDispatch(msg)
	case worldviewMsg:
		return m, m.onWorldview(msg)
	case portraitMsg:
		return m, m.onPortrait(msg)
	case turnMsg:
		return m, m.onTurn(msg)
	case endingMsg:
		return m, m.onEnding(msg)
	case pregenMsg:
		m.onPregenerated(msg)
		return m, nil
	case backfillMsg:
		return m, m.onBackfill(msg)
	case backgroundMsg:
		if msg.err == nil || msg.bg.URL != "" {
			m.background = msg.bg
		}
		return m, nil
	case savesMsg:
		return m, m.onSaves(msg)
	case savedMsg:
		return m, m.onSaved(msg)
	case loadedMsg:
		return m, m.onLoaded(msg)
	case deletedMsg:
		return m, m.onDeleted(msg)
	case tea.KeyMsg:
		return m, m.onKey(msg)
	}
	return m, m.updateInputs(msg)
}

// updateInputs forwards blink and other widget messages to the focused input.
func (m *model) updateInputs(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch {
	case m.prompt != nil:
		m.views.saveInput, cmd = m.views.saveInput.Update(msg)
	case m.screen == engine.ScreenThemeInput:
		m.views.themeInput, cmd = m.views.themeInput.Update(msg)
	case m.styleCustomOpen:
		m.views.styleInput, cmd = m.views.styleInput.Update(msg)
	}
	return cmd
}

func (m *model) resize() {
	w, h := max(m.width-4, 20), max(m.height-10, 5)
	m.views.setting.Width, m.views.setting.Height = w, h
	m.views.ending.Width, m.views.ending.Height = w, h
	switch m.screen {
	case engine.ScreenSetting:
		m.refreshSetting()
	case engine.ScreenEnding:
		m.refreshEnding()
	}
}

func (m *model) onKey(msg tea.KeyMsg) tea.Cmd {
	k := msg.String()
	if k == "ctrl+c" {
		return tea.Quit
	}
	if m.modal != nil {
		return m.modalKey(k)
	}
	if m.prompt != nil {
		return m.promptKey(msg)
	}
	switch m.screen {
	case engine.ScreenMenu:
		return m.menuKey(k)
	case engine.ScreenAttrSelection:
		return m.attrKey(k)
	case engine.ScreenDifficultySelection:
		return m.difficultyKey(k)
	case engine.ScreenToneSelection:
		return m.toneKey(k)
	case engine.ScreenThemeInput:
		return m.themeKey(msg)
	case engine.ScreenImageStyleSelection:
		return m.styleKey(msg)
	case engine.ScreenSetting:
		return m.settingKey(msg)
	case engine.ScreenPortrait:
		return m.portraitKey(k)
	case engine.ScreenGameplay:
		return m.gameplayKey(k)
	case engine.ScreenSaveManagement:
		return m.savesKey(k)
	case engine.ScreenEnding:
		return m.endingKey(msg)
	}
	return nil
}

func (m *model) modalKey(k string) tea.Cmd {
	md := m.modal
	switch k {
	case "enter", "y":
		m.modal = nil
		m.sound.Play(audio.CueClick)
		if md.onConfirm != nil {
			return md.onConfirm(m)
		}
	case "esc", "n", "q":
		m.modal = nil
		if !md.cancel && md.onConfirm != nil {
			return md.onConfirm(m)
		}
	}
	return nil
}

func (m model) View() string {
	if m.fadeFrame != "" {
		return m.fadeFrame
	}
	out := m.render()
	if m.modal != nil {
		out = m.overlay(out, m.renderModal())
	}
	if m.toast != "" {
		out = lipgloss.JoinVertical(lipgloss.Left, out, m.styles.toast.Render(m.toast))
	}
	return out
}

func (m *model) render() string {
	switch m.screen {
	case engine.ScreenMenu:
		return m.renderMenu()
	case engine.ScreenAttrSelection:
		return m.renderAttr()
	case engine.ScreenDifficultySelection:
		return m.renderDifficulty()
	case engine.ScreenToneSelection:
		return m.renderTone()
	case engine.ScreenThemeInput:
		return m.renderTheme()
	case engine.ScreenImageStyleSelection:
		return m.renderStyle()
	case engine.ScreenSetting:
		return m.renderSetting()
	case engine.ScreenPortrait:
		return m.renderPortrait()
	case engine.ScreenLoading:
		return m.renderLoading()
	case engine.ScreenGameplay:
		return m.renderGameplay()
	case engine.ScreenSaveManagement:
		return m.renderSaves()
	case engine.ScreenEnding:
		return m.renderEnding()
	}
	return ""
}

func (m *model) renderModal() string {
	body := m.styles.title.Render(m.modal.title) + "\n\n" + m.modal.text + "\n\n"
	if m.modal.cancel {
		body += m.styles.muted.Render("[Enter] 确认  [Esc] 取消")
	} else {
		body += m.styles.muted.Render("[Enter] 确认")
	}
	return m.styles.modal.Width(min(60, max(m.width-6, 20))).Render(body)
}

// overlay centers top over the base frame's area.
func (m *model) overlay(base, top string) string {
	return lipgloss.Place(m.width, max(lipgloss.Height(base), lipgloss.Height(top)), lipgloss.Center, lipgloss.Center, top,
		lipgloss.WithWhitespaceChars(" "))
}
