package ui

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/reflow/wrap"
	"go.uber.org/zap"

	"github.com/DaanHessen/storyloom/internal/audio"
	"github.com/DaanHessen/storyloom/internal/backend"
	"github.com/DaanHessen/storyloom/internal/engine"
	"github.com/DaanHessen/storyloom/internal/game"
	"github.com/DaanHessen/storyloom/internal/text"
	"github.com/DaanHessen/storyloom/internal/visual"
)

var settingTabs = []string{"世界观", "角色", "世界线"}

// markdown renders md for a panel of the given width. Rendering failures fall
// back to the raw text.
func markdown(md string, width int) string {
	r, err := glamour.NewTermRenderer(glamour.WithStandardStyle("dark"), glamour.WithWordWrap(width))
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

// wrapText wraps on spaces first and then hard-wraps, since CJK text has none.
func wrapText(s string, width int) string {
	return wrap.String(wordwrap.String(s, width), width)
}

// World setting ---------------------------------------------------------------

func (m *model) onWorldview(msg worldviewMsg) tea.Cmd {
	m.stopLoading()
	m.state.Data = msg.data
	m.settingTab = 0
	m.resuming = false
	cmd := m.switchScreen(engine.ScreenSetting)
	m.refreshSetting()
	if msg.err != nil {
		m.sound.Play(audio.CueError)
		title := "生成失败"
		if _, ok := backend.Rejection(msg.err); ok {
			title = "提示"
		}
		m.showModal(title, m.deps.Controller.WorldviewFailureText(msg.err), true, nil)
	} else {
		m.showModal("成功", "世界观生成成功！", true, nil)
	}
	return cmd
}

func (m *model) settingKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "left", "h", "shift+tab":
		m.settingTab = (m.settingTab + len(settingTabs) - 1) % len(settingTabs)
	case "right", "l", "tab":
		m.settingTab = (m.settingTab + 1) % len(settingTabs)
	case "enter":
		if m.resuming {
			return m.resumeGame()
		}
		return m.startAdventure()
	case "esc":
		if m.resuming {
			m.resuming = false
			return m.switchScreen(engine.ScreenSaveManagement)
		}
		m.showModal("确认", "返回主菜单？当前世界观将丢失", true, func(m *model) tea.Cmd {
			return m.switchScreen(engine.ScreenMenu)
		})
		return nil
	default:
		var cmd tea.Cmd
		m.views.setting, cmd = m.views.setting.Update(msg)
		return cmd
	}
	m.sound.Play(audio.CueClick)
	m.refreshSetting()
	return nil
}

func (m *model) refreshSetting() {
	m.views.setting.SetContent(markdown(m.settingMarkdown(), m.views.setting.Width))
	m.views.setting.GotoTop()
}

func (m *model) settingMarkdown() string {
	w := m.state.Data.Worldview
	var b strings.Builder
	switch m.settingTab {
	case 0:
		fmt.Fprintf(&b, "## 游戏风格\n\n%s\n\n", engine.StripMarkdown(w.Str("game_style")))
		fmt.Fprintf(&b, "## 世界设定\n\n%s\n\n", engine.StripMarkdown(w.Str("world_basic_setting")))
		fmt.Fprintf(&b, "## 主角能力\n\n**%s**\n\n", engine.StripMarkdown(w.Str("protagonist_ability")))
		b.WriteString("## 第一章冲突\n\n")
		ch := w.Chapter("chapter1")
		conflict, _ := ch["main_conflict"].(string)
		end, _ := ch["conflict_end_condition"].(string)
		if conflict != "" && end != "" {
			fmt.Fprintf(&b, "%s（结束条件：**%s**）\n", engine.StripMarkdown(conflict), engine.StripMarkdown(end))
		} else {
			b.WriteString("章节信息未完整生成\n")
		}
	case 1:
		for _, name := range characterNames(w) {
			c := character(w, name)
			fmt.Fprintf(&b, "## %s\n\n", name)
			fmt.Fprintf(&b, "- 性格：%s\n", engine.StripMarkdown(str(c["core_personality"])))
			fmt.Fprintf(&b, "- 背景：%s\n\n", engine.StripMarkdown(str(c["shallow_background"])))
		}
		if b.Len() == 0 {
			b.WriteString("暂无角色信息\n")
		}
	default:
		fl := m.state.Data.Worldline
		if m.resuming {
			fmt.Fprintf(&b, "## 世界观\n\n%s\n\n## 世界线\n\n%s\n\n", w.Summary(), m.state.ResumeLabel())
		}
		fmt.Fprintf(&b, "## 当前章节\n\n%s\n\n", engine.ChapterLabel(fl.CurrentChapter))
		fmt.Fprintf(&b, "## 环境\n\n- 地点：%s\n- 天气：%s\n- 势力关系：%s\n\n",
			orUnset(fl.Environment.Location), orUnset(fl.Environment.Weather), orUnset(fl.Environment.ForceRelationship))
		fmt.Fprintf(&b, "## 任务进度\n\n%s\n", orUnset(fl.QuestProgress))
		if q := w.Str("main_quest"); q != "" {
			fmt.Fprintf(&b, "\n## 主线\n\n%s\n", engine.StripMarkdown(q))
		}
	}
	return b.String()
}

func characterNames(w engine.Worldview) []string {
	chars, _ := w["characters"].(map[string]any)
	names := make([]string, 0, len(chars))
	for name := range chars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func character(w engine.Worldview, name string) map[string]any {
	chars, _ := w["characters"].(map[string]any)
	c, _ := chars[name].(map[string]any)
	return c
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func orUnset(s string) string {
	if strings.TrimSpace(s) == "" {
		return "未设置"
	}
	return s
}

func (m *model) renderSetting() string {
	tabs := make([]string, 0, len(settingTabs))
	for i, t := range settingTabs {
		if i == m.settingTab {
			tabs = append(tabs, m.styles.picked.Render(t))
		} else {
			tabs = append(tabs, m.styles.card.Render(t))
		}
	}
	title, help := "世界设定 · "+m.state.Theme, "Tab/←/→ 切换  ↑/↓ 滚动  Enter 开始冒险  Esc 返回"
	if m.resuming {
		title = "游戏信息 · 请查看当前游戏的世界观和进度"
		help = "Tab/←/→ 切换  ↑/↓ 滚动  Enter 继续游戏  Esc 返回存档列表"
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.title.Render(title),
		lipgloss.JoinHorizontal(lipgloss.Top, tabs...),
		m.views.setting.View(),
		m.styles.muted.Render(help),
	)
}

// startAdventure waits for the protagonist portrait behind the loading screen.
// The first scene follows once the portrait is dismissed or skipped.
func (m *model) startAdventure() tea.Cmd {
	st, err := m.state.Clone()
	if err != nil {
		m.logger.Error("Clone failed", zap.Error(err))
		return nil
	}
	ctrl, ctx := m.deps.Controller, m.ctx
	switchCmd := m.switchScreen(engine.ScreenLoading)
	return tea.Batch(switchCmd, m.startLoading("正在生成主角形象..."), func() tea.Msg {
		bg, err := ctrl.WaitPortrait(ctx, st)
		return portraitMsg{st: st, bg: bg, err: err}
	})
}

func (m *model) onPortrait(msg portraitMsg) tea.Cmd {
	m.stopLoading()
	if msg.st != nil {
		m.state = msg.st
	}
	if msg.err != nil {
		return m.firstScene()
	}
	m.portrait = msg.bg
	m.sound.Play(audio.CueUnlock)
	return m.switchScreen(engine.ScreenPortrait)
}

func (m *model) portraitKey(k string) tea.Cmd {
	switch k {
	case "enter", " ", "esc":
		m.portrait = visual.Background{}
		m.sound.Play(audio.CueClick)
		return m.firstScene()
	}
	return nil
}

func (m *model) renderPortrait() string {
	fill := paletteFor(m.palette)
	cols := min(max(m.width-8, 20), 60)
	rows := min(max(m.height-10, 6), 24)
	return lipgloss.JoinVertical(lipgloss.Center,
		m.styles.title.Render("你的主角"),
		m.views.background.Frame(m.portrait, cols, rows, fill.Muted, fill.Surface),
		m.styles.muted.Render("Enter 继续"),
	)
}

// firstScene opens the story behind the loading screen.
func (m *model) firstScene() tea.Cmd {
	st, err := m.state.Clone()
	if err != nil {
		m.logger.Error("Clone failed", zap.Error(err))
		return nil
	}
	ctrl, ctx := m.deps.Controller, m.ctx
	var cmds []tea.Cmd
	if m.screen != engine.ScreenLoading {
		cmds = append(cmds, m.switchScreen(engine.ScreenLoading))
	}
	cmds = append(cmds, m.startLoading("正在生成开场剧情..."), func() tea.Msg {
		return turnMsg{turn: ctrl.FirstScene(ctx, st)}
	})
	return tea.Batch(cmds...)
}

// Loading ---------------------------------------------------------------------

var loadingTips = []string{
	"每个选择都会推动章节进度",
	"角色的深层背景会在剧情中逐步揭晓",
	"随时按 S 保存你的进度",
}

func (m *model) renderLoading() string {
	tip := loadingTips[(m.loadingGen/2)%len(loadingTips)]
	body := m.views.spinner.View() + " " + m.styles.title.Render(m.loadingLabel) + "\n\n" +
		m.styles.text.Render(m.loadingHint) + "\n\n" +
		m.styles.muted.Render("提示："+tip)
	return m.styles.box.Width(min(70, max(m.width-4, 30))).Render(body)
}

// Gameplay --------------------------------------------------------------------

// onTurn swaps in the session returned by the controller and presents it.
func (m *model) onTurn(msg turnMsg) tea.Cmd {
	t := msg.turn
	m.stopLoading()
	m.selected, m.hover = -1, 0
	if t.Ending {
		return m.requestEnding()
	}
	m.state = t.State
	var cmds []tea.Cmd
	if m.screen != engine.ScreenGameplay {
		cmds = append(cmds, m.switchScreen(engine.ScreenGameplay))
	}
	if t.Err != nil {
		m.sound.Play(audio.CueError)
	}
	cmds = append(cmds, m.presenter.Display(m.state.Scene, m.state.Options, t.Image))
	if m.presenter.TakePregenerate() {
		cmds = append(cmds, m.pregenerate())
	}
	switch {
	case t.Image != nil:
		cmds = append(cmds, m.showBackground(t.Image))
	case t.Err == nil:
		cmds = append(cmds, m.backfill())
	}
	for _, name := range t.Unlocked {
		m.sound.Play(audio.CueUnlock)
		cmds = append(cmds, m.showToast("解锁了「"+name+"」的深层背景"))
	}
	return tea.Batch(cmds...)
}

func (m *model) onTick(msg text.TickMsg) tea.Cmd {
	ev, cmd := m.presenter.Update(msg)
	if ev == text.EventSegmentDone {
		m.sound.Play(audio.CueTypeEnd)
	}
	return cmd
}

func (m *model) gameplayKey(k string) tea.Cmd {
	if m.loading {
		return nil
	}
	if m.exitOpen {
		return m.exitKey(k)
	}
	switch k {
	case "s":
		return m.openSavePrompt(false)
	case "c":
		m.showCharacter = !m.showCharacter
		m.sound.Play(audio.CueClick)
		return nil
	case "m":
		if mu, ok := m.sound.(interface {
			SetMuted(bool)
			Muted() bool
		}); ok {
			mu.SetMuted(!mu.Muted())
		}
		return nil
	case "esc", "q":
		m.exitOpen = true
		m.exitCursor = 0
		return nil
	}
	if m.presenter.Phase() != text.OptionsShown {
		switch k {
		case " ", "enter", "right":
			ev, cmd := m.presenter.Advance()
			switch ev {
			case text.EventSegmentDone:
				m.sound.Play(audio.CueTypeEnd)
			case text.EventShowOptions:
				m.sound.Play(audio.CueClick)
			}
			return cmd
		}
		return nil
	}
	if m.selected >= 0 {
		return nil
	}
	opts := m.presenter.Options()
	switch k {
	case "up", "k", "left", "h":
		m.optionCursor(-1)
	case "down", "j", "tab":
		m.optionCursor(1)
	case "1", "2", "3", "4":
		i := int(k[0] - '1')
		if i < len(opts) {
			return m.selectOption(i)
		}
	case "enter", " ":
		if len(opts) > 0 {
			return m.selectOption(m.hover)
		}
	}
	return nil
}

func (m *model) optionCursor(step int) {
	n := len(m.presenter.Options())
	if n == 0 {
		return
	}
	m.hover = (m.hover + step + n) % n
	m.sound.Play(audio.CueSelect)
}

// selectOption marks the card and dispatches it after a short delay.
func (m *model) selectOption(i int) tea.Cmd {
	m.selected = i
	m.hover = i
	m.dispatchGen++
	m.sound.Play(audio.CueSelect)
	gen, opt := m.dispatchGen, m.presenter.Options()[i]
	return tea.Tick(dispatchDelay, func(time.Time) tea.Msg {
		return dispatchMsg{gen: gen, index: i, option: opt}
	})
}

func (m *model) onDispatch(msg dispatchMsg) tea.Cmd {
	if msg.gen != m.dispatchGen || m.screen != engine.ScreenGameplay {
		return nil
	}
	switch {
	case msg.option == engine.OptionMenu:
		m.selected = -1
		return m.switchScreen(engine.ScreenMenu)
	case engine.IsEndGame(msg.option):
		return m.requestEnding()
	}
	st, err := m.state.Clone()
	if err != nil {
		m.logger.Error("Clone failed", zap.Error(err))
		m.selected = -1
		return nil
	}
	if vm := m.deps.Controller.Visual(); vm != nil {
		vm.CancelBackfill()
	}
	ctrl, ctx := m.deps.Controller, m.ctx
	return tea.Batch(m.startLoading("正在生成剧情..."), func() tea.Msg {
		return turnMsg{turn: ctrl.ChooseOption(ctx, st, msg.index, msg.option)}
	})
}

func (m *model) pregenerate() tea.Cmd {
	st, err := m.state.Clone()
	if err != nil {
		return nil
	}
	ctrl, ctx := m.deps.Controller, m.ctx
	return func() tea.Msg {
		id, err := ctrl.Pregenerate(ctx, st)
		return pregenMsg{sceneID: st.SceneID, id: id, err: err}
	}
}

// onPregenerated adopts the backend's scene id while the scene is still shown.
func (m *model) onPregenerated(msg pregenMsg) {
	if msg.err != nil {
		if !errors.Is(msg.err, game.ErrThrottled) {
			m.logger.Debug("Pregeneration skipped", zap.Error(msg.err))
		}
		return
	}
	if msg.id != "" && msg.sceneID == m.state.SceneID {
		m.state.SceneID = msg.id
	}
}

func (m *model) showBackground(img *engine.ImageDescriptor) tea.Cmd {
	vm := m.deps.Controller.Visual()
	if vm == nil {
		return nil
	}
	ctx := m.ctx
	return func() tea.Msg {
		bg, err := vm.Show(ctx, img)
		return backgroundMsg{bg: bg, err: err}
	}
}

// backfill asks for an image for the scene on screen. Cell sizes are scaled to
// an approximate pixel viewport.
func (m *model) backfill() tea.Cmd {
	if m.deps.Controller.Visual() == nil {
		return nil
	}
	st, err := m.state.Clone()
	if err != nil {
		return nil
	}
	ctrl, ctx := m.deps.Controller, m.ctx
	w, h := m.width*8, m.height*16
	return func() tea.Msg {
		img, key, err := ctrl.Backfill(ctx, st, w, h)
		return backfillMsg{key: key, img: img, err: err}
	}
}

func (m *model) onBackfill(msg backfillMsg) tea.Cmd {
	if msg.err != nil {
		if !errors.Is(msg.err, visual.ErrBackfillInFlight) {
			m.logger.Info("Backfill failed", zap.Error(msg.err))
		}
		return nil
	}
	if msg.img == nil || msg.key != game.BackfillKey(m.state) {
		return nil
	}
	m.state.LastImage = msg.img
	return m.showBackground(msg.img)
}

func (m *model) renderGameplay() string {
	w := max(m.width, 40)
	side := 0
	if m.showCharacter && w >= 80 {
		side = 28
	}
	mainW := w - side - 2

	var parts []string
	parts = append(parts, m.renderTopBar(w))
	bgRows := min(backgroundHeight, max(m.height-18, 4))
	fill := paletteFor(m.palette)
	parts = append(parts, m.views.background.Frame(m.background, mainW, bgRows, fill.Muted, fill.Surface))

	seg, total := m.presenter.Segment()
	scene := text.Highlight(m.presenter.Visible(), m.styles.highlight)
	parts = append(parts, m.styles.text.Render(wrapText(scene, mainW-2)))
	switch m.presenter.Phase() {
	case text.Revealing:
	case text.AwaitingAdvance:
		parts = append(parts, m.styles.muted.Render(fmt.Sprintf("▼ 继续 (%d/%d)", seg+1, total)))
	case text.AwaitingOptions:
		parts = append(parts, m.styles.accent.Render("▼ 显示选项"))
	case text.OptionsShown:
		parts = append(parts, m.renderOptions(mainW))
	}
	if m.loading {
		parts = append(parts, m.views.spinner.View()+" "+m.styles.muted.Render(m.loadingHint))
	}
	if m.exitOpen {
		parts = append(parts, m.renderExit())
	}
	if m.prompt != nil {
		parts = append(parts, m.renderPrompt())
	}
	parts = append(parts, m.styles.muted.Render("空格 继续  1/2 选择  S 保存  C 角色  M 静音  Esc 退出"))
	main := lipgloss.NewStyle().Width(mainW).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
	if side == 0 {
		return main
	}
	panel := m.styles.card.Width(side - 2).Render(m.renderCharacters(side - 4))
	return lipgloss.JoinHorizontal(lipgloss.Top, main, " ", panel)
}

func (m *model) renderTopBar(w int) string {
	p := m.state.Progress
	barW := 20
	filled := int(p/100*float64(barW) + 0.5)
	pal := paletteFor(m.palette)
	bar := lipgloss.NewStyle().Foreground(pal.BarFill).Render(strings.Repeat("█", filled)) +
		lipgloss.NewStyle().Foreground(pal.BarEmpty).Render(strings.Repeat("░", barW-filled))
	left := m.styles.title.Render(m.state.Theme) + "  " + engine.ChapterLabel(m.state.Data.Worldline.CurrentChapter)
	right := fmt.Sprintf("%s %s %.1f%%", engine.ProgressStatus(p), bar, p)
	gap := max(w-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return left + strings.Repeat(" ", gap) + right
}

func (m *model) renderOptions(width int) string {
	opts := m.presenter.Options()
	cards := make([]string, 0, len(opts))
	for i, o := range opts {
		label := fmt.Sprintf("[%d] %s", i+1, o)
		st := m.styles.card
		switch {
		case i == m.selected:
			st = m.styles.picked
			label += " ✓"
		case m.selected < 0 && i == m.hover:
			st = m.styles.card.BorderForeground(paletteFor(m.palette).AccentAlt)
		}
		cards = append(cards, st.Width(max(width-4, 10)).Render(wrapText(label, max(width-6, 8))))
	}
	return lipgloss.JoinVertical(lipgloss.Left, cards...)
}

func (m *model) renderCharacters(width int) string {
	w := m.state.Data.Worldview
	var b strings.Builder
	b.WriteString(m.styles.title.Render("角色") + "\n")
	for _, name := range characterNames(w) {
		c := character(w, name)
		b.WriteString("\n" + m.styles.accent.Render(name) + "\n")
		b.WriteString(wrapText(str(c["shallow_background"]), width) + "\n")
		for _, u := range m.state.Unlocked {
			if u == name {
				b.WriteString(m.styles.highlight.Render("深层：") + wrapText(str(c["deep_background"]), width) + "\n")
			}
		}
	}
	return b.String()
}

// Ending ----------------------------------------------------------------------

func (m *model) requestEnding() tea.Cmd {
	m.presenter.Stop()
	st, err := m.state.Clone()
	if err != nil {
		m.logger.Error("Clone failed", zap.Error(err))
		return nil
	}
	ctrl, ctx := m.deps.Controller, m.ctx
	return tea.Batch(m.startLoading("正在生成结局..."), func() tea.Msg {
		e, err := ctrl.GenerateEnding(ctx, st)
		return endingMsg{ending: e, err: err}
	})
}

func (m *model) onEnding(msg endingMsg) tea.Cmd {
	m.stopLoading()
	m.selected = -1
	m.ending = msg.ending
	m.styles = newStyles(endingPalette(msg.ending.Tone))
	cmd := m.switchScreen(engine.ScreenEnding)
	m.refreshEnding()
	m.sound.Play(audio.CueEnding)
	return cmd
}

func (m *model) refreshEnding() {
	md := "# " + m.ending.Title + "\n\n" + m.ending.Content + "\n"
	m.views.ending.SetContent(markdown(md, m.views.ending.Width))
	m.views.ending.GotoTop()
}

func (m *model) endingKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "enter", "esc", "q":
		m.applyPalette()
		return m.switchScreen(engine.ScreenMenu)
	}
	var cmd tea.Cmd
	m.views.ending, cmd = m.views.ending.Update(msg)
	return cmd
}

func (m *model) renderEnding() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		m.views.ending.View(),
		m.styles.muted.Render("↑/↓ 滚动  Enter 返回主菜单"),
	)
}
