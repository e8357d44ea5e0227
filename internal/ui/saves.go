package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/DaanHessen/storyloom/internal/audio"
	"github.com/DaanHessen/storyloom/internal/engine"
	"github.com/DaanHessen/storyloom/internal/store"
	"github.com/DaanHessen/storyloom/internal/visual"
)

// Save management -------------------------------------------------------------

func (m *model) loadSaves() tea.Cmd {
	if m.deps.Saves == nil {
		return nil
	}
	saves, ctx := m.deps.Saves, m.ctx
	return func() tea.Msg {
		recs, fromCache, err := saves.List(ctx)
		return savesMsg{recs: recs, fromCache: fromCache, err: err}
	}
}

func (m *model) onSaves(msg savesMsg) tea.Cmd {
	if msg.err != nil {
		m.logger.Warn("Save list unavailable", zap.Error(msg.err))
	}
	m.saves = msg.recs
	m.savesFromCache = msg.fromCache
	if m.saveCursor >= len(m.saves) {
		m.saveCursor = max(len(m.saves)-1, 0)
	}
	return nil
}

func (m *model) savesKey(k string) tea.Cmd {
	switch k {
	case "up", "k":
		if m.saveCursor > 0 {
			m.saveCursor--
			m.sound.Play(audio.CueSelect)
		}
	case "down", "j":
		if m.saveCursor < len(m.saves)-1 {
			m.saveCursor++
			m.sound.Play(audio.CueSelect)
		}
	case "enter":
		rec, ok := m.currentSave()
		if !ok {
			m.showModal("提示", "请选择要加载的存档", true, nil)
			return nil
		}
		return m.loadSave(rec.Name)
	case "d", "delete":
		rec, ok := m.currentSave()
		if !ok {
			m.showModal("提示", "请选择要删除的存档", true, nil)
			return nil
		}
		name := rec.Name
		m.showModal("确认删除", fmt.Sprintf("确定要删除存档\"%s\"吗？删除后无法恢复", name), true, func(m *model) tea.Cmd {
			return m.deleteSave(name)
		})
	case "f5":
		return m.loadSaves()
	case "esc", "q":
		back := m.savesReturn
		if back == "" {
			back = engine.ScreenMenu
		}
		return m.switchScreen(back)
	}
	return nil
}

func (m *model) currentSave() (store.SaveRecord, bool) {
	if m.saveCursor < 0 || m.saveCursor >= len(m.saves) {
		return store.SaveRecord{}, false
	}
	return m.saves[m.saveCursor], true
}

func (m *model) loadSave(name string) tea.Cmd {
	saves, ctx := m.deps.Saves, m.ctx
	return tea.Batch(m.startLoading("正在加载存档..."), func() tea.Msg {
		st, res, err := saves.Load(ctx, name)
		return loadedMsg{st: st, res: res, err: err}
	})
}

func (m *model) onLoaded(msg loadedMsg) tea.Cmd {
	m.stopLoading()
	if msg.err != nil || msg.st == nil {
		m.sound.Play(audio.CueError)
		m.showModal("加载失败", msg.res.Message, true, nil)
		return nil
	}
	m.state = msg.st
	m.state.Options = engine.NormalizeOptions(m.state.Options, nil)
	m.background = visual.Background{}
	m.selected, m.hover = -1, 0
	m.applyPalette()
	m.resuming = true
	m.settingTab = len(settingTabs) - 1
	cmd := m.switchScreen(engine.ScreenSetting)
	m.refreshSetting()
	if msg.res.FromCache {
		m.showModal("提示", msg.res.Message, true, nil)
	}
	return cmd
}

// resumeGame leaves the loaded-game panel and shows the saved scene.
func (m *model) resumeGame() tea.Cmd {
	m.resuming = false
	m.sound.Play(audio.CueLoad)
	cmds := []tea.Cmd{
		m.switchScreen(engine.ScreenGameplay),
		m.presenter.Display(m.state.Scene, m.state.Options, nil),
	}
	if m.state.LastImage != nil {
		cmds = append(cmds, m.showBackground(m.state.LastImage))
	} else {
		cmds = append(cmds, m.backfill())
	}
	return tea.Batch(cmds...)
}

func (m *model) deleteSave(name string) tea.Cmd {
	saves, ctx := m.deps.Saves, m.ctx
	return func() tea.Msg {
		res, err := saves.Delete(ctx, name)
		return deletedMsg{res: res, err: err}
	}
}

func (m *model) onDeleted(msg deletedMsg) tea.Cmd {
	if msg.err != nil {
		m.sound.Play(audio.CueError)
		m.showModal("删除失败", msg.res.Message, true, nil)
		return nil
	}
	m.sound.Play(audio.CueDelete)
	cmd := m.showToast("已删除存档：" + msg.res.Name)
	return tea.Batch(cmd, m.loadSaves())
}

func (m *model) renderSaves() string {
	var b strings.Builder
	title := "存档管理"
	if m.savesFromCache {
		title += m.styles.warning.Render("（离线缓存）")
	}
	b.WriteString(m.styles.title.Render(title) + "\n\n")
	if len(m.saves) == 0 {
		b.WriteString(m.styles.muted.Render("暂无存档") + "\n")
	}
	for i, rec := range m.saves {
		cursor := "  "
		if i == m.saveCursor {
			cursor = "> "
		}
		line := fmt.Sprintf("%s%-15s  %-16s  %s", cursor, rec.Name, rec.Time, rec.Progress)
		if i == m.saveCursor {
			line = m.styles.highlight.Render(line)
		}
		b.WriteString(line + "\n")
	}
	if m.prompt != nil {
		b.WriteString("\n" + m.renderPrompt() + "\n")
	}
	b.WriteString("\n" + m.styles.muted.Render("Enter 加载  D 删除  F5 刷新  Esc 返回"))
	return m.styles.box.Width(min(80, max(m.width-4, 40))).Render(b.String())
}

// Save-name prompt ------------------------------------------------------------

// openSavePrompt asks for a save name, then saves the session.
func (m *model) openSavePrompt(thenMenu bool) tea.Cmd {
	m.prompt = &savePrompt{thenMenu: thenMenu}
	m.views.saveInput.Reset()
	switch {
	case m.state.Loaded && m.state.LoadedSaveName != "" && !thenMenu:
		m.views.saveInput.SetValue(m.state.LoadedSaveName)
	case m.deps.Saves != nil:
		m.views.saveInput.SetValue(m.deps.Saves.DefaultName(m.ctx))
	}
	return m.views.saveInput.Focus()
}

func (m *model) promptKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		m.prompt = nil
		m.views.saveInput.Blur()
		return nil
	case "enter":
		p := m.prompt
		name, err := engine.ValidateSaveName(m.views.saveInput.Value())
		if err != nil {
			m.sound.Play(audio.CueError)
			m.showModal("提示", err.Error(), false, nil)
			return nil
		}
		m.prompt = nil
		m.views.saveInput.Blur()
		isUpdate := m.state.Loaded && name == m.state.LoadedSaveName
		return m.saveSession(name, isUpdate, p.thenMenu)
	}
	var cmd tea.Cmd
	m.views.saveInput, cmd = m.views.saveInput.Update(msg)
	return cmd
}

func (m *model) renderPrompt() string {
	return m.styles.card.Render("存档名称：" + m.views.saveInput.View() + "  " + m.styles.muted.Render("Enter 确认  Esc 取消"))
}

func (m *model) saveSession(name string, isUpdate, thenMenu bool) tea.Cmd {
	if m.deps.Saves == nil {
		return nil
	}
	st, err := m.state.Clone()
	if err != nil {
		m.logger.Error("Clone failed", zap.Error(err))
		return nil
	}
	saves, ctx := m.deps.Saves, m.ctx
	return func() tea.Msg {
		res, err := saves.Save(ctx, st, name, isUpdate)
		return savedMsg{res: res, err: err, thenMenu: thenMenu}
	}
}

func (m *model) onSaved(msg savedMsg) tea.Cmd {
	if msg.err != nil {
		m.sound.Play(audio.CueError)
		m.showModal("保存失败", msg.res.Message, true, nil)
		return nil
	}
	m.sound.Play(audio.CueSave)
	m.state.Loaded = true
	m.state.LoadedSaveName = msg.res.Name
	if msg.thenMenu {
		return tea.Batch(m.showToast(msg.res.Message), m.switchScreen(engine.ScreenMenu))
	}
	m.showModal("保存成功", msg.res.Message, true, nil)
	return nil
}

// In-game exit ----------------------------------------------------------------

func (m *model) exitChoices() []string {
	if m.state.Loaded && m.state.LoadedSaveName != "" {
		return []string{"更新原存档（" + m.state.LoadedSaveName + "）", "保存为新存档", "不保存"}
	}
	return []string{"保存游戏", "不保存"}
}

func (m *model) exitKey(k string) tea.Cmd {
	choices := m.exitChoices()
	switch k {
	case "up", "k":
		m.exitCursor = (m.exitCursor + len(choices) - 1) % len(choices)
	case "down", "j":
		m.exitCursor = (m.exitCursor + 1) % len(choices)
	case "esc":
		m.exitOpen = false
	case "enter":
		m.exitOpen = false
		loaded := len(choices) == 3
		switch {
		case loaded && m.exitCursor == 0:
			return m.saveSession(m.state.LoadedSaveName, true, true)
		case m.exitCursor == len(choices)-1:
			return m.switchScreen(engine.ScreenMenu)
		default:
			return m.openSavePrompt(true)
		}
	}
	return nil
}

func (m *model) renderExit() string {
	var b strings.Builder
	b.WriteString(m.styles.title.Render("确认退出") + "\n")
	b.WriteString(m.styles.muted.Render("确定要返回主菜单吗？未保存的进度将丢失") + "\n\n")
	for i, c := range m.exitChoices() {
		if i == m.exitCursor {
			b.WriteString(m.styles.highlight.Render("(•) "+c) + "\n")
		} else {
			b.WriteString("( ) " + c + "\n")
		}
	}
	b.WriteString("\n" + m.styles.muted.Render("↑/↓ 选择  Enter 确认  Esc 取消"))
	return m.styles.modal.Render(b.String())
}
