package ui

import (
	"fmt"
	"strings"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/DaanHessen/storyloom/internal/audio"
	"github.com/DaanHessen/storyloom/internal/engine"
	"github.com/DaanHessen/storyloom/internal/game"
)

var menuItems = []string{"开始游戏", "加载存档", "存档管理", "退出游戏"}

// Main menu -------------------------------------------------------------------

func (m *model) menuKey(k string) tea.Cmd {
	switch k {
	case "up", "k":
		m.menuCursor = (m.menuCursor + len(menuItems) - 1) % len(menuItems)
		m.sound.Play(audio.CueSelect)
		return nil
	case "down", "j":
		m.menuCursor = (m.menuCursor + 1) % len(menuItems)
		m.sound.Play(audio.CueSelect)
		return nil
	case "p":
		m.deps.Palette = nextThemeName(m.palette, 1)
		m.applyPalette()
		return nil
	case "1", "2", "3", "4":
		m.menuCursor = int(k[0] - '1')
	case "enter":
	case "q", "esc":
		m.menuCursor = len(menuItems) - 1
	default:
		return nil
	}
	m.sound.Play(audio.CueClick)
	switch m.menuCursor {
	case 0:
		return m.newGame()
	case 1, 2:
		m.savesReturn = engine.ScreenMenu
		return m.switchScreen(engine.ScreenSaveManagement)
	default:
		m.showModal("确认退出", "确定要退出游戏吗？未保存的进度将丢失", true, func(*model) tea.Cmd { return tea.Quit })
	}
	return nil
}

func (m *model) renderMenu() string {
	var b strings.Builder
	b.WriteString(m.styles.title.Render("STORYLOOM · 织梦叙事") + "\n\n")
	for i, item := range menuItems {
		line := fmt.Sprintf("[%d] %s", i+1, item)
		if i == m.menuCursor {
			b.WriteString(m.styles.highlight.Render("> "+line) + "\n")
		} else {
			b.WriteString("  " + m.styles.text.Render(line) + "\n")
		}
	}
	b.WriteString("\n" + m.styles.muted.Render(fmt.Sprintf("↑/↓ 选择  Enter 确认  P 配色(%s)", m.palette)))
	if m.deps.Version != "" {
		b.WriteString("\n" + m.styles.muted.Render("v"+m.deps.Version))
	}
	return m.styles.box.Width(50).Render(b.String())
}

// Attribute selection ---------------------------------------------------------

func (m *model) attrKey(k string) tea.Cmd {
	trait := engine.Traits[m.attrCursor]
	switch k {
	case "up", "k":
		m.attrCursor = (m.attrCursor + len(engine.Traits) - 1) % len(engine.Traits)
	case "down", "j":
		m.attrCursor = (m.attrCursor + 1) % len(engine.Traits)
	case "left", "h", "right", "l":
		step := 1
		if k == "left" || k == "h" {
			step = len(engine.Levels) - 1
		}
		cur := levelIndex(m.state.Attributes.Get(trait))
		if err := m.state.Attributes.Set(trait, engine.Levels[(cur+step)%len(engine.Levels)]); err != nil {
			m.logger.Warn("Attribute rejected", zap.Error(err))
		}
		m.sound.Play(audio.CueSelect)
	case "enter":
		return m.switchScreen(engine.ScreenDifficultySelection)
	case "esc":
		return m.switchScreen(engine.ScreenMenu)
	}
	return nil
}

func levelIndex(lv engine.Level) int {
	for i, l := range engine.Levels {
		if l == lv {
			return i
		}
	}
	return 1
}

func (m *model) renderAttr() string {
	var b strings.Builder
	b.WriteString(m.styles.title.Render("主角属性") + "\n\n")
	for i, trait := range engine.Traits {
		cursor := "  "
		if i == m.attrCursor {
			cursor = "> "
		}
		var cells []string
		for _, lv := range engine.Levels {
			cell := " " + string(lv) + " "
			if m.state.Attributes.Get(trait) == lv {
				cell = m.styles.highlight.Render("[" + string(lv) + "]")
			}
			cells = append(cells, cell)
		}
		b.WriteString(cursor + trait + "  " + strings.Join(cells, " ") + "\n")
	}
	b.WriteString("\n" + m.styles.muted.Render("↑/↓ 属性  ←/→ 等级  Enter 下一步  Esc 返回"))
	return m.styles.box.Render(b.String())
}

// Difficulty selection --------------------------------------------------------

func (m *model) difficultyKey(k string) tea.Cmd {
	switch k {
	case "up", "k", "left", "h":
		m.difficultyCursor = (m.difficultyCursor + len(engine.Difficulties) - 1) % len(engine.Difficulties)
	case "down", "j", "right", "l":
		m.difficultyCursor = (m.difficultyCursor + 1) % len(engine.Difficulties)
	case "1", "2", "3":
		m.difficultyCursor = int(k[0] - '1')
		fallthrough
	case " ":
		m.state.Difficulty = engine.Difficulties[m.difficultyCursor]
		m.difficultyPicked = true
		m.sound.Play(audio.CueSelect)
	case "enter":
		if !m.difficultyPicked {
			m.showModal("提示", "请选择游戏难度", true, nil)
			return nil
		}
		return m.switchScreen(engine.ScreenToneSelection)
	case "esc":
		return m.switchScreen(engine.ScreenAttrSelection)
	}
	return nil
}

var difficultyColors = map[engine.Difficulty]lipgloss.Color{
	engine.DifficultyEasy:   lipgloss.Color("#2ecc71"),
	engine.DifficultyMedium: lipgloss.Color("#f39c12"),
	engine.DifficultyHard:   lipgloss.Color("#e74c3c"),
}

func (m *model) renderDifficulty() string {
	cards := make([]string, 0, len(engine.Difficulties))
	for i, d := range engine.Difficulties {
		st := m.styles.card
		label := string(d)
		if m.difficultyPicked && m.state.Difficulty == d {
			st = m.styles.picked.BorderForeground(difficultyColors[d]).Foreground(difficultyColors[d])
			label += " ✓"
		}
		if i == m.difficultyCursor {
			label = "> " + label
		}
		cards = append(cards, st.Width(14).Render(label))
	}
	body := m.styles.title.Render("选择难度") + "\n\n" +
		lipgloss.JoinHorizontal(lipgloss.Top, cards...) + "\n\n" +
		m.styles.muted.Render("←/→ 移动  空格/数字 选择  Enter 确认  Esc 返回")
	return m.styles.box.Render(body)
}

// Tone selection --------------------------------------------------------------

func (m *model) toneKey(k string) tea.Cmd {
	n := len(engine.Tones)
	switch k {
	case "up", "k", "left", "h":
		m.toneCursor = (m.toneCursor + n - 1) % n
	case "down", "j", "right", "l":
		m.toneCursor = (m.toneCursor + 1) % n
	case " ":
		m.state.Tone = engine.Tones[m.toneCursor]
		m.tonePicked = true
		m.applyPalette()
		m.sound.Play(audio.CueSelect)
	case "enter":
		if !m.tonePicked {
			m.showModal("提示", "请选择故事基调", true, nil)
			return nil
		}
		m.showModal("提示", "基调已确定，剧情将按此风格生成", false, func(m *model) tea.Cmd {
			return m.switchScreen(engine.ScreenThemeInput)
		})
	case "esc":
		return m.switchScreen(engine.ScreenDifficultySelection)
	}
	return nil
}

func (m *model) renderTone() string {
	var b strings.Builder
	b.WriteString(m.styles.title.Render("故事基调") + "\n\n")
	for i, t := range engine.Tones {
		cursor := "  "
		if i == m.toneCursor {
			cursor = "> "
		}
		swatch := lipgloss.NewStyle().Foreground(paletteFor(string(t)).Accent).Render("■")
		line := fmt.Sprintf("%s%s %s", cursor, swatch, t.Label())
		if m.tonePicked && m.state.Tone == t {
			line = m.styles.highlight.Render(line + " ✓")
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n" + m.styles.muted.Render("↑/↓ 移动  空格 选择  Enter 确认  Esc 返回"))
	return m.styles.box.Render(b.String())
}

// Theme input -----------------------------------------------------------------

func (m *model) themeKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "enter":
		theme, err := engine.ValidateTheme(m.views.themeInput.Value())
		if err != nil {
			m.sound.Play(audio.CueError)
			m.showModal("提示", err.Error(), true, nil)
			return nil
		}
		m.state.Theme = theme
		return m.switchScreen(engine.ScreenImageStyleSelection)
	case "esc":
		return m.switchScreen(engine.ScreenToneSelection)
	}
	var cmd tea.Cmd
	m.views.themeInput, cmd = m.views.themeInput.Update(msg)
	return cmd
}

func (m *model) renderTheme() string {
	count := utf8.RuneCountInString(strings.TrimSpace(m.views.themeInput.Value()))
	counter := fmt.Sprintf("%d/%d", count, engine.MaxThemeRunes)
	if count > engine.MaxThemeRunes {
		counter = m.styles.warning.Render(counter)
	} else {
		counter = m.styles.muted.Render(counter)
	}
	body := m.styles.title.Render("游戏主题") + "\n\n" +
		m.views.themeInput.View() + "  " + counter + "\n\n" +
		m.styles.muted.Render("Enter 确认  Esc 返回")
	return m.styles.box.Width(60).Render(body)
}

// Image style selection -------------------------------------------------------

func (m *model) styleKey(msg tea.KeyMsg) tea.Cmd {
	k := msg.String()
	if m.styleCustomOpen {
		switch k {
		case "enter":
			style := engine.CustomStyle(m.views.styleInput.Value())
			if err := style.Validate(); err != nil {
				m.showModal("提示", "请输入自定义风格描述", true, nil)
				return nil
			}
			m.state.Style = style
			m.styleCustomOpen = false
			m.views.styleInput.Blur()
			m.sound.Play(audio.CueSelect)
			return nil
		case "esc":
			m.styleCustomOpen = false
			m.views.styleInput.Blur()
			return nil
		}
		var cmd tea.Cmd
		m.views.styleInput, cmd = m.views.styleInput.Update(msg)
		return cmd
	}
	if m.styleOilOpen {
		n := len(engine.OilSubtypes)
		switch k {
		case "up", "k":
			m.styleSubCursor = (m.styleSubCursor + n - 1) % n
		case "down", "j":
			m.styleSubCursor = (m.styleSubCursor + 1) % n
		case " ", "enter":
			m.state.Style = engine.OilPainting(string(engine.OilSubtypes[m.styleSubCursor].Kind))
			m.styleOilOpen = false
			m.sound.Play(audio.CueSelect)
		case "esc":
			m.styleOilOpen = false
		}
		return nil
	}

	n := len(engine.StyleChoices)
	switch k {
	case "up", "k":
		m.styleCursor = (m.styleCursor + n - 1) % n
	case "down", "j":
		m.styleCursor = (m.styleCursor + 1) % n
	case " ":
		m.sound.Play(audio.CueSelect)
		switch kind := engine.StyleChoices[m.styleCursor].Kind; kind {
		case engine.StyleOil:
			m.styleOilOpen = true
			m.styleSubCursor = 0
		case engine.StyleCustom:
			m.styleCustomOpen = true
			m.views.styleInput.Reset()
			return m.views.styleInput.Focus()
		default:
			m.state.Style = engine.PredefinedStyle(kind)
		}
	case "enter":
		if err := m.state.Style.Validate(); err != nil {
			m.showModal("提示", "请先选择一个图片风格", true, nil)
			return nil
		}
		return m.generateWorldview()
	case "esc":
		return m.switchScreen(engine.ScreenThemeInput)
	}
	return nil
}

func (m *model) renderStyle() string {
	var b strings.Builder
	b.WriteString(m.styles.title.Render("图片风格") + "\n\n")
	for i, c := range engine.StyleChoices {
		cursor := "  "
		if i == m.styleCursor {
			cursor = "> "
		}
		line := cursor + c.Label
		if m.state.Style.Type == c.Kind {
			line = m.styles.highlight.Render(line + " ✓")
		}
		b.WriteString(line + "\n")
		if c.Kind == engine.StyleOil && m.styleOilOpen {
			for j, sub := range engine.OilSubtypes {
				mark := "    "
				if j == m.styleSubCursor {
					mark = "  » "
				}
				b.WriteString(m.styles.accent.Render(mark+sub.Label) + "\n")
			}
		}
		if c.Kind == engine.StyleCustom && m.styleCustomOpen {
			b.WriteString("    " + m.views.styleInput.View() + "\n")
		}
	}
	picked := "未选择"
	if !m.state.Style.IsZero() {
		picked = m.state.Style.Label()
	}
	b.WriteString("\n当前选择：" + m.styles.highlight.Render(picked) + "\n\n")
	b.WriteString(m.styles.muted.Render("↑/↓ 移动  空格 选择  Enter 生成世界观  Esc 返回"))
	return m.styles.box.Width(60).Render(b.String())
}

// generateWorldview hands the setup to the controller behind the loading screen.
func (m *model) generateWorldview() tea.Cmd {
	setup := game.Setup{
		Theme:      m.state.Theme,
		Attributes: m.state.Attributes,
		Difficulty: m.state.Difficulty,
		Tone:       m.state.Tone,
		Style:      m.state.Style,
	}
	ctrl, ctx := m.deps.Controller, m.ctx
	switchCmd := m.switchScreen(engine.ScreenLoading)
	return tea.Batch(switchCmd, m.startLoading("正在生成世界观..."), func() tea.Msg {
		d, err := ctrl.GenerateWorldview(ctx, setup)
		return worldviewMsg{data: d, err: err}
	})
}
