package ui

import (
	"sort"

	"github.com/charmbracelet/lipgloss"

	"github.com/DaanHessen/storyloom/internal/engine"
)

type palette struct {
	Background lipgloss.Color
	Surface    lipgloss.Color
	Panel      lipgloss.Color
	Text       lipgloss.Color
	Muted      lipgloss.Color
	Accent     lipgloss.Color
	AccentAlt  lipgloss.Color
	Border     lipgloss.Color
	Success    lipgloss.Color
	Warning    lipgloss.Color
	BarFill    lipgloss.Color
	BarEmpty   lipgloss.Color
}

// tinted builds a palette on the shared dark base around a tone's two accents.
func tinted(accent, alt string) palette {
	return palette{
		Background: lipgloss.Color("#1a1d23"),
		Surface:    lipgloss.Color("#262a33"),
		Panel:      lipgloss.Color("#323844"),
		Text:       lipgloss.Color("#ecf0f1"),
		Muted:      lipgloss.Color("#95a5a6"),
		Accent:     lipgloss.Color(accent),
		AccentAlt:  lipgloss.Color(alt),
		Border:     lipgloss.Color("#4a5160"),
		Success:    lipgloss.Color("#27ae60"),
		Warning:    lipgloss.Color("#e74c3c"),
		BarFill:    lipgloss.Color(accent),
		BarEmpty:   lipgloss.Color("#323844"),
	}
}

var palettes = map[string]palette{
	string(engine.ToneHappy):        tinted("#2ecc71", "#1abc9c"),
	string(engine.ToneBad):          tinted("#9b59b6", "#8e44ad"),
	string(engine.ToneNormal):       tinted("#3498db", "#2980b9"),
	string(engine.ToneDark):         tinted("#5d7a99", "#34495e"),
	string(engine.ToneHumorous):     tinted("#f1c40f", "#f39c12"),
	string(engine.ToneAbstract):     tinted("#9b59b6", "#8e44ad"),
	string(engine.ToneAesthetic):    tinted("#e91e63", "#d32f2f"),
	string(engine.ToneLogical):      tinted("#4caf50", "#43a047"),
	string(engine.ToneMysterious):   tinted("#ff9800", "#fb8c00"),
	string(engine.ToneStreamOfMind): tinted("#673ab7", "#5d3ab7"),
}

// endingPalettes color the ending screen by main tone.
var endingPalettes = map[string]string{
	"HE": string(engine.ToneHappy),
	"BE": string(engine.ToneBad),
	"NE": string(engine.ToneNormal),
}

func paletteFor(name string) palette {
	if p, ok := palettes[name]; ok {
		return p
	}
	return palettes[string(engine.ToneNormal)]
}

func endingPalette(mainTone string) palette {
	if name, ok := endingPalettes[mainTone]; ok {
		return paletteFor(name)
	}
	return paletteFor(endingPalettes["NE"])
}

func themeNames() []string {
	names := make([]string, 0, len(palettes))
	for k := range palettes {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func nextThemeName(current string, step int) string {
	names := themeNames()
	if len(names) == 0 {
		return current
	}
	idx := 0
	for i, name := range names {
		if name == current {
			idx = i
			break
		}
	}
	idx = (idx + step) % len(names)
	if idx < 0 {
		idx += len(names)
	}
	return names[idx]
}

type styles struct {
	title     lipgloss.Style
	text      lipgloss.Style
	muted     lipgloss.Style
	accent    lipgloss.Style
	highlight lipgloss.Style
	box       lipgloss.Style
	card      lipgloss.Style
	picked    lipgloss.Style
	modal     lipgloss.Style
	toast     lipgloss.Style
	warning   lipgloss.Style
	success   lipgloss.Style
}

func newStyles(p palette) styles {
	return styles{
		title:     lipgloss.NewStyle().Bold(true).Foreground(p.Accent),
		text:      lipgloss.NewStyle().Foreground(p.Text),
		muted:     lipgloss.NewStyle().Foreground(p.Muted),
		accent:    lipgloss.NewStyle().Foreground(p.AccentAlt),
		highlight: lipgloss.NewStyle().Bold(true).Foreground(p.Accent),
		box:       lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(p.Border).Padding(1, 2),
		card:      lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(p.Border).Padding(0, 1),
		picked:    lipgloss.NewStyle().Border(lipgloss.ThickBorder()).BorderForeground(p.Accent).Foreground(p.Accent).Padding(0, 1),
		modal:     lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(p.AccentAlt).Background(p.Surface).Padding(1, 3),
		toast:     lipgloss.NewStyle().Foreground(p.Background).Background(p.Accent).Padding(0, 1),
		warning:   lipgloss.NewStyle().Foreground(p.Warning),
		success:   lipgloss.NewStyle().Foreground(p.Success),
	}
}
