package text

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/DaanHessen/storyloom/internal/engine"
)

// TickInterval is the delay between two revealed characters.
const TickInterval = 30 * time.Millisecond

// Phase is the presenter's position in a scene.
type Phase int

const (
	Idle Phase = iota
	Revealing
	AwaitingAdvance
	AwaitingOptions
	OptionsShown
)

func (p Phase) String() string {
	switch p {
	case Revealing:
		return "revealing"
	case AwaitingAdvance:
		return "awaiting_advance"
	case AwaitingOptions:
		return "awaiting_options"
	case OptionsShown:
		return "options_shown"
	}
	return "idle"
}

// TickMsg reveals one more character. Gen ties the tick to the Display call
// that scheduled it.
type TickMsg struct{ Gen uint64 }

// Event tells the caller what a presenter transition means for the screen.
type Event int

const (
	EventNone Event = iota
	// EventSegmentDone fires when a segment finished revealing.
	EventSegmentDone
	// EventShowOptions fires when the reader advanced past the last segment.
	EventShowOptions
)

// Presenter reveals scene text segment by segment with a typewriter effect.
// It is driven by the bubbletea loop and is not safe for concurrent use.
type Presenter struct {
	interval time.Duration
	gen      uint64
	phase    Phase

	segments []string
	index    int
	shown    int
	runes    []rune

	options     []string
	image       *engine.ImageDescriptor
	pregenerate bool
}

// New returns an idle presenter.
func New() *Presenter { return &Presenter{interval: TickInterval} }

// WithInterval overrides the reveal speed.
func (p *Presenter) WithInterval(d time.Duration) *Presenter {
	if d > 0 {
		p.interval = d
	}
	return p
}

// Display starts presenting a new scene, abandoning anything in progress.
func (p *Presenter) Display(text string, options []string, img *engine.ImageDescriptor) tea.Cmd {
	p.segments = engine.SplitTextIntoSegments(text)
	p.index = 0
	p.options = append([]string(nil), options...)
	p.image = img
	p.pregenerate = len(options) > 0
	if len(p.segments) == 0 {
		p.gen++
		p.runes, p.shown = nil, 0
		p.phase = AwaitingOptions
		return nil
	}
	return p.start(0)
}

func (p *Presenter) start(i int) tea.Cmd {
	p.gen++
	p.index = i
	p.runes = []rune(p.segments[i])
	p.shown = 0
	p.phase = Revealing
	return p.tick()
}

func (p *Presenter) tick() tea.Cmd {
	gen := p.gen
	return tea.Tick(p.interval, func(time.Time) tea.Msg { return TickMsg{Gen: gen} })
}

// Update consumes a tick. Ticks from an earlier Display are ignored.
func (p *Presenter) Update(msg TickMsg) (Event, tea.Cmd) {
	if msg.Gen != p.gen || p.phase != Revealing {
		return EventNone, nil
	}
	if p.shown < len(p.runes) {
		p.shown++
	}
	if p.shown < len(p.runes) {
		return EventNone, p.tick()
	}
	p.finishSegment()
	return EventSegmentDone, nil
}

func (p *Presenter) finishSegment() {
	p.shown = len(p.runes)
	if p.index >= len(p.segments)-1 {
		p.phase = AwaitingOptions
	} else {
		p.phase = AwaitingAdvance
	}
}

// Advance moves the reader forward. While revealing it completes the current
// segment at once.
func (p *Presenter) Advance() (Event, tea.Cmd) {
	switch p.phase {
	case Revealing:
		p.gen++
		p.finishSegment()
		return EventSegmentDone, nil
	case AwaitingAdvance:
		return EventNone, p.start(p.index + 1)
	case AwaitingOptions:
		p.phase = OptionsShown
		return EventShowOptions, nil
	}
	return EventNone, nil
}

// Stop cancels any pending reveal.
func (p *Presenter) Stop() {
	p.gen++
	p.phase = Idle
}

// TakePregenerate reports, once per scene, that the scene has options worth
// pregenerating.
func (p *Presenter) TakePregenerate() bool {
	if !p.pregenerate || p.phase == Idle {
		return false
	}
	p.pregenerate = false
	return true
}

func (p *Presenter) Phase() Phase                   { return p.phase }
func (p *Presenter) Visible() string                { return string(p.runes[:p.shown]) }
func (p *Presenter) Options() []string              { return p.options }
func (p *Presenter) Image() *engine.ImageDescriptor { return p.image }
func (p *Presenter) Segment() (int, int)            { return p.index, len(p.segments) }

// LastSegment reports whether the current segment is the final one; the
// advance affordance then leads to the options.
func (p *Presenter) LastSegment() bool { return p.index >= len(p.segments)-1 }
