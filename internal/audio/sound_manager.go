package audio

import (
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

const (
	sampleRate = beep.SampleRate(48000)
)

// Cue names a UI sound.
type Cue string

const (
	CueSwitch  Cue = "switch"
	CueSelect  Cue = "select"
	CueClick   Cue = "click"
	CueTypeEnd Cue = "typeend"
	CueUnlock  Cue = "unlock"
	CueEnding  Cue = "ending"
	CueSave    Cue = "save"
	CueLoad    Cue = "load"
	CueDelete  Cue = "delete"
	CueError   Cue = "error"
)

// note is one tone of a cue: frequency in Hz and duration.
type note struct {
	freq float64
	dur  time.Duration
}

var cues = map[Cue][]note{
	CueSwitch:  {{520, 60 * time.Millisecond}, {780, 80 * time.Millisecond}},
	CueSelect:  {{660, 70 * time.Millisecond}},
	CueClick:   {{880, 30 * time.Millisecond}},
	CueTypeEnd: {{990, 40 * time.Millisecond}},
	CueUnlock:  {{523, 90 * time.Millisecond}, {659, 90 * time.Millisecond}, {784, 160 * time.Millisecond}},
	CueEnding:  {{392, 200 * time.Millisecond}, {330, 200 * time.Millisecond}, {262, 400 * time.Millisecond}},
	CueSave:    {{700, 60 * time.Millisecond}, {940, 90 * time.Millisecond}},
	CueLoad:    {{940, 60 * time.Millisecond}, {700, 90 * time.Millisecond}},
	CueDelete:  {{300, 120 * time.Millisecond}},
}

// Player plays UI cues. The UI depends on this so a silent player can stand in.
type Player interface {
	Play(c Cue)
}

// Silent is a Player that does nothing.
type Silent struct{}

func (Silent) Play(Cue) {}

// SoundManager manages all game audio
type SoundManager struct {
	mu          sync.Mutex
	mixer       *beep.Mixer
	initialized bool
	muted       bool
}

// NewSoundManager creates a new sound manager
func NewSoundManager() *SoundManager {
	return &SoundManager{mixer: &beep.Mixer{}}
}

// Initialize sets up the audio system
func (sm *SoundManager) Initialize() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}
	if err := speaker.Init(sampleRate, sampleRate.N(time.Millisecond*100)); err != nil {
		return err
	}
	speaker.Play(sm.mixer)
	sm.initialized = true
	return nil
}

// Cleanup stops all sounds
func (sm *SoundManager) Cleanup() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.initialized {
		return
	}
	speaker.Lock()
	sm.mixer.Clear()
	speaker.Unlock()
	sm.initialized = false
}

// SetMuted toggles output without tearing down the speaker.
func (sm *SoundManager) SetMuted(m bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.muted = m
}

func (sm *SoundManager) Muted() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.muted
}

// Play queues the cue on the mixer. Unknown cues and an uninitialized or muted
// manager are no-ops.
func (sm *SoundManager) Play(c Cue) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.initialized || sm.muted {
		return
	}
	var s beep.Streamer
	if c == CueError {
		s = beep.Take(sampleRate.N(time.Millisecond*150), NewBuzzGenerator(sampleRate, 120))
	} else {
		s = CueStreamer(c)
	}
	if s == nil {
		return
	}
	speaker.Lock()
	sm.mixer.Add(s)
	speaker.Unlock()
}

// CueStreamer returns the finite streamer for c, or nil for an unknown cue.
func CueStreamer(c Cue) beep.Streamer {
	notes, ok := cues[c]
	if !ok {
		return nil
	}
	parts := make([]beep.Streamer, 0, len(notes))
	for _, n := range notes {
		parts = append(parts, beep.Take(sampleRate.N(n.dur), NewToneGenerator(sampleRate, n.freq, n.dur)))
	}
	return beep.Seq(parts...)
}

// ToneGenerator generates a sine tone with a short attack and linear release
type ToneGenerator struct {
	sr      beep.SampleRate
	freq    float64
	pos     int
	samples int
}

// NewToneGenerator creates a tone generator for a note of length d
func NewToneGenerator(sr beep.SampleRate, freq float64, d time.Duration) *ToneGenerator {
	return &ToneGenerator{sr: sr, freq: freq, samples: max(sr.N(d), 1)}
}

func (g *ToneGenerator) Stream(samples [][2]float64) (n int, ok bool) {
	attack := g.sr.N(5 * time.Millisecond)
	for i := range samples {
		t := float64(g.pos) / float64(g.sr)
		env := 1 - float64(g.pos)/float64(g.samples)
		if g.pos < attack {
			env *= float64(g.pos) / float64(attack)
		}
		env = math.Max(env, 0)
		sample := 0.2 * env * math.Sin(2*math.Pi*g.freq*t)
		samples[i][0] = sample
		samples[i][1] = sample
		g.pos++
	}
	return len(samples), true
}

func (g *ToneGenerator) Err() error {
	return nil
}

// BuzzGenerator generates a low-pitch buzz sound
type BuzzGenerator struct {
	sr   beep.SampleRate
	freq float64
	pos  int
}

// NewBuzzGenerator creates a buzz sound generator
func NewBuzzGenerator(sr beep.SampleRate, freq float64) *BuzzGenerator {
	return &BuzzGenerator{sr: sr, freq: freq}
}

func (g *BuzzGenerator) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		t := float64(g.pos) / float64(g.sr)

		sample := 0.0
		sample += 0.3 * math.Sin(2*math.Pi*g.freq*t)
		sample += 0.15 * math.Sin(2*math.Pi*g.freq*2*t)
		sample += 0.075 * math.Sin(2*math.Pi*g.freq*3*t)

		envelope := math.Min(float64(g.pos)/float64(g.sr)/0.02, 1.0)
		sample *= envelope * 0.2

		samples[i][0] = sample
		samples[i][1] = sample
		g.pos++
	}
	return len(samples), true
}

func (g *BuzzGenerator) Err() error {
	return nil
}
