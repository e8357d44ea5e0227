package engine

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Screen names a top-level view of the client.
type Screen string

const (
	ScreenMenu                Screen = "menu"
	ScreenAttrSelection       Screen = "attrSelection"
	ScreenDifficultySelection Screen = "difficultySelection"
	ScreenToneSelection       Screen = "toneSelection"
	ScreenThemeInput          Screen = "themeInput"
	ScreenImageStyleSelection Screen = "imageStyleSelection"
	ScreenSetting             Screen = "setting"
	ScreenPortrait            Screen = "portrait"
	ScreenLoading             Screen = "loading"
	ScreenGameplay            Screen = "gameplay"
	ScreenSaveManagement      Screen = "saveManagement"
	ScreenEnding              Screen = "ending"
)

// Screens lists every known screen in navigation order.
var Screens = []Screen{
	ScreenMenu, ScreenAttrSelection, ScreenDifficultySelection, ScreenToneSelection,
	ScreenThemeInput, ScreenImageStyleSelection, ScreenSetting, ScreenPortrait, ScreenLoading,
	ScreenGameplay, ScreenSaveManagement, ScreenEnding,
}

func (s Screen) Valid() bool { return slices.Contains(Screens, s) }

// Level is a protagonist trait level.
type Level string

const (
	LevelHigh   Level = "高"
	LevelNormal Level = "普通"
	LevelLow    Level = "低"
)

var Levels = []Level{LevelHigh, LevelNormal, LevelLow}

// Trait names as the backend expects them.
const (
	TraitLooks     = "颜值"
	TraitIntellect = "智商"
	TraitStamina   = "体力"
	TraitCharm     = "魅力"
)

var Traits = []string{TraitLooks, TraitIntellect, TraitStamina, TraitCharm}

// Attributes holds the four protagonist trait levels.
type Attributes struct {
	Looks     Level `json:"颜值"`
	Intellect Level `json:"智商"`
	Stamina   Level `json:"体力"`
	Charm     Level `json:"魅力"`
}

func DefaultAttributes() Attributes {
	return Attributes{Looks: LevelNormal, Intellect: LevelNormal, Stamina: LevelNormal, Charm: LevelNormal}
}

// Get returns the level of a trait by its backend name.
func (a Attributes) Get(trait string) Level {
	switch trait {
	case TraitLooks:
		return a.Looks
	case TraitIntellect:
		return a.Intellect
	case TraitStamina:
		return a.Stamina
	case TraitCharm:
		return a.Charm
	}
	return ""
}

// Set updates a trait by its backend name. Unknown traits and levels are rejected.
func (a *Attributes) Set(trait string, lv Level) error {
	if !slices.Contains(Levels, lv) {
		return fmt.Errorf("unknown level %q", lv)
	}
	switch trait {
	case TraitLooks:
		a.Looks = lv
	case TraitIntellect:
		a.Intellect = lv
	case TraitStamina:
		a.Stamina = lv
	case TraitCharm:
		a.Charm = lv
	default:
		return fmt.Errorf("unknown trait %q", trait)
	}
	return nil
}

// Summary renders "颜值X、智商X、体力X、魅力X".
func (a Attributes) Summary() string {
	return fmt.Sprintf("颜值%s、智商%s、体力%s、魅力%s", a.Looks, a.Intellect, a.Stamina, a.Charm)
}

// Difficulty levels offered on the difficulty screen.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "简单"
	DifficultyMedium Difficulty = "中等"
	DifficultyHard   Difficulty = "困难"
)

var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// Tone is the narrative register chosen before world generation.
type Tone string

const (
	ToneHappy        Tone = "happy_ending"
	ToneBad          Tone = "bad_ending"
	ToneNormal       Tone = "normal_ending"
	ToneDark         Tone = "dark_depressing"
	ToneHumorous     Tone = "humorous"
	ToneAbstract     Tone = "abstract"
	ToneAesthetic    Tone = "aesthetic"
	ToneLogical      Tone = "logical"
	ToneMysterious   Tone = "mysterious"
	ToneStreamOfMind Tone = "stream_of_consciousness"
)

var Tones = []Tone{
	ToneHappy, ToneBad, ToneNormal, ToneDark, ToneHumorous,
	ToneAbstract, ToneAesthetic, ToneLogical, ToneMysterious, ToneStreamOfMind,
}

var toneLabels = map[Tone]string{
	ToneHappy:        "轻松愉快",
	ToneBad:          "沉重肃穆",
	ToneNormal:       "标准",
	ToneDark:         "神秘深沉",
	ToneHumorous:     "幽默风趣",
	ToneAbstract:     "抽象艺术",
	ToneAesthetic:    "唯美诗意",
	ToneLogical:      "严谨理性",
	ToneMysterious:   "神秘莫测",
	ToneStreamOfMind: "意识流",
}

func (t Tone) Label() string {
	if l, ok := toneLabels[t]; ok {
		return l
	}
	return string(t)
}

// GameState is the single mutable record of a play session.
type GameState struct {
	Screen     Screen
	Difficulty Difficulty
	Tone       Tone
	Attributes Attributes
	Theme      string
	Style      ImageStyle
	Data       GameData

	Scene             string
	Segments          []string
	Options           []string
	LastImage         *ImageDescriptor
	SceneID           string
	PreviousSceneID   string
	PreviousSceneText string

	Progress       float64
	Unlocked       []string
	Loaded         bool
	LoadedSaveName string
}

// NewGameState returns the state used at startup and on "new game".
func NewGameState() *GameState {
	return &GameState{
		Screen:     ScreenMenu,
		Tone:       ToneNormal,
		Attributes: DefaultAttributes(),
		Data:       NewGameData(),
	}
}

// SetProgress updates the progress and mirrors it into the worldline.
func (s *GameState) SetProgress(p float64) {
	s.Progress = clampProgress(p)
	s.Data.Worldline.ChapterProgress = s.Progress
}

// ResumeLabel renders "第X章，进度：P%" for the loaded-game panel.
func (s *GameState) ResumeLabel() string {
	return fmt.Sprintf("%s，进度：%s%%", ChapterLabel(s.Data.Worldline.CurrentChapter), formatProgress(s.Progress))
}

// ProgressLabel renders "第X章 P%" for save summaries.
func (s *GameState) ProgressLabel() string {
	return fmt.Sprintf("%s %s%%", ChapterLabel(s.Data.Worldline.CurrentChapter), formatProgress(s.Progress))
}

// Clone returns a deep copy via the JSON form of the game data.
func (s *GameState) Clone() (*GameState, error) {
	raw, err := json.Marshal(s.Data)
	if err != nil {
		return nil, err
	}
	cp := *s
	cp.Data = GameData{}
	if err := json.Unmarshal(raw, &cp.Data); err != nil {
		return nil, err
	}
	cp.Segments = slices.Clone(s.Segments)
	cp.Options = slices.Clone(s.Options)
	cp.Unlocked = slices.Clone(s.Unlocked)
	if s.LastImage != nil {
		img := *s.LastImage
		cp.LastImage = &img
	}
	return &cp, nil
}
