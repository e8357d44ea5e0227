package engine

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Worldview is the backend-authored core_worldview. It is opaque except for the
// fields the client fills defaults for.
type Worldview map[string]any

// Environment is the flow_worldline.environment block.
type Environment struct {
	Location          string
	Weather           string
	ForceRelationship string
}

// FlowWorldline is the mutable story line. Keys the client does not model are
// kept in raw and written back untouched.
type FlowWorldline struct {
	CurrentChapter  string
	Environment     Environment
	QuestProgress   string
	ConflictSolved  bool
	ChapterProgress float64
	CurrentScene    string
	Unlocked        []string

	raw []byte
}

// EndingPrediction is hidden_ending_prediction.
type EndingPrediction struct {
	MainTone string `json:"main_tone"`
	Content  string `json:"content"`
}

// GameData is the globalState exchanged with the backend.
type GameData struct {
	Worldview  Worldview
	Worldline  FlowWorldline
	Ending     EndingPrediction
	ImageStyle json.RawMessage

	raw []byte
}

// NewGameData returns the empty shape used before a world exists.
func NewGameData() GameData {
	return GameData{
		Worldview: Worldview{},
		Worldline: FlowWorldline{CurrentChapter: "chapter1"},
		Ending:    EndingPrediction{MainTone: "NE"},
	}
}

// pathKey escapes a JSON key for use as a gjson/sjson path component.
func pathKey(k string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`)
	return r.Replace(k)
}

func (w FlowWorldline) MarshalJSON() ([]byte, error) {
	out := w.raw
	if len(out) == 0 {
		out = []byte("{}")
	} else {
		out = slices.Clone(out)
	}
	set := func(path string, v any) {
		if out == nil {
			return
		}
		var err error
		if out, err = sjson.SetBytes(out, path, v); err != nil {
			out = nil
		}
	}
	set("current_chapter", w.CurrentChapter)
	set("environment.location", w.Environment.Location)
	set("environment.weather", w.Environment.Weather)
	set("environment.force_relationship", w.Environment.ForceRelationship)
	set("quest_progress", w.QuestProgress)
	set("chapter_conflict_solved", w.ConflictSolved)
	set("chapter_progress", w.ChapterProgress)
	if w.CurrentScene != "" {
		set("current_scene", w.CurrentScene)
	} else if out != nil {
		out, _ = sjson.DeleteBytes(out, "current_scene")
	}
	if len(w.Unlocked) > 0 {
		set("deep_background_unlocked_flag", w.Unlocked)
	}
	if out == nil {
		return nil, fmt.Errorf("encode flow_worldline")
	}
	return out, nil
}

func (w *FlowWorldline) UnmarshalJSON(data []byte) error {
	res := gjson.ParseBytes(data)
	if res.Type == gjson.Null {
		*w = FlowWorldline{}
		return nil
	}
	if !res.IsObject() {
		return fmt.Errorf("flow_worldline: expected object, got %s", res.Type)
	}
	*w = FlowWorldline{
		CurrentChapter: res.Get("current_chapter").String(),
		Environment: Environment{
			Location:          res.Get("environment.location").String(),
			Weather:           res.Get("environment.weather").String(),
			ForceRelationship: res.Get("environment.force_relationship").String(),
		},
		QuestProgress:   res.Get("quest_progress").String(),
		ConflictSolved:  res.Get("chapter_conflict_solved").Bool(),
		ChapterProgress: clampProgress(res.Get("chapter_progress").Float()),
		CurrentScene:    res.Get("current_scene").String(),
		raw:             slices.Clone(data),
	}
	for _, v := range res.Get("deep_background_unlocked_flag").Array() {
		w.Unlocked = append(w.Unlocked, v.String())
	}
	return nil
}

// Raw returns a worldline field the client does not model.
func (w FlowWorldline) Raw(path string) gjson.Result {
	b, err := w.MarshalJSON()
	if err != nil {
		return gjson.Result{}
	}
	return gjson.GetBytes(b, path)
}

// Merge applies a partial flow_update from the backend. Empty strings, nulls and
// empty objects do not clobber existing values, a non-boolean
// chapter_conflict_solved is ignored, and chapter_progress is always local.
func (w *FlowWorldline) Merge(update []byte) error {
	res := gjson.ParseBytes(update)
	if !res.IsObject() {
		return nil
	}
	base, err := w.MarshalJSON()
	if err != nil {
		return err
	}
	progress := w.ChapterProgress
	res.ForEach(func(k, v gjson.Result) bool {
		key := k.String()
		switch {
		case key == "chapter_progress":
			return true
		case key == "chapter_conflict_solved" && v.Type != gjson.True && v.Type != gjson.False:
			return true
		case v.Type == gjson.Null:
			return true
		case v.Type == gjson.String && strings.TrimSpace(v.String()) == "":
			return true
		case v.IsObject() && len(v.Map()) == 0:
			return true
		}
		if v.IsObject() {
			// nested objects merge key by key so partial character updates survive
			v.ForEach(func(ik, iv gjson.Result) bool {
				base, err = sjson.SetRawBytes(base, pathKey(key)+"."+pathKey(ik.String()), []byte(iv.Raw))
				return err == nil
			})
			return err == nil
		}
		base, err = sjson.SetRawBytes(base, pathKey(key), []byte(v.Raw))
		return err == nil
	})
	if err != nil {
		return fmt.Errorf("merge flow_update: %w", err)
	}
	if err := w.UnmarshalJSON(base); err != nil {
		return err
	}
	w.ChapterProgress = progress
	return nil
}

// CharacterUnlocked reports flow_worldline.characters[name].deep_background_unlocked.
func (w FlowWorldline) CharacterUnlocked(name string) bool {
	return w.Raw("characters." + pathKey(name) + ".deep_background_unlocked").Bool()
}

// Characters lists the names under flow_worldline.characters.
func (w FlowWorldline) Characters() []string {
	var names []string
	w.Raw("characters").ForEach(func(k, _ gjson.Result) bool {
		names = append(names, k.String())
		return true
	})
	return names
}

// Unlock marks a character's deep background as unlocked.
func (w *FlowWorldline) Unlock(name string) error {
	base, err := w.MarshalJSON()
	if err != nil {
		return err
	}
	if gjson.GetBytes(base, "characters."+pathKey(name)).Exists() {
		p := "characters." + pathKey(name)
		if base, err = sjson.SetBytes(base, p+".deep_background_unlocked", true); err != nil {
			return err
		}
		if base, err = sjson.SetBytes(base, p+".deep_background_depth", 1); err != nil {
			return err
		}
	}
	progress, unlocked := w.ChapterProgress, w.Unlocked
	if err := w.UnmarshalJSON(base); err != nil {
		return err
	}
	w.ChapterProgress = progress
	w.Unlocked = unlocked
	if !slices.Contains(w.Unlocked, name) {
		w.Unlocked = append(w.Unlocked, name)
	}
	return nil
}

func (d GameData) MarshalJSON() ([]byte, error) {
	out := d.raw
	if len(out) == 0 {
		out = []byte("{}")
	} else {
		out = slices.Clone(out)
	}
	wv := d.Worldview
	if wv == nil {
		wv = Worldview{}
	}
	var err error
	if out, err = sjson.SetBytes(out, "core_worldview", map[string]any(wv)); err != nil {
		return nil, err
	}
	wl, err := d.Worldline.MarshalJSON()
	if err != nil {
		return nil, err
	}
	if out, err = sjson.SetRawBytes(out, "flow_worldline", wl); err != nil {
		return nil, err
	}
	if out, err = sjson.SetBytes(out, "hidden_ending_prediction.main_tone", d.Ending.MainTone); err != nil {
		return nil, err
	}
	if out, err = sjson.SetBytes(out, "hidden_ending_prediction.content", d.Ending.Content); err != nil {
		return nil, err
	}
	if len(d.ImageStyle) > 0 {
		if out, err = sjson.SetRawBytes(out, "image_style", d.ImageStyle); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (d *GameData) UnmarshalJSON(data []byte) error {
	res := gjson.ParseBytes(data)
	if res.Type == gjson.Null {
		*d = NewGameData()
		return nil
	}
	if !res.IsObject() {
		return fmt.Errorf("globalState: expected object, got %s", res.Type)
	}
	nd := GameData{Worldview: Worldview{}, raw: slices.Clone(data)}
	if cw := res.Get("core_worldview"); cw.IsObject() {
		if err := json.Unmarshal([]byte(cw.Raw), &nd.Worldview); err != nil {
			return fmt.Errorf("core_worldview: %w", err)
		}
	}
	if fw := res.Get("flow_worldline"); fw.Exists() {
		if err := nd.Worldline.UnmarshalJSON([]byte(fw.Raw)); err != nil {
			return err
		}
	}
	nd.Ending = EndingPrediction{
		MainTone: res.Get("hidden_ending_prediction.main_tone").String(),
		Content:  res.Get("hidden_ending_prediction.content").String(),
	}
	if nd.Ending.MainTone == "" {
		nd.Ending.MainTone = "NE"
	}
	if st := res.Get("image_style"); st.Exists() && st.Type != gjson.Null {
		nd.ImageStyle = json.RawMessage(st.Raw)
	}
	*d = nd
	return nil
}

// Extra reads a top-level key the client does not model.
func (d GameData) Extra(key string) gjson.Result {
	return gjson.GetBytes(d.raw, pathKey(key))
}

// SetExtra writes a top-level key the client does not model.
func (d *GameData) SetExtra(key string, v any) error {
	base := d.raw
	if len(base) == 0 {
		base = []byte("{}")
	}
	out, err := sjson.SetBytes(base, pathKey(key), v)
	if err != nil {
		return err
	}
	d.raw = out
	return nil
}

// Str reads a string field from the worldview, "" when absent or not a string.
func (w Worldview) Str(key string) string {
	s, _ := w[key].(string)
	return s
}

// Summary is the one-paragraph description shown for a loaded save.
func (w Worldview) Summary() string {
	for _, k := range []string{"world_basic_setting", "game_style"} {
		if s := strings.TrimSpace(w.Str(k)); s != "" {
			return StripMarkdown(s)
		}
	}
	return "暂无世界观信息"
}

// Chapter returns core_worldview.chapters[id] as a map, nil when absent.
func (w Worldview) Chapter(id string) map[string]any {
	chapters, _ := w["chapters"].(map[string]any)
	if chapters == nil {
		return nil
	}
	ch, _ := chapters[id].(map[string]any)
	return ch
}
