package engine

import (
	"encoding/json"
	"testing"

	"github.com/tidwall/gjson"
)

const sampleGlobalState = `{
  "core_worldview": {"game_style": "仙侠", "chapters": {"chapter1": {"main_conflict": "夺宝"}}},
  "flow_worldline": {
    "current_chapter": "chapter2",
    "environment": {"location": "古老神庙", "weather": "雾", "force_relationship": "敌对", "time": "夜"},
    "quest_progress": "找到了钥匙",
    "chapter_conflict_solved": false,
    "chapter_progress": "42.5",
    "characters": {"配角1": {"thought": "...", "deep_background_unlocked": false}},
    "info_gap_record": {"entries": []}
  },
  "hidden_ending_prediction": {"main_tone": "BE", "content": "一切归于寂静"},
  "image_style": {"type": "oil_painting", "subtype": "modern"},
  "server_only": 7
}`

func TestGameDataRoundTripPreservesUnknownKeys(t *testing.T) {
	var d GameData
	if err := json.Unmarshal([]byte(sampleGlobalState), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Worldline.CurrentChapter != "chapter2" || d.Worldline.ChapterProgress != 42.5 {
		t.Fatalf("worldline not parsed: %+v", d.Worldline)
	}
	if d.Ending.MainTone != "BE" {
		t.Fatalf("ending not parsed: %+v", d.Ending)
	}
	d.Worldline.QuestProgress = "打开了大门"
	out, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if gjson.GetBytes(out, "server_only").Int() != 7 {
		t.Fatalf("top-level extra lost: %s", out)
	}
	if gjson.GetBytes(out, "flow_worldline.environment.time").String() != "夜" {
		t.Fatalf("nested extra lost: %s", out)
	}
	if gjson.GetBytes(out, "flow_worldline.quest_progress").String() != "打开了大门" {
		t.Fatalf("typed field not written: %s", out)
	}
	if gjson.GetBytes(out, "image_style.subtype").String() != "modern" {
		t.Fatalf("image style lost: %s", out)
	}
}

func TestFlowWorldlineMergeKeepsLocalProgress(t *testing.T) {
	var d GameData
	if err := json.Unmarshal([]byte(sampleGlobalState), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	d.Worldline.ChapterProgress = 50
	update := `{
	  "quest_progress": "击败了守卫",
	  "chapter_progress": 5,
	  "chapter_conflict_solved": "yes",
	  "environment": {"weather": "晴"},
	  "characters": {},
	  "current_chapter": ""
	}`
	if err := d.Worldline.Merge([]byte(update)); err != nil {
		t.Fatalf("merge: %v", err)
	}
	w := d.Worldline
	if w.ChapterProgress != 50 {
		t.Fatalf("local progress clobbered: %v", w.ChapterProgress)
	}
	if w.QuestProgress != "击败了守卫" {
		t.Fatalf("quest progress not merged: %q", w.QuestProgress)
	}
	if w.ConflictSolved {
		t.Fatalf("non-boolean solved flag should be ignored")
	}
	if w.Environment.Weather != "晴" || w.Environment.Location != "古老神庙" {
		t.Fatalf("environment merge wrong: %+v", w.Environment)
	}
	if w.CurrentChapter != "chapter2" {
		t.Fatalf("empty string clobbered chapter: %q", w.CurrentChapter)
	}
	if len(w.Characters()) != 1 {
		t.Fatalf("empty object clobbered characters: %v", w.Characters())
	}
}

func TestUnlockDeepBackground(t *testing.T) {
	s := NewGameState()
	if err := json.Unmarshal([]byte(sampleGlobalState), &s.Data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	s.SetProgress(33)
	fresh, err := s.UnlockDeepBackground("配角1")
	if err != nil || !fresh {
		t.Fatalf("unlock failed: %v %v", fresh, err)
	}
	if !s.Data.Worldline.CharacterUnlocked("配角1") {
		t.Fatalf("character flag not set")
	}
	if got := s.Data.Worldline.Raw("characters.配角1.deep_background_depth").Int(); got != 1 {
		t.Fatalf("depth not set: %d", got)
	}
	if len(s.Data.Worldline.Unlocked) != 1 || s.Data.Worldline.Unlocked[0] != "配角1" {
		t.Fatalf("worldline flag list wrong: %v", s.Data.Worldline.Unlocked)
	}
	if s.Progress != 33 || s.Data.Worldline.ChapterProgress != 33 {
		t.Fatalf("progress disturbed by unlock")
	}
	if again, _ := s.UnlockDeepBackground("配角1"); again {
		t.Fatalf("second unlock should not be new")
	}
}

func TestDefaultGameData(t *testing.T) {
	d := DefaultGameData("废土", DefaultAttributes(), ToneDark)
	if d.Worldline.Environment.Location != "迷雾森林入口" {
		t.Fatalf("unexpected location %q", d.Worldline.Environment.Location)
	}
	if d.Ending.MainTone != "NE" {
		t.Fatalf("unexpected tone %q", d.Ending.MainTone)
	}
	if d.Worldline.Raw("tone").String() != string(ToneDark) {
		t.Fatalf("tone not stored on worldline")
	}
	if len(d.Worldline.Characters()) != 2 {
		t.Fatalf("expected two characters")
	}
}

func TestGameStateCloneIsDeep(t *testing.T) {
	s := NewGameState()
	s.Data = DefaultGameData("江湖", DefaultAttributes(), ToneNormal)
	s.Options = []string{"a", "b"}
	cp, err := s.Clone()
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	cp.Options[0] = "z"
	cp.Data.Worldline.QuestProgress = "changed"
	cp.Data.Worldview["game_style"] = "changed"
	if s.Options[0] != "a" || s.Data.Worldline.QuestProgress == "changed" || s.Data.Worldview.Str("game_style") == "changed" {
		t.Fatalf("clone shares state with original")
	}
}

func TestLoadedGameLabels(t *testing.T) {
	s := NewGameState()
	s.Data.Worldline.CurrentChapter = "chapter2"
	s.SetProgress(42.5)
	if got := s.ResumeLabel(); got != "第二章，进度：42.5%" {
		t.Fatalf("ResumeLabel = %q", got)
	}

	cases := []struct {
		w    Worldview
		want string
	}{
		{Worldview{"world_basic_setting": "**浮空群岛**", "game_style": "奇幻"}, "浮空群岛"},
		{Worldview{"world_basic_setting": "  ", "game_style": "赛博朋克"}, "赛博朋克"},
		{Worldview{}, "暂无世界观信息"},
	}
	for _, tc := range cases {
		if got := tc.w.Summary(); got != tc.want {
			t.Fatalf("Summary(%v) = %q, want %q", tc.w, got, tc.want)
		}
	}
}
