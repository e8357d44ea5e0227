package engine

import (
	"encoding/json"
	"fmt"
)

type chapterDefault struct{ conflict, end string }

var chapterDefaults = map[string]chapterDefault{
	"chapter1": {"开始你的冒险之旅，探索未知的世界", "完成初步探索，获得关键线索"},
	"chapter2": {"深入探索，面对更大的挑战", "克服困难，获得进展"},
	"chapter3": {"最终决战，决定命运的时刻", "完成最终目标，达成结局"},
}

const defaultEndingContent = "主角完成了主要任务，虽然过程中经历了许多困难，但最终达成了预期目标"

func worldSetting(theme string) string {
	return fmt.Sprintf("在一个充满奇幻色彩的%s世界中，古老的预言正在悄然应验，你将踏上一段改变命运的旅程", theme)
}

// FillWorldviewDefaults completes a backend worldview that is missing the fields
// the setting screen shows.
func FillWorldviewDefaults(w Worldview, theme string, attrs Attributes) Worldview {
	if w == nil {
		w = Worldview{}
	}
	if w.Str("game_style") == "" {
		if theme != "" {
			w["game_style"] = theme
		} else {
			w["game_style"] = "奇幻冒险"
		}
	}
	if w.Str("world_basic_setting") == "" {
		w["world_basic_setting"] = worldSetting(theme)
	}
	if w.Str("protagonist_ability") == "" {
		w["protagonist_ability"] = attrs.Summary()
	}
	chapters, _ := w["chapters"].(map[string]any)
	if chapters == nil {
		chapters = map[string]any{}
		w["chapters"] = chapters
	}
	for id, def := range chapterDefaults {
		ch, _ := chapters[id].(map[string]any)
		if ch == nil {
			ch = map[string]any{}
			chapters[id] = ch
		}
		if s, _ := ch["main_conflict"].(string); s == "" {
			ch["main_conflict"] = def.conflict
		}
		if s, _ := ch["conflict_end_condition"].(string); s == "" {
			ch["conflict_end_condition"] = def.end
		}
	}
	return w
}

// DefaultGameData is the world used when generation fails outright.
func DefaultGameData(theme string, attrs Attributes, tone Tone) GameData {
	if tone == "" {
		tone = ToneNormal
	}
	style := theme
	if style == "" {
		style = "奇幻冒险"
	}
	doc := map[string]any{
		"core_worldview": map[string]any{
			"game_style":          style,
			"world_basic_setting": worldSetting(theme),
			"protagonist_ability": attrs.Summary(),
			"characters": map[string]any{
				"主角": map[string]any{
					"core_personality":   "勇敢果断，充满好奇心",
					"shallow_background": "你是一名普通的冒险者，渴望探索未知的世界",
					"deep_background":    "曾是皇家密探，因遭陷害隐姓埋名，体内隐藏着神器守护者的血脉",
				},
				"配角1": map[string]any{
					"core_personality":   "聪明机智，善于谋划",
					"shallow_background": "你遇到的第一个伙伴，是一名经验丰富的向导",
					"deep_background":    "表面是向导，实际是神秘组织成员，寻找神器是为了阻止灾难",
				},
			},
			"forces": map[string]any{
				"positive": []string{"光明势力", "冒险者公会"},
				"negative": []string{"黑暗军团", "邪恶巫师"},
				"neutral":  []string{"商人联盟", "流浪部落"},
			},
			"main_quest": fmt.Sprintf("在%s世界中，收集上古神器碎片，阻止黑暗势力毁灭世界", theme),
			"chapters": map[string]any{
				"chapter1": map[string]any{"main_conflict": "寻找失窃的上古神器，阻止黑暗势力复苏", "conflict_end_condition": "找到神器线索并击败第一个守护者"},
				"chapter2": map[string]any{"main_conflict": "揭露盟友中的内奸，保护神器不被夺走", "conflict_end_condition": "找出内奸并获得真正盟友的信任"},
				"chapter3": map[string]any{"main_conflict": "最终决战，击败黑暗势力首领", "conflict_end_condition": "成功封印黑暗势力，恢复世界和平"},
			},
			"end_trigger_condition": "完成所有章节或选择结束游戏选项",
		},
		"flow_worldline": map[string]any{
			"current_chapter": "chapter1",
			"tone":            string(tone),
			"characters": map[string]any{
				"主角":  map[string]any{"thought": "我必须勇敢地面对挑战", "physiology": "健康", "deep_background_unlocked": false, "deep_background_depth": 0},
				"配角1": map[string]any{"thought": "这个年轻人看起来很有潜力", "physiology": "健康", "deep_background_unlocked": false, "deep_background_depth": 0},
			},
			"environment": map[string]any{
				"location":           "迷雾森林入口",
				"weather":            "小雨",
				"force_relationship": "中立",
			},
			"quest_progress":          "刚刚进入迷雾森林，寻找神器的第一个线索",
			"chapter_conflict_solved": false,
			"info_gap_record": map[string]any{
				"entries":              []any{},
				"current_super_choice": nil,
				"pending_super_plot":   nil,
			},
		},
		"hidden_ending_prediction": map[string]any{
			"main_tone": "NE",
			"content":   defaultEndingContent,
		},
	}
	raw, _ := json.Marshal(doc)
	var d GameData
	if err := d.UnmarshalJSON(raw); err != nil {
		return NewGameData()
	}
	return d
}

// FallbackScene builds an opening line from the worldline when the backend
// cannot produce one.
func FallbackScene(w FlowWorldline) string {
	loc := w.Environment.Location
	if loc == "" {
		loc = "未知地点"
	}
	weather := w.Environment.Weather
	if weather == "" {
		weather = "晴朗"
	}
	return fmt.Sprintf("你站在%s，%s。%s", loc, weather, w.QuestProgress)
}
