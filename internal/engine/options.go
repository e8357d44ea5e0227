package engine

import (
	"slices"
	"strings"
)

// OptionCount is the number of choices shown per scene.
const OptionCount = 2

// EndGameMarker marks the option that jumps straight to the ending.
const EndGameMarker = "结束游戏，观看结局"

const (
	OptionContinue = "继续游戏"
	OptionMenu     = "返回主菜单"
)

var (
	DefaultOptions      = []string{"继续前进", "查看当前状态"}
	FirstSceneOptions   = []string{"继续深入探索", "查看周围环境", "检查角色状态", "了解当前任务"}
	RecoveryOptions     = []string{OptionContinue, OptionMenu}
	FirstSceneFallbacks = []string{"继续深入探索", "查看周围环境"}
)

// NormalizeOptions trims blanks, keeps the first two choices and pads with
// defaults that are not already present.
func NormalizeOptions(opts []string, defaults []string) []string {
	out := make([]string, 0, OptionCount)
	for _, o := range opts {
		o = strings.TrimSpace(o)
		if o == "" || slices.Contains(out, o) {
			continue
		}
		out = append(out, o)
		if len(out) == OptionCount {
			return out
		}
	}
	for _, d := range defaults {
		if len(out) == OptionCount {
			break
		}
		if !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	for _, d := range DefaultOptions {
		if len(out) == OptionCount {
			break
		}
		if !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	return out
}

// IsEndGame reports whether choosing opt should show the ending screen.
func IsEndGame(opt string) bool { return strings.Contains(opt, EndGameMarker) }
