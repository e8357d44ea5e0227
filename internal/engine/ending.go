package engine

import "fmt"

var endingLabels = map[string]string{
	"HE": "圆满结局",
	"BE": "悲剧结局",
	"NE": "普通结局",
}

// EndingLabel names an ending tone, falling back to the normal ending.
func EndingLabel(tone string) string {
	if l, ok := endingLabels[tone]; ok {
		return l
	}
	return endingLabels["NE"]
}

// EndingTitle is "<label> - <theme>".
func EndingTitle(e EndingPrediction, theme string) string {
	return fmt.Sprintf("%s - %s", EndingLabel(e.MainTone), theme)
}

// EndingContent returns the prediction text or the stock ending.
func EndingContent(e EndingPrediction) string {
	if e.Content == "" {
		return defaultEndingContent
	}
	return e.Content
}

// UnlockDeepBackground records a character's deep background as revealed in both
// the session list and the worldline. It reports whether the unlock is new.
func (s *GameState) UnlockDeepBackground(name string) (bool, error) {
	for _, n := range s.Unlocked {
		if n == name {
			return false, nil
		}
	}
	if err := s.Data.Worldline.Unlock(name); err != nil {
		return false, err
	}
	s.Unlocked = append(s.Unlocked, name)
	return true, nil
}
