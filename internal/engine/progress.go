package engine

import (
	"math"
	"strconv"
)

// RandSource yields floats in [0,1). *Stream satisfies it.
type RandSource interface {
	Float64() float64
}

const (
	progressCap  = 95.0
	progressDone = 100.0
	minIncrement = 0.5
)

func round1(x float64) float64 { return math.Round(x*10) / 10 }

func clampProgress(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > progressDone {
		return progressDone
	}
	return p
}

// NextProgress advances chapter progress after a choice. A resolved conflict
// pins progress to 100; otherwise the increment shrinks logarithmically with the
// remaining distance and never pushes progress past 95.
func NextProgress(cur float64, solved bool, r RandSource) float64 {
	cur = clampProgress(cur)
	if solved || cur >= progressDone {
		return progressDone
	}
	remaining := progressDone - cur
	base := math.Log(remaining+1) * 1.5
	factor := 0.8 + r.Float64()*0.4
	inc := math.Max(minIncrement, math.Min(remaining*0.1, base*factor))
	next := round1(math.Min(progressCap, cur+inc))
	if next < cur {
		return cur
	}
	return next
}

// InitialProgress is the starting value of a fresh chapter, 1.0 to 3.0.
func InitialProgress(r RandSource) float64 {
	p := 1 + r.Float64()*2
	return round1(math.Max(1, math.Min(3, p)))
}

// ProgressStatus names the phase of a chapter for the progress bar.
func ProgressStatus(p float64) string {
	switch {
	case p < 30:
		return "探索中"
	case p < 70:
		return "推进中"
	default:
		return "即将解决"
	}
}

// ChapterLabel maps chapter ids to display names.
func ChapterLabel(id string) string {
	switch id {
	case "chapter1", "":
		return "第一章"
	case "chapter2":
		return "第二章"
	default:
		return "第三章"
	}
}

func formatProgress(p float64) string {
	return strconv.FormatFloat(round1(p), 'f', -1, 64)
}
