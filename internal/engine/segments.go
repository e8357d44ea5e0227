package engine

import "strings"

func isSentenceEnd(r rune) bool { return r == '。' || r == '！' || r == '？' }

// SplitSentences cuts text after every 。！？, trimming each fragment. A fragment
// that is only punctuation is glued to the sentence before it.
func SplitSentences(text string) []string {
	var (
		out []string
		cur strings.Builder
	)
	flush := func(punct string) {
		content := strings.TrimSpace(cur.String())
		cur.Reset()
		switch {
		case content != "":
			out = append(out, content+punct)
		case punct != "" && len(out) > 0:
			out[len(out)-1] += punct
		}
	}
	for _, r := range text {
		if isSentenceEnd(r) {
			flush(string(r))
			continue
		}
		cur.WriteRune(r)
	}
	flush("")
	return out
}

// SplitTextIntoSegments groups sentences two at a time into display segments.
// Text without a usable sentence comes back whole; blank text yields nil.
func SplitTextIntoSegments(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return []string{strings.TrimSpace(text)}
	}
	segments := make([]string, 0, (len(sentences)+1)/2)
	for i := 0; i < len(sentences); i += 2 {
		if i+1 < len(sentences) {
			segments = append(segments, sentences[i]+sentences[i+1])
		} else {
			segments = append(segments, sentences[i])
		}
	}
	return segments
}
