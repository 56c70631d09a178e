package pipeline

import (
	"math"
	"strings"
	"unicode/utf8"
)

// DefaultMaxLength is the split budget used when none is configured.
const DefaultMaxLength = 80

// SplitCues breaks every cue whose text is longer than maxLength characters
// into consecutive cues that fit the budget. The original interval is shared
// among the parts in proportion to their character counts. Cues that already
// fit are returned unchanged. A single word longer than maxLength becomes its
// own part and is not broken further.
func SplitCues(cues []Cue, maxLength int) []Cue {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}

	out := make([]Cue, 0, len(cues))
	for _, cue := range cues {
		length := utf8.RuneCountInString(cue.Text)
		if length <= maxLength {
			out = append(out, cue)
			continue
		}
		out = append(out, splitCue(cue, length, maxLength)...)
	}
	return out
}

// splitCue distributes the cue's duration over its packed parts in proportion
// to their character counts. Separators between parts are not charged, so the
// last part ends about (parts-1) characters' worth of time before the original
// end. Rounding error is not carried over.
func splitCue(cue Cue, length, maxLength int) []Cue {
	parts := packWords(cue.Text, maxLength)
	if len(parts) == 0 {
		// Whitespace only: keep the interval, drop the blanks.
		return []Cue{NewCue("", cue.Start, cue.End)}
	}
	msPerChar := float64(cue.End-cue.Start) / float64(length)

	cues := make([]Cue, 0, len(parts))
	cursor := cue.Start
	for _, part := range parts {
		partLen := utf8.RuneCountInString(part)
		end := cursor + int64(math.Round(msPerChar*float64(partLen)))
		cues = append(cues, Cue{Text: part, Start: cursor, End: end, Length: partLen})
		cursor = end
	}
	return cues
}

// packWords greedily fills parts with whitespace-delimited words, joining them
// with single spaces.
func packWords(text string, maxLength int) []string {
	var (
		parts   []string
		current strings.Builder
		curLen  int
	)

	for _, word := range strings.Fields(text) {
		wordLen := utf8.RuneCountInString(word)
		if curLen == 0 {
			current.WriteString(word)
			curLen = wordLen
			continue
		}
		if curLen+1+wordLen <= maxLength {
			current.WriteByte(' ')
			current.WriteString(word)
			curLen += 1 + wordLen
			continue
		}
		parts = append(parts, current.String())
		current.Reset()
		current.WriteString(word)
		curLen = wordLen
	}

	if curLen > 0 {
		parts = append(parts, current.String())
	}
	return parts
}
