package pipeline

import "unicode/utf8"

// Cue represents one subtitle block. Times are milliseconds from the start of
// the recording.
type Cue struct {
	Text   string `json:"text"`
	Start  int64  `json:"start"`
	End    int64  `json:"end"`
	Length int    `json:"length"`
}

// NewCue builds a cue and records the character count of text.
func NewCue(text string, start, end int64) Cue {
	return Cue{
		Text:   text,
		Start:  start,
		End:    end,
		Length: utf8.RuneCountInString(text),
	}
}

// Duration returns End - Start.
func (c Cue) Duration() int64 {
	return c.End - c.Start
}

// Texts returns the text of every cue, in order.
func Texts(cues []Cue) []string {
	texts := make([]string, len(cues))
	for i, c := range cues {
		texts[i] = c.Text
	}
	return texts
}
