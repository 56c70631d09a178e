package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFormat marks a cue that cannot be rendered because its timing is invalid.
var ErrFormat = errors.New("invalid cue")

const (
	msPerSecond = 1000
	msPerMinute = 60 * msPerSecond
	msPerHour   = 60 * msPerMinute
)

// FormatTimestamp converts a millisecond offset to SRT time format HH:MM:SS,mmm.
// Hours are not capped. Negative offsets clamp to zero.
func FormatTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	hours := ms / msPerHour
	minutes := (ms % msPerHour) / msPerMinute
	seconds := (ms % msPerMinute) / msPerSecond
	millis := ms % msPerSecond
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, millis)
}

// GenerateSRT renders cues as numbered SRT blocks, in input order. Blocks are
// separated by a blank line and the output carries no trailing blank line.
func GenerateSRT(cues []Cue) (string, error) {
	if len(cues) == 0 {
		return "", nil
	}

	var sb strings.Builder
	for i, cue := range cues {
		if err := validateCue(cue); err != nil {
			return "", fmt.Errorf("cue %d: %w", i+1, err)
		}
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%d\n%s --> %s\n%s\n", i+1, FormatTimestamp(cue.Start), FormatTimestamp(cue.End), cue.Text)
	}
	return sb.String(), nil
}

func validateCue(c Cue) error {
	if c.Start < 0 {
		return fmt.Errorf("%w: negative start %d", ErrFormat, c.Start)
	}
	if c.End < c.Start {
		return fmt.Errorf("%w: end %d before start %d", ErrFormat, c.End, c.Start)
	}
	return nil
}
