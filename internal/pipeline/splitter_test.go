package pipeline

import (
	"math"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitCues_Empty(t *testing.T) {
	got := SplitCues(nil, 80)
	if len(got) != 0 {
		t.Errorf("expected no cues for empty input, got %v", got)
	}
}

func TestSplitCues_ShortCuesUnchanged(t *testing.T) {
	cues := []Cue{
		NewCue("", 0, 0),
		NewCue("Hello world.", 0, 1000),
		{Text: "exactly ten", Start: 1000, End: 2000, Length: 11},
		// Length is carried through as-is for cues that fit.
		{Text: "stale length", Start: 2000, End: 3000, Length: 0},
	}

	got := SplitCues(cues, 12)
	if !reflect.DeepEqual(got, cues) {
		t.Errorf("SplitCues changed short cues:\n got  %+v\n want %+v", got, cues)
	}
}

func TestSplitCues_TwoParts(t *testing.T) {
	got := SplitCues([]Cue{NewCue("aaaa bbbb cccc", 0, 1400)}, 9)
	want := []Cue{
		{Text: "aaaa bbbb", Start: 0, End: 900, Length: 9},
		{Text: "cccc", Start: 900, End: 1300, Length: 4},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestSplitCues_ManyParts(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("lorem ", 20)) // 119 characters
	got := SplitCues([]Cue{NewCue(text, 0, 11900)}, 40)

	wantEnds := []int64{3500, 7000, 10500, 11600}
	if len(got) != len(wantEnds) {
		t.Fatalf("expected %d parts, got %d: %+v", len(wantEnds), len(got), got)
	}
	for i, cue := range got {
		if cue.End != wantEnds[i] {
			t.Errorf("part %d end = %d, want %d", i, cue.End, wantEnds[i])
		}
	}
	if got[3].Text != "lorem lorem" {
		t.Errorf("last part = %q, want 'lorem lorem'", got[3].Text)
	}
}

func TestSplitCues_OverlongWordKeptWhole(t *testing.T) {
	got := SplitCues([]Cue{NewCue("a supercalifragilistic b", 0, 2400)}, 5)
	want := []Cue{
		{Text: "a", Start: 0, End: 100, Length: 1},
		{Text: "supercalifragilistic", Start: 100, End: 2100, Length: 20},
		{Text: "b", Start: 2100, End: 2200, Length: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestSplitCues_OverlongFirstWordNoEmptyPart(t *testing.T) {
	got := SplitCues([]Cue{NewCue("supercalifragilistic is long", 0, 2800)}, 10)
	if len(got) != 2 {
		t.Fatalf("expected 2 parts, got %d: %+v", len(got), got)
	}
	if got[0].Text != "supercalifragilistic" || got[1].Text != "is long" {
		t.Errorf("unexpected parts %q, %q", got[0].Text, got[1].Text)
	}
	for i, cue := range got {
		if cue.Text == "" {
			t.Errorf("part %d is empty", i)
		}
	}
}

func TestSplitCues_CountsCharactersNotBytes(t *testing.T) {
	// Each word is 6 code points but 18 bytes.
	got := SplitCues([]Cue{NewCue("नमस्ते दुनिया", 0, 1300)}, 8)
	want := []Cue{
		{Text: "नमस्ते", Start: 0, End: 600, Length: 6},
		{Text: "दुनिया", Start: 600, End: 1200, Length: 6},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestSplitCues_WhitespaceOnlyKeepsInterval(t *testing.T) {
	got := SplitCues([]Cue{NewCue(strings.Repeat(" ", 20), 100, 900)}, 10)
	want := []Cue{{Text: "", Start: 100, End: 900, Length: 0}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestSplitCues_PreservesOrderAcrossCues(t *testing.T) {
	cues := []Cue{
		NewCue("short one", 0, 1000),
		NewCue("this sentence is definitely too long for the budget", 1000, 6100),
		NewCue("short two", 6100, 7000),
	}
	got := SplitCues(cues, 20)

	if got[0] != cues[0] {
		t.Errorf("first cue changed: %+v", got[0])
	}
	if got[len(got)-1] != cues[2] {
		t.Errorf("last cue changed: %+v", got[len(got)-1])
	}
	for i := 1; i < len(got); i++ {
		if got[i].Start < got[i-1].Start {
			t.Errorf("cue %d starts at %d before cue %d at %d", i, got[i].Start, i-1, got[i-1].Start)
		}
	}
}

func TestSplitCues_SeparatorsNotCharged(t *testing.T) {
	text := strings.Repeat("a", 79) + " " + strings.Repeat("b", 40)
	got := SplitCues([]Cue{NewCue(text, 0, 12000)}, 80)
	want := []Cue{
		{Text: strings.Repeat("a", 79), Start: 0, End: 7900, Length: 79},
		{Text: strings.Repeat("b", 40), Start: 7900, End: 11900, Length: 40},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestSplitCues_DefaultBudget(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("word ", 30)) // 149 characters
	got := SplitCues([]Cue{NewCue(text, 0, 14900)}, 0)
	if len(got) < 2 {
		t.Fatalf("expected default budget to split, got %d parts", len(got))
	}
	for i, cue := range got {
		if cue.Length > DefaultMaxLength {
			t.Errorf("part %d length %d exceeds default budget", i, cue.Length)
		}
	}
}

func TestSplitCues_Properties(t *testing.T) {
	inputs := []Cue{
		NewCue("The quick brown fox jumps over the lazy dog and keeps running through the forest until nightfall comes", 0, 7321),
		NewCue(strings.TrimSpace(strings.Repeat("translation expands text ", 9)), 1234, 4567),
		NewCue("one two three four five six seven eight nine ten eleven twelve thirteen fourteen", 50000, 50013),
		NewCue("a b c d e f g h i j k l m n o p q r s t u v w x y z", 10, 10),
		NewCue("tiny words then anextraordinarilylongwordthatcannotfit and more", 0, 999),
	}

	for _, maxLength := range []int{5, 12, 20, 33} {
		for _, in := range inputs {
			parts := SplitCues([]Cue{in}, maxLength)
			if len(parts) == 0 {
				t.Fatalf("no parts for %q", in.Text)
			}

			// Budget compliance, except single overlong words.
			for _, p := range parts {
				if p.Length > maxLength && strings.Contains(p.Text, " ") {
					t.Errorf("max=%d part %q exceeds budget", maxLength, p.Text)
				}
				if p.Length != utf8.RuneCountInString(p.Text) {
					t.Errorf("part %q length = %d, want %d", p.Text, p.Length, utf8.RuneCountInString(p.Text))
				}
			}

			// Word fidelity.
			joined := strings.Join(Texts(parts), " ")
			if joined != in.Text && len(parts) > 1 {
				t.Errorf("max=%d rejoined %q, want %q", maxLength, joined, in.Text)
			}

			// Contiguous, forward-moving intervals starting at the original start.
			if parts[0].Start != in.Start {
				t.Errorf("first part starts at %d, want %d", parts[0].Start, in.Start)
			}
			var total int64
			for i, p := range parts {
				if p.End < p.Start {
					t.Errorf("part %d ends before it starts: %+v", i, p)
				}
				if i > 0 && p.Start != parts[i-1].End {
					t.Errorf("part %d starts at %d, previous ended at %d", i, p.Start, parts[i-1].End)
				}
				total += p.Duration()
			}

			// Total duration short by the separators' share, within rounding.
			msPerChar := float64(in.Duration()) / float64(in.Length)
			want := float64(in.Duration()) - float64(len(parts)-1)*msPerChar
			if drift := math.Abs(float64(total) - want); drift > float64(len(parts)) {
				t.Errorf("max=%d total duration %d, want %.1f ±%d", maxLength, total, want, len(parts))
			}
		}
	}
}
