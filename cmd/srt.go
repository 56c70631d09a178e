package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/atotto/clipboard"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/PranayPant/speech-to-text/internal/pipeline"
)

var (
	srtSplitAt int
	srtOutput  string
	srtPreview bool
	srtCopy    bool
)

var srtCmd = &cobra.Command{
	Use:   "srt <cues.json>",
	Short: "Split timed sentences and synthesize SRT offline",
	Long: `Read a JSON array of {"text", "start", "end"} sentences (milliseconds),
split sentences longer than the character budget and write SRT. Use "-" to
read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runSRT,
}

func init() {
	srtCmd.Flags().IntVar(&srtSplitAt, "split-at", 0, "cue character budget (default from config)")
	srtCmd.Flags().StringVarP(&srtOutput, "output", "o", "", "output SRT path (default: stdout)")
	srtCmd.Flags().BoolVar(&srtPreview, "preview", false, "print a table of the cues to stderr")
	srtCmd.Flags().BoolVar(&srtCopy, "copy", false, "copy the SRT to the clipboard")
	rootCmd.AddCommand(srtCmd)
}

func runSRT(cmd *cobra.Command, args []string) error {
	in := cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open cues: %w", err)
		}
		defer f.Close()
		in = f
	}

	maxLength := srtSplitAt
	if maxLength == 0 {
		maxLength = cfg.Translation.SplitSentencesAt
	}
	cues, srt, err := buildSRT(in, maxLength)
	if err != nil {
		return err
	}

	if srtPreview {
		fmt.Fprintln(cmd.ErrOrStderr(), renderCues(cues))
	}
	if srtCopy {
		if err := clipboard.WriteAll(srt); err != nil {
			slog.Warn("copy to clipboard failed", "err", err)
		} else {
			slog.Info("srt copied to clipboard", "cues", len(cues))
		}
	}
	return writeOutput(srtOutput, srt)
}

// buildSRT decodes sentences from r, splits them at maxLength and synthesizes
// the SRT document.
func buildSRT(r io.Reader, maxLength int) ([]pipeline.Cue, string, error) {
	if maxLength <= 0 {
		return nil, "", fmt.Errorf("split budget must be positive, got %d", maxLength)
	}
	var raw []struct {
		Text  string `json:"text"`
		Start int64  `json:"start"`
		End   int64  `json:"end"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, "", fmt.Errorf("decode cues: %w", err)
	}

	cues := make([]pipeline.Cue, len(raw))
	for i, s := range raw {
		cues[i] = pipeline.NewCue(s.Text, s.Start, s.End)
	}
	cues = pipeline.SplitCues(cues, maxLength)
	srt, err := pipeline.GenerateSRT(cues)
	if err != nil {
		return nil, "", err
	}
	return cues, srt, nil
}

func renderCues(cues []pipeline.Cue) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "Start", "End", "Chars", "Text"})
	for i, c := range cues {
		tw.AppendRow(table.Row{
			strconv.Itoa(i + 1),
			pipeline.FormatTimestamp(c.Start),
			pipeline.FormatTimestamp(c.End),
			strconv.Itoa(c.Length),
			c.Text,
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 5, WidthMax: 60},
	})
	return tw.Render()
}
