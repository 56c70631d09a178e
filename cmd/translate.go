package cmd

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PranayPant/speech-to-text/internal/drive"
	"github.com/PranayPant/speech-to-text/internal/worker"
)

var (
	translateReq    worker.Request
	translateSRTOut string
	translateUpload bool
)

var translateCmd = &cobra.Command{
	Use:   "translate <transcript-id>",
	Short: "Translate a completed transcript and synthesize SRT subtitles",
	Long: `Fetch a completed transcript, translate its text and sentences with the
selected model, split long sentences into cues and synthesize an SRT file.
The result is printed as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: runTranslate,
}

func init() {
	f := translateCmd.Flags()
	f.StringVarP(&translateReq.Model, "model", "m", "", "translation model (default from config)")
	f.BoolVar(&translateReq.IncludeTranscript, "transcript", false, "translate the full transcript text")
	f.BoolVar(&translateReq.IncludeSentences, "sentences", false, "include translated cues")
	f.BoolVar(&translateReq.IncludeSRT, "srt", true, "synthesize SRT")
	f.IntVar(&translateReq.SplitSentencesAt, "split-at", 0, "cue character budget (default from config)")
	f.StringVar(&translateSRTOut, "srt-out", "", "write the SRT to this path")
	f.BoolVar(&translateUpload, "upload", false, "store the SRT in the configured file store")
	rootCmd.AddCommand(translateCmd)
}

func runTranslate(cmd *cobra.Command, args []string) error {
	req := translateReq
	req.TranscriptID = args[0]
	if req.SplitSentencesAt == 0 {
		req.SplitSentencesAt = cfg.Translation.SplitSentencesAt
	}
	if (translateSRTOut != "" || translateUpload) && !req.IncludeSRT {
		return errors.New("--srt-out and --upload need --srt")
	}

	_, p, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	result, err := p.Run(ctx, req)
	if err != nil {
		return err
	}

	if translateSRTOut != "" {
		if err := writeOutput(translateSRTOut, *result.SRT); err != nil {
			return err
		}
		slog.Info("srt written", "path", translateSRTOut)
	}
	if translateUpload {
		store, closeStore, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()
		id, err := store.Create(ctx, drive.File{
			Name: strings.TrimSpace(req.TranscriptID) + ".srt",
			Text: *result.SRT,
			Properties: map[string]string{
				"transcript_id": req.TranscriptID,
				"ai_model":      result.Model,
			},
		})
		if err != nil {
			return err
		}
		info, err := store.Info(ctx, id)
		if err != nil {
			return err
		}
		slog.Info("srt stored", "file_id", id, "link", info.WebViewLink)
	}
	return printJSON(cmd.OutOrStdout(), result)
}
