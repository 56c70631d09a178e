package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PranayPant/speech-to-text/internal/worker"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <input-file>",
	Short: "Upload audio/video and start a transcription",
	Long: `Upload an audio or video file to AssemblyAI and submit it for
transcription. Video files are reduced to an mp3 audio track with ffmpeg
first. Prints the upload URL and transcript id as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: runTranscribe,
}

var supportedExts = map[string]bool{
	".mp3": true, ".m4a": true, ".wav": true, ".flac": true,
	".ogg": true, ".aac": true, ".mp4": true, ".mov": true,
	".mkv": true, ".avi": true, ".flv": true, ".webm": true,
	".m4v": true,
}

func init() {
	rootCmd.AddCommand(transcribeCmd)
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	absPath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return fmt.Errorf("file not found: %s", args[0])
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if !supportedExts[ext] {
		return fmt.Errorf("unsupported file type: %s", ext)
	}

	client, err := newTranscriptClient(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	result, err := worker.Transcribe(ctx, client, absPath)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}
