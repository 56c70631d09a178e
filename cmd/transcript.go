package cmd

import (
	"github.com/spf13/cobra"

	"github.com/PranayPant/speech-to-text/internal/api"
)

var transcriptOpts api.FetchOptions

var transcriptCmd = &cobra.Command{
	Use:   "transcript <transcript-id>",
	Short: "Show the status and artifacts of a transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newTranscriptClient(cfg)
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()

		record, err := client.Fetch(ctx, args[0], transcriptOpts)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), record)
	},
}

func init() {
	transcriptCmd.Flags().BoolVar(&transcriptOpts.Transcript, "text", true, "include the transcript text")
	transcriptCmd.Flags().BoolVar(&transcriptOpts.Sentences, "sentences", false, "include timed sentences")
	transcriptCmd.Flags().BoolVar(&transcriptOpts.SRT, "srt", false, "include the provider's own SRT")
	rootCmd.AddCommand(transcriptCmd)
}
