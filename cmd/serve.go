package cmd

import (
	"github.com/spf13/cobra"

	"github.com/PranayPant/speech-to-text/internal/server"
	"github.com/PranayPant/speech-to-text/internal/staging"
	"github.com/PranayPant/speech-to-text/internal/worker"
)

var serveBind string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve transcription, translation and file store routes over HTTP until
interrupted. Background translation jobs started by POST /v2/translate are
allowed to finish before exit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		client, p, err := newPipeline(cfg)
		if err != nil {
			return err
		}
		store, closeStore, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()
		chunks, err := staging.NewChunkWriter(cfg.Server.StagingDir)
		if err != nil {
			return err
		}

		bind := cfg.Server.Bind
		if serveBind != "" {
			bind = serveBind
		}
		srv := server.New(server.Deps{
			Transcripts:    client,
			Pipeline:       p,
			Jobs:           worker.NewJobRunner(p, store),
			Store:          store,
			Chunks:         chunks,
			DefaultSplitAt: cfg.Translation.SplitSentencesAt,
		})
		return srv.Run(ctx, bind)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveBind, "bind", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}
