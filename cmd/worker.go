package cmd

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/PranayPant/speech-to-text/internal/queue"
	"github.com/PranayPant/speech-to-text/internal/worker"
)

var workerMaxConcurrent int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume translation jobs from RabbitMQ",
	Long: `Consume JSON translation jobs from the job queue, write each synthesized
SRT to the configured file store and publish the job result to the result
queue. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().IntVarP(&workerMaxConcurrent, "max-concurrent", "j", 0, "max concurrent jobs (default from config)")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	if cfg.Queue.URL == "" {
		return errors.New("RABBITMQ_URL not set (env or queue.url)")
	}
	maxConcurrent := cfg.Queue.MaxConcurrent
	if workerMaxConcurrent > 0 {
		maxConcurrent = workerMaxConcurrent
	}

	ctx, stop := signalContext()
	defer stop()

	_, p, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	consumer, err := queue.NewConsumer(cfg.Queue.URL, cfg.Queue.JobQueue, maxConcurrent)
	if err != nil {
		return err
	}
	defer consumer.Close()
	producer, err := queue.NewProducer(cfg.Queue.URL)
	if err != nil {
		return err
	}
	defer producer.Close()

	publish := func(res worker.JobResult) error {
		// Results of jobs finishing during shutdown are still published.
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return producer.Publish(pubCtx, cfg.Queue.ResultQueue, res)
	}
	tasks, err := consumer.Tasks(ctx, publish)
	if err != nil {
		return err
	}

	slog.Info("worker started", "queue", cfg.Queue.JobQueue, "results", cfg.Queue.ResultQueue)
	pool := worker.NewPool(worker.NewJobRunner(p, store), maxConcurrent, cfg.Queue.JobsPerMinute)
	if err := pool.Process(ctx, tasks); err != nil {
		return err
	}
	slog.Info("worker stopped")
	return nil
}
