package worker

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Task is one job plus the callback that acknowledges it once a result exists.
type Task struct {
	Job  Job
	Done func(JobResult) error
}

// Pool runs jobs with bounded parallelism and rate limiting.
type Pool struct {
	runner        *JobRunner
	maxConcurrent int
	limiter       *rate.Limiter
}

// NewPool returns a pool running at most maxConcurrent jobs and starting at
// most ratePerMin jobs per minute. A non-positive ratePerMin disables the
// limiter.
func NewPool(runner *JobRunner, maxConcurrent, ratePerMin int) *Pool {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	p := &Pool{runner: runner, maxConcurrent: maxConcurrent}
	if ratePerMin > 0 {
		// Tokens per second = RPM / 60.
		p.limiter = rate.NewLimiter(rate.Limit(float64(ratePerMin)/60.0), 1)
	}
	return p
}

// Process consumes tasks until the channel closes or ctx is cancelled, then
// waits for in-flight jobs. It returns the first acknowledgement error.
func (p *Pool) Process(ctx context.Context, tasks <-chan Task) error {
	slog.Info("starting job processing",
		"max_concurrent", p.maxConcurrent,
		"rate_limited", p.limiter != nil)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxConcurrent)

loop:
	for {
		select {
		case <-gctx.Done():
			break loop
		case task, ok := <-tasks:
			if !ok {
				break loop
			}
			g.Go(func() error {
				if p.limiter != nil {
					if err := p.limiter.Wait(gctx); err != nil {
						return fmt.Errorf("rate limiter: %w", err)
					}
				}
				result := p.runner.Run(gctx, task.Job)
				if task.Done == nil {
					return nil
				}
				if err := task.Done(result); err != nil {
					return fmt.Errorf("acknowledge job %s: %w", result.JobID, err)
				}
				return nil
			})
		}
	}

	err := g.Wait()
	if err != nil && ctx.Err() != nil {
		// Shutdown, not a failure.
		return nil
	}
	return err
}
