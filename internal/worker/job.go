package worker

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/PranayPant/speech-to-text/internal/drive"
	"github.com/PranayPant/speech-to-text/internal/services"

	"github.com/google/uuid"
)

// Job statuses reported in JobResult.
const (
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// FileStore persists synthesized subtitle files.
type FileStore interface {
	Create(ctx context.Context, file drive.File) (string, error)
	Update(ctx context.Context, fileID, text string) error
}

// Job asks for an SRT translation of a transcript, written to a stored file.
type Job struct {
	ID               string `json:"job_id"`
	TranscriptID     string `json:"transcript_id"`
	Model            string `json:"ai_model,omitempty"`
	SplitSentencesAt int    `json:"split_sentences_at,omitempty"`
	FileName         string `json:"file_name,omitempty"`
	// SRTFileID is the placeholder created by Prepare. When empty, Run creates
	// one.
	SRTFileID string `json:"srt_file_id,omitempty"`
}

// JobResult reports the outcome of one job.
type JobResult struct {
	JobID        string `json:"job_id"`
	TranscriptID string `json:"transcript_id"`
	SRTFileID    string `json:"srt_file_id,omitempty"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
	Code         string `json:"code,omitempty"`
}

// JobRunner translates transcripts to SRT files in the background.
type JobRunner struct {
	pipeline *Pipeline
	store    FileStore
}

// NewJobRunner returns a runner that writes results to store.
func NewJobRunner(p *Pipeline, store FileStore) *JobRunner {
	return &JobRunner{pipeline: p, store: store}
}

// Prepare validates job, assigns its id and creates the empty SRT file the
// result will be written to. Callers can hand the file id out before the
// translation finishes.
func (r *JobRunner) Prepare(ctx context.Context, job Job) (Job, error) {
	job.TranscriptID = strings.TrimSpace(job.TranscriptID)
	if job.TranscriptID == "" {
		return job, services.Wrap(services.ErrValidation, "prepare job", "transcript_id required", nil)
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.SRTFileID != "" {
		return job, nil
	}

	name := strings.TrimSpace(job.FileName)
	if name == "" {
		name = job.TranscriptID + ".srt"
	}
	id, err := r.store.Create(ctx, drive.File{
		Name: name,
		Properties: map[string]string{
			"transcript_id": job.TranscriptID,
			"job_id":        job.ID,
		},
	})
	if err != nil {
		return job, services.Tag(services.ErrFileStore, "create srt file", err)
	}
	job.SRTFileID = id
	return job, nil
}

// Run translates the job's transcript and stores the SRT. Failures are
// reported in the result, never returned.
func (r *JobRunner) Run(ctx context.Context, job Job) JobResult {
	start := time.Now()
	job, err := r.Prepare(ctx, job)
	if err != nil {
		return failed(job, err)
	}
	logger := slog.With("job_id", job.ID, "transcript_id", job.TranscriptID, "file_id", job.SRTFileID)
	logger.Info("job started")

	result, err := r.pipeline.Run(ctx, Request{
		TranscriptID:     job.TranscriptID,
		Model:            job.Model,
		IncludeSRT:       true,
		SplitSentencesAt: job.SplitSentencesAt,
	})
	if err != nil {
		logger.Warn("job failed", "code", services.Code(err), "err", err)
		return failed(job, err)
	}
	if err := r.store.Update(ctx, job.SRTFileID, *result.SRT); err != nil {
		err = services.Tag(services.ErrFileStore, "update srt file", err)
		logger.Warn("job failed", "code", services.Code(err), "err", err)
		return failed(job, err)
	}

	logger.Info("job completed", "elapsed", time.Since(start).Round(time.Millisecond))
	return JobResult{
		JobID:        job.ID,
		TranscriptID: job.TranscriptID,
		SRTFileID:    job.SRTFileID,
		Status:       JobCompleted,
	}
}

func failed(job Job, err error) JobResult {
	return JobResult{
		JobID:        job.ID,
		TranscriptID: job.TranscriptID,
		SRTFileID:    job.SRTFileID,
		Status:       JobFailed,
		Error:        err.Error(),
		Code:         services.Code(err),
	}
}
