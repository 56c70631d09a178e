package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PranayPant/speech-to-text/internal/api"
	"github.com/PranayPant/speech-to-text/internal/ffmpeg"
)

// Uploader sends audio to the transcription provider and starts jobs.
type Uploader interface {
	UploadAudio(ctx context.Context, r io.Reader, size int64, progress api.ProgressFunc) (string, error)
	CreateTranscript(ctx context.Context, audioURL string) (string, error)
}

// Transcription is the outcome of submitting a local media file.
type Transcription struct {
	UploadURL    string `json:"upload_url"`
	TranscriptID string `json:"transcript_id"`
}

// Transcribe extracts the audio track of inputPath when it is a video, uploads
// the audio and submits it for transcription.
func Transcribe(ctx context.Context, up Uploader, inputPath string) (*Transcription, error) {
	slog.Info("processing file", "input", filepath.Base(inputPath))
	ffmpeg.LogMediaInfo(ctx, inputPath)

	uploadURL, err := UploadMedia(ctx, up, inputPath)
	if err != nil {
		return nil, err
	}
	transcriptID, err := up.CreateTranscript(ctx, uploadURL)
	if err != nil {
		return nil, fmt.Errorf("create transcript: %w", err)
	}
	slog.Info("transcript submitted", "transcript_id", transcriptID)
	return &Transcription{UploadURL: uploadURL, TranscriptID: transcriptID}, nil
}

// UploadMedia uploads the audio of inputPath and returns the provider's
// upload URL. Video files are reduced to an mp3 first; the temporary audio
// file is removed afterwards.
func UploadMedia(ctx context.Context, up Uploader, inputPath string) (string, error) {
	workingPath, cleanup, err := prepareAudio(ctx, inputPath)
	if err != nil {
		return "", err
	}
	defer cleanup()
	return uploadFile(ctx, up, workingPath)
}

func prepareAudio(ctx context.Context, inputPath string) (string, func(), error) {
	noop := func() {}
	ext := filepath.Ext(inputPath)
	if !ffmpeg.IsVideoExtension(ext) {
		return inputPath, noop, nil
	}
	if !ffmpeg.Available() {
		slog.Warn("ffmpeg not found, uploading video as is", "input", filepath.Base(inputPath))
		return inputPath, noop, nil
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), ext)
	audioPath := filepath.Join(filepath.Dir(inputPath), "temp_audio_"+base+".mp3")
	if err := ffmpeg.ExtractAudio(ctx, inputPath, audioPath); err != nil {
		return "", noop, fmt.Errorf("extract audio: %w", err)
	}
	return audioPath, func() {
		if err := os.Remove(audioPath); err != nil && !os.IsNotExist(err) {
			slog.Debug("cleanup temp audio", "file", filepath.Base(audioPath), "err", err)
		}
	}, nil
}

func uploadFile(ctx context.Context, up Uploader, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat audio: %w", err)
	}

	start := time.Now()
	lastPct := -1
	progress := func(read, total int64) {
		pct := 0.0
		if total > 0 {
			pct = math.Min(float64(read)/float64(total)*100, 100)
		}
		// Log every 10%.
		if step := int(pct) / 10; step != lastPct {
			lastPct = step
			slog.Debug("upload progress", "percent", fmt.Sprintf("%.1f%%", pct))
		}
	}

	uploadURL, err := up.UploadAudio(ctx, f, stat.Size(), progress)
	if err != nil {
		return "", fmt.Errorf("upload audio: %w", err)
	}
	slog.Info("audio uploaded",
		"file", filepath.Base(path),
		"size_mb", fmt.Sprintf("%.2f", float64(stat.Size())/(1024*1024)),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return uploadURL, nil
}
