package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNotInstalled is returned when ffmpeg or ffprobe is missing from PATH.
var ErrNotInstalled = errors.New("ffmpeg not installed")

// MediaInfo holds duration and codec information from ffprobe.
type MediaInfo struct {
	Duration float64
	Codec    string
	// HasVideo is true when the container carries at least one video stream.
	HasVideo bool
}

// Available returns true if ffmpeg and ffprobe are on the PATH.
func Available() bool {
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			return false
		}
	}
	return true
}

// probeOutput mirrors ffprobe JSON structure.
type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
	} `json:"streams"`
}

// ProbeMedia uses ffprobe to read duration, the first audio codec and whether
// the file contains video.
func ProbeMedia(ctx context.Context, path string) (*MediaInfo, error) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return nil, fmt.Errorf("%w: ffprobe: %w", ErrNotInstalled, err)
	}

	cmd := exec.CommandContext(ctx,
		"ffprobe",
		"-v", "error",
		"-show_entries", "stream=codec_type,codec_name:format=duration",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", filepath.Base(path), err)
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (*MediaInfo, error) {
	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &MediaInfo{Codec: "N/A"}
	info.Duration, _ = strconv.ParseFloat(probe.Format.Duration, 64)
	audioFound := false
	for _, s := range probe.Streams {
		switch s.CodecType {
		case "video":
			info.HasVideo = true
		case "audio":
			if !audioFound && s.CodecName != "" {
				info.Codec = s.CodecName
				audioFound = true
			}
		}
	}
	return info, nil
}

// ExtractAudio re-encodes the audio track of inputPath to a VBR mp3 at
// outputPath, dropping any video.
func ExtractAudio(ctx context.Context, inputPath, outputPath string) error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("%w: %w", ErrNotInstalled, err)
	}
	slog.Info("extracting audio", "input", filepath.Base(inputPath), "output", filepath.Base(outputPath))

	cmd := exec.CommandContext(ctx,
		"ffmpeg", "-i", inputPath,
		"-vn",
		"-c:a", "libmp3lame",
		"-q:a", "0",
		"-y",
		outputPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg extract audio failed: %w\n%s", err, tail(out, 2048))
	}
	return nil
}

// IsVideoExtension returns true for common video file extensions.
func IsVideoExtension(ext string) bool {
	switch strings.ToLower(ext) {
	case ".mp4", ".mkv", ".mov", ".avi", ".flv", ".webm", ".m4v":
		return true
	}
	return false
}

// LogMediaInfo logs file size and media information. It returns nil when the
// file cannot be probed.
func LogMediaInfo(ctx context.Context, path string) *MediaInfo {
	stat, err := os.Stat(path)
	if err != nil {
		slog.Warn("cannot stat file", "path", path, "err", err)
		return nil
	}

	attrs := []any{"file", filepath.Base(path), "size_mb", fmt.Sprintf("%.2f", float64(stat.Size())/(1024*1024))}
	info, err := ProbeMedia(ctx, path)
	if err != nil {
		slog.Debug("probe failed", "file", filepath.Base(path), "err", err)
		slog.Info("media file", attrs...)
		return nil
	}
	minutes := int(info.Duration) / 60
	seconds := int(info.Duration) % 60
	attrs = append(attrs,
		"duration", fmt.Sprintf("%02d:%02d", minutes, seconds),
		"codec", info.Codec,
		"video", info.HasVideo)
	slog.Info("media file", attrs...)
	return info
}

// tail keeps the last n bytes of ffmpeg output, where the error usually is.
func tail(out []byte, n int) string {
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return string(out)
}
