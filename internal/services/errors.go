package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PranayPant/speech-to-text/internal/pipeline"
)

var (
	ErrUpstreamTranscript  = errors.New("upstream transcript error")
	ErrTranscriptNotReady  = errors.New("transcript not ready")
	ErrTranslationProvider = errors.New("translation provider error")
	ErrFileStore           = errors.New("file store error")
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
)

// Wrap builds an error message that includes the operation context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, operation, message string, err error) error {
	detail := buildDetail(operation, message)
	if marker == nil {
		marker = ErrUpstreamTranscript
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Tag wraps err with marker unless it already carries one of the known markers.
func Tag(marker error, operation string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		ErrUpstreamTranscript,
		ErrTranscriptNotReady,
		ErrTranslationProvider,
		ErrFileStore,
		ErrValidation,
		ErrNotFound,
	} {
		if errors.Is(err, known) {
			return fmt.Errorf("%s: %w", operation, err)
		}
	}
	return Wrap(marker, operation, "", err)
}

// Code maps an error to a stable identifier that transports expose to clients.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTranscriptNotReady):
		return "transcript_not_ready"
	case errors.Is(err, ErrUpstreamTranscript):
		return "upstream_transcript_error"
	case errors.Is(err, ErrTranslationProvider):
		return "translation_provider_error"
	case errors.Is(err, ErrFileStore):
		return "file_store_error"
	case errors.Is(err, ErrValidation):
		return "invalid_request"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, pipeline.ErrFormat):
		return "invalid_cue"
	default:
		return "internal_error"
	}
}

// Retryable reports whether the caller may repeat the request later and expect
// a different outcome.
func Retryable(err error) bool {
	return errors.Is(err, ErrTranscriptNotReady)
}

func buildDetail(operation, message string) string {
	parts := make([]string, 0, 2)
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
