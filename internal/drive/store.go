// Package drive stores synthesized subtitle files either in Google Drive or in
// a local SQLite database.
package drive

import (
	"context"
	"strings"

	"github.com/PranayPant/speech-to-text/internal/services"
)

// File is a text file to create.
type File struct {
	Name       string            `json:"file_name"`
	Text       string            `json:"text"`
	Properties map[string]string `json:"properties,omitempty"`
}

// FileInfo describes a stored file.
type FileInfo struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	WebViewLink string            `json:"web_view_link"`
	Properties  map[string]string `json:"properties,omitempty"`
}

// Store persists text files under opaque identifiers.
type Store interface {
	Create(ctx context.Context, file File) (string, error)
	Update(ctx context.Context, fileID, text string) error
	Info(ctx context.Context, fileID string) (FileInfo, error)
}

func validateFile(op string, file File) error {
	if strings.TrimSpace(file.Name) == "" {
		return services.Wrap(services.ErrValidation, op, "file_name required", nil)
	}
	return nil
}

func validateID(op, fileID string) error {
	if strings.TrimSpace(fileID) == "" {
		return services.Wrap(services.ErrValidation, op, "file_id required", nil)
	}
	return nil
}
