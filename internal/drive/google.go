package drive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/PranayPant/speech-to-text/internal/services"
)

const textMimeType = "text/plain"

// GoogleStore keeps files in a Google Drive folder owned by a service account.
type GoogleStore struct {
	files    *drivev3.FilesService
	folderID string
}

// NewGoogleStore authenticates with the service-account credentials JSON and
// stores new files under folderID. Extra client options are appended, e.g. an
// endpoint override in tests.
func NewGoogleStore(ctx context.Context, credentialsJSON []byte, folderID string, opts ...option.ClientOption) (*GoogleStore, error) {
	if len(credentialsJSON) == 0 && len(opts) == 0 {
		return nil, errors.New("google drive: service account credentials required")
	}
	clientOpts := []option.ClientOption{option.WithScopes(drivev3.DriveScope)}
	if len(credentialsJSON) > 0 {
		clientOpts = append(clientOpts, option.WithCredentialsJSON(credentialsJSON))
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := drivev3.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("google drive: new service: %w", err)
	}
	return &GoogleStore{files: svc.Files, folderID: strings.TrimSpace(folderID)}, nil
}

// Create uploads file as text/plain and returns its Drive id.
func (s *GoogleStore) Create(ctx context.Context, file File) (string, error) {
	if err := validateFile("drive create", file); err != nil {
		return "", err
	}
	meta := &drivev3.File{
		Name:       file.Name,
		MimeType:   textMimeType,
		Properties: file.Properties,
	}
	if s.folderID != "" {
		meta.Parents = []string{s.folderID}
	}

	created, err := s.files.Create(meta).
		Media(strings.NewReader(file.Text), googleapi.ContentType(textMimeType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", classify("drive create "+file.Name, err)
	}
	return created.Id, nil
}

// Update replaces the file content.
func (s *GoogleStore) Update(ctx context.Context, fileID, text string) error {
	if err := validateID("drive update", fileID); err != nil {
		return err
	}
	_, err := s.files.Update(fileID, &drivev3.File{}).
		Media(strings.NewReader(text), googleapi.ContentType(textMimeType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return classify("drive update "+fileID, err)
	}
	return nil
}

// Info returns the file metadata including its browser link.
func (s *GoogleStore) Info(ctx context.Context, fileID string) (FileInfo, error) {
	if err := validateID("drive info", fileID); err != nil {
		return FileInfo{}, err
	}
	f, err := s.files.Get(fileID).
		Fields("id", "name", "webViewLink", "properties").
		Context(ctx).
		Do()
	if err != nil {
		return FileInfo{}, classify("drive info "+fileID, err)
	}
	return FileInfo{
		ID:          f.Id,
		Name:        f.Name,
		WebViewLink: f.WebViewLink,
		Properties:  f.Properties,
	}, nil
}

func classify(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return services.Wrap(services.ErrNotFound, op, "", err)
	}
	return services.Wrap(services.ErrFileStore, op, "", err)
}
