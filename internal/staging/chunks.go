// Package staging assembles media uploads that arrive in chunks.
package staging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/PranayPant/speech-to-text/internal/services"
)

const (
	defaultUploadID = "default"
	lockRetryDelay  = 100 * time.Millisecond
)

var uploadIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Chunk is one piece of an upload, written at Offset.
type Chunk struct {
	UploadID string
	Index    int
	Total    int
	Offset   int64
	Data     io.Reader
}

// Progress reports the state of an upload after a chunk was written.
type Progress struct {
	Path     string
	Received int
	Total    int
	Complete bool
	Bytes    int64
}

type upload struct {
	total    int
	received map[int]bool
}

// ChunkWriter writes chunks into per-upload staging files. Byte writes to one
// file are serialized with an exclusive file lock, so they never interleave
// even across processes. Completion tracking is per ChunkWriter: all chunks of
// an upload must reach the same instance.
type ChunkWriter struct {
	dir string

	mu      sync.Mutex
	uploads map[string]*upload
}

// NewChunkWriter creates dir if needed.
func NewChunkWriter(dir string) (*ChunkWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &ChunkWriter{dir: dir, uploads: make(map[string]*upload)}, nil
}

// Dir returns the staging directory.
func (w *ChunkWriter) Dir() string { return w.dir }

// Path returns the staging file for uploadID.
func (w *ChunkWriter) Path(uploadID string) string {
	if uploadID == "" {
		uploadID = defaultUploadID
	}
	return filepath.Join(w.dir, "upload-"+uploadID+".media")
}

// Write stores c and reports whether every chunk of its upload has arrived.
// Once complete the upload is forgotten; the caller owns the staging file and
// should Discard it when done.
func (w *ChunkWriter) Write(ctx context.Context, c Chunk) (Progress, error) {
	if err := validate(c); err != nil {
		return Progress{}, err
	}
	path := w.Path(c.UploadID)

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return Progress{}, fmt.Errorf("lock staging file: %w", err)
	}
	if !locked {
		return Progress{}, fmt.Errorf("lock staging file: %s busy", filepath.Base(path))
	}
	defer lock.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return Progress{}, fmt.Errorf("open staging file: %w", err)
	}
	n, err := io.Copy(io.NewOffsetWriter(f, c.Offset), c.Data)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return Progress{}, fmt.Errorf("write chunk %d/%d: %w", c.Index+1, c.Total, err)
	}

	return w.record(c, path, n), nil
}

func (w *ChunkWriter) record(c Chunk, path string, n int64) Progress {
	key := c.UploadID
	if key == "" {
		key = defaultUploadID
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	up, ok := w.uploads[key]
	if !ok || up.total != c.Total {
		up = &upload{total: c.Total, received: make(map[int]bool)}
		w.uploads[key] = up
	}
	up.received[c.Index] = true

	p := Progress{Path: path, Received: len(up.received), Total: up.total, Bytes: n}
	if p.Received == p.Total {
		p.Complete = true
		delete(w.uploads, key)
	}
	return p
}

// Discard removes the staging file and its lock.
func (w *ChunkWriter) Discard(path string) {
	_ = os.Remove(path)
	_ = os.Remove(path + ".lock")
}

func validate(c Chunk) error {
	const op = "stage chunk"
	if c.UploadID != "" && !uploadIDPattern.MatchString(c.UploadID) {
		return services.Wrap(services.ErrValidation, op, "invalid upload id", nil)
	}
	if c.Total <= 0 {
		return services.Wrap(services.ErrValidation, op, "total chunks must be positive", nil)
	}
	if c.Index < 0 || c.Index >= c.Total {
		return services.Wrap(services.ErrValidation, op, fmt.Sprintf("chunk index %d out of range [0,%d)", c.Index, c.Total), nil)
	}
	if c.Offset < 0 {
		return services.Wrap(services.ErrValidation, op, "negative chunk offset", nil)
	}
	if c.Data == nil {
		return services.Wrap(services.ErrValidation, op, "empty chunk", nil)
	}
	return nil
}
