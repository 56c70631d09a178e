package drive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/PranayPant/speech-to-text/internal/services"
)

const filesSchema = `
CREATE TABLE IF NOT EXISTS files (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    text TEXT NOT NULL DEFAULT '',
    properties TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
)`

// SQLiteStore keeps files in a local SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(filesSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, file File) (string, error) {
	if err := validateFile("sqlite create", file); err != nil {
		return "", err
	}
	props, err := encodeProperties(file.Properties)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO files (id, name, text, properties, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		id, file.Name, file.Text, props, now, now,
	)
	if err != nil {
		return "", services.Wrap(services.ErrFileStore, "sqlite create "+file.Name, "", err)
	}
	return id, nil
}

func (s *SQLiteStore) Update(ctx context.Context, fileID, text string) error {
	if err := validateID("sqlite update", fileID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE files SET text = ?, updated_at = ? WHERE id = ?`,
		text, time.Now().UTC().Format(time.RFC3339Nano), fileID,
	)
	if err != nil {
		return services.Wrap(services.ErrFileStore, "sqlite update "+fileID, "", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return services.Wrap(services.ErrFileStore, "sqlite update "+fileID, "rows affected", err)
	}
	if n == 0 {
		return services.Wrap(services.ErrNotFound, "sqlite update "+fileID, "no such file", nil)
	}
	return nil
}

func (s *SQLiteStore) Info(ctx context.Context, fileID string) (FileInfo, error) {
	if err := validateID("sqlite info", fileID); err != nil {
		return FileInfo{}, err
	}
	var (
		info  FileInfo
		props sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, properties FROM files WHERE id = ?`, fileID,
	).Scan(&info.ID, &info.Name, &props)
	if errors.Is(err, sql.ErrNoRows) {
		return FileInfo{}, services.Wrap(services.ErrNotFound, "sqlite info "+fileID, "no such file", nil)
	}
	if err != nil {
		return FileInfo{}, services.Wrap(services.ErrFileStore, "sqlite info "+fileID, "", err)
	}
	if props.Valid && props.String != "" {
		if err := json.Unmarshal([]byte(props.String), &info.Properties); err != nil {
			return FileInfo{}, services.Wrap(services.ErrFileStore, "sqlite info "+fileID, "decode properties", err)
		}
	}
	info.WebViewLink = "sqlite://" + s.path + "#" + info.ID
	return info, nil
}

// Text returns the stored content of a file.
func (s *SQLiteStore) Text(ctx context.Context, fileID string) (string, error) {
	var text string
	err := s.db.QueryRowContext(ctx, `SELECT text FROM files WHERE id = ?`, fileID).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", services.Wrap(services.ErrNotFound, "sqlite text "+fileID, "no such file", nil)
	}
	if err != nil {
		return "", services.Wrap(services.ErrFileStore, "sqlite text "+fileID, "", err)
	}
	return text, nil
}

func encodeProperties(props map[string]string) (any, error) {
	if len(props) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("marshal properties: %w", err)
	}
	return string(data), nil
}
