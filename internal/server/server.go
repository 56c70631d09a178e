// Package server exposes transcription, translation and file storage over
// HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PranayPant/speech-to-text/internal/drive"
	"github.com/PranayPant/speech-to-text/internal/services"
	"github.com/PranayPant/speech-to-text/internal/staging"
	"github.com/PranayPant/speech-to-text/internal/worker"
)

// Transcripts is the transcription provider surface the server needs.
type Transcripts interface {
	worker.Fetcher
	worker.Uploader
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Transcripts Transcripts
	Pipeline    *worker.Pipeline
	Jobs        *worker.JobRunner
	Store       drive.Store
	Chunks      *staging.ChunkWriter
	// DefaultSplitAt applies when a request names no split budget.
	DefaultSplitAt int
}

// Server serves the HTTP API.
type Server struct {
	deps    Deps
	handler http.Handler

	// jobCtx outlives individual requests so background jobs finish after
	// the response is sent.
	jobCtx context.Context
	jobs   sync.WaitGroup
}

// New builds the route table.
func New(deps Deps) *Server {
	s := &Server{deps: deps, jobCtx: context.Background()}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /transcribe", s.handleTranscribe)
	mux.HandleFunc("GET /transcript", s.handleTranscript)
	mux.HandleFunc("GET /translate", s.handleTranslate)
	mux.HandleFunc("POST /v2/translate", s.handleTranslateJob)
	mux.HandleFunc("POST /drive/upload", s.handleDriveUpload)
	mux.HandleFunc("PATCH /drive/update", s.handleDriveUpdate)
	mux.HandleFunc("GET /drive/info", s.handleDriveInfo)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("POST /multipart-upload", s.handleMultipartUpload)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.handler = withRequestID(mux)
	return s
}

// Handler returns the HTTP handler with request logging.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on bind until ctx is cancelled, then drains in-flight requests
// and background jobs.
func (s *Server) Run(ctx context.Context, bind string) error {
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}

	jobCtx, cancelJobs := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelJobs()
	s.jobCtx = jobCtx

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	slog.Info("api server listening", "address", listener.Addr().String())

	select {
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("api server shutdown", "err", err)
	}
	slog.Info("waiting for background jobs")
	s.Wait()
	return nil
}

// Wait blocks until background jobs started by the server have finished.
func (s *Server) Wait() {
	s.jobs.Wait()
}

type requestIDKey struct{}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		slog.Info("request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"elapsed", time.Since(start).Round(time.Millisecond))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps an error to the HTTP status clients see.
func statusFor(err error) int {
	switch services.Code(err) {
	case "transcript_not_ready":
		return http.StatusConflict
	case "upstream_transcript_error", "translation_provider_error", "file_store_error":
		return http.StatusBadGateway
	case "invalid_request":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	code := services.Code(err)
	attrs := []any{"request_id", requestID(r.Context()), "code", code, "err", err}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", attrs...)
	} else {
		slog.Warn("request rejected", attrs...)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Debug("write response", "err", err)
	}
}
