package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/PranayPant/speech-to-text/internal/api"
	"github.com/PranayPant/speech-to-text/internal/drive"
	"github.com/PranayPant/speech-to-text/internal/services"
	"github.com/PranayPant/speech-to-text/internal/staging"
	"github.com/PranayPant/speech-to-text/internal/worker"
)

const (
	maxJSONBody      = 10 << 20
	defaultMediaExt  = ".mp4"
	fileNameHeader   = "X-File-Name"
	uploadIDHeader   = "X-Upload-Id"
	chunkIndexHeader = "X-Chunk-Index"
	chunkTotalHeader = "X-Total-Chunks"
	chunkOffsetHdr   = "X-Chunk-Offset"
)

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		return services.Wrap(services.ErrValidation, "decode body", "", err)
	}
	return nil
}

func queryBool(r *http.Request, key string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, services.Wrap(services.ErrValidation, "parse query", fmt.Sprintf("%s=%q is not a boolean", key, raw), nil)
	}
	return v, nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "parse query", fmt.Sprintf("%s=%q is not an integer", key, raw), nil)
	}
	return v, nil
}

func headerInt(r *http.Request, key string) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get(key))
	if raw == "" {
		return 0, services.Wrap(services.ErrValidation, "parse header", key+" required", nil)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "parse header", fmt.Sprintf("%s=%q is not an integer", key, raw), nil)
	}
	return v, nil
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AudioURL  string `json:"audio_url"`
		UploadURL string `json:"upload_url"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	audioURL := body.AudioURL
	if audioURL == "" {
		audioURL = body.UploadURL
	}
	id, err := s.deps.Transcripts.CreateTranscript(r.Context(), audioURL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"transcript_id": id})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	var (
		opts api.FetchOptions
		err  error
	)
	for key, dst := range map[string]*bool{
		"include_transcript": &opts.Transcript,
		"include_sentences":  &opts.Sentences,
		"include_srt":        &opts.SRT,
	} {
		if *dst, err = queryBool(r, key); err != nil {
			writeError(w, r, err)
			return
		}
	}

	record, err := s.deps.Transcripts.Fetch(r.Context(), r.URL.Query().Get("transcript_id"), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	req := worker.Request{
		TranscriptID: r.URL.Query().Get("transcript_id"),
		Model:        r.URL.Query().Get("ai_model"),
	}
	var err error
	for key, dst := range map[string]*bool{
		"include_transcript": &req.IncludeTranscript,
		"include_sentences":  &req.IncludeSentences,
		"include_srt":        &req.IncludeSRT,
	} {
		if *dst, err = queryBool(r, key); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if req.SplitSentencesAt, err = queryInt(r, "split_sentences_at"); err != nil {
		writeError(w, r, err)
		return
	}
	if req.SplitSentencesAt == 0 {
		req.SplitSentencesAt = s.deps.DefaultSplitAt
	}

	result, err := s.deps.Pipeline.Run(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type translateJobResponse struct {
	JobID     string `json:"job_id"`
	SRTFileID string `json:"srt_file_id"`
	Status    string `json:"status"`
}

// handleTranslateJob creates the SRT placeholder, replies with its id and
// fills it in the background.
func (s *Server) handleTranslateJob(w http.ResponseWriter, r *http.Request) {
	var job worker.Job
	if err := decodeBody(r, &job); err != nil {
		writeError(w, r, err)
		return
	}
	if job.SplitSentencesAt == 0 {
		job.SplitSentencesAt = s.deps.DefaultSplitAt
	}
	job, err := s.deps.Jobs.Prepare(r.Context(), job)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		res := s.deps.Jobs.Run(s.jobCtx, job)
		slog.Info("background translation finished",
			"request_id", requestID(r.Context()),
			"job_id", res.JobID,
			"status", res.Status,
			"code", res.Code)
	}()

	writeJSON(w, http.StatusAccepted, translateJobResponse{
		JobID:     job.ID,
		SRTFileID: job.SRTFileID,
		Status:    worker.JobProcessing,
	})
}

func (s *Server) handleDriveUpload(w http.ResponseWriter, r *http.Request) {
	var file drive.File
	if err := decodeBody(r, &file); err != nil {
		writeError(w, r, err)
		return
	}
	id, err := s.deps.Store.Create(r.Context(), file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"file_id": id})
}

func (s *Server) handleDriveUpdate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FileID string `json:"file_id"`
		Text   string `json:"text"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Store.Update(r.Context(), body.FileID, body.Text); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"file_id": body.FileID})
}

func (s *Server) handleDriveInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.deps.Store.Info(r.Context(), r.URL.Query().Get("file_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// mediaExt picks the staging extension from the client's file name so the
// audio track of videos is extracted before upload.
func mediaExt(r *http.Request) string {
	ext := strings.ToLower(filepath.Ext(r.Header.Get(fileNameHeader)))
	if ext == "" || strings.ContainsAny(ext, `/\`) {
		return defaultMediaExt
	}
	return ext
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	f, err := os.CreateTemp(s.deps.Chunks.Dir(), "single-*"+mediaExt(r))
	if err != nil {
		writeError(w, r, fmt.Errorf("create staging file: %w", err))
		return
	}
	path := f.Name()
	defer os.Remove(path)

	n, err := io.Copy(f, r.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		writeError(w, r, fmt.Errorf("receive upload: %w", err))
		return
	}
	slog.Info("upload received", "request_id", requestID(r.Context()), "size_mb", fmt.Sprintf("%.2f", float64(n)/(1024*1024)))

	uploadURL, err := worker.UploadMedia(r.Context(), s.deps.Transcripts, path)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"upload_url": uploadURL})
}

type multipartResponse struct {
	UploadURL *string `json:"upload_url"`
	Status    string  `json:"status"`
}

func (s *Server) handleMultipartUpload(w http.ResponseWriter, r *http.Request) {
	index, err := headerInt(r, chunkIndexHeader)
	if err != nil {
		writeError(w, r, err)
		return
	}
	total, err := headerInt(r, chunkTotalHeader)
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := headerInt(r, chunkOffsetHdr)
	if err != nil {
		writeError(w, r, err)
		return
	}

	progress, err := s.deps.Chunks.Write(r.Context(), staging.Chunk{
		UploadID: r.Header.Get(uploadIDHeader),
		Index:    int(index),
		Total:    int(total),
		Offset:   offset,
		Data:     r.Body,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("chunk stored",
		"request_id", requestID(r.Context()),
		"chunk", fmt.Sprintf("%d/%d", index+1, total),
		"received", progress.Received,
		"size_mb", fmt.Sprintf("%.2f", float64(progress.Bytes)/(1024*1024)))

	if !progress.Complete {
		writeJSON(w, http.StatusOK, multipartResponse{Status: "pending"})
		return
	}

	mediaPath := strings.TrimSuffix(progress.Path, filepath.Ext(progress.Path)) + mediaExt(r)
	if err := os.Rename(progress.Path, mediaPath); err != nil {
		s.deps.Chunks.Discard(progress.Path)
		writeError(w, r, fmt.Errorf("finalize upload: %w", err))
		return
	}
	defer s.deps.Chunks.Discard(progress.Path)
	defer os.Remove(mediaPath)

	uploadURL, err := worker.UploadMedia(r.Context(), s.deps.Transcripts, mediaPath)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, multipartResponse{UploadURL: &uploadURL, Status: "completed"})
}
