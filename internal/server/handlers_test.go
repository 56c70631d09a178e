package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/PranayPant/speech-to-text/internal/api"
	"github.com/PranayPant/speech-to-text/internal/drive"
	"github.com/PranayPant/speech-to-text/internal/llm"
	"github.com/PranayPant/speech-to-text/internal/pipeline"
	"github.com/PranayPant/speech-to-text/internal/staging"
	"github.com/PranayPant/speech-to-text/internal/worker"
)

type fakeTranscripts struct {
	record *api.TranscriptRecord

	mu       sync.Mutex
	uploaded []string
	created  []string
}

func (f *fakeTranscripts) Fetch(ctx context.Context, id string, opts api.FetchOptions) (*api.TranscriptRecord, error) {
	rec := *f.record
	if !opts.Sentences {
		rec.Sentences = nil
	}
	if !opts.Transcript {
		rec.Transcript = nil
	}
	return &rec, nil
}

func (f *fakeTranscripts) UploadAudio(ctx context.Context, r io.Reader, size int64, progress api.ProgressFunc) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.uploaded = append(f.uploaded, string(data))
	f.mu.Unlock()
	return "https://cdn.example/upload/1", nil
}

func (f *fakeTranscripts) CreateTranscript(ctx context.Context, audioURL string) (string, error) {
	f.mu.Lock()
	f.created = append(f.created, audioURL)
	f.mu.Unlock()
	return "tr_1", nil
}

type upperTranslator struct{}

func (upperTranslator) TranslateBatch(ctx context.Context, texts []string) ([]string, error) {
	out := make([]string, len(texts))
	for i, s := range texts {
		out[i] = strings.ToUpper(s)
	}
	return out, nil
}

func (upperTranslator) TranslateText(ctx context.Context, text string) (string, error) {
	return strings.ToUpper(text), nil
}

func (upperTranslator) Model() string { return "test-model" }

type testEnv struct {
	server      *Server
	transcripts *fakeTranscripts
	store       *drive.SQLiteStore
}

func newTestEnv(t *testing.T, status api.Status) *testEnv {
	t.Helper()
	dir := t.TempDir()
	store, err := drive.OpenSQLite(filepath.Join(dir, "files.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	chunks, err := staging.NewChunkWriter(filepath.Join(dir, "staging"))
	if err != nil {
		t.Fatalf("NewChunkWriter: %v", err)
	}

	text := "Hello there. Bye."
	transcripts := &fakeTranscripts{record: &api.TranscriptRecord{
		Status:     status,
		Transcript: &text,
		Sentences: []pipeline.Cue{
			pipeline.NewCue("Hello there.", 0, 1500),
			pipeline.NewCue("Bye.", 1500, 2000),
		},
	}}
	reg := llm.NewRegistry("test-model")
	reg.Register("test-model", func() (llm.Translator, error) { return upperTranslator{}, nil })
	p := worker.New(transcripts, reg)

	srv := New(Deps{
		Transcripts:    transcripts,
		Pipeline:       p,
		Jobs:           worker.NewJobRunner(p, store),
		Store:          store,
		Chunks:         chunks,
		DefaultSplitAt: pipeline.DefaultMaxLength,
	})
	return &testEnv{server: srv, transcripts: transcripts, store: store}
}

func (e *testEnv) do(t *testing.T, method, target string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestTranslate_SRT(t *testing.T) {
	env := newTestEnv(t, api.StatusCompleted)
	rec := env.do(t, http.MethodGet, "/translate?transcript_id=abc&include_srt=true", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("missing X-Request-Id")
	}
	res := decode[worker.Result](t, rec)
	want := "1\n00:00:00,000 --> 00:00:01,500\nHELLO THERE.\n\n2\n00:00:01,500 --> 00:00:02,000\nBYE.\n"
	if res.SRT == nil || *res.SRT != want {
		t.Errorf("srt = %v, want %q", res.SRT, want)
	}
	if res.Sentences != nil || res.Transcript != nil {
		t.Errorf("unrequested outputs present: %+v", res)
	}
	if res.Model != "test-model" {
		t.Errorf("ai_model = %q", res.Model)
	}
}

func TestTranslate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status api.Status
		target string
		want   int
		code   string
	}{
		{"missing id", api.StatusCompleted, "/translate?include_srt=true", http.StatusBadRequest, "invalid_request"},
		{"bad bool", api.StatusCompleted, "/translate?transcript_id=a&include_srt=maybe", http.StatusBadRequest, "invalid_request"},
		{"bad budget", api.StatusCompleted, "/translate?transcript_id=a&split_sentences_at=x", http.StatusBadRequest, "invalid_request"},
		{"unknown model", api.StatusCompleted, "/translate?transcript_id=a&ai_model=nope", http.StatusBadRequest, "invalid_request"},
		{"not ready", api.StatusProcessing, "/translate?transcript_id=a&include_srt=true", http.StatusConflict, "transcript_not_ready"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.status)
			rec := env.do(t, http.MethodGet, tt.target, nil, nil)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body)
			}
			if body := decode[errorResponse](t, rec); body.Code != tt.code {
				t.Errorf("code = %q, want %q", body.Code, tt.code)
			}
		})
	}
}

func TestTranscribeAndTranscript(t *testing.T) {
	env := newTestEnv(t, api.StatusCompleted)

	rec := env.do(t, http.MethodPost, "/transcribe", strings.NewReader(`{"upload_url":"https://cdn.example/u"}`), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("transcribe status = %d, body %s", rec.Code, rec.Body)
	}
	if got := decode[map[string]string](t, rec)["transcript_id"]; got != "tr_1" {
		t.Errorf("transcript_id = %q", got)
	}
	if len(env.transcripts.created) != 1 || env.transcripts.created[0] != "https://cdn.example/u" {
		t.Errorf("created = %v", env.transcripts.created)
	}

	rec = env.do(t, http.MethodGet, "/transcript?transcript_id=tr_1&include_transcript=true", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("transcript status = %d", rec.Code)
	}
	record := decode[api.TranscriptRecord](t, rec)
	if record.Transcript == nil || *record.Transcript != "Hello there. Bye." || record.Sentences != nil {
		t.Errorf("record = %+v", record)
	}
}

func TestTranslateJob_WritesSRTFile(t *testing.T) {
	env := newTestEnv(t, api.StatusCompleted)

	rec := env.do(t, http.MethodPost, "/v2/translate", strings.NewReader(`{"transcript_id":"abc"}`), nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	resp := decode[translateJobResponse](t, rec)
	if resp.JobID == "" || resp.SRTFileID == "" || resp.Status != worker.JobProcessing {
		t.Fatalf("response = %+v", resp)
	}

	env.server.Wait()
	text, err := env.store.Text(context.Background(), resp.SRTFileID)
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if !strings.Contains(text, "HELLO THERE.") {
		t.Errorf("stored srt = %q", text)
	}

	rec = env.do(t, http.MethodGet, "/drive/info?file_id="+resp.SRTFileID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("info status = %d", rec.Code)
	}
	info := decode[drive.FileInfo](t, rec)
	if info.Name != "abc.srt" || info.Properties["job_id"] != resp.JobID {
		t.Errorf("info = %+v", info)
	}
}

func TestDriveRoutes(t *testing.T) {
	env := newTestEnv(t, api.StatusCompleted)

	rec := env.do(t, http.MethodPost, "/drive/upload", strings.NewReader(`{"file_name":"a.srt","text":"one"}`), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body)
	}
	id := decode[map[string]string](t, rec)["file_id"]

	rec = env.do(t, http.MethodPatch, "/drive/update", strings.NewReader(`{"file_id":"`+id+`","text":"two"}`), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body)
	}
	if text, _ := env.store.Text(context.Background(), id); text != "two" {
		t.Errorf("text = %q", text)
	}

	rec = env.do(t, http.MethodPatch, "/drive/update", strings.NewReader(`{"file_id":"missing","text":"x"}`), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("update missing status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/drive/upload", strings.NewReader(`{"text":"x"}`), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("upload without name status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/drive/upload", strings.NewReader(`{`), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d", rec.Code)
	}
}

func TestUpload(t *testing.T) {
	env := newTestEnv(t, api.StatusCompleted)
	rec := env.do(t, http.MethodPost, "/upload", strings.NewReader("RIFFDATA"), map[string]string{fileNameHeader: "talk.wav"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if got := decode[map[string]string](t, rec)["upload_url"]; got != "https://cdn.example/upload/1" {
		t.Errorf("upload_url = %q", got)
	}
	if len(env.transcripts.uploaded) != 1 || env.transcripts.uploaded[0] != "RIFFDATA" {
		t.Errorf("uploaded = %v", env.transcripts.uploaded)
	}
}

func TestMultipartUpload(t *testing.T) {
	env := newTestEnv(t, api.StatusCompleted)
	chunk := func(index int, offset, data string) *httptest.ResponseRecorder {
		return env.do(t, http.MethodPost, "/multipart-upload", strings.NewReader(data), map[string]string{
			chunkIndexHeader: string(rune('0' + index)),
			chunkTotalHeader: "2",
			chunkOffsetHdr:   offset,
			uploadIDHeader:   "u1",
			fileNameHeader:   "talk.mp3",
		})
	}

	// Out of order arrival.
	rec := chunk(1, "4", "5678")
	if rec.Code != http.StatusOK {
		t.Fatalf("chunk 2 status = %d, body %s", rec.Code, rec.Body)
	}
	pending := decode[multipartResponse](t, rec)
	if pending.Status != "pending" || pending.UploadURL != nil {
		t.Errorf("pending response = %+v", pending)
	}

	rec = chunk(0, "0", "1234")
	if rec.Code != http.StatusOK {
		t.Fatalf("chunk 1 status = %d, body %s", rec.Code, rec.Body)
	}
	done := decode[multipartResponse](t, rec)
	if done.Status != "completed" || done.UploadURL == nil || *done.UploadURL != "https://cdn.example/upload/1" {
		t.Errorf("completed response = %+v", done)
	}
	if len(env.transcripts.uploaded) != 1 || env.transcripts.uploaded[0] != "12345678" {
		t.Errorf("uploaded = %v", env.transcripts.uploaded)
	}
}

func TestMultipartUpload_MissingHeaders(t *testing.T) {
	env := newTestEnv(t, api.StatusCompleted)
	rec := env.do(t, http.MethodPost, "/multipart-upload", strings.NewReader("x"), map[string]string{chunkIndexHeader: "0"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRouteMethods(t *testing.T) {
	env := newTestEnv(t, api.StatusCompleted)
	if rec := env.do(t, http.MethodPost, "/translate", nil, nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /translate status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/healthz", nil, nil); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}
}
