package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/PranayPant/speech-to-text/internal/api"
	"github.com/PranayPant/speech-to-text/internal/drive"
)

type memoryStore struct {
	mu        sync.Mutex
	files     map[string]drive.File
	next      int
	createErr error
	updateErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{files: make(map[string]drive.File)}
}

func (m *memoryStore) Create(ctx context.Context, file drive.File) (string, error) {
	if m.createErr != nil {
		return "", m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	id := fmt.Sprintf("file-%d", m.next)
	m.files[id] = file
	return id, nil
}

func (m *memoryStore) Update(ctx context.Context, fileID, text string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[fileID]
	if !ok {
		return fmt.Errorf("no file %s", fileID)
	}
	f.Text = text
	m.files[fileID] = f
	return nil
}

func (m *memoryStore) get(id string) drive.File {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.files[id]
}

func TestJobRunner_PrepareCreatesPlaceholder(t *testing.T) {
	store := newMemoryStore()
	runner := NewJobRunner(newTestPipeline(&fakeFetcher{record: completedRecord()}, &fakeTranslator{}), store)

	job, err := runner.Prepare(context.Background(), Job{TranscriptID: "abc"})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if job.ID == "" || job.SRTFileID == "" {
		t.Fatalf("Prepare = %+v, want ids assigned", job)
	}
	f := store.get(job.SRTFileID)
	if f.Name != "abc.srt" || f.Text != "" {
		t.Errorf("placeholder = %+v", f)
	}
	if f.Properties["transcript_id"] != "abc" || f.Properties["job_id"] != job.ID {
		t.Errorf("placeholder properties = %v", f.Properties)
	}
}

func TestJobRunner_RunWritesSRT(t *testing.T) {
	store := newMemoryStore()
	runner := NewJobRunner(newTestPipeline(&fakeFetcher{record: completedRecord()}, &fakeTranslator{}), store)

	job, err := runner.Prepare(context.Background(), Job{TranscriptID: "abc", FileName: "talk.srt"})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	res := runner.Run(context.Background(), job)
	if res.Status != JobCompleted || res.Error != "" {
		t.Fatalf("Run = %+v", res)
	}
	if res.JobID != job.ID || res.SRTFileID != job.SRTFileID {
		t.Errorf("Run ids = %+v, want job %+v", res, job)
	}
	f := store.get(job.SRTFileID)
	if f.Name != "talk.srt" {
		t.Errorf("file name = %q", f.Name)
	}
	if strings.Count(f.Text, " --> ") != 4 {
		t.Errorf("stored SRT = %q", f.Text)
	}
}

func TestJobRunner_RunFailures(t *testing.T) {
	tests := []struct {
		name     string
		record   *api.TranscriptRecord
		store    *memoryStore
		job      Job
		wantCode string
	}{
		{
			name:     "not ready",
			record:   &api.TranscriptRecord{Status: api.StatusProcessing},
			store:    newMemoryStore(),
			job:      Job{TranscriptID: "abc"},
			wantCode: "transcript_not_ready",
		},
		{
			name:     "missing transcript",
			record:   completedRecord(),
			store:    newMemoryStore(),
			job:      Job{},
			wantCode: "invalid_request",
		},
		{
			name:     "create fails",
			record:   completedRecord(),
			store:    &memoryStore{files: map[string]drive.File{}, createErr: errors.New("disk full")},
			job:      Job{TranscriptID: "abc"},
			wantCode: "file_store_error",
		},
		{
			name:     "update fails",
			record:   completedRecord(),
			store:    &memoryStore{files: map[string]drive.File{}, updateErr: errors.New("disk full")},
			job:      Job{TranscriptID: "abc"},
			wantCode: "file_store_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := NewJobRunner(newTestPipeline(&fakeFetcher{record: tt.record}, &fakeTranslator{}), tt.store)
			res := runner.Run(context.Background(), tt.job)
			if res.Status != JobFailed {
				t.Fatalf("status = %q, want failed", res.Status)
			}
			if res.Code != tt.wantCode {
				t.Errorf("code = %q, want %q (err %s)", res.Code, tt.wantCode, res.Error)
			}
			if res.Error == "" {
				t.Error("expected error message")
			}
		})
	}
}

func TestPool_ProcessesAllTasks(t *testing.T) {
	store := newMemoryStore()
	runner := NewJobRunner(newTestPipeline(&fakeFetcher{record: completedRecord()}, &fakeTranslator{}), store)
	pool := NewPool(runner, 3, 0)

	tasks := make(chan Task)
	var (
		mu      sync.Mutex
		results []JobResult
	)
	go func() {
		defer close(tasks)
		for i := 0; i < 5; i++ {
			tasks <- Task{
				Job: Job{TranscriptID: fmt.Sprintf("t%d", i)},
				Done: func(r JobResult) error {
					mu.Lock()
					results = append(results, r)
					mu.Unlock()
					return nil
				},
			}
		}
	}()

	if err := pool.Process(context.Background(), tasks); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("results = %d, want 5", len(results))
	}
	for _, r := range results {
		if r.Status != JobCompleted {
			t.Errorf("result %+v not completed", r)
		}
	}
}

func TestPool_AcknowledgeErrorStops(t *testing.T) {
	runner := NewJobRunner(newTestPipeline(&fakeFetcher{record: completedRecord()}, &fakeTranslator{}), newMemoryStore())
	pool := NewPool(runner, 1, 0)

	tasks := make(chan Task, 1)
	tasks <- Task{
		Job:  Job{TranscriptID: "abc"},
		Done: func(JobResult) error { return errors.New("channel closed") },
	}
	close(tasks)

	err := pool.Process(context.Background(), tasks)
	if err == nil || !strings.Contains(err.Error(), "channel closed") {
		t.Fatalf("Process error = %v, want acknowledgement error", err)
	}
}

func TestPool_StopsOnCancel(t *testing.T) {
	runner := NewJobRunner(newTestPipeline(&fakeFetcher{record: completedRecord()}, &fakeTranslator{}), newMemoryStore())
	pool := NewPool(runner, 2, 0)

	ctx, cancel := context.WithCancel(context.Background())
	tasks := make(chan Task)
	cancel()
	if err := pool.Process(ctx, tasks); err != nil {
		t.Fatalf("Process after cancel = %v, want nil", err)
	}
}
