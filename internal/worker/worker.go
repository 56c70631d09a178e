package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PranayPant/speech-to-text/internal/api"
	"github.com/PranayPant/speech-to-text/internal/llm"
	"github.com/PranayPant/speech-to-text/internal/pipeline"
	"github.com/PranayPant/speech-to-text/internal/services"

	"golang.org/x/sync/errgroup"
)

// Fetcher reads transcript state from the transcription provider.
type Fetcher interface {
	Fetch(ctx context.Context, transcriptID string, opts api.FetchOptions) (*api.TranscriptRecord, error)
}

// Translators resolves a model identifier to a translator.
type Translators interface {
	Lookup(model string) (llm.Translator, error)
}

// Request selects a transcript and the translated outputs to produce.
type Request struct {
	TranscriptID      string `json:"transcript_id"`
	Model             string `json:"ai_model,omitempty"`
	IncludeTranscript bool   `json:"include_transcript"`
	IncludeSentences  bool   `json:"include_sentences"`
	IncludeSRT        bool   `json:"include_srt"`
	// SplitSentencesAt is the cue character budget. Zero selects
	// pipeline.DefaultMaxLength.
	SplitSentencesAt int `json:"split_sentences_at,omitempty"`
}

// needsSentences reports whether sentence data must be fetched and
// translated. The SRT is built from sentences, never from the transcript text.
func (r Request) needsSentences() bool {
	return r.IncludeSentences || r.IncludeSRT
}

func (r Request) normalize() (Request, error) {
	r.TranscriptID = strings.TrimSpace(r.TranscriptID)
	r.Model = strings.TrimSpace(r.Model)
	if r.TranscriptID == "" {
		return r, services.Wrap(services.ErrValidation, "translate", "transcript_id required", nil)
	}
	if r.SplitSentencesAt < 0 {
		return r, services.Wrap(services.ErrValidation, "translate",
			fmt.Sprintf("split_sentences_at must be positive, got %d", r.SplitSentencesAt), nil)
	}
	if r.SplitSentencesAt == 0 {
		r.SplitSentencesAt = pipeline.DefaultMaxLength
	}
	return r, nil
}

// Result is the translated view of one transcript. Fields not requested stay
// nil.
type Result struct {
	Status     api.Status     `json:"status"`
	Transcript *string        `json:"transcript"`
	Sentences  []pipeline.Cue `json:"sentences"`
	SRT        *string        `json:"srt"`
	Model      string         `json:"ai_model"`
}

// Pipeline runs fetch, translation, splitting and SRT synthesis for one
// request at a time. It holds no per-request state and is safe for concurrent
// use.
type Pipeline struct {
	fetcher     Fetcher
	translators Translators
}

// New returns a pipeline bound to the given collaborators.
func New(fetcher Fetcher, translators Translators) *Pipeline {
	return &Pipeline{fetcher: fetcher, translators: translators}
}

// Run produces the requested outputs or fails as a whole. The sentence and
// transcript translations run concurrently and a failure in either cancels the
// other.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	req, err := req.normalize()
	if err != nil {
		return nil, err
	}
	translator, err := p.translators.Lookup(req.Model)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "select model", "", err)
	}

	start := time.Now()
	logger := slog.With("transcript_id", req.TranscriptID, "model", translator.Model())

	record, err := p.fetcher.Fetch(ctx, req.TranscriptID, api.FetchOptions{
		Transcript: req.IncludeTranscript,
		Sentences:  req.needsSentences(),
	})
	if err != nil {
		return nil, services.Tag(services.ErrUpstreamTranscript, "fetch transcript", err)
	}
	if err := checkStatus(req.TranscriptID, record); err != nil {
		return nil, err
	}
	logger.Debug("transcript fetched", "sentences", len(record.Sentences), "elapsed", time.Since(start))

	var (
		translatedText      string
		translatedSentences []string
	)
	g, gctx := errgroup.WithContext(ctx)
	if req.IncludeTranscript {
		source := ""
		if record.Transcript != nil {
			source = *record.Transcript
		}
		g.Go(func() error {
			out, err := translator.TranslateText(gctx, source)
			if err != nil {
				return services.Wrap(services.ErrTranslationProvider, "translate transcript", "", err)
			}
			translatedText = out
			return nil
		})
	}
	if req.needsSentences() && len(record.Sentences) > 0 {
		texts := pipeline.Texts(record.Sentences)
		g.Go(func() error {
			out, err := translator.TranslateBatch(gctx, texts)
			if err != nil {
				return services.Wrap(services.ErrTranslationProvider, "translate sentences", "", err)
			}
			if len(out) != len(texts) {
				return services.Wrap(services.ErrTranslationProvider, "translate sentences",
					fmt.Sprintf("got %d translations for %d sentences", len(out), len(texts)), nil)
			}
			translatedSentences = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{Status: api.StatusCompleted, Model: translator.Model()}
	if req.IncludeTranscript {
		result.Transcript = &translatedText
	}
	if req.needsSentences() {
		cues := make([]pipeline.Cue, len(record.Sentences))
		for i, s := range record.Sentences {
			cues[i] = pipeline.NewCue(translatedSentences[i], s.Start, s.End)
		}
		cues = pipeline.SplitCues(cues, req.SplitSentencesAt)

		if req.IncludeSRT {
			srt, err := pipeline.GenerateSRT(cues)
			if err != nil {
				return nil, fmt.Errorf("synthesize srt: %w", err)
			}
			result.SRT = &srt
		}
		if req.IncludeSentences {
			result.Sentences = cues
		}
	}

	logger.Info("translation finished",
		"sentences", len(record.Sentences),
		"cues", len(result.Sentences),
		"srt", result.SRT != nil,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return result, nil
}

func checkStatus(transcriptID string, record *api.TranscriptRecord) error {
	if record == nil {
		return services.Wrap(services.ErrUpstreamTranscript, "fetch transcript "+transcriptID, "empty response", nil)
	}
	switch record.Status {
	case "", api.StatusCompleted:
		return nil
	case api.StatusError:
		return services.Wrap(services.ErrUpstreamTranscript, "fetch transcript "+transcriptID,
			"transcription failed: "+record.Error, nil)
	default:
		return services.Wrap(services.ErrTranscriptNotReady, "fetch transcript "+transcriptID,
			"status "+string(record.Status), nil)
	}
}
