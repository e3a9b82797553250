package pipeline

import (
	"context"
	"log/slog"
	"time"

	"ytsummarizer/internal/summarize"
	"ytsummarizer/internal/videoid"
)

type Stage string

const (
	StageTranscript Stage = "transcript"
	StageSummary    Stage = "summary"
)

func (s Stage) label() string {
	switch s {
	case StageTranscript:
		return "Error downloading transcript"
	case StageSummary:
		return "Error calling LLM API"
	default:
		return "Error"
	}
}

type Transcripts interface {
	Fetch(ctx context.Context, videoID string) (string, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (summarize.Result, error)
}

// Failure is the stage that failed and why. Its Error text is what users see.
type Failure struct {
	Stage Stage
	Err   error
}

func (f *Failure) Error() string {
	return f.Stage.label() + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

type Timings struct {
	Transcript time.Duration
	Summary    time.Duration
	Total      time.Duration
}

// Result holds either Summary or Failure, never both.
type Result struct {
	VideoID string
	Summary string
	Usage   *summarize.TokenUsage
	Failure *Failure
	Timings Timings
}

func (r Result) Failed() bool {
	return r.Failure != nil
}

// Text is the summary, or the failure message when the run failed.
func (r Result) Text() string {
	if r.Failure != nil {
		return r.Failure.Error()
	}
	return r.Summary
}

type Service struct {
	transcripts Transcripts
	summarizer  Summarizer
	logger      *slog.Logger
}

func New(transcripts Transcripts, summarizer Summarizer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		transcripts: transcripts,
		summarizer:  summarizer,
		logger:      logger,
	}
}

// Process runs one summary for input, a video ID or URL. The summarizer is not
// called when the transcript cannot be fetched.
func (s *Service) Process(ctx context.Context, input string) Result {
	started := time.Now()
	s.logger.InfoContext(ctx, "summarization started")

	result := Result{VideoID: videoid.Extract(input)}
	logger := s.logger.With("video_id", result.VideoID)
	logger.InfoContext(ctx, "parsed video id")

	transcriptStarted := time.Now()
	transcript, err := s.transcripts.Fetch(ctx, result.VideoID)
	result.Timings.Transcript = time.Since(transcriptStarted)
	if err != nil {
		result.Failure = &Failure{Stage: StageTranscript, Err: err}
		result.Timings.Total = time.Since(started)
		logger.ErrorContext(ctx, "transcript download failed", "stage", StageTranscript, "error", err)
		return result
	}
	logger.InfoContext(ctx, "transcript downloaded", "chars", len(transcript))

	summaryStarted := time.Now()
	summary, err := s.summarizer.Summarize(ctx, transcript)
	result.Timings.Summary = time.Since(summaryStarted)
	result.Timings.Total = time.Since(started)
	if err != nil {
		result.Failure = &Failure{Stage: StageSummary, Err: err}
		logger.ErrorContext(ctx, "llm call failed", "stage", StageSummary, "error", err)
		return result
	}

	result.Summary = summary.Summary
	result.Usage = summary.Usage
	logger.InfoContext(ctx, "summarization completed", "duration_ms", result.Timings.Total.Milliseconds())
	return result
}
