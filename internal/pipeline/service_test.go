package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ytsummarizer/internal/summarize"
	"ytsummarizer/internal/transcript"
	"ytsummarizer/internal/upstream/openai"
	"ytsummarizer/internal/youtube"
)

type fakeTranscripts struct {
	text    string
	err     error
	videoID string
}

func (f *fakeTranscripts) Fetch(_ context.Context, videoID string) (string, error) {
	f.videoID = videoID
	return f.text, f.err
}

type fakeSummarizer struct {
	result     summarize.Result
	err        error
	transcript string
	calls      int
}

func (f *fakeSummarizer) Summarize(_ context.Context, text string) (summarize.Result, error) {
	f.calls++
	f.transcript = text
	return f.result, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProcessShortCircuitsOnTranscriptFailure(t *testing.T) {
	summarizer := &fakeSummarizer{}
	svc := New(
		&fakeTranscripts{err: &youtube.Error{Kind: youtube.ErrTranscriptsDisabled, VideoID: "abc123"}},
		summarizer,
		discardLogger(),
	)

	res := svc.Process(context.Background(), "https://www.youtube.com/watch?v=abc123&t=10s")

	if summarizer.calls != 0 {
		t.Fatalf("summarizer must not be called, got %d calls", summarizer.calls)
	}
	if !res.Failed() || res.Failure.Stage != StageTranscript {
		t.Fatalf("expected transcript failure, got %+v", res)
	}
	if !strings.HasPrefix(res.Text(), "Error downloading transcript:") {
		t.Fatalf("unexpected message: %q", res.Text())
	}
	if !errors.Is(res.Failure, youtube.ErrTranscriptsDisabled) {
		t.Fatalf("failure should wrap the cause: %v", res.Failure)
	}
	if res.Summary != "" {
		t.Fatalf("no partial result expected, got %q", res.Summary)
	}
}

func TestProcessReportsSummaryFailure(t *testing.T) {
	svc := New(
		&fakeTranscripts{text: "transcript"},
		&fakeSummarizer{err: &openai.Error{StatusCode: http.StatusInternalServerError}},
		discardLogger(),
	)

	res := svc.Process(context.Background(), "abc123")

	if !res.Failed() || res.Failure.Stage != StageSummary {
		t.Fatalf("expected summary failure, got %+v", res)
	}
	if !strings.HasPrefix(res.Text(), "Error calling LLM API:") {
		t.Fatalf("unexpected message: %q", res.Text())
	}
}

func TestProcessReturnsSummary(t *testing.T) {
	transcripts := &fakeTranscripts{text: "line one\nline two"}
	summarizer := &fakeSummarizer{result: summarize.Result{
		Summary: "## 总结\n内容",
		Usage:   &summarize.TokenUsage{TotalTokens: 42},
	}}
	svc := New(transcripts, summarizer, discardLogger())

	res := svc.Process(context.Background(), "https://youtu.be/abc123?t=5")

	if res.Failed() {
		t.Fatalf("unexpected failure: %v", res.Failure)
	}
	if transcripts.videoID != "abc123" {
		t.Fatalf("unexpected video id: %q", transcripts.videoID)
	}
	if summarizer.transcript != "line one\nline two" {
		t.Fatalf("transcript not passed through: %q", summarizer.transcript)
	}
	if res.Text() != "## 总结\n内容" || res.Summary != res.Text() {
		t.Fatalf("unexpected summary: %q", res.Text())
	}
	if res.Usage == nil || res.Usage.TotalTokens != 42 {
		t.Fatalf("unexpected usage: %+v", res.Usage)
	}
}

func TestProcessPassesUnmatchedInputAsVideoID(t *testing.T) {
	transcripts := &fakeTranscripts{text: "t"}
	svc := New(transcripts, &fakeSummarizer{}, discardLogger())

	res := svc.Process(context.Background(), "not-a-url")
	if transcripts.videoID != "not-a-url" || res.VideoID != "not-a-url" {
		t.Fatalf("unexpected video id: %q", transcripts.videoID)
	}
}

// The services below are real; only YouTube and the LLM endpoint are faked.
func TestProcessEndToEndAgainstFakeUpstreams(t *testing.T) {
	yt := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/watch":
			_, _ = io.WriteString(w, `"INNERTUBE_API_KEY":"k"`)
		case "/youtubei/v1/player":
			_, _ = io.WriteString(w, `{"playabilityStatus":{"status":"OK"},"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[{"baseUrl":"/api/timedtext?v=abc123","languageCode":"en"}]}}}`)
		case "/api/timedtext":
			_, _ = io.WriteString(w, `<transcript><text start="0" dur="1">hello</text><text start="1" dur="1">world</text></transcript>`)
		}
	}))
	defer yt.Close()

	var prompt string
	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body openai.ChatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.Messages) == 1 {
			prompt = body.Messages[0].Content
		}
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"verbatim summary"}}]}`)
	}))
	defer llm.Close()

	ytClient := youtube.New(yt.Client(), youtube.WithBaseURL(yt.URL))
	chat := openai.New(llm.URL, "key", llm.Client())
	svc := New(
		transcript.New(ytClient, []string{"en"}, time.Second),
		summarize.New(chat, "model", time.Second),
		discardLogger(),
	)

	res := svc.Process(context.Background(), "https://www.youtube.com/watch?v=abc123")
	if res.Failed() {
		t.Fatalf("unexpected failure: %v", res.Failure)
	}
	if res.Text() != "verbatim summary" {
		t.Fatalf("unexpected summary: %q", res.Text())
	}
	if prompt != summarize.BuildPrompt("hello\nworld") {
		t.Fatalf("unexpected prompt: %q", prompt)
	}
}
