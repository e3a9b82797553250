package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"ytsummarizer/internal/upstream/openai"
)

type fakeChatClient struct {
	request openai.ChatCompletionRequest
	resp    openai.ChatCompletionResponse
	err     error
}

func (f *fakeChatClient) ChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.request = req
	return f.resp, f.err
}

func TestBuildPromptWrapsTranscript(t *testing.T) {
	got := BuildPrompt("line one\nline two")
	want := "<rule>1.Divide the transcript into its main sections or topics and provide a brief summary for each. 2. Respond in Chinese</rule><content>line one\nline two</content>"
	if got != want {
		t.Fatalf("unexpected prompt:\n got %q\nwant %q", got, want)
	}
}

func TestSummarizeSendsSingleUserMessage(t *testing.T) {
	client := &fakeChatClient{resp: openai.ChatCompletionResponse{
		Content: "  ## 第一部分\n摘要  ",
		Usage:   &openai.TokenUsage{PromptTokens: 111, CompletionTokens: 12, TotalTokens: 123},
	}}
	svc := New(client, " test-model ", 2*time.Second)

	result, err := svc.Summarize(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if result.Summary != "  ## 第一部分\n摘要  " {
		t.Fatalf("summary must be returned verbatim, got %q", result.Summary)
	}
	if result.Usage == nil || result.Usage.TotalTokens != 123 {
		t.Fatalf("expected usage to be returned, got %+v", result.Usage)
	}
	if client.request.Model != "test-model" {
		t.Fatalf("unexpected model: %q", client.request.Model)
	}
	if client.request.Temperature != nil {
		t.Fatalf("temperature should not be set: %v", *client.request.Temperature)
	}
	if len(client.request.Messages) != 1 {
		t.Fatalf("unexpected message count: %d", len(client.request.Messages))
	}
	msg := client.request.Messages[0]
	if msg.Role != "user" {
		t.Fatalf("unexpected role: %q", msg.Role)
	}
	if !strings.HasPrefix(msg.Content, Instruction+"<content>hello world</content>") {
		t.Fatalf("unexpected prompt: %q", msg.Content)
	}
}

func TestSummarizeReturnsClientError(t *testing.T) {
	want := &openai.Error{StatusCode: 500}
	svc := New(&fakeChatClient{err: want}, "m", time.Second)

	_, err := svc.Summarize(context.Background(), "text")
	if !errors.Is(err, want) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}
