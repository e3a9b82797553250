package summarize

import (
	"context"
	"strings"
	"time"

	"ytsummarizer/internal/upstream/openai"
)

// Instruction is placed ahead of the transcript in every prompt.
const Instruction = "<rule>1.Divide the transcript into its main sections or topics and provide a brief summary for each. 2. Respond in Chinese</rule>"

type ChatClient interface {
	ChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Result struct {
	Summary string
	Usage   *TokenUsage
}

type Service struct {
	client  ChatClient
	model   string
	timeout time.Duration
}

func New(client ChatClient, model string, timeout time.Duration) *Service {
	return &Service{
		client:  client,
		model:   strings.TrimSpace(model),
		timeout: timeout,
	}
}

// BuildPrompt wraps transcript in the summary instruction.
func BuildPrompt(transcript string) string {
	return Instruction + "<content>" + transcript + "</content>"
}

// Summarize returns the first completion for the transcript prompt unchanged.
func (s *Service) Summarize(ctx context.Context, transcript string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	chatResp, err := s.client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatMessage{
			{Role: "user", Content: BuildPrompt(transcript)},
		},
	})
	if err != nil {
		return Result{}, err
	}

	result := Result{Summary: chatResp.Content}
	if chatResp.Usage != nil {
		result.Usage = &TokenUsage{
			PromptTokens:     chatResp.Usage.PromptTokens,
			CompletionTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:      chatResp.Usage.TotalTokens,
		}
	}
	return result, nil
}
