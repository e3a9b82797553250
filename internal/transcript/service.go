package transcript

import (
	"context"
	"errors"
	"strings"
	"time"

	"ytsummarizer/internal/youtube"
)

var ErrEmptyTranscript = errors.New("transcript is empty")

type Client interface {
	Fetch(ctx context.Context, videoID string, languages []string) (youtube.Transcript, error)
}

type Service struct {
	client    Client
	languages []string
	timeout   time.Duration
}

func New(client Client, languages []string, timeout time.Duration) *Service {
	return &Service{
		client:    client,
		languages: append([]string(nil), languages...),
		timeout:   timeout,
	}
}

// Fetch downloads the captions of videoID and returns them as plain text, one
// caption line per row.
func (s *Service) Fetch(ctx context.Context, videoID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tr, err := s.client.Fetch(ctx, videoID, s.languages)
	if err != nil {
		return "", err
	}

	text := Format(tr.Fragments)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

// Format joins fragment texts with newlines in the order given.
func Format(fragments []youtube.Fragment) string {
	lines := make([]string, 0, len(fragments))
	for _, f := range fragments {
		lines = append(lines, f.Text)
	}
	return strings.Join(lines, "\n")
}
