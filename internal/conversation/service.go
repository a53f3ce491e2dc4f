// Package conversation relays a practice-dialogue turn to the hosted
// language model.
package conversation

import (
	"context"
	"strings"
	"time"

	"voicecoach/internal/apperr"
	"voicecoach/internal/upstream/gemini"
)

var DefaultGenerationConfig = gemini.GenerationConfig{
	Temperature:     0.7,
	TopP:            0.95,
	MaxOutputTokens: 512,
}

type Generator interface {
	GenerateContent(ctx context.Context, req gemini.GenerateRequest) (string, error)
}

type Input = PromptInput

type Service struct {
	client  Generator
	timeout time.Duration
}

func New(client Generator, timeout time.Duration) *Service {
	return &Service{client: client, timeout: timeout}
}

// Reply returns the model's trimmed answer to in.Text. History is whatever
// the caller sent; nothing is kept between calls.
func (s *Service) Reply(ctx context.Context, in Input) (string, error) {
	if strings.TrimSpace(in.Text) == "" {
		return "", apperr.New(apperr.KindInvalidInput, "text is required")
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	answer, err := s.client.GenerateContent(ctx, gemini.GenerateRequest{
		Prompt: BuildPrompt(in),
		Config: DefaultGenerationConfig,
	})
	if err != nil {
		return "", apperr.Wrap(apperr.KindUpstream, "language model request failed", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", apperr.New(apperr.KindUpstream, "language model returned no valid answer")
	}
	return answer, nil
}
