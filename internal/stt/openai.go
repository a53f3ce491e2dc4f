package stt

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

type ObserverFunc func(endpoint string, status int, duration time.Duration)

// OpenAIConfig points at an OpenAI-compatible /audio/transcriptions server,
// e.g. a local whisper deployment. Models maps each language to the model
// name its handle uses.
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Models     map[Language]string
	HTTPClient *http.Client
	Observer   ObserverFunc
}

type OpenAIEngine struct {
	client   *openai.Client
	model    string
	language Language
	observer ObserverFunc
}

// NewOpenAILoader returns a Loader building one OpenAIEngine per language.
func NewOpenAILoader(cfg OpenAIConfig) Loader {
	return func(_ context.Context, lang Language) (Engine, error) {
		clientCfg := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
		if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
			clientCfg.BaseURL = base
		}
		if cfg.HTTPClient != nil {
			clientCfg.HTTPClient = cfg.HTTPClient
		}

		model := strings.TrimSpace(cfg.Models[lang])
		if model == "" {
			model = openai.Whisper1
		}
		return &OpenAIEngine{
			client:   openai.NewClientWithConfig(clientCfg),
			model:    model,
			language: lang,
			observer: cfg.Observer,
		}, nil
	}
}

func (e *OpenAIEngine) Model() string { return e.model }

func (e *OpenAIEngine) Transcribe(ctx context.Context, wavPath string) (string, error) {
	started := time.Now()
	resp, err := e.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    e.model,
		FilePath: wavPath,
		Language: string(e.language),
		Format:   openai.AudioResponseFormatJSON,
	})
	e.observe(statusOf(err), time.Since(started))
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (e *OpenAIEngine) observe(status int, d time.Duration) {
	if e.observer != nil {
		e.observer("stt_transcriptions", status, d)
	}
}

func statusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
