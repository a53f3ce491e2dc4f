package synthesis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"voicecoach/internal/stt"
)

// OpenAISpeech speaks through an OpenAI-compatible /audio/speech endpoint.
// The voice is multilingual, so the language only reaches the log line.
type OpenAISpeech struct {
	client   *openai.Client
	model    openai.SpeechModel
	voice    openai.SpeechVoice
	observer ObserverFunc
}

func NewOpenAISpeech(baseURL, apiKey, model, voice string, httpClient *http.Client, observer ObserverFunc) *OpenAISpeech {
	cfg := openai.DefaultConfig(strings.TrimSpace(apiKey))
	if base := strings.TrimRight(strings.TrimSpace(baseURL), "/"); base != "" {
		cfg.BaseURL = base
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}

	m := openai.SpeechModel(strings.TrimSpace(model))
	if m == "" {
		m = openai.TTSModel1
	}
	v := openai.SpeechVoice(strings.TrimSpace(voice))
	if v == "" {
		v = openai.VoiceAlloy
	}
	return &OpenAISpeech{
		client:   openai.NewClientWithConfig(cfg),
		model:    m,
		voice:    v,
		observer: observer,
	}
}

func (o *OpenAISpeech) Name() string { return "openai" }

func (o *OpenAISpeech) Synthesize(ctx context.Context, text string, _ stt.Language, w io.Writer) error {
	started := time.Now()
	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          o.model,
		Input:          text,
		Voice:          o.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if o.observer != nil {
		o.observer("tts_speech", speechStatus(err), time.Since(started))
	}
	if err != nil {
		return fmt.Errorf("create speech: %w", err)
	}
	defer resp.Close()

	if _, err := io.Copy(w, resp); err != nil {
		return fmt.Errorf("read audio: %w", err)
	}
	return nil
}

func speechStatus(err error) int {
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
