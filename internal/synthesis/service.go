// Package synthesis turns text into spoken MP3 audio. Every request writes
// to its own temporary file, which is removed once the caller has streamed it.
package synthesis

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"voicecoach/internal/apperr"
	"voicecoach/internal/stt"
	"voicecoach/internal/tempstore"
)

const (
	OutputExtension = ".mp3"
	ContentType     = "audio/mpeg"
	OutputFileName  = "output.mp3"
)

type Provider interface {
	Name() string
	Synthesize(ctx context.Context, text string, lang stt.Language, w io.Writer) error
}

type Store interface {
	Acquire(data []byte, ext string) (string, error)
	Release(paths ...string)
}

type Service struct {
	provider Provider
	store    Store
	timeout  time.Duration
	logger   *slog.Logger
}

func New(provider Provider, store Store, timeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{provider: provider, store: store, timeout: timeout, logger: logger}
}

// Synthesize renders text into a private temp file and hands its path to
// fn. The file is deleted when Synthesize returns, so fn must finish
// reading it before returning. Errors from fn are returned unchanged.
func (s *Service) Synthesize(ctx context.Context, text, language string, fn func(path string) error) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return apperr.New(apperr.KindInvalidInput, "text is required")
	}
	lang, ok := stt.ParseLanguage(language)
	if !ok {
		return apperr.New(apperr.KindUnsupportedLanguage, "unsupported language")
	}

	path, err := s.store.Acquire(nil, OutputExtension)
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, "could not store generated audio", err)
	}
	defer s.store.Release(path)

	if err := s.render(ctx, text, lang, path); err != nil {
		s.logger.Warn("speech synthesis failed", "provider", s.provider.Name(), "lang", lang, "error", err)
		return apperr.Wrap(apperr.KindSynthesis, "audio generation failed", err)
	}
	return fn(path)
}

func (s *Service) render(ctx context.Context, text string, lang stt.Language, path string) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open output: %w", tempstore.StripPath(err))
	}
	if err := s.provider.Synthesize(ctx, text, lang, f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output: %w", tempstore.StripPath(err))
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat output: %w", tempstore.StripPath(err))
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s returned no audio", s.provider.Name())
	}
	return nil
}
