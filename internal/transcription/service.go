// Package transcription runs the upload → decode → speech-to-text pipeline
// for one request and guarantees its temporary files are removed on every
// exit path.
package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"voicecoach/internal/apperr"
	"voicecoach/internal/audio"
	"voicecoach/internal/stt"
	"voicecoach/internal/tempstore"
)

const DefaultMaxUploadBytes int64 = 5 << 20

var AllowedExtensions = []string{".webm", ".mp3", ".wav"}

type Store interface {
	Acquire(data []byte, ext string) (string, error)
	Release(paths ...string)
}

type Decoder interface {
	Decode(ctx context.Context, inPath, outPath string) error
}

type Verifier func(path string) (audio.Waveform, error)

type Models interface {
	Get(ctx context.Context, lang stt.Language) (*stt.Handle, error)
}

type Observer interface {
	ObserveTranscription(lang, outcome string, duration time.Duration)
	ObserveDecode(duration time.Duration, ok bool)
}

type Request struct {
	FileName string
	Audio    io.Reader
	Language string
}

type Service struct {
	store          Store
	decoder        Decoder
	verify         Verifier
	models         Models
	maxUploadBytes int64
	timeout        time.Duration
	logger         *slog.Logger
	observer       Observer
}

type Option func(*Service)

func WithVerifier(v Verifier) Option {
	return func(s *Service) {
		if v != nil {
			s.verify = v
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *Service) {
		s.observer = o
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEngineTimeout bounds the speech-to-text call only.
func WithEngineTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

func New(store Store, decoder Decoder, models Models, maxUploadBytes int64, opts ...Option) *Service {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	s := &Service{
		store:          store,
		decoder:        decoder,
		verify:         audio.Verify,
		models:         models,
		maxUploadBytes: maxUploadBytes,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Service) MaxUploadBytes() int64 { return s.maxUploadBytes }

// Transcribe returns the trimmed, non-empty transcription of req.Audio.
// Every failure is an *apperr.Error.
func (s *Service) Transcribe(ctx context.Context, req Request) (text string, err error) {
	started := time.Now()
	lang := strings.ToLower(strings.TrimSpace(req.Language))
	logger := s.logger.With("lang", lang)
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = apperr.KindOf(err).String()
			logger.Warn("transcription failed", "kind", outcome, "error", err)
		}
		if s.observer != nil {
			s.observer.ObserveTranscription(lang, outcome, time.Since(started))
		}
	}()

	ext, err := validateExtension(req.FileName)
	if err != nil {
		return "", err
	}
	data, err := s.readUpload(req.Audio)
	if err != nil {
		return "", err
	}
	logger.Debug("transcribe_stage", "stage", "validate", "ext", ext, "bytes", len(data))

	rawPath, err := s.store.Acquire(data, ext)
	if err != nil {
		return "", apperr.Wrap(apperr.KindStorage, "failed to store uploaded audio", err)
	}
	wavPath := tempstore.DerivedPath(rawPath)
	defer func() {
		s.store.Release(rawPath, wavPath)
		logger.Debug("transcribe_stage", "stage", "cleanup")
	}()
	logger.Debug("transcribe_stage", "stage", "persist")

	decodeStarted := time.Now()
	decodeErr := s.decoder.Decode(ctx, rawPath, wavPath)
	if s.observer != nil {
		s.observer.ObserveDecode(time.Since(decodeStarted), decodeErr == nil)
	}
	if decodeErr != nil {
		return "", apperr.Wrap(apperr.KindDecode, "audio conversion failed", decodeErr)
	}
	logger.Debug("transcribe_stage", "stage", "decode")

	waveform, err := s.verify(wavPath)
	if err != nil {
		return "", apperr.Wrap(apperr.KindDecode, "audio conversion produced no usable waveform", err)
	}
	logger.Debug("transcribe_stage", "stage", "verify", "duration_ms", waveform.Duration.Milliseconds())

	language, ok := stt.ParseLanguage(lang)
	if !ok {
		return "", apperr.New(apperr.KindUnsupportedLanguage, fmt.Sprintf("unsupported language %q: use pt or en", req.Language))
	}
	handle, err := s.models.Get(ctx, language)
	if err != nil {
		return "", apperr.Wrap(apperr.KindTranscription, "speech model unavailable", err)
	}
	logger.Debug("transcribe_stage", "stage", "model")

	engineCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		engineCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	raw, err := handle.Transcribe(engineCtx, wavPath)
	if err != nil {
		return "", apperr.Wrap(apperr.KindTranscription, "transcription failed", err)
	}
	text = strings.TrimSpace(raw)
	if text == "" {
		return "", apperr.New(apperr.KindEmptyTranscription, "transcription produced no text: no speech detected")
	}
	logger.Info("transcribe_stage", "stage", "engine", "chars", len(text))
	return text, nil
}

func validateExtension(fileName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(fileName)))
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return ext, nil
		}
	}
	return "", apperr.New(apperr.KindUnsupportedFormat,
		fmt.Sprintf("unsupported file format %q: allowed formats are %s", ext, strings.Join(AllowedExtensions, ", ")))
}

func (s *Service) readUpload(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, apperr.New(apperr.KindInvalidInput, "audio file is required")
	}
	data, err := io.ReadAll(io.LimitReader(r, s.maxUploadBytes+1))
	if err != nil {
		if isTooLarge(err) {
			return nil, s.tooLarge()
		}
		return nil, apperr.Wrap(apperr.KindInvalidInput, "failed to read uploaded audio", err)
	}
	if int64(len(data)) > s.maxUploadBytes {
		return nil, s.tooLarge()
	}
	return data, nil
}

func (s *Service) tooLarge() error {
	return apperr.New(apperr.KindPayloadTooLarge, fmt.Sprintf("audio file exceeds the %d byte limit", s.maxUploadBytes))
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
