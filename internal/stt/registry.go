// Package stt holds the process-wide speech-to-text model handles, one per
// supported language.
package stt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Engine turns a normalized waveform file into text.
type Engine interface {
	Transcribe(ctx context.Context, wavPath string) (string, error)
}

// Loader constructs the engine for one language. It is called at most once
// per language unless it fails.
type Loader func(ctx context.Context, lang Language) (Engine, error)

type Handle struct {
	lang   Language
	engine Engine
	// turn holds one token per running inference when serialized; nil otherwise.
	turn chan struct{}
}

func newHandle(lang Language, engine Engine, serialize bool) *Handle {
	h := &Handle{lang: lang, engine: engine}
	if serialize {
		h.turn = make(chan struct{}, 1)
	}
	return h
}

func (h *Handle) Language() Language { return h.lang }

// Transcribe runs the engine. When inference is serialized, a caller whose
// context ends while waiting for its turn returns the context error.
func (h *Handle) Transcribe(ctx context.Context, wavPath string) (string, error) {
	if h.turn != nil {
		select {
		case h.turn <- struct{}{}:
			defer func() { <-h.turn }()
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return h.engine.Transcribe(ctx, wavPath)
}

type slot struct {
	mu     sync.Mutex
	handle *Handle
}

type Registry struct {
	load      Loader
	serialize bool
	logger    *slog.Logger
	onLoad    func(lang Language, d time.Duration)

	mu    sync.Mutex
	slots map[Language]*slot
}

type Option func(*Registry)

// WithSerializedInference makes each handle run one transcription at a time.
func WithSerializedInference(on bool) Option {
	return func(r *Registry) {
		r.serialize = on
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithLoadObserver(fn func(lang Language, d time.Duration)) Option {
	return func(r *Registry) {
		r.onLoad = fn
	}
}

func NewRegistry(load Loader, opts ...Option) *Registry {
	r := &Registry{
		load:      load,
		serialize: true,
		logger:    slog.Default(),
		slots:     make(map[Language]*slot, len(Supported)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Preload constructs the handles for langs now instead of on first use.
func (r *Registry) Preload(ctx context.Context, langs ...Language) error {
	for _, lang := range langs {
		if _, err := r.Get(ctx, lang); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the handle for lang, constructing it on first use. Concurrent
// first calls for the same language share a single construction.
func (r *Registry) Get(ctx context.Context, lang Language) (*Handle, error) {
	if _, ok := ParseLanguage(string(lang)); !ok {
		return nil, fmt.Errorf("unsupported language %q", lang)
	}

	r.mu.Lock()
	s, ok := r.slots[lang]
	if !ok {
		s = &slot{}
		r.slots[lang] = s
	}
	r.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != nil {
		return s.handle, nil
	}

	started := time.Now()
	engine, err := r.load(ctx, lang)
	if err != nil {
		return nil, fmt.Errorf("load %s model: %w", lang, err)
	}
	elapsed := time.Since(started)
	s.handle = newHandle(lang, engine, r.serialize)

	r.logger.Info("stt model loaded", "lang", string(lang), "duration_ms", elapsed.Milliseconds())
	if r.onLoad != nil {
		r.onLoad(lang, elapsed)
	}
	return s.handle, nil
}

// Loaded reports whether the handle for lang has been constructed.
func (r *Registry) Loaded(lang Language) bool {
	r.mu.Lock()
	s, ok := r.slots[lang]
	r.mu.Unlock()
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != nil
}
