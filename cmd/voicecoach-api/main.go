package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voicecoach/internal/audio"
	"voicecoach/internal/config"
	"voicecoach/internal/conversation"
	"voicecoach/internal/httpapi"
	"voicecoach/internal/observability"
	"voicecoach/internal/stt"
	"voicecoach/internal/synthesis"
	"voicecoach/internal/tempstore"
	"voicecoach/internal/transcription"
	"voicecoach/internal/upstream/gemini"
)

func main() {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := config.LoadDotEnv(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()

	store, err := tempstore.New(cfg.TempDir, logger, tempstore.WithReleaseFailureHook(metrics.IncTempCleanupFailure))
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("temp dir cleanup failed", "dir", store.Dir(), "error", err)
		}
	}()

	ffmpeg := audio.NewFFmpeg(cfg.FFmpegPath, cfg.MaxAudioDuration, cfg.DecodeTimeout)
	if err := ffmpeg.Check(); err != nil {
		logger.Warn("ffmpeg unavailable, /transcribe will fail until it is installed", "error", err)
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	registry := stt.NewRegistry(
		stt.NewOpenAILoader(stt.OpenAIConfig{
			BaseURL: cfg.STTBaseURL,
			APIKey:  cfg.STTAPIKey,
			Models: map[stt.Language]string{
				stt.English:    cfg.STTModelEN,
				stt.Portuguese: cfg.STTModelPT,
			},
			HTTPClient: &http.Client{Timeout: cfg.STTTimeout, Transport: transport},
			Observer:   metrics.ObserveUpstream,
		}),
		stt.WithSerializedInference(cfg.STTSerialize),
		stt.WithLogger(logger),
		stt.WithLoadObserver(func(lang stt.Language, d time.Duration) {
			metrics.ObserveModelLoad(string(lang), d)
		}),
	)
	if err := registry.Preload(context.Background(), stt.English); err != nil {
		return fmt.Errorf("load english speech model: %w", err)
	}

	transcriptionService := transcription.New(store, ffmpeg, registry, cfg.MaxUploadBytes,
		transcription.WithObserver(metrics),
		transcription.WithLogger(logger),
		transcription.WithEngineTimeout(cfg.STTTimeout),
	)

	geminiClient := gemini.New(cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.GeminiModel,
		&http.Client{Timeout: cfg.ChatTimeout, Transport: transport},
		gemini.WithObserver(metrics.ObserveUpstream),
	)
	if !geminiClient.HasAPIKey() {
		logger.Warn("GEMINI_API_KEY is not set, /chat will fail")
	}
	chatService := conversation.New(geminiClient, cfg.ChatTimeout)

	ttsHTTPClient := &http.Client{Timeout: cfg.TTSTimeout, Transport: transport}
	var provider synthesis.Provider
	switch cfg.TTSProvider {
	case config.TTSProviderOpenAI:
		provider = synthesis.NewOpenAISpeech(cfg.TTSBaseURL, cfg.TTSAPIKey, cfg.TTSModel, cfg.TTSVoice, ttsHTTPClient, metrics.ObserveUpstream)
	default:
		provider = synthesis.NewGTTS(cfg.TTSBaseURL, ttsHTTPClient, metrics.ObserveUpstream)
	}
	synthesisService := synthesis.New(provider, store, cfg.TTSTimeout, logger)

	readiness := []httpapi.ReadinessCheck{
		{Name: "ffmpeg", Check: func(context.Context) error { return ffmpeg.Check() }},
		{Name: "stt_en", Check: func(context.Context) error {
			if !registry.Loaded(stt.English) {
				return errors.New("english speech model not loaded")
			}
			return nil
		}},
	}
	if geminiClient.HasAPIKey() {
		readiness = append(readiness, httpapi.ReadinessCheck{Name: "gemini", Check: geminiClient.CheckModel})
	}

	handler := httpapi.NewServer(cfg, logger, httpapi.Dependencies{
		Transcription:  transcriptionService,
		Chat:           chatService,
		Synthesis:      synthesisService,
		Readiness:      readiness,
		Metrics:        metrics,
		MetricsHandler: metrics.Handler(),
	})

	// Transcription may wait on a slow model, so the write deadline follows its timeout.
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       35 * time.Second,
		WriteTimeout:      cfg.DecodeTimeout + cfg.STTTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.ListenAddr, "temp_dir", store.Dir(), "tts_provider", provider.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func newLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn", "warning":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel}))
}
