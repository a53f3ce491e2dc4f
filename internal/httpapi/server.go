package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"

	"voicecoach/internal/apperr"
	"voicecoach/internal/config"
	"voicecoach/internal/conversation"
	"voicecoach/internal/model"
	"voicecoach/internal/synthesis"
	"voicecoach/internal/tempstore"
	"voicecoach/internal/transcription"
)

type TranscriptionService interface {
	Transcribe(ctx context.Context, req transcription.Request) (string, error)
	MaxUploadBytes() int64
}

type ChatService interface {
	Reply(ctx context.Context, in conversation.Input) (string, error)
}

type SynthesisService interface {
	Synthesize(ctx context.Context, text, language string, fn func(path string) error) error
}

// ReadinessCheck is one dependency probed by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type MetricsObserver interface {
	ObserveHTTP(route, method string, status int, duration time.Duration)
}

type Dependencies struct {
	Transcription  TranscriptionService
	Chat           ChatService
	Synthesis      SynthesisService
	Readiness      []ReadinessCheck
	Metrics        MetricsObserver
	MetricsHandler http.Handler
}

type server struct {
	cfg          config.Config
	logger       *slog.Logger
	transcriber  TranscriptionService
	chat         ChatService
	synthesizer  SynthesisService
	readiness    []ReadinessCheck
	metrics      MetricsObserver
	metricsRoute http.Handler
}

type ctxKey string

const (
	requestIDHeader  = "X-Request-Id"
	requestIDContext = ctxKey("request_id")
	maxFormBodyBytes = 1 << 20
	// multipartOverhead leaves room for boundaries and text fields around
	// the audio part so the exact upload limit is enforced by the pipeline.
	multipartOverhead = 1 << 20
	multipartMemory   = 8 << 20
	readinessTimeout  = 2 * time.Second
)

func NewServer(cfg config.Config, logger *slog.Logger, deps Dependencies) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Transcription == nil || deps.Chat == nil || deps.Synthesis == nil {
		panic("httpapi: all dependencies are required")
	}

	s := &server{
		cfg:          cfg,
		logger:       logger,
		transcriber:  deps.Transcription,
		chat:         deps.Chat,
		synthesizer:  deps.Synthesis,
		readiness:    deps.Readiness,
		metrics:      deps.Metrics,
		metricsRoute: deps.MetricsHandler,
	}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader, "Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/", s.handleIndex)
	r.Handle("/static/*", staticHandler())
	r.Get("/health", s.handleHealth)
	r.Get("/readyz", s.handleReadyz)
	if s.metricsRoute != nil {
		r.Handle("/metrics", s.metricsRoute)
	}

	r.Group(func(r chi.Router) {
		if cfg.RateLimitPerMinute > 0 {
			r.Use(httprate.Limit(cfg.RateLimitPerMinute, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					s.writeError(w, r, http.StatusTooManyRequests, "too many requests")
				}),
			))
		}
		r.Post("/transcribe", s.handleTranscribe)
		r.Post("/chat", s.handleChat)
		r.Post("/generate_audio", s.handleGenerateAudio)
	})

	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.HealthResponse{Status: "ok"})
}

func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	resp := model.ReadyResponse{OK: true, Checks: make([]model.ReadyCheck, 0, len(s.readiness))}
	for _, rc := range s.readiness {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		err := rc.Check(ctx)
		cancel()

		check := model.ReadyCheck{Name: rc.Name, OK: err == nil}
		if err != nil {
			check.Error = err.Error()
			resp.OK = false
		}
		resp.Checks = append(resp.Checks, check)
	}

	status := http.StatusOK
	if !resp.OK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if err := s.parseForm(w, r, s.transcriber.MaxUploadBytes()+multipartOverhead); err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	defer cleanupMultipartForm(r)

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeMappedError(w, r, apperr.New(apperr.KindInvalidInput, "field 'file' is required"))
		return
	}
	defer func() { _ = file.Close() }()

	lang, err := requiredField(r, "lang")
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}

	text, err := s.transcriber.Transcribe(r.Context(), transcription.Request{
		FileName: header.Filename,
		Audio:    file,
		Language: lang,
	})
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, model.TranscribeResponse{TranscribedText: text})
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	if err := s.parseForm(w, r, maxFormBodyBytes); err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	defer cleanupMultipartForm(r)

	var in conversation.Input
	var err error
	if in.Text, err = requiredField(r, "text"); err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	if in.Language, err = requiredField(r, "language"); err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	if in.Context, err = requiredField(r, "context"); err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	in.History = r.FormValue("history")

	answer, err := s.chat.Reply(r.Context(), in)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.ChatResponse{Answer: answer})
}

func (s *server) handleGenerateAudio(w http.ResponseWriter, r *http.Request) {
	if err := s.parseForm(w, r, maxFormBodyBytes); err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	defer cleanupMultipartForm(r)

	text, err := requiredField(r, "text")
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	language, err := requiredField(r, "language")
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}

	err = s.synthesizer.Synthesize(r.Context(), text, language, func(path string) error {
		return serveAudioFile(w, r, path)
	})
	if err != nil {
		s.writeMappedError(w, r, err)
	}
}

// serveAudioFile streams path as the response body. Errors are only
// returned while nothing has been written yet.
func serveAudioFile(w http.ResponseWriter, r *http.Request, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return apperr.Wrap(apperr.KindSynthesis, "generated audio is unavailable", tempstore.StripPath(err))
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return apperr.Wrap(apperr.KindSynthesis, "generated audio is unavailable", tempstore.StripPath(err))
	}

	w.Header().Set("Content-Type", synthesis.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": synthesis.OutputFileName}))
	http.ServeContent(w, r, synthesis.OutputFileName, info.ModTime(), f)
	return nil
}

func (s *server) parseForm(w http.ResponseWriter, r *http.Request, limit int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var err error
	if mediaType == "multipart/form-data" {
		err = r.ParseMultipartForm(minInt64(limit, multipartMemory))
	} else {
		err = r.ParseForm()
	}
	if err == nil {
		return nil
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return apperr.New(apperr.KindPayloadTooLarge, fmt.Sprintf("request exceeds %d bytes", limit))
	}
	return apperr.Wrap(apperr.KindInvalidInput, "invalid form data", err)
}

func requiredField(r *http.Request, name string) (string, error) {
	value := r.FormValue(name)
	if strings.TrimSpace(value) == "" {
		return "", apperr.New(apperr.KindInvalidInput, fmt.Sprintf("field '%s' is required", name))
	}
	return value, nil
}

func (s *server) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	// A kind set by a pipeline stage wins over a timeout it wrapped.
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr) && appErr.Kind != apperr.KindInternal:
		s.writeError(w, r, appErr.Kind.Status(), appErr.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, r, http.StatusGatewayTimeout, "request timed out")
	case errors.Is(err, context.Canceled):
		s.writeError(w, r, 499, "request canceled")
	default:
		s.logger.Error("unhandled error", "request_id", requestIDFromContext(r.Context()), "error", err)
		s.writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, status int, detail string) {
	if rid := requestIDFromContext(r.Context()); rid != "" {
		w.Header().Set(requestIDHeader, rid)
	}
	writeJSON(w, status, model.ErrorResponse{Detail: detail})
}

func (s *server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), requestIDContext, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		duration := time.Since(started)
		if s.metrics != nil {
			s.metrics.ObserveHTTP(route, r.Method, status, duration)
		}

		s.logger.Info("http_request",
			"request_id", requestIDFromContext(r.Context()),
			"method", r.Method,
			"route", route,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", duration.Milliseconds(),
		)
	})
}

func (s *server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "request_id", requestIDFromContext(r.Context()), "panic", rec)
				s.writeError(w, r, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func cleanupMultipartForm(r *http.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}

func requestIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(requestIDContext).(string)
	return value
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
