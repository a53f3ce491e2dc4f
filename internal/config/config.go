package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	cenv "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	TTSProviderGTTS   = "gtts"
	TTSProviderOpenAI = "openai"
)

type Config struct {
	ListenAddr         string
	LogLevel           string
	MaxUploadBytes     int64
	MaxAudioDuration   time.Duration
	TempDir            string
	FFmpegPath         string
	DecodeTimeout      time.Duration
	STTBaseURL         string
	STTAPIKey          string
	STTModelEN         string
	STTModelPT         string
	STTTimeout         time.Duration
	STTSerialize       bool
	GeminiBaseURL      string
	GeminiAPIKey       string
	GeminiModel        string
	ChatTimeout        time.Duration
	TTSProvider        string
	TTSBaseURL         string
	TTSAPIKey          string
	TTSModel           string
	TTSVoice           string
	TTSTimeout         time.Duration
	CORSAllowedOrigins []string
	RateLimitPerMinute int
}

type envConfig struct {
	ListenAddr           string   `env:"LISTEN_ADDR" envDefault:":8000"`
	LogLevel             string   `env:"LOG_LEVEL" envDefault:"info"`
	MaxUploadBytes       int64    `env:"MAX_UPLOAD_BYTES" envDefault:"5242880"`
	MaxAudioSeconds      int      `env:"MAX_AUDIO_SECONDS" envDefault:"30"`
	TempDir              string   `env:"TEMP_DIR"`
	FFmpegPath           string   `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	DecodeTimeoutSeconds int      `env:"DECODE_TIMEOUT_SECONDS" envDefault:"30"`
	STTBaseURL           string   `env:"STT_BASE_URL" envDefault:"http://localhost:9000/v1"`
	STTAPIKey            string   `env:"STT_API_KEY"`
	STTModelEN           string   `env:"STT_MODEL_EN" envDefault:"base.en"`
	STTModelPT           string   `env:"STT_MODEL_PT" envDefault:"base"`
	STTTimeoutSeconds    int      `env:"STT_TIMEOUT_SECONDS" envDefault:"120"`
	STTSerialize         bool     `env:"STT_SERIALIZE" envDefault:"true"`
	GeminiBaseURL        string   `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	GeminiAPIKey         string   `env:"GEMINI_API_KEY"`
	GeminiModel          string   `env:"GEMINI_MODEL" envDefault:"gemini-1.5-flash-latest"`
	ChatTimeoutSeconds   int      `env:"CHAT_TIMEOUT_SECONDS" envDefault:"30"`
	TTSProvider          string   `env:"TTS_PROVIDER" envDefault:"gtts"`
	TTSBaseURL           string   `env:"TTS_BASE_URL"`
	TTSAPIKey            string   `env:"TTS_API_KEY"`
	TTSModel             string   `env:"TTS_MODEL" envDefault:"tts-1"`
	TTSVoice             string   `env:"TTS_VOICE" envDefault:"alloy"`
	TTSTimeoutSeconds    int      `env:"TTS_TIMEOUT_SECONDS" envDefault:"30"`
	CORSAllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	RateLimitPerMinute   int      `env:"RATE_LIMIT_PER_MINUTE" envDefault:"60"`
}

// LoadDotEnv reads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is fine.
func LoadDotEnv(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func Load() (Config, error) {
	var raw envConfig
	if err := cenv.Parse(&raw); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:         strings.TrimSpace(raw.ListenAddr),
		LogLevel:           strings.ToLower(strings.TrimSpace(raw.LogLevel)),
		MaxUploadBytes:     raw.MaxUploadBytes,
		MaxAudioDuration:   time.Duration(raw.MaxAudioSeconds) * time.Second,
		TempDir:            strings.TrimSpace(raw.TempDir),
		FFmpegPath:         strings.TrimSpace(raw.FFmpegPath),
		DecodeTimeout:      time.Duration(raw.DecodeTimeoutSeconds) * time.Second,
		STTBaseURL:         strings.TrimRight(strings.TrimSpace(raw.STTBaseURL), "/"),
		STTAPIKey:          strings.TrimSpace(raw.STTAPIKey),
		STTModelEN:         strings.TrimSpace(raw.STTModelEN),
		STTModelPT:         strings.TrimSpace(raw.STTModelPT),
		STTTimeout:         time.Duration(raw.STTTimeoutSeconds) * time.Second,
		STTSerialize:       raw.STTSerialize,
		GeminiBaseURL:      strings.TrimRight(strings.TrimSpace(raw.GeminiBaseURL), "/"),
		GeminiAPIKey:       strings.TrimSpace(raw.GeminiAPIKey),
		GeminiModel:        strings.TrimSpace(raw.GeminiModel),
		ChatTimeout:        time.Duration(raw.ChatTimeoutSeconds) * time.Second,
		TTSProvider:        strings.ToLower(strings.TrimSpace(raw.TTSProvider)),
		TTSBaseURL:         strings.TrimRight(strings.TrimSpace(raw.TTSBaseURL), "/"),
		TTSAPIKey:          strings.TrimSpace(raw.TTSAPIKey),
		TTSModel:           strings.TrimSpace(raw.TTSModel),
		TTSVoice:           strings.TrimSpace(raw.TTSVoice),
		TTSTimeout:         time.Duration(raw.TTSTimeoutSeconds) * time.Second,
		CORSAllowedOrigins: cleanList(raw.CORSAllowedOrigins),
		RateLimitPerMinute: raw.RateLimitPerMinute,
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("LISTEN_ADDR must not be empty")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be > 0")
	}
	if c.MaxAudioDuration <= 0 {
		return errors.New("MAX_AUDIO_SECONDS must be > 0")
	}
	if c.FFmpegPath == "" {
		return errors.New("FFMPEG_PATH must not be empty")
	}
	if c.DecodeTimeout <= 0 {
		return errors.New("DECODE_TIMEOUT_SECONDS must be > 0")
	}
	if c.STTBaseURL == "" {
		return errors.New("STT_BASE_URL must not be empty")
	}
	if c.STTModelEN == "" || c.STTModelPT == "" {
		return errors.New("STT_MODEL_EN and STT_MODEL_PT must not be empty")
	}
	if c.STTTimeout <= 0 {
		return errors.New("STT_TIMEOUT_SECONDS must be > 0")
	}
	if c.GeminiBaseURL == "" {
		return errors.New("GEMINI_BASE_URL must not be empty")
	}
	if c.GeminiModel == "" {
		return errors.New("GEMINI_MODEL must not be empty")
	}
	if c.ChatTimeout <= 0 {
		return errors.New("CHAT_TIMEOUT_SECONDS must be > 0")
	}
	switch c.TTSProvider {
	case TTSProviderGTTS:
	case TTSProviderOpenAI:
		if c.TTSAPIKey == "" && c.TTSBaseURL == "" {
			return errors.New("TTS_PROVIDER=openai requires TTS_API_KEY or TTS_BASE_URL")
		}
	default:
		return fmt.Errorf("TTS_PROVIDER must be %q or %q", TTSProviderGTTS, TTSProviderOpenAI)
	}
	if c.TTSTimeout <= 0 {
		return errors.New("TTS_TIMEOUT_SECONDS must be > 0")
	}
	if c.RateLimitPerMinute < 0 {
		return errors.New("RATE_LIMIT_PER_MINUTE must be >= 0")
	}
	return nil
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
