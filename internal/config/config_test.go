package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ListenAddr != ":8000" {
		t.Fatalf("unexpected listen addr: %q", cfg.ListenAddr)
	}
	if cfg.MaxUploadBytes != 5<<20 {
		t.Fatalf("unexpected max upload: %d", cfg.MaxUploadBytes)
	}
	if cfg.MaxAudioDuration != 30*time.Second {
		t.Fatalf("unexpected max audio duration: %v", cfg.MaxAudioDuration)
	}
	if cfg.STTModelEN != "base.en" || cfg.STTModelPT != "base" {
		t.Fatalf("unexpected stt models: %q %q", cfg.STTModelEN, cfg.STTModelPT)
	}
	if !cfg.STTSerialize {
		t.Fatal("expected serialized inference by default")
	}
	if cfg.GeminiModel != "gemini-1.5-flash-latest" {
		t.Fatalf("unexpected gemini model: %q", cfg.GeminiModel)
	}
	if cfg.TTSProvider != TTSProviderGTTS {
		t.Fatalf("unexpected tts provider: %q", cfg.TTSProvider)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Fatalf("unexpected cors origins: %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GEMINI_BASE_URL", "https://gemini.example/v1beta/")
	t.Setenv("STT_SERIALIZE", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("CHAT_TIMEOUT_SECONDS", "5")
	t.Setenv("TTS_PROVIDER", "OpenAI")
	t.Setenv("TTS_API_KEY", "k")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.GeminiBaseURL != "https://gemini.example/v1beta" {
		t.Fatalf("unexpected base url: %q", cfg.GeminiBaseURL)
	}
	if cfg.STTSerialize {
		t.Fatal("expected serialization disabled")
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected cors origins: %v", cfg.CORSAllowedOrigins)
	}
	if cfg.ChatTimeout != 5*time.Second {
		t.Fatalf("unexpected chat timeout: %v", cfg.ChatTimeout)
	}
	if cfg.TTSProvider != TTSProviderOpenAI {
		t.Fatalf("unexpected tts provider: %q", cfg.TTSProvider)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"MAX_UPLOAD_BYTES":       "0",
		"DECODE_TIMEOUT_SECONDS": "-1",
		"TTS_PROVIDER":           "polly",
		"RATE_LIMIT_PER_MINUTE":  "-5",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}

func TestOpenAIProviderNeedsCredentials(t *testing.T) {
	t.Setenv("TTS_PROVIDER", "openai")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without TTS_API_KEY")
	}
}

func TestLoadDotEnv(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("GEMINI_API_KEY=from-file\nGEMINI_MODEL=gemini-from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("GEMINI_API_KEY", "")
	os.Unsetenv("GEMINI_API_KEY")
	t.Setenv("GEMINI_MODEL", "from-env")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("GEMINI_API_KEY") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.GeminiAPIKey != "from-file" {
		t.Fatalf("expected key from file, got %q", cfg.GeminiAPIKey)
	}
	if cfg.GeminiModel != "from-env" {
		t.Fatalf("existing env must win, got %q", cfg.GeminiModel)
	}
}
