package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "LOG_MODE", "GEMINI_API_KEY", "GEMINI_MODEL", "OPENAI_API_KEY", "OPENAI_MODEL",
		"GENERATION_TIMEOUT", "AUTO_ADVANCE_DELAY", "MAX_UPLOAD_BYTES", "HISTORY_DB_PATH", "CORS_ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
	}

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("port = %q, want 8080", cfg.Port)
	}
	if cfg.GeminiModel != "gemini-2.0-flash" {
		t.Errorf("gemini model = %q", cfg.GeminiModel)
	}
	if cfg.GenerationTimeout != 60*time.Second {
		t.Errorf("generation timeout = %v", cfg.GenerationTimeout)
	}
	if cfg.AutoAdvanceDelay != 1200*time.Millisecond {
		t.Errorf("auto advance delay = %v", cfg.AutoAdvanceDelay)
	}
	if cfg.MaxUploadBytes != 20<<20 {
		t.Errorf("max upload = %d", cfg.MaxUploadBytes)
	}
	if !cfg.MockMode() {
		t.Error("expected mock mode without credentials")
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("allowed origins = %v", cfg.AllowedOrigins)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("AUTO_ADVANCE_DELAY", "250ms")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("HISTORY_DB_PATH", t.TempDir()+"/nested/history.db")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.MockMode() {
		t.Error("expected live mode with a Gemini key")
	}
	if cfg.AutoAdvanceDelay != 250*time.Millisecond {
		t.Errorf("auto advance delay = %v", cfg.AutoAdvanceDelay)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("allowed origins = %v", cfg.AllowedOrigins)
	}
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("GENERATION_TIMEOUT", "soon")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for invalid duration")
	}

	t.Setenv("GENERATION_TIMEOUT", "")
	t.Setenv("MAX_UPLOAD_BYTES", "-1")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for negative upload limit")
	}
}
