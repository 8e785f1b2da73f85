package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q", cfg.Port)
	}
	if cfg.GinMode != "release" || cfg.LogLevel != "info" {
		t.Fatalf("mode=%q level=%q", cfg.GinMode, cfg.LogLevel)
	}
	if cfg.APIBasePath != "/api" {
		t.Fatalf("APIBasePath = %q", cfg.APIBasePath)
	}
	if cfg.DBPath != "app.db" || cfg.UploadDir != "uploads" {
		t.Fatalf("DBPath=%q UploadDir=%q", cfg.DBPath, cfg.UploadDir)
	}
	if cfg.FreeLimit != 10 {
		t.Fatalf("FreeLimit = %d", cfg.FreeLimit)
	}
	if cfg.AI.Model != "gpt-4o-mini" || cfg.AI.APIKey != "" {
		t.Fatalf("AI = %+v", cfg.AI)
	}
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 {
		t.Fatalf("rate = %v/%d", cfg.RateRPS, cfg.RateBurst)
	}
	if cfg.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("IdempotencyTTL = %v", cfg.IdempotencyTTL)
	}
	if cfg.OTEL.Enabled || cfg.OTEL.ServiceName != "plank-ai-backend" || cfg.OTEL.SampleRatio != 1.0 {
		t.Fatalf("OTEL = %+v", cfg.OTEL)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("GIN_MODE", "DEBUG")
	t.Setenv("LOG_LEVEL", "warning")
	t.Setenv("FREE_LIMIT", "3")
	t.Setenv("OPENAI_MODEL", "gpt-4o")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.test, https://b.test ,")
	t.Setenv("API_BASE_PATH", "api/v1/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" || cfg.GinMode != "debug" {
		t.Fatalf("port=%q mode=%q", cfg.Port, cfg.GinMode)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("warning alias not normalized: %q", cfg.LogLevel)
	}
	if cfg.FreeLimit != 3 || cfg.AI.Model != "gpt-4o" {
		t.Fatalf("FreeLimit=%d Model=%q", cfg.FreeLimit, cfg.AI.Model)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[1] != "https://b.test" {
		t.Fatalf("origins = %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Fatalf("APIBasePath = %q", cfg.APIBasePath)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"bad log level", "LOG_LEVEL", "loud", "LOG_LEVEL"},
		{"zero free limit", "FREE_LIMIT", "0", "FREE_LIMIT"},
		{"negative rps", "RATE_RPS", "-1", "RATE_RPS"},
		{"zero burst", "RATE_BURST", "0", "RATE_BURST"},
		{"bad sample ratio", "OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
		{"zero idempotency ttl", "IDEMPOTENCY_TTL", "-1s", "IDEMPOTENCY_TTL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %s", err, tc.want)
			}
		})
	}
}

func TestLoad_UnknownGinModeFallsBack(t *testing.T) {
	t.Setenv("GIN_MODE", "production")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GinMode != "release" {
		t.Fatalf("GinMode = %q", cfg.GinMode)
	}
}

func TestGetbool(t *testing.T) {
	cases := map[string]bool{
		"1": true, "true": true, "YES": true, "on": true,
		"0": false, "false": false, "no": false, "off": false,
	}
	for v, want := range cases {
		t.Setenv("FLAG_X", v)
		if got := getbool("FLAG_X", !want); got != want {
			t.Fatalf("getbool(%q) = %v, want %v", v, got, want)
		}
	}
	t.Setenv("FLAG_X", "maybe")
	if !getbool("FLAG_X", true) {
		t.Fatalf("unparseable value should fall back to default")
	}
}

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":        "/",
		"/":       "/",
		"api":     "/api",
		"/api":    "/api",
		"/api/":   "/api",
		"api/v2/": "/api/v2",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSplitCSV(t *testing.T) {
	if got := splitCSV(""); got != nil {
		t.Fatalf("empty input = %v", got)
	}
	got := splitCSV("a, b ,, c")
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("splitCSV = %v", got)
	}
}
