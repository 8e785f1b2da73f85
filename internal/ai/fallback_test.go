package ai

import (
	"context"
	"strings"
	"testing"
)

func TestFallbackReply_Greeting(t *testing.T) {
	for _, prompt := range []string{"halo", "Hi there", "hai apa kabar", "HELLO WORLD"} {
		got := fallbackReply(prompt)
		if !strings.Contains(got, "Halo! Saya AI PLANK.DEV") {
			t.Fatalf("fallbackReply(%q) = %q, want greeting reply", prompt, got)
		}
	}
}

func TestFallbackReply_Question(t *testing.T) {
	cases := []string{
		"what is the capital of France",
		"bagaimana cara kerja goroutine",
		"kenapa langit biru",
		"jelaskan dong?",
	}
	for _, prompt := range cases {
		got := fallbackReply(prompt)
		if got != fallbackQuestionReply {
			t.Fatalf("fallbackReply(%q) = %q, want question reply", prompt, got)
		}
	}
}

func TestFallbackReply_Default(t *testing.T) {
	got := fallbackReply("tolong buatkan ringkasan dokumen")
	if !strings.Contains(got, "gangguan sementara") {
		t.Fatalf("fallbackReply default = %q", got)
	}
}

func TestFallbackImageAnalysis_HasBrandHeader(t *testing.T) {
	got := fallbackImageAnalysis()
	if !strings.HasPrefix(got, "## Analisis Gambar - AI PLANK.DEV") {
		t.Fatalf("fallbackImageAnalysis = %q", got)
	}
}

func TestClient_NoKeyUsesFallback(t *testing.T) {
	c := NewClient("", "gpt-4o-mini")

	got := c.GenerateReply(context.Background(), "halo")
	if !strings.Contains(got, "Halo! Saya AI PLANK.DEV") {
		t.Fatalf("keyless GenerateReply = %q, want canned greeting", got)
	}

	img := c.AnalyzeImage(context.Background(), "aGVsbG8=")
	if !strings.HasPrefix(img, "## Analisis Gambar - AI PLANK.DEV") {
		t.Fatalf("keyless AnalyzeImage = %q", img)
	}
}

func TestClient_WhitespaceKeyIsKeyless(t *testing.T) {
	c := NewClient("   ", "gpt-4o-mini")
	if c.api != nil {
		t.Fatalf("whitespace key should not construct an API client")
	}
}
