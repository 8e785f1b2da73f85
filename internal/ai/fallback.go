package ai

import "strings"

// Canned replies used when the completion API is unreachable or unconfigured.
// The classifier is intentionally crude: greeting, question, or default.

var fallbackGreetings = []string{"hello", "hi", "halo", "hai", "hey", "greetings"}

var fallbackQuestionWords = []string{
	"what", "who", "where", "when", "why", "how", "can", "could",
	"apa", "siapa", "dimana", "kapan", "kenapa", "bagaimana", "bisakah",
}

// fallbackReply picks a canned response matching the rough shape of the prompt.
func fallbackReply(prompt string) string {
	p := strings.ToLower(prompt)

	for _, g := range fallbackGreetings {
		if strings.Contains(p, g) {
			return "Halo! Saya AI PLANK.DEV, asisten AI untuk membantu Anda. " +
				"Saat ini sedang ada masalah koneksi dengan server AI. " +
				"Tim kami sedang bekerja untuk memperbaikinya segera. Terima kasih atas kesabaran Anda."
		}
	}

	for _, q := range fallbackQuestionWords {
		if strings.HasPrefix(p, q) {
			return fallbackQuestionReply
		}
	}
	if strings.Contains(p, "?") {
		return fallbackQuestionReply
	}

	return "Mohon maaf, saat ini layanan AI kami sedang mengalami gangguan sementara. " +
		"Tim teknis kami sedang bekerja untuk memperbaikinya. Silakan coba lagi dalam beberapa saat. " +
		"Terima kasih atas kesabaran dan pengertian Anda."
}

const fallbackQuestionReply = "Terima kasih atas pertanyaan Anda. " +
	"Saat ini layanan AI kami sedang mengalami masalah teknis. " +
	"Silakan coba lagi nanti atau hubungi kami jika pertanyaan Anda mendesak."

// fallbackImageAnalysis is returned when Vision analysis is unavailable.
func fallbackImageAnalysis() string {
	return "## Analisis Gambar - AI PLANK.DEV\n\n" +
		"Saya telah menerima gambar Anda dan dapat memberikan analisis dasar.\n\n" +
		"Untuk analisis yang lebih detail diperlukan konfigurasi API. " +
		"Silakan ajukan pertanyaan spesifik tentang gambar ini dan saya akan membantu sebisa mungkin."
}
