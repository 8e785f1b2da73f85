// Package ai wraps the OpenAI-compatible chat completion API behind a small
// interface the services layer can depend on. It issues a single attempt per
// request (no retry policy) and degrades to canned replies when the API key
// is missing or the upstream call fails, so an AI outage is never surfaced
// as an error to the end user.
package ai

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

// systemPrompt pins the assistant persona. Replies follow the language of the
// question (Indonesian by default, English for English questions).
const systemPrompt = "Kamu adalah AI PLANK.DEV, asisten AI canggih yang dibuat oleh PLANKTON4YOU.DEV. " +
	"Kamu sangat membantu, berpengetahuan luas, dan dapat membantu berbagai tugas termasuk menjawab pertanyaan, " +
	"menganalisis file dan gambar yang diunggah, bantuan coding, pemecahan masalah, dan brainstorming ide. " +
	"Selalu bersikap profesional dan ramah, dan berikan respons yang detail dan membantu. " +
	"Jawab dalam bahasa Indonesia dengan natural; jika pertanyaan dalam bahasa Inggris, jawab dalam bahasa Inggris. " +
	"Selalu pertahankan identitas sebagai AI PLANK.DEV."

const imageSystemPrompt = "Kamu adalah AI PLANK.DEV, asisten AI canggih untuk menganalisis gambar. " +
	"Berikan analisis yang detail, mendalam, dan berguna dalam bahasa Indonesia. " +
	"Jelaskan apa yang kamu lihat dalam gambar dengan sangat detail termasuk objek, warna, komposisi, dan konteks."

// Responder is the contract consumed by the message service. Implementations
// must be safe for concurrent use.
type Responder interface {
	// GenerateReply produces an assistant reply for a user prompt. It never
	// fails: upstream errors are converted into a fallback reply.
	GenerateReply(ctx context.Context, prompt string) string
	// AnalyzeImage describes a base64-encoded JPEG/PNG payload.
	AnalyzeImage(ctx context.Context, base64Image string) string
}

// Client talks to an OpenAI-compatible endpoint using go-openai.
// A Client with no API key is valid and always answers from the fallback set.
type Client struct {
	api   *openai.Client
	model string

	// MaxTokens caps completion length; zero means the library default.
	MaxTokens int
}

// NewClient builds a Client for the given API key and model. An empty key
// yields a fallback-only client, which keeps the rest of the application
// fully functional in development.
func NewClient(apiKey, model string) *Client {
	c := &Client{model: model, MaxTokens: 2000}
	if strings.TrimSpace(apiKey) != "" {
		c.api = openai.NewClient(apiKey)
	}
	return c
}

// GenerateReply sends the prompt as a single-turn chat completion.
// One attempt only; on any upstream failure the canned fallback is returned.
func (c *Client) GenerateReply(ctx context.Context, prompt string) string {
	if c.api == nil {
		log.Warn().Msg("ai: api key not configured, using fallback response")
		return fallbackReply(prompt)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:        c.MaxTokens,
		Temperature:      0.8,
		PresencePenalty:  0.1,
		FrequencyPenalty: 0.1,
	})
	if err != nil {
		log.Error().Err(err).Msg("ai: chat completion failed")
		return fallbackReply(prompt)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "Maaf, saya tidak bisa menghasilkan respons saat ini. Silakan coba lagi."
	}
	return resp.Choices[0].Message.Content
}

// AnalyzeImage runs a Vision completion over an inline base64 image.
func (c *Client) AnalyzeImage(ctx context.Context, base64Image string) string {
	if c.api == nil {
		return fallbackImageAnalysis()
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: imageSystemPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: "Tolong analisis gambar ini secara detail. Jelaskan semua yang kamu lihat dengan lengkap dan mendalam.",
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: "data:image/jpeg;base64," + base64Image,
						},
					},
				},
			},
		},
		MaxTokens: 1500,
	})
	if err != nil {
		log.Error().Err(err).Msg("ai: image analysis failed")
		return fallbackImageAnalysis()
	}

	analysis := "Maaf, tidak dapat menganalisis gambar saat ini."
	if len(resp.Choices) > 0 && strings.TrimSpace(resp.Choices[0].Message.Content) != "" {
		analysis = resp.Choices[0].Message.Content
	}
	return "## Analisis Gambar - AI PLANK.DEV\n\n" + analysis
}
