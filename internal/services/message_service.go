// Package services – MessageService
//
// This file implements MessageService, the application-level component that
// owns the lifecycle of chat messages and assistant replies. It validates
// inputs, checks conversation ownership, charges the usage gate, produces the
// assistant reply (AI completion for text, per-type analysis for file
// attachments), and persists the user/assistant message pair atomically.
//
// Optional enhancement: it also auto-generates a conversation title from the
// first user prompt when the conversation still has a default/empty title.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include conversation/user identifiers and pagination parameters where
// applicable.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/plankdev/plank-ai-backend/internal/ai"
	"github.com/plankdev/plank-ai-backend/internal/domain"
	"github.com/plankdev/plank-ai-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	roleUser      = "user"
	roleAssistant = "assistant"

	// default titles we consider placeholders eligible for auto-generation
	defaultTitleNew      = "New Chat"
	defaultTitleUntitled = "Untitled"

	// defaultMaxPromptRunes applies when MaxPromptRunes is left unset.
	defaultMaxPromptRunes = 4000

	// defaultIdempotencyTTL applies when Remember is called with a
	// non-positive retention window.
	defaultIdempotencyTTL = 24 * time.Hour
)

// UsageGate admits or rejects one metered action. Satisfied by UsageService.
type UsageGate interface {
	CheckAndConsume(ctx context.Context, userID string) (*domain.User, error)
}

// FileAnalyzer produces the assistant reply for a message that carries a file
// attachment. Satisfied by FileService.
type FileAnalyzer interface {
	Analyze(ctx context.Context, file repo.FileRef, prompt string) string
}

// SendInput is the request to Send. File fields are optional; a send must
// carry text content, a file, or both.
type SendInput struct {
	ConversationID string
	Content        string
	FileURL        string
	FileName       string
	FileType       string
}

// SendResult pairs the persisted user and assistant messages plus the usage
// snapshot after the charge, so the client can update its quota display
// without a second round trip.
type SendResult struct {
	UserMessage      *domain.Message `json:"userMessage"`
	AssistantMessage *domain.Message `json:"assistantMessage"`
	UsageCount       int             `json:"usageCount"`
	IsPremium        bool            `json:"isPremium"`
}

// MessageService coordinates message persistence and assistant replies.
type MessageService struct {
	DB       *gorm.DB
	AI       ai.Responder
	Gate     UsageGate
	Analyzer FileAnalyzer

	// Optional guards
	MaxPromptRunes int

	// Title generation config
	TitleLocale language.Tag
	TitleMaxLen int
}

// Send validates the input, verifies conversation ownership, charges the
// usage gate, produces the assistant reply, and persists both messages
// atomically. It may auto-generate a conversation title.
//
// The gate is charged before the AI call, so a quota rejection never spends
// an upstream completion. ErrQuotaExceeded propagates to the handler, which
// maps it to 403 with an upgrade prompt.
func (s *MessageService) Send(ctx context.Context, userID string, in SendInput) (*SendResult, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("conversation.id", in.ConversationID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	// Normalize & validate content
	in.Content = strings.TrimSpace(in.Content)
	if in.Content == "" && in.FileURL == "" {
		return nil, ErrEmptyContent
	}
	if s.MaxPromptRunes > 0 && utf8.RuneCountInString(in.Content) > s.MaxPromptRunes {
		return nil, ErrTooLong
	}

	// Ensure the conversation exists and belongs to the user
	conv, err := repo.GetConversation(ctx, s.DB, in.ConversationID, userID)
	if err != nil {
		return nil, ErrConversationNotFound
	}

	// Charge the gate before any AI work
	user, err := s.Gate.CheckAndConsume(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Build the assistant reply
	var fileRef *repo.FileRef
	var reply string
	if in.FileURL != "" {
		fileRef = &repo.FileRef{URL: in.FileURL, Name: in.FileName, Type: in.FileType}
		reply = s.Analyzer.Analyze(ctx, *fileRef, in.Content)
	} else {
		reply = s.AI.GenerateReply(ctx, in.Content)
	}

	// Persist user + assistant (and maybe update title) in one transaction
	out := &SendResult{UsageCount: user.UsageCount, IsPremium: user.IsPremium}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		um, err := repo.CreateMessage(tx, in.ConversationID, roleUser, in.Content, fileRef)
		if err != nil {
			return err
		}
		am, err := repo.CreateMessage(tx, in.ConversationID, roleAssistant, reply, nil)
		if err != nil {
			return err
		}
		out.UserMessage, out.AssistantMessage = um, am

		// Auto-title if placeholder
		if s.shouldAutoTitle(conv.Title) {
			gen := s.generateTitleFromPrompt(in.Content)
			if gen == "" && in.FileName != "" {
				gen = in.FileName
			}
			if gen != "" {
				gen = s.clipTitle(gen)
				if uerr := tx.Model(&domain.Conversation{}).Where("id = ?", in.ConversationID).Update("title", gen).Error; uerr == nil {
					conv.Title = gen
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListPage returns paginated messages for a conversation owned by userID.
func (s *MessageService) ListPage(ctx context.Context, userID, conversationID string, page, pageSize int) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	if _, err := repo.GetConversation(ctx, s.DB, conversationID, userID); err != nil {
		return nil, 0, ErrConversationNotFound
	}

	total, err := repo.CountMessages(s.DB.WithContext(ctx), conversationID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}

	items, err := repo.ListMessagesPage(s.DB.WithContext(ctx), conversationID, offset, pageSize)
	return items, total, err
}

// MaxRunes reports the prompt length cap, falling back to the default when
// the service was constructed without one.
func (s *MessageService) MaxRunes() int {
	if s.MaxPromptRunes > 0 {
		return s.MaxPromptRunes
	}
	return defaultMaxPromptRunes
}

// Digest returns the message count and latest timestamp for a conversation,
// for conditional (ETag) responses. Ownership is verified first so the
// digest of another user's conversation is never observable.
func (s *MessageService) Digest(ctx context.Context, userID, conversationID string) (int64, *time.Time, error) {
	if _, err := repo.GetConversation(ctx, s.DB, conversationID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil, ErrConversationNotFound
		}
		return 0, nil, err
	}
	return repo.MessagesStats(ctx, s.DB, conversationID)
}

// Replay returns the stored result of a previous send recorded under the
// same (user, conversation, key) tuple, or nil when no live record exists.
// The recorded user/assistant pair is re-read so the retry sees the same
// response body as the original request.
func (s *MessageService) Replay(ctx context.Context, userID, conversationID, key string) (*SendResult, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, conversationID, key, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	am, err := repo.GetMessage(s.DB.WithContext(ctx), rec.MessageID)
	if err != nil {
		return nil, err
	}
	out := &SendResult{AssistantMessage: am}
	if rec.UserMessageID != "" {
		if um, uerr := repo.GetMessage(s.DB.WithContext(ctx), rec.UserMessageID); uerr == nil {
			out.UserMessage = um
		}
	}
	return out, nil
}

// Remember records a successful send under an idempotency key. A duplicate
// record (a concurrent retry won the insert) is not an error.
func (s *MessageService) Remember(ctx context.Context, userID, conversationID, key string, res *SendResult, ttl time.Duration) error {
	if res == nil || res.AssistantMessage == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	var userMessageID string
	if res.UserMessage != nil {
		userMessageID = res.UserMessage.ID
	}
	_, err := repo.CreateIdempotency(ctx, s.DB, userID, conversationID, key, userMessageID, res.AssistantMessage.ID, 200, ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

// shouldAutoTitle reports whether the current title is a placeholder.
func (s *MessageService) shouldAutoTitle(current string) bool {
	t := strings.TrimSpace(strings.ToLower(current))
	return t == "" || t == strings.ToLower(defaultTitleNew) || t == strings.ToLower(defaultTitleUntitled)
}

// generateTitleFromPrompt derives a concise title from the prompt.
func (s *MessageService) generateTitleFromPrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return ""
	}
	toks := titleWordRE.FindAllString(strings.ToLower(prompt), -1)
	if len(toks) == 0 {
		return ""
	}

	titleCaser := cases.Title(s.TitleLocaleOrDefault())
	out := make([]string, 0, 8)

	for _, w := range toks {
		if _, skip := titleStopWords[w]; skip {
			continue
		}
		out = append(out, titleCaser.String(w))
		if len(out) >= 8 {
			break
		}
	}
	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, " ")
}

// clipTitle truncates a generated title to the configured maximum rune length.
func (s *MessageService) clipTitle(title string) string {
	max := s.TitleMaxLen
	if max <= 0 {
		max = 60
	}
	if utf8.RuneCountInString(title) > max {
		return string([]rune(title)[:max])
	}
	return title
}

// TitleLocaleOrDefault returns the configured locale for casing or Indonesian if unset.
func (s *MessageService) TitleLocaleOrDefault() language.Tag {
	if s.TitleLocale == language.Und {
		return language.Indonesian
	}
	return s.TitleLocale
}

// --- Title generation helpers ---

// Extract Unicode letters with optional trailing numbers.
var titleWordRE = regexp.MustCompile(`[\p{L}]+[\p{N}]*`)

// Mixed Indonesian/English stop-words set for compact titles.
var titleStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"is": {}, "are": {}, "for": {}, "on": {}, "with": {}, "by": {}, "from": {},
	"at": {}, "as": {}, "that": {}, "this": {}, "it": {}, "be": {}, "was": {}, "were": {},
	"yang": {}, "dan": {}, "atau": {}, "di": {}, "ke": {}, "dari": {}, "untuk": {},
	"dengan": {}, "pada": {}, "adalah": {}, "itu": {}, "ini": {}, "saya": {}, "kamu": {},
}
