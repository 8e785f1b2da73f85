// User and usage HTTP handlers, plus the shared handler wiring.
//
// This file declares the service contracts consumed by the HTTP layer, the
// Handlers aggregate that binds them, and the endpoints for the current user
// and their quota:
//   - GET /user    (current user, auto-provisioned on first sight)
//   - GET /usage   (usage counter snapshot)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/plankdev/plank-ai-backend/internal/domain"
	"github.com/plankdev/plank-ai-backend/internal/services"
	"github.com/plankdev/plank-ai-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// ConversationService defines conversation lifecycle operations consumed by
// HTTP handlers. Implementations must be safe for concurrent use and honor
// the provided context.
type ConversationService interface {
	// Create starts a new conversation for userID with an optional title.
	Create(ctx context.Context, userID, title string) (*domain.Conversation, error)
	// List returns all conversations for a user (legacy, non-paginated).
	List(ctx context.Context, userID string) ([]domain.Conversation, error)
	// ListPage returns a page of conversations and the total count.
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Conversation, int64, error)
	// Delete removes a conversation that belongs to userID.
	Delete(ctx context.Context, userID, conversationID string) error
}

// MessageService defines message send and retrieval operations, plus the
// support the transport layer needs for conditional responses and safe
// retries. Keeping these on the service interface means the handlers never
// reach around it to the database.
type MessageService interface {
	// Send appends a user message and an assistant reply atomically.
	Send(ctx context.Context, userID string, in services.SendInput) (*services.SendResult, error)
	// ListPage returns a page of messages within a conversation.
	ListPage(ctx context.Context, userID, conversationID string, page, pageSize int) ([]domain.Message, int64, error)
	// MaxRunes reports the prompt length cap enforced by Send.
	MaxRunes() int
	// Digest returns the message count and latest activity timestamp for a
	// conversation owned by userID, or ErrConversationNotFound.
	Digest(ctx context.Context, userID, conversationID string) (int64, *time.Time, error)
	// Replay returns the recorded result of a previous send with the same
	// idempotency key, or nil when no record exists.
	Replay(ctx context.Context, userID, conversationID, key string) (*services.SendResult, error)
	// Remember records a successful send under an idempotency key so a retry
	// can be replayed instead of re-charged.
	Remember(ctx context.Context, userID, conversationID, key string, res *services.SendResult, ttl time.Duration) error
}

// UsageService defines user provisioning and quota reads.
type UsageService interface {
	// EnsureUser returns the user record, creating a free-tier account on
	// first sight.
	EnsureUser(ctx context.Context, id string) (*domain.User, error)
	// Snapshot reports current usage against the free limit.
	Snapshot(ctx context.Context, userID string) (*services.Usage, error)
}

// PaymentService defines the simulated wallet payment lifecycle.
type PaymentService interface {
	// Create persists a pending payment and returns the wallet deep link.
	Create(ctx context.Context, userID string, amount int, method string) (*services.CreateResult, error)
	// Status re-derives the payment state from elapsed time.
	Status(ctx context.Context, id uint) (*services.StatusResult, error)
	// Confirm applies the manual "I paid" signal.
	Confirm(ctx context.Context, id uint, transactionID string) (*domain.Payment, error)
	// List returns the user's payment history.
	List(ctx context.Context, userID string) ([]domain.Payment, error)
}

// FileService defines upload bookkeeping operations.
type FileService interface {
	// Record persists metadata for a file already written to disk.
	Record(ctx context.Context, userID, storedName, originalName, mimeType string, size int64) (*domain.UploadedFile, error)
	// List returns the user's upload history.
	List(ctx context.Context, userID string) ([]domain.UploadedFile, error)
	// URL maps a stored name to its public path.
	URL(storedName string) string
}

// AIService defines the unmetered chat passthrough.
type AIService interface {
	// GenerateReply produces an assistant reply for a prompt. Never fails.
	GenerateReply(ctx context.Context, prompt string) string
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints of the public API. It depends on
// abstract service interfaces to keep transport concerns separate from
// business logic.
type Handlers struct {
	convSvc  ConversationService
	msgSvc   MessageService
	usageSvc UsageService
	paySvc   PaymentService
	fileSvc  FileService
	aiSvc    AIService

	// MaxUploadBytes caps multipart uploads; zero uses the 50 MiB default.
	MaxUploadBytes int64
	// UploadDir is where multipart uploads are written.
	UploadDir string
	// IdemTTL is the retention window for idempotency records; zero uses 24h.
	IdemTTL time.Duration
}

// New constructs a Handlers instance bound to the given services.
func New(conv ConversationService, msg MessageService, usage UsageService, pay PaymentService, file FileService, ai AIService) *Handlers {
	return &Handlers{
		convSvc:  conv,
		msgSvc:   msg,
		usageSvc: usage,
		paySvc:   pay,
		fileSvc:  file,
		aiSvc:    ai,
	}
}

// userID extracts the authenticated user id from the Gin context (set by
// upstream middleware). If absent, it falls back to the X-User-ID header,
// and finally to "demo-user".
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// Shared DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// paginationOf computes the response metadata for a page.
func paginationOf(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

//
// Handlers
//

// GetUser godoc
// @ID          getUser
// @Summary     Get the current user
// @Description Returns the current user's profile, creating a free-tier account on first sight.
// @Tags        Users
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
//
// @Success     200  {object}  domain.User
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /user [get]
func (h *Handlers) GetUser(c *gin.Context) {
	u, err := h.usageSvc.EnsureUser(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, u)
}

// GetUsage godoc
// @ID          getUsage
// @Summary     Get the usage counter snapshot
// @Description Returns how many free-tier messages the user has consumed. The limit is null for premium users.
// @Tags        Users
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
//
// @Success     200  {object}  services.Usage
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /usage [get]
func (h *Handlers) GetUsage(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)

	// Auto-provision so a fresh identity always has a snapshot to report.
	if _, err := h.usageSvc.EnsureUser(ctx, uid); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	usage, err := h.usageSvc.Snapshot(ctx, uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, usage)
}
