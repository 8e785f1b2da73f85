// Message HTTP handlers.
//
// This file exposes REST endpoints for chat messages:
//   - POST /messages                      (send a message, get assistant reply)
//   - GET  /conversations/{id}/messages   (list paginated messages)
//
// Handlers are transport-thin: they validate and normalize input (line
// endings, length), delegate to MessageService, and implement conditional
// responses (ETag) and idempotency semantics.
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// result exists for (user, conversation, key), the handler returns the
// recorded message pair and sets `Idempotency-Replayed: true`. The
// conversation ID lives in the JSON body, so the replay check happens here
// rather than in middleware.
//
// Quota:
// When the usage gate rejects the send, the response is 403 with
// `upgradeRequired: true` so the client can open the premium upsell.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/plankdev/plank-ai-backend/internal/domain"
	"github.com/plankdev/plank-ai-backend/internal/http/middleware"
	"github.com/plankdev/plank-ai-backend/internal/services"
)

//
// DTOs
//

// PostMessageRequest is the JSON payload for sending a user message. The
// file fields are optional; a send must carry content, a file, or both.
type PostMessageRequest struct {
	// ConversationID identifies the target conversation.
	ConversationID string `json:"conversationId" binding:"required" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	// Content is the user prompt.
	Content string `json:"content" example:"Apa ibu kota Indonesia?"`
	// FileURL references a previously uploaded file (from POST /upload).
	FileURL string `json:"fileUrl,omitempty"`
	// FileName is the original name of the referenced file.
	FileName string `json:"fileName,omitempty"`
	// FileType is the MIME type of the referenced file.
	FileType string `json:"fileType,omitempty"`
}

// PostMessageResponse pairs the persisted user message with the assistant
// reply, plus the usage counter after the charge.
type PostMessageResponse struct {
	UserMessage *domain.Message `json:"userMessage"`
	AIMessage   *domain.Message `json:"aiMessage"`
	UsageCount  int             `json:"usageCount"`
	IsPremium   bool            `json:"isPremium"`
}

// ListMessagesResponse contains a page of messages and pagination metadata.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text for consistent downstream behavior:
// CRLF/CR to LF, runs of 3+ LFs to two, surrounding whitespace trimmed.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

//
// Handlers
//

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a message and get an assistant reply
// @Description Appends a user message to the conversation and generates an assistant reply.
// @Description Free-tier users consume one usage unit per send; at the limit the response is 403 with upgradeRequired.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (demo header)"  example(user123)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"
// @Param       body             body    handlers.PostMessageRequest  true  "User message payload"
//
// @Success     200  {object}  handlers.PostMessageResponse  "User message and assistant reply"
// @Failure     400  {object}  handlers.ErrorResponse        "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse        "Free quota exhausted"
// @Failure     404  {object}  handlers.ErrorResponse        "Conversation not found"
// @Failure     500  {object}  handlers.ErrorResponse        "Internal error"
// @Router      /messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	ctx := c.Request.Context()

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversationId required")
		return
	}
	if _, err := uuid.Parse(req.ConversationID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a UUID")
		return
	}

	content := sanitizeContent(req.Content)
	maxRunes := h.msgSvc.MaxRunes()
	if maxRunes > 0 && utf8.RuneCountInString(content) > maxRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("content too long: max %d runes", maxRunes))
		return
	}
	if content == "" && req.FileURL == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content or file required")
		return
	}

	currentUser := userID(c)

	// Idempotency (replay path): the key was validated by middleware; the
	// record is scoped to the conversation from the body. The replayed body
	// echoes the recorded message pair plus the current usage snapshot.
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" {
		if rep, err := h.msgSvc.Replay(ctx, currentUser, req.ConversationID, idemKey); err == nil && rep != nil {
			if u, uerr := h.usageSvc.Snapshot(ctx, currentUser); uerr == nil && u != nil {
				rep.UsageCount = u.UsageCount
				rep.IsPremium = u.IsPremium
			}
			middleware.MarkReplay(c)
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusOK, PostMessageResponse{
				UserMessage: rep.UserMessage,
				AIMessage:   rep.AssistantMessage,
				UsageCount:  rep.UsageCount,
				IsPremium:   rep.IsPremium,
			})
			return
		}
	}

	res, err := h.msgSvc.Send(ctx, currentUser, services.SendInput{
		ConversationID: req.ConversationID,
		Content:        content,
		FileURL:        req.FileURL,
		FileName:       req.FileName,
		FileType:       req.FileType,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrQuotaExceeded):
			middleware.CountMessage("quota_exceeded")
			failWith(c, http.StatusForbidden, ErrorResponse{
				Code:            ErrCodeQuotaExceeded,
				Message:         "Batas penggunaan gratis tercapai. Upgrade ke Pro untuk melanjutkan.",
				UpgradeRequired: true,
			})
		case errors.Is(err, services.ErrConversationNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		case errors.Is(err, services.ErrTooLong):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("content too long: max %d runes", maxRunes))
		case errors.Is(err, services.ErrEmptyContent):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content or file required")
		default:
			middleware.CountMessage("error")
			fail(c, http.StatusInternalServerError, ErrCodeSendFailed, err.Error())
		}
		return
	}
	middleware.CountMessage("ok")

	// Idempotency (store path), best effort.
	if idemKey != "" {
		_ = h.msgSvc.Remember(ctx, currentUser, req.ConversationID, idemKey, res, h.IdemTTL)
	}

	ok(c, http.StatusOK, PostMessageResponse{
		UserMessage: res.UserMessage,
		AIMessage:   res.AssistantMessage,
		UsageCount:  res.UsageCount,
		IsPremium:   res.IsPremium,
	})
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List messages in a conversation
// @Description Returns a paginated list of messages for the given conversation.
// @Tags        Messages
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path   string  true  "Conversation ID (UUID)"  format(uuid)
// @Param       page       query  int     false "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListMessagesResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	conversationID := c.Param("id")

	if _, err := uuid.Parse(conversationID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a UUID")
		return
	}

	uid := userID(c)

	// ETag pre-check. Digest verifies ownership before computing anything, so
	// no header is emitted for a conversation the caller does not own.
	count, maxTS, err := h.msgSvc.Digest(ctx, uid, conversationID)
	switch {
	case err == nil:
		var ts int64
		if maxTS != nil {
			ts = maxTS.Unix()
		}
		etag := fmt.Sprintf(`W/"messages:%s:%d:%d"`, conversationID, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	case errors.Is(err, services.ErrConversationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		return
	}
	// Other digest errors fall through; the list query decides the response.

	page, pageSize := clampPagination(c)

	items, total, err := h.msgSvc.ListPage(ctx, uid, conversationID, page, pageSize)
	if err != nil {
		if errors.Is(err, services.ErrConversationNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	ok(c, http.StatusOK, ListMessagesResponse{
		Messages:   items,
		Pagination: paginationOf(page, pageSize, total),
	})
}
