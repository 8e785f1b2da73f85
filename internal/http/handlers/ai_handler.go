// AI passthrough HTTP handler.
//
// POST /ai/chat forwards a single prompt to the AI client and returns the
// reply without persistence or usage metering. It exists for the landing
// page demo widget; the metered, persisted path is POST /messages.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AIChatRequest is the JSON payload for the passthrough endpoint.
type AIChatRequest struct {
	// Message is the user prompt.
	Message string `json:"message" binding:"required,min=1" example:"Halo, siapa kamu?"`
}

// AIChatResponse carries the assistant reply.
type AIChatResponse struct {
	Response string `json:"response"`
}

// AIChat godoc
// @ID          aiChat
// @Summary     Unmetered AI chat passthrough
// @Description Forwards a prompt to the AI and returns the reply. Nothing is persisted and no quota is consumed.
// @Tags        AI
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.AIChatRequest  true  "Prompt payload"
//
// @Success     200  {object}  handlers.AIChatResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /ai/chat [post]
func (h *Handlers) AIChat(c *gin.Context) {
	var req AIChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message required")
		return
	}
	reply := h.aiSvc.GenerateReply(c.Request.Context(), strings.TrimSpace(req.Message))
	ok(c, http.StatusOK, AIChatResponse{Response: reply})
}
