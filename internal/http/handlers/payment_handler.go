// Payment HTTP handlers.
//
// This file exposes REST endpoints for the simulated wallet payment flow:
//   - POST /payments              (create a pending payment, get deep link)
//   - GET  /payments              (payment history)
//   - GET  /payments/{id}/status  (poll the lifecycle state)
//   - POST /payments/{id}/confirm (manual "I paid" confirmation)
//
// The status poll is where time-driven transitions are observed; the service
// persists terminal outcomes on first entry, so a 200 here means any premium
// grant is already durable.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/plankdev/plank-ai-backend/internal/domain"
	"github.com/plankdev/plank-ai-backend/internal/http/middleware"
	"github.com/plankdev/plank-ai-backend/internal/services"
)

//
// DTOs
//

// CreatePaymentRequest is the JSON payload for starting a payment.
type CreatePaymentRequest struct {
	// Amount is the price in Indonesian rupiah.
	Amount int `json:"amount" binding:"required" example:"25000"`
	// PaymentMethod selects the wallet: "dana" or "gopay".
	PaymentMethod string `json:"paymentMethod" binding:"required" example:"dana"`
}

// ConfirmPaymentRequest is the JSON payload for the manual confirmation.
type ConfirmPaymentRequest struct {
	// TransactionID optionally records the wallet-side transaction id.
	TransactionID string `json:"transactionId" example:"TRX-20260828-0001"`
}

// ConfirmPaymentResponse acknowledges a confirmed payment.
type ConfirmPaymentResponse struct {
	Payment   *domain.Payment `json:"payment"`
	IsPremium bool            `json:"isPremium"`
}

// ListPaymentsResponse wraps the user's payment history.
type ListPaymentsResponse struct {
	Payments []domain.Payment `json:"payments"`
}

// paymentID parses the :id path parameter.
func paymentID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "payment id must be a positive integer")
		return 0, false
	}
	return uint(id), true
}

//
// Handlers
//

// CreatePayment godoc
// @ID          createPayment
// @Summary     Start a wallet payment
// @Description Creates a pending payment and returns the wallet deep link plus a Play Store fallback URL.
// @Tags        Payments
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.CreatePaymentRequest  true  "Payment payload"
//
// @Success     201  {object}  services.CreateResult
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid amount or method"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /payments [post]
func (h *Handlers) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "amount and paymentMethod required")
		return
	}

	res, err := h.paySvc.Create(c.Request.Context(), userID(c), req.Amount, req.PaymentMethod)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidAmount):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "amount must be positive")
		case errors.Is(err, services.ErrInvalidPaymentMethod):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "paymentMethod must be dana or gopay")
		default:
			fail(c, http.StatusInternalServerError, ErrCodePaymentFailed, err.Error())
		}
		return
	}

	middleware.CountPayment(req.PaymentMethod, "created")
	ok(c, http.StatusCreated, res)
}

// PaymentStatus godoc
// @ID          paymentStatus
// @Summary     Poll a payment's status
// @Description Re-derives the payment state from elapsed time. On first entry into a terminal state the
// @Description outcome is persisted and, when completed, the user is upgraded to premium.
// @Tags        Payments
// @Produce     json
//
// @Param       id  path  int  true  "Payment ID"  example(42)
//
// @Success     200  {object}  services.StatusResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Payment not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /payments/{id}/status [get]
func (h *Handlers) PaymentStatus(c *gin.Context) {
	id, okID := paymentID(c)
	if !okID {
		return
	}

	res, err := h.paySvc.Status(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrPaymentNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "payment not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodePaymentFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, res)
}

// ConfirmPayment godoc
// @ID          confirmPayment
// @Summary     Confirm a payment manually
// @Description Marks the payment completed (the "I have paid" signal) and upgrades the user to premium,
// @Description regardless of how much time has passed since creation. A payment the timer already marked
// @Description failed is overridden; one already completed is acknowledged without a second grant.
// @Tags        Payments
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    int     true  "Payment ID"             example(42)
// @Param       body       body    handlers.ConfirmPaymentRequest  false  "Optional transaction reference"
//
// @Success     200  {object}  handlers.ConfirmPaymentResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Payment not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /payments/{id}/confirm [post]
func (h *Handlers) ConfirmPayment(c *gin.Context) {
	id, okID := paymentID(c)
	if !okID {
		return
	}

	var req ConfirmPaymentRequest
	// Body is optional; ignore bind errors from an empty body.
	_ = c.ShouldBindJSON(&req)

	p, err := h.paySvc.Confirm(c.Request.Context(), id, req.TransactionID)
	if err != nil {
		if errors.Is(err, services.ErrPaymentNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "payment not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodePaymentFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ConfirmPaymentResponse{
		Payment:   p,
		IsPremium: p.Status == domain.PaymentStatusCompleted,
	})
}

// ListPayments godoc
// @ID          listPayments
// @Summary     List the user's payments
// @Description Returns the user's payment history, most recent first.
// @Tags        Payments
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
//
// @Success     200  {object}  handlers.ListPaymentsResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /payments [get]
func (h *Handlers) ListPayments(c *gin.Context) {
	items, err := h.paySvc.List(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListPaymentsResponse{Payments: items})
}
