// Package services – PaymentService
//
// This file implements the simulated wallet payment lifecycle. A payment is
// created in "pending" and advances through "processing" into a terminal
// "completed" or "failed" as a pure function of elapsed time and the payment
// identifier; no real gateway is contacted. The deep links returned on
// creation open the DANA or GoPay app on the user's phone, with a Play Store
// URL as fallback.
//
// Transition model: every path to a terminal state goes through the single
// advance() function. The clock tick (observed on each status poll) and the
// manual "I have paid" confirmation are the two possible events; both feed
// the same transition. Completed is the only absorbing state: the clock tick
// never rewrites a stored terminal outcome, while the manual confirmation
// may override a stored failed one, since the user's signal outranks the
// simulated timer. The entitlement is granted exactly once, by whichever
// event first persists the completed status. Persistence failures during
// that transition are returned to the caller rather than swallowed, so a
// 200 response always means the entitlement is durable.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// payment and user identifiers.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/plankdev/plank-ai-backend/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Timing windows of the simulated settlement, measured from CreatedAt.
const (
	// pendingWindow is how long a fresh payment reports "pending".
	pendingWindow = 10 * time.Second
	// processingWindow is when the final outcome is decided; between
	// pendingWindow and this mark the payment reports "processing".
	processingWindow = 20 * time.Second
)

// completedModulus decides the simulated outcome once the processing window
// has elapsed: identifiers with id % 10 <= completedModulus settle as
// completed (7 in 10), the rest as failed.
const completedModulus = 6

// Wallet recipient numbers and store fallbacks baked into the deep links.
const (
	danaRecipient    = "08881382817"
	gopayRecipient   = "083824299082"
	danaStoreURL     = "https://play.google.com/store/apps/details?id=id.dana"
	gopayStoreURL    = "https://play.google.com/store/apps/details?id=com.gojek.app"
	transactionBrand = "PLANKDEV"
)

// paymentEvent is an input to the single transition function.
type paymentEvent int

const (
	// eventClockTick re-derives the status from elapsed wall-clock time.
	eventClockTick paymentEvent = iota
	// eventManualConfirm forces the completed outcome (client-side "I paid").
	eventManualConfirm
)

// PaymentStore defines the persistence contract required by PaymentService.
type PaymentStore interface {
	CreatePayment(ctx context.Context, db *gorm.DB, userID string, amount int, method string) (*domain.Payment, error)
	GetPayment(ctx context.Context, db *gorm.DB, id uint) (*domain.Payment, error)
	ListPayments(ctx context.Context, db *gorm.DB, userID string) ([]domain.Payment, error)
	SettlePayment(ctx context.Context, db *gorm.DB, id uint, status, transactionID string) (bool, error)
	CompletePayment(ctx context.Context, db *gorm.DB, id uint, transactionID string) (bool, error)
}

// EntitlementGranter flips the premium flag for a user. Satisfied by
// UsageService so the payment flow and the usage gate share one owner for
// the entitlement bit.
type EntitlementGranter interface {
	GrantPremium(ctx context.Context, userID string) error
}

// PaymentService models a purchase attempt from creation to entitlement
// grant. The clock is injectable so the timer-driven states are testable
// without sleeping.
type PaymentService struct {
	DB          *gorm.DB
	Store       PaymentStore
	Entitlement EntitlementGranter

	// Now returns the current time; defaults to time.Now via nowOrDefault.
	Now func() time.Time

	// OnSettle, when set, is invoked once per persisted terminal transition
	// (including a manual confirm overriding a failed timer outcome). Used to
	// feed metrics.
	OnSettle func(method, status string)
}

// nowOrDefault resolves the injected clock.
func (s *PaymentService) nowOrDefault() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// CreateResult is returned by Create alongside the persisted payment.
type CreateResult struct {
	Payment *domain.Payment `json:"payment"`
	// PaymentURL is the wallet deep link the client should try to open.
	PaymentURL string `json:"paymentUrl"`
	// AppStoreURL is the Play Store fallback when the wallet app is missing.
	AppStoreURL string `json:"appStoreUrl"`
}

// StatusDetails is a localized, display-ready description of a status.
type StatusDetails struct {
	Message     string `json:"message"`
	Description string `json:"description"`
}

// StatusResult is the response of a status poll.
type StatusResult struct {
	Status               string        `json:"status"`
	PaymentID            uint          `json:"paymentId"`
	PaymentMethod        string        `json:"paymentMethod"`
	Amount               int           `json:"amount"`
	Elapsed              int64         `json:"elapsed"`
	StatusDetails        StatusDetails `json:"statusDetails"`
	TransactionReference string        `json:"transactionReference"`
}

// Create validates the request and persists a new pending payment, returning
// the wallet deep link and store fallback for the chosen method.
func (s *PaymentService) Create(ctx context.Context, userID string, amount int, method string) (*CreateResult, error) {
	tr := otel.Tracer("services/PaymentService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("payment.method", method),
			attribute.Int("payment.amount", amount),
		),
	)
	defer span.End()

	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !domain.ValidPaymentMethod(method) {
		return nil, ErrInvalidPaymentMethod
	}

	p, err := s.Store.CreatePayment(ctx, s.DB, userID, amount, method)
	if err != nil {
		return nil, err
	}

	out := &CreateResult{Payment: p}
	switch method {
	case domain.PaymentMethodDana:
		out.PaymentURL = fmt.Sprintf("dana://pay?amount=%d&to=%s&reference=%d", amount, danaRecipient, p.ID)
		out.AppStoreURL = danaStoreURL
	case domain.PaymentMethodGopay:
		out.PaymentURL = fmt.Sprintf("gojek://gopay/pay?amount=%d&to=%s&reference=%d", amount, gopayRecipient, p.ID)
		out.AppStoreURL = gopayStoreURL
	}
	return out, nil
}

// Status re-derives the payment state from elapsed time, persisting the
// terminal outcome (and granting premium on completion) on first entry.
// Terminal states are final: once stored they are reported as-is.
func (s *PaymentService) Status(ctx context.Context, id uint) (*StatusResult, error) {
	tr := otel.Tracer("services/PaymentService")
	ctx, span := tr.Start(ctx, "Status",
		trace.WithAttributes(attribute.Int64("payment.id", int64(id))),
	)
	defer span.End()

	p, err := s.Store.GetPayment(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}

	now := s.nowOrDefault()
	if err := s.advance(ctx, p, eventClockTick, "", now); err != nil {
		return nil, err
	}

	elapsed := int64(now.Sub(p.CreatedAt) / time.Second)
	return &StatusResult{
		Status:               p.Status,
		PaymentID:            p.ID,
		PaymentMethod:        p.Method,
		Amount:               p.Amount,
		Elapsed:              elapsed,
		StatusDetails:        statusDetails(p.Status),
		TransactionReference: s.transactionReference(p.ID, now),
	}, nil
}

// Confirm applies the manual confirmation event: the payment settles as
// completed (recording the client-supplied transaction id, if any) and the
// owning user is upgraded to premium, regardless of prior state. A stored
// failed outcome from the timer is overridden; a payment already completed
// stays as-is and nothing is re-granted.
func (s *PaymentService) Confirm(ctx context.Context, id uint, transactionID string) (*domain.Payment, error) {
	tr := otel.Tracer("services/PaymentService")
	ctx, span := tr.Start(ctx, "Confirm",
		trace.WithAttributes(attribute.Int64("payment.id", int64(id))),
	)
	defer span.End()

	p, err := s.Store.GetPayment(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	if err := s.advance(ctx, p, eventManualConfirm, transactionID, s.nowOrDefault()); err != nil {
		return nil, err
	}
	return p, nil
}

// List returns the user's payment history, most recent first.
func (s *PaymentService) List(ctx context.Context, userID string) ([]domain.Payment, error) {
	return s.Store.ListPayments(ctx, s.DB, userID)
}

// DeriveStatus is the pure transition rule: stored terminal states win, then
// the elapsed time since creation picks pending/processing, and past the
// processing window the identifier decides the outcome deterministically.
func DeriveStatus(p *domain.Payment, now time.Time) string {
	if p.Terminal() {
		return p.Status
	}
	elapsed := now.Sub(p.CreatedAt)
	switch {
	case elapsed < pendingWindow:
		return domain.PaymentStatusPending
	case elapsed < processingWindow:
		return domain.PaymentStatusProcessing
	case p.ID%10 <= completedModulus:
		return domain.PaymentStatusCompleted
	default:
		return domain.PaymentStatusFailed
	}
}

// advance is the single authoritative transition function. Both events
// funnel through it, so there is exactly one code path that persists a
// terminal status and grants the entitlement.
//
// For the clock tick, terminal states are absorbing: a stored completed or
// failed outcome is left untouched, and transient targets are reflected on
// the in-memory record only and never stored. The manual confirmation is
// stronger: it drives the payment to completed from any state except an
// already-completed one, overriding even a stored failed outcome, because
// the user's signal outranks the simulated timer.
func (s *PaymentService) advance(ctx context.Context, p *domain.Payment, ev paymentEvent, transactionID string, now time.Time) error {
	if ev == eventManualConfirm {
		if p.Status == domain.PaymentStatusCompleted {
			return nil
		}
		settled, err := s.Store.CompletePayment(ctx, s.DB, p.ID, transactionID)
		if err != nil {
			return err
		}
		p.Status = domain.PaymentStatusCompleted
		if transactionID != "" {
			p.TransactionID = transactionID
		}
		if settled && s.OnSettle != nil {
			s.OnSettle(p.Method, domain.PaymentStatusCompleted)
		}
		// settled is false when a concurrent confirm already completed the
		// payment; the winner granted the entitlement.
		if !settled {
			return nil
		}
		return s.Entitlement.GrantPremium(ctx, p.UserID)
	}

	if p.Terminal() {
		return nil
	}

	target := DeriveStatus(p, now)
	if target != domain.PaymentStatusCompleted && target != domain.PaymentStatusFailed {
		p.Status = target
		return nil
	}

	settled, err := s.Store.SettlePayment(ctx, s.DB, p.ID, target, transactionID)
	if err != nil {
		return err
	}
	p.Status = target
	if settled && s.OnSettle != nil {
		s.OnSettle(p.Method, target)
	}

	// settled is false when another poll won the race; the winner already
	// granted the entitlement, so stop here.
	if !settled || target != domain.PaymentStatusCompleted {
		return nil
	}
	return s.Entitlement.GrantPremium(ctx, p.UserID)
}

// transactionReference synthesizes a display reference for the receipt line.
func (s *PaymentService) transactionReference(id uint, now time.Time) string {
	ms := fmt.Sprintf("%d", now.UnixMilli())
	if len(ms) > 6 {
		ms = ms[len(ms)-6:]
	}
	return fmt.Sprintf("%s-%d-%s", transactionBrand, id, ms)
}

// statusDetails maps a status to its localized display copy.
func statusDetails(status string) StatusDetails {
	switch status {
	case domain.PaymentStatusPending:
		return StatusDetails{
			Message:     "Menunggu pembayaran dari pengguna",
			Description: "Silakan selesaikan pembayaran di aplikasi e-wallet",
		}
	case domain.PaymentStatusProcessing:
		return StatusDetails{
			Message:     "Memproses pembayaran",
			Description: "Transaksi Anda sedang diproses, mohon tunggu sebentar",
		}
	case domain.PaymentStatusCompleted:
		return StatusDetails{
			Message:     "Pembayaran berhasil",
			Description: "Akun Anda telah diupgrade ke versi Pro",
		}
	case domain.PaymentStatusFailed:
		return StatusDetails{
			Message:     "Pembayaran gagal",
			Description: "Terjadi kesalahan dalam proses pembayaran. Silakan coba lagi",
		}
	default:
		return StatusDetails{
			Message:     "Status tidak diketahui",
			Description: "Silakan hubungi dukungan jika masalah berlanjut",
		}
	}
}
