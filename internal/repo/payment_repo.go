// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Payment
// model. The state-machine rules (when a payment may move to which status)
// live in services.PaymentService; this layer only persists what it is told.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/plankdev/plank-ai-backend/internal/domain"
)

// CreatePayment inserts a new pending payment for userID. The integer primary
// key is assigned by the database.
func CreatePayment(ctx context.Context, db *gorm.DB, userID string, amount int, method string) (*domain.Payment, error) {
	p := &domain.Payment{
		UserID:    userID,
		Amount:    amount,
		Method:    method,
		Status:    domain.PaymentStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// GetPayment fetches a payment by its integer ID, or ErrNotFound.
func GetPayment(ctx context.Context, db *gorm.DB, id uint) (*domain.Payment, error) {
	var p domain.Payment
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPayments returns all payments for userID, most recent first.
func ListPayments(ctx context.Context, db *gorm.DB, userID string) ([]domain.Payment, error) {
	var out []domain.Payment
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// SettlePayment records a terminal status for a payment that is still in a
// transient state. The WHERE clause excludes terminal rows, so the first
// settle wins and terminal states stay idempotent: a second attempt affects
// zero rows and reports settled=false without error.
func SettlePayment(ctx context.Context, db *gorm.DB, id uint, status, transactionID string) (settled bool, err error) {
	updates := map[string]any{
		"payment_status": status,
		"updated_at":     time.Now().UTC(),
	}
	if transactionID != "" {
		updates["transaction_id"] = transactionID
	}
	res := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("id = ? AND payment_status NOT IN ?", id,
			[]string{domain.PaymentStatusCompleted, domain.PaymentStatusFailed}).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CompletePayment records the completed outcome for a manually confirmed
// payment. Unlike SettlePayment it may override a stored failed status; the
// user's "I have paid" signal outranks the simulated timer outcome. Only
// completed is absorbing: a payment already completed affects zero rows and
// reports settled=false without error, so the entitlement is granted once.
func CompletePayment(ctx context.Context, db *gorm.DB, id uint, transactionID string) (settled bool, err error) {
	updates := map[string]any{
		"payment_status": domain.PaymentStatusCompleted,
		"updated_at":     time.Now().UTC(),
	}
	if transactionID != "" {
		updates["transaction_id"] = transactionID
	}
	res := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("id = ? AND payment_status <> ?", id, domain.PaymentStatusCompleted).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
