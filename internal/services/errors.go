// Package services defines the business logic for users, conversations,
// messages, uploads, and payments. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer;
// translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

var (
	// ErrUserNotFound indicates that the requested user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrQuotaExceeded is returned by the usage gate when a free-tier user
	// has exhausted the free message quota. Handlers map it to HTTP 403
	// with an upgrade prompt.
	ErrQuotaExceeded = errors.New("usage limit exceeded")

	// ErrConversationNotFound indicates that the requested conversation does
	// not exist or is not accessible to the current user.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrEmptyContent is returned when a message send carries neither text
	// nor a file reference.
	ErrEmptyContent = errors.New("content is empty")

	// ErrTooLong is returned when message content exceeds the maximum
	// configured length limit.
	ErrTooLong = errors.New("content too long")

	// ErrPaymentNotFound indicates that the requested payment does not exist.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrInvalidAmount is returned when a payment is created with a
	// non-positive amount.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidPaymentMethod is returned when the requested wallet provider
	// is not one of the supported methods.
	ErrInvalidPaymentMethod = errors.New("unsupported payment method")
)
