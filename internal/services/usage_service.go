// Package services – UsageService
//
// This file implements the free-tier usage gate. Every message send by a
// non-premium user consumes one usage unit; once the counter reaches the
// configured limit the gate rejects further sends with ErrQuotaExceeded so
// the client can offer an upgrade. Premium users bypass the counter
// entirely; their count is never read again once the entitlement flag is set.
//
// Consumption is a single guarded UPDATE (usage_count < limit in the WHERE
// clause), so two concurrent sends by the same user cannot both be admitted
// on the last free unit.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/plankdev/plank-ai-backend/internal/domain"
)

// DefaultFreeLimit is the free-tier message ceiling applied when a
// UsageService is constructed without an explicit limit.
const DefaultFreeLimit = 10

// UserStore defines the persistence contract required by UsageService.
type UserStore interface {
	// GetUser fetches a user by ID.
	GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error)

	// UpsertUser inserts or refreshes a user's profile columns.
	UpsertUser(ctx context.Context, db *gorm.DB, u *domain.User) (*domain.User, error)

	// ConsumeUsage atomically takes one usage unit while below limit.
	ConsumeUsage(ctx context.Context, db *gorm.DB, userID string, limit int) (bool, error)

	// UpgradeToPremium flips the entitlement flag.
	UpgradeToPremium(ctx context.Context, db *gorm.DB, userID string) error
}

// UsageService decides whether a metered action is permitted and records
// consumption. It also owns user provisioning and the premium entitlement.
type UsageService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Store is the user repository used by this service.
	Store UserStore

	// FreeLimit caps messages for non-premium users.
	FreeLimit int
}

// NewUsageService constructs a UsageService with the default free-tier limit.
func NewUsageService(db *gorm.DB, store UserStore) *UsageService {
	return &UsageService{DB: db, Store: store, FreeLimit: DefaultFreeLimit}
}

// Usage is a point-in-time view of a user's quota consumption.
// Limit is nil for premium users, who have no ceiling.
type Usage struct {
	UsageCount int  `json:"usageCount"`
	Limit      *int `json:"limit"`
	IsPremium  bool `json:"isPremium"`
}

// EnsureUser returns the user record for id, creating a blank free-tier
// account on first sight. The identity itself comes from the auth layer.
func (s *UsageService) EnsureUser(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.Store.GetUser(ctx, s.DB, id)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return s.Store.UpsertUser(ctx, s.DB, &domain.User{ID: id})
}

// Snapshot reports the user's current usage against the free limit.
func (s *UsageService) Snapshot(ctx context.Context, userID string) (*Usage, error) {
	u, err := s.Store.GetUser(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	out := &Usage{UsageCount: u.UsageCount, IsPremium: u.IsPremium}
	if !u.IsPremium {
		limit := s.FreeLimit
		out.Limit = &limit
	}
	return out, nil
}

// CheckAndConsume admits or rejects one metered action for userID.
//
// Premium users are always admitted with no state change. Free-tier users
// consume one unit atomically; when the counter has reached the limit the
// gate returns ErrQuotaExceeded. Unknown users surface as ErrUserNotFound.
func (s *UsageService) CheckAndConsume(ctx context.Context, userID string) (*domain.User, error) {
	u, err := s.Store.GetUser(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if u.IsPremium {
		return u, nil
	}

	consumed, err := s.Store.ConsumeUsage(ctx, s.DB, userID, s.FreeLimit)
	if err != nil {
		return nil, err
	}
	if !consumed {
		return nil, ErrQuotaExceeded
	}
	u.UsageCount++
	return u, nil
}

// GrantPremium sets the entitlement flag for userID. The flag is monotonic;
// granting twice is a no-op.
func (s *UsageService) GrantPremium(ctx context.Context, userID string) error {
	if err := s.Store.UpgradeToPremium(ctx, s.DB, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}
