// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a user is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// The usage counter has one non-CRUD helper, ConsumeUsage, which performs the
// guarded atomic increment the usage gate relies on. Keeping the guard inside
// a single UPDATE closes the read-then-increment race of a naive
// load/compare/save sequence: two concurrent sends can never both be admitted
// on the last free unit.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/plankdev/plank-ai-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetUser fetches a user by ID, or ErrNotFound if missing.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertUser inserts the user or, when the ID already exists, refreshes the
// profile columns. Entitlement and usage columns are never overwritten by an
// upsert; they are owned by the usage gate and the payment service.
func UpsertUser(ctx context.Context, db *gorm.DB, u *domain.User) (*domain.User, error) {
	u.UpdatedAt = time.Now().UTC()
	err := db.WithContext(ctx).
		Where("id = ?", u.ID).
		Assign(map[string]any{
			"email":             u.Email,
			"first_name":        u.FirstName,
			"last_name":         u.LastName,
			"profile_image_url": u.ProfileImageURL,
			"updated_at":        u.UpdatedAt,
		}).
		FirstOrCreate(u).Error
	if err != nil {
		return nil, err
	}
	return GetUser(ctx, db, u.ID)
}

// ConsumeUsage atomically increments the usage counter of a free-tier user,
// but only while the counter is still below limit. It reports whether a unit
// was consumed: false means the quota is exhausted (or the user is missing).
//
// The guard lives in the WHERE clause so concurrent callers cannot both be
// admitted on the same pre-increment count.
func ConsumeUsage(ctx context.Context, db *gorm.DB, userID string, limit int) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ? AND is_premium = ? AND usage_count < ?", userID, false, limit).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpgradeToPremium sets the entitlement flag. The flag is monotonic, so a
// repeated upgrade is a harmless no-op at the row level.
func UpgradeToPremium(ctx context.Context, db *gorm.DB, userID string) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", userID).
		Update("is_premium", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
