// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// UploadedFile model.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/plankdev/plank-ai-backend/internal/domain"
)

// CreateUploadedFile inserts a record for a file already written to disk.
func CreateUploadedFile(ctx context.Context, db *gorm.DB, f *domain.UploadedFile) (*domain.UploadedFile, error) {
	f.CreatedAt = time.Now().UTC()
	if err := db.WithContext(ctx).Create(f).Error; err != nil {
		return nil, err
	}
	return f, nil
}

// ListUploadedFiles returns all files uploaded by userID, most recent first.
func ListUploadedFiles(ctx context.Context, db *gorm.DB, userID string) ([]domain.UploadedFile, error) {
	var out []domain.UploadedFile
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}
