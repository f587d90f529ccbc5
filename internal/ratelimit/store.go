package ratelimit

import (
	"context"
	"time"

	"gorm.io/gorm"

	dbpkg "clickguard/internal/db"
)

// GormStore counts rate-limit entries with range scans on created_at.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) CountInWindow(ctx context.Context, scope Scope, identifier string, from, to time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&dbpkg.RateLimitEntry{}).
		Where("scope = ? AND identifier = ?", string(scope), identifier).
		Where("created_at >= ? AND created_at <= ?", from, to).
		Count(&count).Error
	return count, err
}

func (s *GormStore) Record(ctx context.Context, scope Scope, identifier string, at time.Time) error {
	return s.db.WithContext(ctx).Create(&dbpkg.RateLimitEntry{
		Scope:      string(scope),
		Identifier: identifier,
		CreatedAt:  at,
	}).Error
}

func (s *GormStore) RecordViolation(ctx context.Context, scope Scope, identifier string, observed int64, limit int) error {
	return s.db.WithContext(ctx).Create(&dbpkg.RateLimitViolation{
		Scope:      string(scope),
		Identifier: identifier,
		Observed:   observed,
		Limit:      limit,
	}).Error
}

func (s *GormStore) PruneBefore(ctx context.Context, cutoff time.Time) error {
	return s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&dbpkg.RateLimitEntry{}).Error
}
