package db

import (
	"time"

	"gorm.io/gorm"
)

// RunRetentionOnce performs a single retention pass: raw events older
// than the retention window are deleted, stale rate-limit entries and
// expired geo cache rows go with them. Aggregation buckets and fraud
// reputations are never touched here.
func RunRetentionOnce(db *gorm.DB, retentionDays int) error {
	now := time.Now().UTC()

	cutoff := now.Add(-time.Duration(retentionDays) * 24 * time.Hour)
	if err := db.Where("created_at < ?", cutoff).Delete(&Event{}).Error; err != nil {
		return err
	}

	if err := db.Where("created_at < ?", now.Add(-time.Hour)).Delete(&RateLimitEntry{}).Error; err != nil {
		return err
	}

	return db.Where("expires_at <= ?", now).Delete(&GeoCacheEntry{}).Error
}
