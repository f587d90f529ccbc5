package fraud

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "clickguard/internal/db"
)

// GormHistory implements History against the events and
// fraud_reputations tables.
type GormHistory struct {
	db *gorm.DB
}

func NewGormHistory(db *gorm.DB) *GormHistory {
	return &GormHistory{db: db}
}

func (h *GormHistory) Reputation(ctx context.Context, ip string) (*dbpkg.FraudReputation, error) {
	var rep dbpkg.FraudReputation
	err := h.db.WithContext(ctx).Where("ip_address = ?", ip).Limit(1).Find(&rep).Error
	if err != nil {
		return nil, err
	}
	if rep.ID == 0 {
		return nil, nil
	}
	return &rep, nil
}

func (h *GormHistory) SessionEvents(ctx context.Context, sessionID string, since time.Time) ([]dbpkg.Event, error) {
	var events []dbpkg.Event
	err := h.db.WithContext(ctx).
		Where("session_id = ? AND created_at >= ?", sessionID, since).
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}

func (h *GormHistory) SessionDistinctIPs(ctx context.Context, sessionID string, since time.Time) (int64, error) {
	var count int64
	err := h.db.WithContext(ctx).Model(&dbpkg.Event{}).
		Where("session_id = ? AND created_at >= ?", sessionID, since).
		Distinct("ip_address").
		Count(&count).Error
	return count, err
}

func (h *GormHistory) SessionDistinctCountries(ctx context.Context, sessionID string, since time.Time) (int64, error) {
	var count int64
	err := h.db.WithContext(ctx).Model(&dbpkg.Event{}).
		Where("session_id = ? AND created_at >= ? AND country_code <> ''", sessionID, since).
		Distinct("country_code").
		Count(&count).Error
	return count, err
}

func (h *GormHistory) IPEventCount(ctx context.Context, ip string, since time.Time) (int64, error) {
	var count int64
	err := h.db.WithContext(ctx).Model(&dbpkg.Event{}).
		Where("ip_address = ? AND created_at >= ?", ip, since).
		Count(&count).Error
	return count, err
}

// SaveReputation upserts on ip_address so concurrent scoring calls for
// the same IP never produce two rows.
func (h *GormHistory) SaveReputation(ctx context.Context, rep *dbpkg.FraudReputation) error {
	return h.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ip_address"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"base_score", "vpn_detected", "proxy_detected", "tor_detected",
			"hosting_provider", "total_events", "suspicious_events",
			"blocked_events", "updated_at",
		}),
	}).Create(rep).Error
}
