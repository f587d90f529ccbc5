package db

import (
	"errors"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"clickguard/internal/config"
)

// Connect opens a GORM database connection using CLICKGUARD_DATABASE_URL (PostgreSQL URL).
func Connect(cfg *config.Config) (*gorm.DB, error) {
	dsn := strings.TrimSpace(cfg.DatabaseURL)
	if dsn == "" {
		return nil, errors.New("CLICKGUARD_DATABASE_URL is required (PostgreSQL URL)")
	}
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil, errors.New("CLICKGUARD_DATABASE_URL must be a postgres:// or postgresql:// URL")
	}

	// PrepareStmt: true prevents the GORM postgres migrator from forcing simple protocol
	// for "SELECT * FROM table LIMIT 1", which would otherwise trigger "insufficient arguments".
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{PrepareStmt: true})
	if err != nil {
		return nil, err
	}

	// Auto-migrate the core tables.
	if err := db.AutoMigrate(
		&Event{},
		&FraudReputation{},
		&RateLimitEntry{},
		&RateLimitViolation{},
		&GeoCacheEntry{},
		&AggregationBucket{},
		&APIKey{},
	); err != nil {
		return nil, err
	}

	return db, nil
}

// EnsureBootstrapKey makes sure an ingestion API key exists for the
// bootstrap project configured in env. If the key already exists it is
// left as-is, so rotating CLICKGUARD_BOOTSTRAP_PROJECT_ID never steals
// an existing token.
func EnsureBootstrapKey(db *gorm.DB, cfg *config.Config) error {
	if cfg.BootstrapAPIKey == "" {
		return nil
	}

	var existing APIKey
	if err := db.Where("key = ?", cfg.BootstrapAPIKey).Limit(1).Find(&existing).Error; err != nil {
		return err
	}
	if existing.ID != 0 {
		return nil
	}

	key := &APIKey{
		ProjectID: cfg.BootstrapProjectID,
		Name:      "bootstrap",
		Key:       cfg.BootstrapAPIKey,
		Active:    true,
	}
	return db.Create(key).Error
}
