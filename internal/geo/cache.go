package geo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	dbpkg "clickguard/internal/db"
)

// RedisCache stores records as JSON under "geo:<ip>" with a native TTL.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, ip string) (*Record, error) {
	raw, err := c.client.Get(ctx, "geo:"+ip).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *RedisCache) Set(ctx context.Context, ip string, rec *Record, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, "geo:"+ip, raw, ttl).Err()
}

// DBCache is the fallback when redis is not configured: one row per IP
// in the geo_cache table, expiry enforced on read and by the retention
// pass.
type DBCache struct {
	db *gorm.DB
}

func NewDBCache(db *gorm.DB) *DBCache {
	return &DBCache{db: db}
}

func (c *DBCache) Get(ctx context.Context, ip string) (*Record, error) {
	var entry dbpkg.GeoCacheEntry
	err := c.db.WithContext(ctx).Where("ip_address = ?", ip).Limit(1).Find(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == 0 || time.Now().UTC().After(entry.ExpiresAt) {
		return nil, nil
	}
	var rec Record
	if err := json.Unmarshal(entry.Record, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *DBCache) Set(ctx context.Context, ip string, rec *Record, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	entry := dbpkg.GeoCacheEntry{
		IPAddress: ip,
		Record:    datatypes.JSON(raw),
		ExpiresAt: time.Now().UTC().Add(ttl),
	}
	var existing dbpkg.GeoCacheEntry
	if err := c.db.WithContext(ctx).Where("ip_address = ?", ip).Limit(1).Find(&existing).Error; err != nil {
		return err
	}
	if existing.ID != 0 {
		return c.db.WithContext(ctx).Model(&existing).Updates(map[string]interface{}{
			"record":     entry.Record,
			"expires_at": entry.ExpiresAt,
		}).Error
	}
	return c.db.WithContext(ctx).Create(&entry).Error
}
