package aggregate

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "clickguard/internal/db"
)

// Store is the pipeline's persistence boundary. The gorm implementation
// below is production; tests use an in-memory fake.
type Store interface {
	// EventProjects lists the projects with raw events in the window.
	EventProjects(ctx context.Context, start, end time.Time) ([]string, error)
	// BucketProjects lists the projects with source-tier buckets in the window.
	BucketProjects(ctx context.Context, source Granularity, start, end time.Time) ([]string, error)
	EventsInWindow(ctx context.Context, projectID string, start, end time.Time) ([]dbpkg.Event, error)
	ChildBuckets(ctx context.Context, projectID string, source Granularity, start, end time.Time) ([]dbpkg.AggregationBucket, error)
	UpsertBucket(ctx context.Context, bucket *dbpkg.AggregationBucket) error
	Retention(ctx context.Context, retentionDays int) error
}

// GormStore backs the pipeline with the events and aggregation_buckets
// tables.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) EventProjects(ctx context.Context, start, end time.Time) ([]string, error) {
	var projects []string
	err := s.db.WithContext(ctx).Model(&dbpkg.Event{}).
		Where("created_at >= ? AND created_at < ?", start, end).
		Distinct().Pluck("project_id", &projects).Error
	return projects, err
}

func (s *GormStore) BucketProjects(ctx context.Context, source Granularity, start, end time.Time) ([]string, error) {
	var projects []string
	err := s.db.WithContext(ctx).Model(&dbpkg.AggregationBucket{}).
		Where("granularity = ? AND bucket_start >= ? AND bucket_start < ?", string(source), start, end).
		Distinct().Pluck("project_id", &projects).Error
	return projects, err
}

func (s *GormStore) EventsInWindow(ctx context.Context, projectID string, start, end time.Time) ([]dbpkg.Event, error) {
	var events []dbpkg.Event
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND created_at >= ? AND created_at < ?", projectID, start, end).
		Find(&events).Error
	return events, err
}

func (s *GormStore) ChildBuckets(ctx context.Context, projectID string, source Granularity, start, end time.Time) ([]dbpkg.AggregationBucket, error) {
	var children []dbpkg.AggregationBucket
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND granularity = ? AND bucket_start >= ? AND bucket_start < ?",
			projectID, string(source), start, end).
		Order("bucket_start ASC").
		Find(&children).Error
	return children, err
}

// UpsertBucket is the single atomic write per bucket: ON CONFLICT on the
// bucket identity keeps one row per (project, granularity, start) even
// when a backfill races the scheduled run. Last writer wins.
func (s *GormStore) UpsertBucket(ctx context.Context, bucket *dbpkg.AggregationBucket) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "project_id"}, {Name: "granularity"}, {Name: "bucket_start"},
		},
		UpdateAll: true,
	}).Create(bucket).Error
}

func (s *GormStore) Retention(ctx context.Context, retentionDays int) error {
	return dbpkg.RunRetentionOnce(s.db.WithContext(ctx), retentionDays)
}
