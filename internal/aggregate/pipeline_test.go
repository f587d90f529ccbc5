package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbpkg "clickguard/internal/db"
)

// memAggStore keeps events and buckets in maps; bucket identity is the
// same (project, granularity, start) key the unique index enforces.
type memAggStore struct {
	mu      sync.Mutex
	events  map[string][]dbpkg.Event
	buckets map[string]dbpkg.AggregationBucket

	failEventsFor  string
	listings       []string
	upserts        int
	retentionCalls []int
}

func newMemAggStore() *memAggStore {
	return &memAggStore{
		events:  make(map[string][]dbpkg.Event),
		buckets: make(map[string]dbpkg.AggregationBucket),
	}
}

func bucketKey(projectID, granularity string, start time.Time) string {
	return fmt.Sprintf("%s|%s|%s", projectID, granularity, start.Format(time.RFC3339))
}

func (s *memAggStore) EventProjects(ctx context.Context, start, end time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings = append(s.listings, "events@"+start.Format(time.RFC3339))
	var projects []string
	for project, events := range s.events {
		for _, e := range events {
			if !e.CreatedAt.Before(start) && e.CreatedAt.Before(end) {
				projects = append(projects, project)
				break
			}
		}
	}
	return projects, nil
}

func (s *memAggStore) BucketProjects(ctx context.Context, source Granularity, start, end time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings = append(s.listings, string(source)+"@"+start.Format(time.RFC3339))
	seen := make(map[string]bool)
	var projects []string
	for _, b := range s.buckets {
		if b.Granularity == string(source) && !b.BucketStart.Before(start) && b.BucketStart.Before(end) && !seen[b.ProjectID] {
			seen[b.ProjectID] = true
			projects = append(projects, b.ProjectID)
		}
	}
	return projects, nil
}

func (s *memAggStore) EventsInWindow(ctx context.Context, projectID string, start, end time.Time) ([]dbpkg.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if projectID == s.failEventsFor {
		return nil, errors.New("storage offline")
	}
	var out []dbpkg.Event
	for _, e := range s.events[projectID] {
		if !e.CreatedAt.Before(start) && e.CreatedAt.Before(end) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memAggStore) ChildBuckets(ctx context.Context, projectID string, source Granularity, start, end time.Time) ([]dbpkg.AggregationBucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []dbpkg.AggregationBucket
	for _, b := range s.buckets {
		if b.ProjectID == projectID && b.Granularity == string(source) && !b.BucketStart.Before(start) && b.BucketStart.Before(end) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memAggStore) UpsertBucket(ctx context.Context, bucket *dbpkg.AggregationBucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	s.buckets[bucketKey(bucket.ProjectID, bucket.Granularity, bucket.BucketStart)] = *bucket
	return nil
}

func (s *memAggStore) Retention(ctx context.Context, retentionDays int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retentionCalls = append(s.retentionCalls, retentionDays)
	return nil
}

func seedHour(s *memAggStore, project string, start time.Time) {
	s.events[project] = append(s.events[project], hourlyEvents(start)...)
}

func TestRunTwiceKeepsOneRowPerBucket(t *testing.T) {
	start := time.Date(2026, 8, 1, 14, 0, 0, 0, time.UTC)
	store := newMemAggStore()
	seedHour(store, "proj-a", start)
	seedHour(store, "proj-b", start)
	p := NewPipeline(store, 2, 90)

	require.NoError(t, p.Run(context.Background(), Hourly, start))
	require.NoError(t, p.Run(context.Background(), Hourly, start))

	// Four writes, two rows: the second run replaced, not duplicated.
	assert.Equal(t, 4, store.upserts)
	assert.Len(t, store.buckets, 2)

	b := store.buckets[bucketKey("proj-a", string(Hourly), start)]
	assert.Equal(t, int64(4), b.TotalEvents)
}

func TestBackfillRacingScheduledRunConverges(t *testing.T) {
	start := time.Date(2026, 8, 1, 14, 0, 0, 0, time.UTC)
	store := newMemAggStore()
	seedHour(store, "proj-a", start)
	p := NewPipeline(store, 2, 90)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.Run(context.Background(), Hourly, start))
		}()
	}
	wg.Wait()

	require.Len(t, store.buckets, 1)
	b := store.buckets[bucketKey("proj-a", string(Hourly), start)]
	assert.Equal(t, int64(4), b.TotalEvents)
}

func TestProjectFailureIsSkipped(t *testing.T) {
	start := time.Date(2026, 8, 1, 14, 0, 0, 0, time.UTC)
	store := newMemAggStore()
	seedHour(store, "proj-good", start)
	seedHour(store, "proj-bad", start)
	store.failEventsFor = "proj-bad"
	p := NewPipeline(store, 2, 90)

	require.NoError(t, p.Run(context.Background(), Hourly, start))

	assert.Len(t, store.buckets, 1)
	_, ok := store.buckets[bucketKey("proj-good", string(Hourly), start)]
	assert.True(t, ok)
}

func TestTriggerRollsUpFromCommittedChildren(t *testing.T) {
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	store := newMemAggStore()
	for h := 0; h < 24; h++ {
		seedHour(store, "proj-a", day.Add(time.Duration(h)*time.Hour))
	}
	p := NewPipeline(store, 2, 90)

	for h := 0; h < 24; h++ {
		_, err := p.Trigger(context.Background(), Hourly, day.Add(time.Duration(h)*time.Hour))
		require.NoError(t, err)
	}
	bucketStart, err := p.Trigger(context.Background(), Daily, day.Add(13*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, day, bucketStart)

	b, ok := store.buckets[bucketKey("proj-a", string(Daily), day)]
	require.True(t, ok)
	assert.Equal(t, int64(24*4), b.TotalEvents)
}

func TestTriggerRejectsUnknownGranularity(t *testing.T) {
	p := NewPipeline(newMemAggStore(), 1, 90)
	_, err := p.Trigger(context.Background(), Granularity("yearly"), time.Now())
	assert.Error(t, err)
}

func TestRunScheduledRunsDueTiersAndRetention(t *testing.T) {
	store := newMemAggStore()
	p := NewPipeline(store, 1, 45)

	// Mid-hour tick: hourly only.
	p.RunScheduled(context.Background(), time.Date(2026, 8, 5, 13, 0, 0, 0, time.UTC))
	assert.Equal(t, []string{"events@2026-08-05T12:00:00Z"}, store.listings)
	assert.Equal(t, []int{45}, store.retentionCalls)

	// Sunday midnight: hourly, daily and weekly are due.
	store.listings = nil
	p.RunScheduled(context.Background(), time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, []string{
		"events@2026-08-01T23:00:00Z",
		"hourly@2026-08-01T00:00:00Z",
		"daily@2026-07-26T00:00:00Z",
	}, store.listings)

	// First of the month: monthly joins hourly and daily.
	store.listings = nil
	p.RunScheduled(context.Background(), time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, []string{
		"events@2026-08-31T23:00:00Z",
		"hourly@2026-08-31T00:00:00Z",
		"daily@2026-08-01T00:00:00Z",
	}, store.listings)

	assert.Len(t, store.retentionCalls, 3)
}

func TestOverlappingScheduledRunsAllComplete(t *testing.T) {
	start := time.Date(2026, 8, 5, 12, 0, 0, 0, time.UTC)
	store := newMemAggStore()
	seedHour(store, "proj-a", start)
	p := NewPipeline(store, 2, 90)

	// An hourly tick arriving while the previous invocation is still
	// running must not abandon it: both finish and commit.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.RunScheduled(context.Background(), start.Add(time.Hour))
		}()
	}
	wg.Wait()

	require.Len(t, store.buckets, 1)
	assert.Len(t, store.retentionCalls, 2)
}
