package aggregate

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	dbpkg "clickguard/internal/db"
)

// Pipeline rolls raw events into hourly buckets and hourly/daily
// buckets into the coarser tiers. Every commit is an upsert keyed on
// (project, granularity, bucket_start), so re-running a trigger for the
// same bucket replaces it instead of duplicating it.
type Pipeline struct {
	store         Store
	fanout        int
	retentionDays int

	now func() time.Time
}

func NewPipeline(store Store, fanout, retentionDays int) *Pipeline {
	if fanout < 1 {
		fanout = 1
	}
	return &Pipeline{store: store, fanout: fanout, retentionDays: retentionDays, now: time.Now}
}

// Run aggregates one bucket span for every project with data in the
// source window. A project whose computation or commit fails is logged
// and skipped; the run itself only fails when the project enumeration
// does, or when the context is canceled mid-loop.
func (p *Pipeline) Run(ctx context.Context, granularity Granularity, bucketStart time.Time) error {
	bucketStart = granularity.Truncate(bucketStart)
	end := granularity.SpanEnd(bucketStart)

	projects, err := p.listProjects(ctx, granularity, bucketStart, end)
	if err != nil {
		return fmt.Errorf("aggregate: list projects for %s %s: %w", granularity, bucketStart.Format(time.RFC3339), err)
	}

	sem := make(chan struct{}, p.fanout)
	var wg sync.WaitGroup
	for _, project := range projects {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(project string) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := p.runProject(ctx, project, granularity, bucketStart, end); err != nil {
				log.Printf("aggregate: %s bucket %s for project %s failed: %v",
					granularity, bucketStart.Format(time.RFC3339), project, err)
			}
		}(project)
	}
	wg.Wait()

	return ctx.Err()
}

// Trigger is the manual/backfill entry point: it normalizes date to the
// containing bucket of the requested granularity and reuses Run.
func (p *Pipeline) Trigger(ctx context.Context, granularity Granularity, date time.Time) (time.Time, error) {
	switch granularity {
	case Hourly, Daily, Weekly, Monthly:
	default:
		return time.Time{}, fmt.Errorf("aggregate: unknown granularity %q", granularity)
	}
	bucketStart := granularity.Truncate(date)
	return bucketStart, p.Run(ctx, granularity, bucketStart)
}

func (p *Pipeline) listProjects(ctx context.Context, granularity Granularity, start, end time.Time) ([]string, error) {
	if granularity == Hourly {
		return p.store.EventProjects(ctx, start, end)
	}
	source, _ := granularity.SourceGranularity()
	return p.store.BucketProjects(ctx, source, start, end)
}

func (p *Pipeline) runProject(ctx context.Context, projectID string, granularity Granularity, start, end time.Time) error {
	var bucket dbpkg.AggregationBucket

	if granularity == Hourly {
		events, err := p.store.EventsInWindow(ctx, projectID, start, end)
		if err != nil {
			return err
		}
		bucket = ComputeHourly(projectID, start, events)
	} else {
		source, _ := granularity.SourceGranularity()
		children, err := p.store.ChildBuckets(ctx, projectID, source, start, end)
		if err != nil {
			return err
		}
		bucket = RollUp(projectID, granularity, start, children)
	}

	bucket.UpdatedAt = p.now().UTC()
	return p.store.UpsertBucket(ctx, &bucket)
}

// RunScheduled executes every granularity that is due at tick t: the
// prior hour always, the prior day at midnight, the prior week at
// Sunday midnight, the prior month on the 1st. A retention pass
// follows the aggregation work.
func (p *Pipeline) RunScheduled(ctx context.Context, t time.Time) {
	t = t.UTC()
	hour := t.Truncate(time.Hour)

	if err := p.Run(ctx, Hourly, hour.Add(-time.Hour)); err != nil {
		log.Printf("aggregate: scheduled hourly run failed: %v", err)
	}

	if hour.Hour() == 0 {
		if err := p.Run(ctx, Daily, hour.AddDate(0, 0, -1)); err != nil {
			log.Printf("aggregate: scheduled daily run failed: %v", err)
		}
		if hour.Weekday() == time.Sunday {
			if err := p.Run(ctx, Weekly, hour.AddDate(0, 0, -7)); err != nil {
				log.Printf("aggregate: scheduled weekly run failed: %v", err)
			}
		}
		if hour.Day() == 1 {
			if err := p.Run(ctx, Monthly, hour.AddDate(0, -1, 0)); err != nil {
				log.Printf("aggregate: scheduled monthly run failed: %v", err)
			}
		}
	}

	if err := p.store.Retention(ctx, p.retentionDays); err != nil {
		log.Printf("aggregate: retention pass failed: %v", err)
	}
}
