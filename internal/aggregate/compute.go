package aggregate

import (
	"time"

	"gorm.io/datatypes"

	dbpkg "clickguard/internal/db"
)

// Granularity names one tier of the rollup hierarchy.
type Granularity string

const (
	Hourly  Granularity = "hourly"
	Daily   Granularity = "daily"
	Weekly  Granularity = "weekly"
	Monthly Granularity = "monthly"
)

// SourceGranularity returns the tier a granularity rolls up from.
// Hourly is the only tier that reads raw events.
func (g Granularity) SourceGranularity() (Granularity, bool) {
	switch g {
	case Daily:
		return Hourly, true
	case Weekly, Monthly:
		return Daily, true
	default:
		return "", false
	}
}

// SpanEnd returns the exclusive end of a bucket starting at start.
func (g Granularity) SpanEnd(start time.Time) time.Time {
	switch g {
	case Hourly:
		return start.Add(time.Hour)
	case Daily:
		return start.AddDate(0, 0, 1)
	case Weekly:
		return start.AddDate(0, 0, 7)
	case Monthly:
		return start.AddDate(0, 1, 0)
	default:
		return start
	}
}

// Truncate normalizes an arbitrary instant to the bucket start that
// contains it: top of hour, midnight, the week's Sunday midnight, or
// the 1st of the month, all UTC.
func (g Granularity) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch g {
	case Hourly:
		return t.Truncate(time.Hour)
	case Daily:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case Weekly:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return day.AddDate(0, 0, -int(day.Weekday()))
	case Monthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}

// ComputeHourly builds the hourly bucket for one project from its raw
// events in [bucketStart, bucketStart+1h). This is the only place raw
// events feed aggregation; every coarser tier goes through RollUp.
func ComputeHourly(projectID string, bucketStart time.Time, events []dbpkg.Event) dbpkg.AggregationBucket {
	b := dbpkg.AggregationBucket{
		ProjectID:   projectID,
		Granularity: string(Hourly),
		BucketStart: bucketStart,
	}

	visitors := make(map[string]bool)
	countries := make(map[string]int64)
	cities := make(map[string]int64)
	referrers := make(map[string]int64)
	utmSources := make(map[string]int64)
	utmMediums := make(map[string]int64)
	utmCampaigns := make(map[string]int64)
	keywords := make(map[string]int64)

	type sessionAgg struct {
		pages    int64
		duration float64
	}
	sessions := make(map[string]*sessionAgg)

	var fraudSum, pageLoadSum, responseSum float64

	for i := range events {
		e := &events[i]
		b.TotalEvents++
		b.PageViews++
		b.Clicks += int64(e.ClickCount)

		visitors[e.IPAddress] = true

		switch e.DeviceType {
		case "mobile":
			b.MobileCount++
		case "tablet":
			b.TabletCount++
		default:
			b.DesktopCount++
		}

		countries[e.CountryCode]++
		cities[e.City]++
		referrers[e.ReferrerDomain]++
		utmSources[e.UTMSource]++
		utmMediums[e.UTMMedium]++
		utmCampaigns[e.UTMCampaign]++
		keywords[e.UTMTerm]++

		if e.SessionID != "" {
			sa := sessions[e.SessionID]
			if sa == nil {
				sa = &sessionAgg{}
				sessions[e.SessionID] = sa
			}
			sa.pages++
			sa.duration += e.TimeOnPageSec
		}

		if e.IsBot {
			b.BotEvents++
		}
		if e.FraudScore >= 60 {
			b.SuspiciousEvents++
		}
		if e.FraudScore >= 80 {
			b.BlockedEvents++
		}
		fraudSum += float64(e.FraudScore)
		pageLoadSum += float64(e.PageLoadMs)
		responseSum += float64(e.ResponseMs)

		if e.IsConversion {
			b.Conversions++
			b.Revenue += e.Revenue
		}
	}

	b.UniqueVisitors = int64(len(visitors))
	b.UniqueSessions = int64(len(sessions))

	b.TopCountries = marshalBreakdown(topNFromCounts(countries))
	b.TopCities = marshalBreakdown(topNFromCounts(cities))
	b.TopReferrers = marshalBreakdown(topNFromCounts(referrers))
	b.TopUTMSources = marshalBreakdown(topNFromCounts(utmSources))
	b.TopUTMMediums = marshalBreakdown(topNFromCounts(utmMediums))
	b.TopUTMCampaigns = marshalBreakdown(topNFromCounts(utmCampaigns))
	b.TopKeywords = marshalBreakdown(topNFromCounts(keywords))

	if n := b.UniqueSessions; n > 0 {
		var bounces int64
		var durationSum float64
		for _, sa := range sessions {
			if sa.pages == 1 {
				bounces++
			}
			durationSum += sa.duration
		}
		b.BounceRate = float64(bounces) / float64(n)
		b.AvgDurationSec = durationSum / float64(n)
		b.PagesPerSession = float64(b.PageViews) / float64(n)
	}

	if b.TotalEvents > 0 {
		b.AvgFraudScore = fraudSum / float64(b.TotalEvents)
		b.AvgPageLoadMs = pageLoadSum / float64(b.TotalEvents)
		b.AvgResponseMs = responseSum / float64(b.TotalEvents)
	}

	if b.UniqueVisitors > 0 {
		b.ConversionRate = float64(b.Conversions) / float64(b.UniqueVisitors)
	}

	return b
}

func pick(children []dbpkg.AggregationBucket, field func(*dbpkg.AggregationBucket) datatypes.JSON) []datatypes.JSON {
	lists := make([]datatypes.JSON, 0, len(children))
	for i := range children {
		lists = append(lists, field(&children[i]))
	}
	return lists
}

// RollUp derives a coarser bucket from its constituent finer buckets:
// counts sum, averages weight by the child totals, breakdowns merge and
// re-rank. It never sees raw events.
func RollUp(projectID string, granularity Granularity, bucketStart time.Time, children []dbpkg.AggregationBucket) dbpkg.AggregationBucket {
	b := dbpkg.AggregationBucket{
		ProjectID:   projectID,
		Granularity: string(granularity),
		BucketStart: bucketStart,
	}

	var fraudSum, pageLoadSum, responseSum float64
	var bounceSum, durationSum, pagesSum float64

	for i := range children {
		c := &children[i]
		b.TotalEvents += c.TotalEvents
		b.UniqueVisitors += c.UniqueVisitors
		b.UniqueSessions += c.UniqueSessions
		b.PageViews += c.PageViews
		b.Clicks += c.Clicks

		b.DesktopCount += c.DesktopCount
		b.MobileCount += c.MobileCount
		b.TabletCount += c.TabletCount

		b.BotEvents += c.BotEvents
		b.SuspiciousEvents += c.SuspiciousEvents
		b.BlockedEvents += c.BlockedEvents

		b.Conversions += c.Conversions
		b.Revenue += c.Revenue

		w := float64(c.TotalEvents)
		fraudSum += c.AvgFraudScore * w
		pageLoadSum += c.AvgPageLoadMs * w
		responseSum += c.AvgResponseMs * w

		sw := float64(c.UniqueSessions)
		bounceSum += c.BounceRate * sw
		durationSum += c.AvgDurationSec * sw
		pagesSum += c.PagesPerSession * sw
	}

	b.TopCountries = mergeBreakdowns(pick(children, func(c *dbpkg.AggregationBucket) datatypes.JSON { return c.TopCountries })...)
	b.TopCities = mergeBreakdowns(pick(children, func(c *dbpkg.AggregationBucket) datatypes.JSON { return c.TopCities })...)
	b.TopReferrers = mergeBreakdowns(pick(children, func(c *dbpkg.AggregationBucket) datatypes.JSON { return c.TopReferrers })...)
	b.TopUTMSources = mergeBreakdowns(pick(children, func(c *dbpkg.AggregationBucket) datatypes.JSON { return c.TopUTMSources })...)
	b.TopUTMMediums = mergeBreakdowns(pick(children, func(c *dbpkg.AggregationBucket) datatypes.JSON { return c.TopUTMMediums })...)
	b.TopUTMCampaigns = mergeBreakdowns(pick(children, func(c *dbpkg.AggregationBucket) datatypes.JSON { return c.TopUTMCampaigns })...)
	b.TopKeywords = mergeBreakdowns(pick(children, func(c *dbpkg.AggregationBucket) datatypes.JSON { return c.TopKeywords })...)

	if b.TotalEvents > 0 {
		b.AvgFraudScore = fraudSum / float64(b.TotalEvents)
		b.AvgPageLoadMs = pageLoadSum / float64(b.TotalEvents)
		b.AvgResponseMs = responseSum / float64(b.TotalEvents)
	}
	if b.UniqueSessions > 0 {
		b.BounceRate = bounceSum / float64(b.UniqueSessions)
		b.AvgDurationSec = durationSum / float64(b.UniqueSessions)
		b.PagesPerSession = pagesSum / float64(b.UniqueSessions)
	}
	if b.UniqueVisitors > 0 {
		b.ConversionRate = float64(b.Conversions) / float64(b.UniqueVisitors)
	}

	return b
}
