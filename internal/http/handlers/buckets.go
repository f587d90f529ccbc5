package handlers

import (
	"encoding/json"
	"time"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"clickguard/internal/aggregate"
	dbpkg "clickguard/internal/db"
)

type bucketRow struct {
	Granularity string    `json:"granularity"`
	BucketStart time.Time `json:"bucket_start"`

	TotalEvents    int64 `json:"total_events"`
	UniqueVisitors int64 `json:"unique_visitors"`
	UniqueSessions int64 `json:"unique_sessions"`
	PageViews      int64 `json:"page_views"`
	Clicks         int64 `json:"clicks"`

	DesktopCount int64 `json:"desktop_count"`
	MobileCount  int64 `json:"mobile_count"`
	TabletCount  int64 `json:"tablet_count"`

	TopCountries    json.RawMessage `json:"top_countries,omitempty"`
	TopCities       json.RawMessage `json:"top_cities,omitempty"`
	TopReferrers    json.RawMessage `json:"top_referrers,omitempty"`
	TopUTMSources   json.RawMessage `json:"top_utm_sources,omitempty"`
	TopUTMMediums   json.RawMessage `json:"top_utm_mediums,omitempty"`
	TopUTMCampaigns json.RawMessage `json:"top_utm_campaigns,omitempty"`
	TopKeywords     json.RawMessage `json:"top_keywords,omitempty"`

	BounceRate      float64 `json:"bounce_rate"`
	AvgDurationSec  float64 `json:"avg_duration_sec"`
	PagesPerSession float64 `json:"pages_per_session"`

	BotEvents        int64   `json:"bot_events"`
	SuspiciousEvents int64   `json:"suspicious_events"`
	BlockedEvents    int64   `json:"blocked_events"`
	AvgFraudScore    float64 `json:"avg_fraud_score"`

	AvgPageLoadMs float64 `json:"avg_page_load_ms"`
	AvgResponseMs float64 `json:"avg_response_ms"`

	Conversions    int64   `json:"conversions"`
	Revenue        float64 `json:"revenue"`
	ConversionRate float64 `json:"conversion_rate"`
}

// BucketsHandler is the read-only aggregation query boundary: buckets
// for the caller's project by granularity and time range.
func BucketsHandler(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		ak, ok := MustAPIKey(ctx)
		if !ok {
			return
		}

		granularity := aggregate.Granularity(string(ctx.QueryArgs().Peek("granularity")))
		switch granularity {
		case aggregate.Hourly, aggregate.Daily, aggregate.Weekly, aggregate.Monthly:
		case "":
			granularity = aggregate.Daily
		default:
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid granularity")
			return
		}

		now := time.Now().UTC()
		from := now.AddDate(0, 0, -30)
		to := now
		if s := string(ctx.QueryArgs().Peek("from")); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				errResponse(ctx, fasthttp.StatusBadRequest, "invalid from timestamp")
				return
			}
			from = t.UTC()
		}
		if s := string(ctx.QueryArgs().Peek("to")); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				errResponse(ctx, fasthttp.StatusBadRequest, "invalid to timestamp")
				return
			}
			to = t.UTC()
		}

		var buckets []dbpkg.AggregationBucket
		if err := db.
			Where("project_id = ? AND granularity = ?", ak.ProjectID, string(granularity)).
			Where("bucket_start >= ? AND bucket_start <= ?", from, to).
			Order("bucket_start ASC").
			Find(&buckets).Error; err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query buckets")
			return
		}

		rows := make([]bucketRow, 0, len(buckets))
		for _, b := range buckets {
			rows = append(rows, bucketRow{
				Granularity:      b.Granularity,
				BucketStart:      b.BucketStart.UTC(),
				TotalEvents:      b.TotalEvents,
				UniqueVisitors:   b.UniqueVisitors,
				UniqueSessions:   b.UniqueSessions,
				PageViews:        b.PageViews,
				Clicks:           b.Clicks,
				DesktopCount:     b.DesktopCount,
				MobileCount:      b.MobileCount,
				TabletCount:      b.TabletCount,
				TopCountries:     json.RawMessage(b.TopCountries),
				TopCities:        json.RawMessage(b.TopCities),
				TopReferrers:     json.RawMessage(b.TopReferrers),
				TopUTMSources:    json.RawMessage(b.TopUTMSources),
				TopUTMMediums:    json.RawMessage(b.TopUTMMediums),
				TopUTMCampaigns:  json.RawMessage(b.TopUTMCampaigns),
				TopKeywords:      json.RawMessage(b.TopKeywords),
				BounceRate:       b.BounceRate,
				AvgDurationSec:   b.AvgDurationSec,
				PagesPerSession:  b.PagesPerSession,
				BotEvents:        b.BotEvents,
				SuspiciousEvents: b.SuspiciousEvents,
				BlockedEvents:    b.BlockedEvents,
				AvgFraudScore:    b.AvgFraudScore,
				AvgPageLoadMs:    b.AvgPageLoadMs,
				AvgResponseMs:    b.AvgResponseMs,
				Conversions:      b.Conversions,
				Revenue:          b.Revenue,
				ConversionRate:   b.ConversionRate,
			})
		}

		jsonResponse(ctx, map[string]any{"buckets": rows, "granularity": string(granularity)})
	}
}
