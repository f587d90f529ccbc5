package handlers

import (
	"encoding/json"
	"time"

	"github.com/valyala/fasthttp"

	"clickguard/internal/aggregate"
)

type triggerRequest struct {
	Type string `json:"type"`
	Date string `json:"date,omitempty"` // RFC 3339; defaults to the previous completed span
}

// TriggerHandler is the manual/backfill entry point: it runs one
// aggregation granularity for an arbitrary historical date and echoes
// the parameters used.
func TriggerHandler(pipeline *aggregate.Pipeline) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if _, ok := MustAPIKey(ctx); !ok {
			return
		}

		var req triggerRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}

		granularity := aggregate.Granularity(req.Type)
		switch granularity {
		case aggregate.Hourly, aggregate.Daily, aggregate.Weekly, aggregate.Monthly:
		default:
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid type, want hourly, daily, weekly or monthly")
			return
		}

		date := time.Now().UTC()
		if req.Date != "" {
			t, err := time.Parse(time.RFC3339, req.Date)
			if err != nil {
				errResponse(ctx, fasthttp.StatusBadRequest, "invalid date, want RFC 3339")
				return
			}
			date = t.UTC()
		} else {
			// Default to the previous completed span so "run hourly"
			// right after the hour works on full data.
			date = granularity.Truncate(date).Add(-time.Second)
		}

		bucketStart, err := pipeline.Trigger(ctx, granularity, date)
		if err != nil {
			jsonResponse(ctx, map[string]any{
				"success": false,
				"type":    req.Type,
				"date":    date.Format(time.RFC3339),
				"error":   err.Error(),
			})
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			return
		}

		jsonResponse(ctx, map[string]any{
			"success":      true,
			"type":         req.Type,
			"date":         date.Format(time.RFC3339),
			"bucket_start": bucketStart.Format(time.RFC3339),
		})
	}
}
