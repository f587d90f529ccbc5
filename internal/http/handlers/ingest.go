package handlers

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"clickguard/internal/bot"
	dbpkg "clickguard/internal/db"
	"clickguard/internal/fraud"
	"clickguard/internal/geo"
	"clickguard/internal/ratelimit"
)

type IngestEvent struct {
	Timestamp *time.Time `json:"timestamp,omitempty"`
	SessionID string     `json:"session_id"`
	IPAddress string     `json:"ip_address"`
	UserAgent string     `json:"user_agent,omitempty"`

	DeviceType string `json:"device_type,omitempty"`
	Browser    string `json:"browser,omitempty"`
	OS         string `json:"os,omitempty"`

	ScreenWidth    int `json:"screen_width,omitempty"`
	ScreenHeight   int `json:"screen_height,omitempty"`
	ViewportWidth  int `json:"viewport_width,omitempty"`
	ViewportHeight int `json:"viewport_height,omitempty"`

	PageURL     string `json:"page_url,omitempty"`
	ReferrerURL string `json:"referrer_url,omitempty"`

	UTMSource   string `json:"utm_source,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`
	UTMTerm     string `json:"utm_term,omitempty"`
	UTMContent  string `json:"utm_content,omitempty"`

	TimeOnPageSec float64 `json:"time_on_page_sec,omitempty"`
	ScrollDepth   int     `json:"scroll_depth,omitempty"`
	ClickCount    int     `json:"click_count,omitempty"`

	PageLoadMs int64 `json:"page_load_ms,omitempty"`
	ResponseMs int64 `json:"response_ms,omitempty"`

	IsConversion bool    `json:"is_conversion,omitempty"`
	Revenue      float64 `json:"revenue,omitempty"`

	// Honeypot is the value of the hidden form field; humans leave it
	// empty.
	Honeypot string `json:"honeypot,omitempty"`

	Attributes map[string]any `json:"attributes,omitempty"`
}

// IngestContext carries origin-supplied hints from the network layer in
// front of the caller (edge geo headers, bot verdicts, ASN).
type IngestContext struct {
	CountryCode string   `json:"country_code,omitempty"`
	Region      string   `json:"region,omitempty"`
	City        string   `json:"city,omitempty"`
	Timezone    string   `json:"timezone,omitempty"`
	ISP         string   `json:"isp,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`

	BotScore    int  `json:"bot_score,omitempty"`
	VerifiedBot bool `json:"verified_bot,omitempty"`
	ASN         int  `json:"asn,omitempty"`

	VPN     bool `json:"vpn,omitempty"`
	Proxy   bool `json:"proxy,omitempty"`
	Tor     bool `json:"tor,omitempty"`
	Hosting bool `json:"hosting,omitempty"`
}

type ingestRequest struct {
	Events  []IngestEvent `json:"events"`
	Context IngestContext `json:"context"`
}

type scoredEvent struct {
	EventID        string `json:"event_id"`
	FraudScore     int    `json:"fraud_score"`
	ThreatLevel    string `json:"threat_level"`
	Action         string `json:"action"`
	IsBot          bool   `json:"is_bot"`
	IsCrawler      bool   `json:"is_crawler"`
	BotConfidence  int    `json:"bot_confidence"`
	CountryCode    string `json:"country_code"`
	ConnectionType string `json:"connection_type,omitempty"`
	RateLimited    bool   `json:"rate_limited"`
}

// IngestHandler enriches, scores and persists incoming events. It is
// best-effort end to end: enrichment, scoring or rate-limit degradation
// never turns into a request-path error.
func IngestHandler(
	db *gorm.DB,
	resolver *geo.Resolver,
	limiter *ratelimit.Limiter,
	scorer *fraud.Scorer,
	detector *bot.Detector,
	history fraud.History,
) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var payload ingestRequest
		if err := json.Unmarshal(ctx.PostBody(), &payload); err != nil {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("invalid JSON body")
			return
		}
		if len(payload.Events) == 0 {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("no events provided")
			return
		}

		ak, ok := MustAPIKey(ctx)
		if !ok {
			return
		}
		projectID := ak.ProjectID

		now := time.Now().UTC()
		originIP := clientIP(ctx)
		records := make([]dbpkg.Event, 0, len(payload.Events))
		scored := make([]scoredEvent, 0, len(payload.Events))

		for _, ev := range payload.Events {
			if ev.IPAddress == "" {
				continue
			}

			createdAt := now
			if ev.Timestamp != nil {
				createdAt = ev.Timestamp.UTC()
			}

			rec := buildEvent(projectID, createdAt, &ev)

			geoRec := resolver.Resolve(ctx, ev.IPAddress, hintsFor(payload.Context, ev.IPAddress, originIP))
			rec.CountryCode = geoRec.CountryCode
			rec.Country = geoRec.Country
			rec.Region = geoRec.Region
			rec.City = geoRec.City
			rec.Timezone = geoRec.Timezone
			rec.ISP = geoRec.ISP
			rec.ConnectionType = geoRec.ConnectionType

			rateLimited := checkLimits(ctx, limiter, ev.IPAddress, ev.SessionID, projectID)

			sessionTimes := sessionTimestamps(ctx, history, ev.SessionID, now)
			detection := detector.Detect(bot.Input{
				UserAgent:         ev.UserAgent,
				VerifiedBot:       payload.Context.VerifiedBot,
				HoneypotValue:     ev.Honeypot,
				ScreenWidth:       ev.ScreenWidth,
				ScreenHeight:      ev.ScreenHeight,
				TimeOnPageSec:     ev.TimeOnPageSec,
				ScrollDepth:       ev.ScrollDepth,
				ClickCount:        ev.ClickCount,
				SessionTimestamps: sessionTimes,
			})
			rec.IsBot = detection.IsBot
			rec.IsCrawler = detection.IsCrawler
			rec.BotConfidence = detection.Confidence

			result := scorer.Score(ctx, fraud.Input{
				Event: &rec,
				Context: fraud.RequestContext{
					BotScore:    payload.Context.BotScore,
					VerifiedBot: payload.Context.VerifiedBot,
					ASN:         payload.Context.ASN,
					VPN:         payload.Context.VPN,
					Proxy:       payload.Context.Proxy,
					Tor:         payload.Context.Tor,
					Hosting:     payload.Context.Hosting,
				},
			})
			rec.FraudScore = result.Score
			rec.ThreatLevel = result.ThreatLevel
			rec.Action = result.Action

			records = append(records, rec)
			scored = append(scored, scoredEvent{
				EventID:        rec.EventID,
				FraudScore:     rec.FraudScore,
				ThreatLevel:    rec.ThreatLevel,
				Action:         rec.Action,
				IsBot:          rec.IsBot,
				IsCrawler:      rec.IsCrawler,
				BotConfidence:  rec.BotConfidence,
				CountryCode:    rec.CountryCode,
				ConnectionType: rec.ConnectionType,
				RateLimited:    rateLimited,
			})

			eventsTotal.WithLabelValues(projectID, rec.Action).Inc()
			fraudScoreHistogram.Observe(float64(rec.FraudScore))
			if rec.IsBot {
				crawler := "false"
				if rec.IsCrawler {
					crawler = "true"
				}
				botDetectionsTotal.WithLabelValues(projectID, crawler).Inc()
			}
		}

		if len(records) == 0 {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("no valid events after validation")
			return
		}

		if err := db.Create(&records).Error; err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to persist events")
			return
		}

		ctx.SetStatusCode(fasthttp.StatusAccepted)
		jsonResponse(ctx, map[string]any{"status": "accepted", "events": scored})
	}
}

func buildEvent(projectID string, createdAt time.Time, ev *IngestEvent) dbpkg.Event {
	attrs := datatypes.JSONMap{}
	for k, v := range ev.Attributes {
		attrs[k] = v
	}

	pageDomain := domainOf(ev.PageURL)
	referrerDomain := domainOf(ev.ReferrerURL)

	return dbpkg.Event{
		EventID:        uuid.NewString(),
		CreatedAt:      createdAt,
		ProjectID:      projectID,
		SessionID:      ev.SessionID,
		IPAddress:      ev.IPAddress,
		UserAgent:      ev.UserAgent,
		DeviceType:     ev.DeviceType,
		Browser:        ev.Browser,
		OS:             ev.OS,
		ScreenWidth:    ev.ScreenWidth,
		ScreenHeight:   ev.ScreenHeight,
		ViewportWidth:  ev.ViewportWidth,
		ViewportHeight: ev.ViewportHeight,
		PageURL:        ev.PageURL,
		PageDomain:     pageDomain,
		ReferrerURL:    ev.ReferrerURL,
		ReferrerDomain: referrerDomain,
		ReferrerType:   classifyReferrer(referrerDomain),
		UTMSource:      ev.UTMSource,
		UTMMedium:      ev.UTMMedium,
		UTMCampaign:    ev.UTMCampaign,
		UTMTerm:        ev.UTMTerm,
		UTMContent:     ev.UTMContent,
		TimeOnPageSec:  ev.TimeOnPageSec,
		ScrollDepth:    ev.ScrollDepth,
		ClickCount:     ev.ClickCount,
		PageLoadMs:     ev.PageLoadMs,
		ResponseMs:     ev.ResponseMs,
		IsConversion:   ev.IsConversion,
		Revenue:        ev.Revenue,
		Attributes:     attrs,
	}
}

// hintsFor gates the request-level geo hints. They describe the
// connection that submitted the batch, so only the event reporting that
// same IP may use them; backfilled events for other IPs resolve through
// the cache and never write the origin's location under a foreign key.
func hintsFor(rc IngestContext, eventIP, originIP string) geo.Hints {
	if eventIP != originIP {
		return geo.Hints{}
	}
	return geo.Hints{
		CountryCode: rc.CountryCode,
		Region:      rc.Region,
		City:        rc.City,
		Timezone:    rc.Timezone,
		ISP:         rc.ISP,
		Latitude:    rc.Latitude,
		Longitude:   rc.Longitude,
	}
}

// clientIP is the submitting connection's address: the first
// X-Forwarded-For hop when present, the socket peer otherwise.
func clientIP(ctx *fasthttp.RequestCtx) string {
	if xff := ctx.Request.Header.Peek("X-Forwarded-For"); len(xff) > 0 {
		first, _, _ := strings.Cut(string(xff), ",")
		return strings.TrimSpace(first)
	}
	return ctx.RemoteIP().String()
}

// checkLimits runs all three scopes; any failure degrades to "not
// limited" so the request path never blocks on the counter store.
func checkLimits(ctx *fasthttp.RequestCtx, limiter *ratelimit.Limiter, ip, sessionID, projectID string) bool {
	limited := false
	check := func(identifier string, scope ratelimit.Scope) {
		if identifier == "" {
			return
		}
		exceeded, err := limiter.CheckAndRecord(ctx, identifier, scope)
		if err != nil {
			return
		}
		if exceeded {
			limited = true
			rateLimitViolations.WithLabelValues(string(scope)).Inc()
		}
	}
	check(ip, ratelimit.ScopeIP)
	check(sessionID, ratelimit.ScopeSession)
	check(projectID, ratelimit.ScopeProject)
	return limited
}

func sessionTimestamps(ctx *fasthttp.RequestCtx, history fraud.History, sessionID string, now time.Time) []time.Time {
	if sessionID == "" {
		return nil
	}
	events, err := history.SessionEvents(ctx, sessionID, now.Add(-time.Hour))
	if err != nil {
		return nil
	}
	times := make([]time.Time, 0, len(events))
	for _, e := range events {
		times = append(times, e.CreatedAt)
	}
	return times
}

func domainOf(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(u.Host, "www."))
}

var searchDomains = []string{"google.", "bing.com", "yahoo.", "duckduckgo.com", "baidu.com", "yandex."}
var socialDomains = []string{"facebook.com", "twitter.com", "x.com", "instagram.com", "linkedin.com", "tiktok.com", "pinterest.", "reddit.com"}

func classifyReferrer(domain string) string {
	if domain == "" {
		return "direct"
	}
	for _, d := range searchDomains {
		if strings.Contains(domain, d) {
			return "search"
		}
	}
	for _, d := range socialDomains {
		if strings.Contains(domain, d) {
			return "social"
		}
	}
	return "referral"
}
