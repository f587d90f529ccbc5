package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"clickguard/internal/geo"
)

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "shop.example.com", domainOf("https://shop.example.com/products/1?ref=x"))
	assert.Equal(t, "example.com", domainOf("https://www.example.com/"))
	assert.Equal(t, "", domainOf(""))
	assert.Equal(t, "", domainOf("not a url"))
}

func TestClassifyReferrer(t *testing.T) {
	assert.Equal(t, "direct", classifyReferrer(""))
	assert.Equal(t, "search", classifyReferrer("google.com"))
	assert.Equal(t, "search", classifyReferrer("google.co.uk"))
	assert.Equal(t, "social", classifyReferrer("facebook.com"))
	assert.Equal(t, "social", classifyReferrer("x.com"))
	assert.Equal(t, "referral", classifyReferrer("partner-blog.example"))
}

func TestBuildEvent(t *testing.T) {
	at := time.Date(2026, 8, 1, 10, 30, 0, 0, time.UTC)
	ev := IngestEvent{
		SessionID:   "s-1",
		IPAddress:   "203.0.113.4",
		UserAgent:   "Mozilla/5.0",
		PageURL:     "https://www.myshop.example/landing",
		ReferrerURL: "https://www.google.com/search?q=shoes",
		UTMSource:   "summer-sale",
		ClickCount:  2,
		Attributes:  map[string]any{"plan": "pro"},
	}

	rec := buildEvent("proj-9", at, &ev)

	require.NotEmpty(t, rec.EventID)
	assert.Equal(t, "proj-9", rec.ProjectID)
	assert.Equal(t, at, rec.CreatedAt)
	assert.Equal(t, "myshop.example", rec.PageDomain)
	assert.Equal(t, "google.com", rec.ReferrerDomain)
	assert.Equal(t, "search", rec.ReferrerType)
	assert.Equal(t, "pro", rec.Attributes["plan"])

	// Two events get distinct ids.
	other := buildEvent("proj-9", at, &ev)
	assert.NotEqual(t, rec.EventID, other.EventID)
}

func TestHintsRequireMatchingOrigin(t *testing.T) {
	rc := IngestContext{
		CountryCode: "DE",
		City:        "Berlin",
		ISP:         "Deutsche Telekom",
	}

	h := hintsFor(rc, "203.0.113.4", "203.0.113.4")
	assert.Equal(t, "DE", h.CountryCode)
	assert.Equal(t, "Berlin", h.City)

	// A backfilled event reporting another IP must not inherit the
	// submitting origin's location; it resolves via cache instead, so
	// nothing foreign is ever written under its key.
	h = hintsFor(rc, "198.51.100.9", "203.0.113.4")
	assert.Equal(t, geo.Hints{}, h)
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.Set("X-Forwarded-For", "203.0.113.4, 10.0.0.1")
	assert.Equal(t, "203.0.113.4", clientIP(&ctx))

	ctx.Request.Header.Set("X-Forwarded-For", "198.51.100.9")
	assert.Equal(t, "198.51.100.9", clientIP(&ctx))
}
