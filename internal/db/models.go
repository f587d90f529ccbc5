package db

import (
	"time"

	"gorm.io/datatypes"
)

// Event represents a single observed visit/click with enrichment and
// scoring attached. Rows are immutable once written; the retention pass
// deletes them after the configured window.
type Event struct {
	ID uint `gorm:"primaryKey"`

	// EventID is the externally visible identifier echoed back to the
	// ingestion caller.
	EventID string `gorm:"uniqueIndex;size:36"`

	CreatedAt time.Time `gorm:"index"`

	ProjectID string `gorm:"index"`
	SessionID string `gorm:"index"`
	IPAddress string `gorm:"index"`

	UserAgent  string
	DeviceType string `gorm:"size:32"` // desktop, mobile, tablet
	Browser    string `gorm:"size:64"`
	OS         string `gorm:"size:64"`

	ScreenWidth    int
	ScreenHeight   int
	ViewportWidth  int
	ViewportHeight int

	PageURL        string
	PageDomain     string `gorm:"size:255"`
	ReferrerURL    string
	ReferrerDomain string `gorm:"size:255"`
	ReferrerType   string `gorm:"size:32"` // direct, search, social, referral

	UTMSource   string `gorm:"size:255"`
	UTMMedium   string `gorm:"size:255"`
	UTMCampaign string `gorm:"size:255"`
	UTMTerm     string `gorm:"size:255"`
	UTMContent  string `gorm:"size:255"`

	CountryCode    string `gorm:"size:2;index"`
	Country        string `gorm:"size:64"`
	Region         string `gorm:"size:128"`
	City           string `gorm:"size:128"`
	Timezone       string `gorm:"size:64"`
	ISP            string `gorm:"size:255"`
	ConnectionType string `gorm:"size:32"`

	TimeOnPageSec float64
	ScrollDepth   int // percent, 0-100
	ClickCount    int

	FraudScore    int
	ThreatLevel   string `gorm:"size:16"`
	Action        string `gorm:"size:16"`
	IsBot         bool
	IsCrawler     bool
	BotConfidence int

	PageLoadMs int64
	ResponseMs int64

	IsConversion bool
	Revenue      float64

	// Attributes holds arbitrary key/value pairs attached by the caller
	// (custom fields, honeypot inputs) without schema changes.
	Attributes datatypes.JSONMap `gorm:"type:json"`
}

// FraudReputation is the running per-IP record maintained by the fraud
// scorer. One row per IP address; merged on every scoring call, never
// deleted by the regular retention pass.
type FraudReputation struct {
	ID uint `gorm:"primaryKey"`

	IPAddress string `gorm:"uniqueIndex;size:45;not null"`

	BaseScore int `gorm:"not null;default:30"`

	VPNDetected     bool
	ProxyDetected   bool
	TorDetected     bool
	HostingProvider bool

	TotalEvents      int64 `gorm:"not null"`
	SuspiciousEvents int64 `gorm:"not null"` // composite score >= 60
	BlockedEvents    int64 `gorm:"not null"` // composite score >= 80

	UpdatedAt time.Time
}

// RateLimitEntry is one recorded request for fixed-lookback window
// counting. Entries older than one hour are pruned opportunistically
// on write.
type RateLimitEntry struct {
	ID uint `gorm:"primaryKey"`

	Scope      string    `gorm:"index:idx_rate_scope_ident;size:16;not null"` // ip, session, project
	Identifier string    `gorm:"index:idx_rate_scope_ident;size:255;not null"`
	CreatedAt  time.Time `gorm:"index"`
}

// RateLimitViolation records one over-threshold observation for audit.
type RateLimitViolation struct {
	ID uint `gorm:"primaryKey"`

	Scope      string `gorm:"size:16;not null"`
	Identifier string `gorm:"size:255;not null"`
	Observed   int64  `gorm:"not null"` // count inside the window when flagged
	Limit      int    `gorm:"column:max_requests;not null"`
	CreatedAt  time.Time
}

// GeoCacheEntry backs geo enrichment when redis is not configured. The
// record payload is stored as JSON; ExpiresAt drives TTL cleanup.
type GeoCacheEntry struct {
	ID uint `gorm:"primaryKey"`

	IPAddress string         `gorm:"uniqueIndex;size:45;not null"`
	Record    datatypes.JSON `gorm:"type:json"`
	ExpiresAt time.Time      `gorm:"index;not null"`
}

// AggregationBucket stores one aggregated summary per (project,
// granularity, bucket start). The unique index makes recomputation an
// upsert: exactly one row per bucket identity, always.
type AggregationBucket struct {
	ID uint `gorm:"primaryKey"`

	ProjectID   string    `gorm:"uniqueIndex:idx_bucket_unique,priority:1;size:64;not null"`
	Granularity string    `gorm:"uniqueIndex:idx_bucket_unique,priority:2;size:16;not null"` // hourly, daily, weekly, monthly
	BucketStart time.Time `gorm:"uniqueIndex:idx_bucket_unique,priority:3;not null"`         // start of the span (UTC)

	TotalEvents    int64 `gorm:"not null"`
	UniqueVisitors int64 `gorm:"not null"`
	UniqueSessions int64 `gorm:"not null"`
	PageViews      int64 `gorm:"not null"`
	Clicks         int64 `gorm:"not null"`

	DesktopCount int64
	MobileCount  int64
	TabletCount  int64

	// Serialized top-N breakdowns: JSON arrays of {value, count}.
	TopCountries    datatypes.JSON `gorm:"type:json"`
	TopCities       datatypes.JSON `gorm:"type:json"`
	TopReferrers    datatypes.JSON `gorm:"type:json"`
	TopUTMSources   datatypes.JSON `gorm:"type:json"`
	TopUTMMediums   datatypes.JSON `gorm:"type:json"`
	TopUTMCampaigns datatypes.JSON `gorm:"type:json"`
	TopKeywords     datatypes.JSON `gorm:"type:json"`

	BounceRate      float64
	AvgDurationSec  float64
	PagesPerSession float64

	BotEvents        int64
	SuspiciousEvents int64
	BlockedEvents    int64
	AvgFraudScore    float64

	AvgPageLoadMs float64
	AvgResponseMs float64

	Conversions    int64
	Revenue        float64
	ConversionRate float64

	UpdatedAt time.Time
}

// APIKey authenticates ingestion and query calls and binds them to a
// project.
type APIKey struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	// ProjectID scopes everything ingested or queried with this key.
	ProjectID string `gorm:"index;size:64;not null"`

	// Name is a human-friendly identifier for this key.
	Name string `gorm:"size:128;not null"`

	// Key is the actual bearer token value.
	Key string `gorm:"uniqueIndex;size:255;not null"`

	// Active indicates whether this key is currently enabled.
	Active bool `gorm:"default:true"`
}
