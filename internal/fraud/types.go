package fraud

import (
	"net"
	"time"

	dbpkg "clickguard/internal/db"
)

// RequestContext carries origin-supplied signals from the network layer
// in front of the service (edge bot scoring, ASN, anonymizer flags).
type RequestContext struct {
	BotScore    int // origin bot/threat score, 0-100
	VerifiedBot bool
	ASN         int

	VPN     bool
	Proxy   bool
	Tor     bool
	Hosting bool
}

// Input is one event to score plus its request context. The event is
// the not-yet-persisted row, already geo-enriched.
type Input struct {
	Event   *dbpkg.Event
	Context RequestContext
}

// Stats is the historical data gathered for one scoring call. Fields
// left at their zero value (lookup failed or no history) contribute
// nothing to the affected components.
type Stats struct {
	Reputation          *dbpkg.FraudReputation
	SessionEvents       []dbpkg.Event // session history, last hour, oldest first
	SessionIPCount      int64
	SessionCountryCount int64
	EventsLastMinute    int64 // same-IP events in the last 60s
	EventsLastHour      int64
}

// Components holds the six sub-scores, each clamped to [0,100].
type Components struct {
	IPReputation int `json:"ip_reputation"`
	Behavior     int `json:"behavior"`
	Device       int `json:"device"`
	Network      int `json:"network"`
	Pattern      int `json:"pattern"`
	Velocity     int `json:"velocity"`
}

// Result is the outcome of one scoring call.
type Result struct {
	Score       int        `json:"score"`
	Components  Components `json:"components"`
	ThreatLevel string     `json:"threat_level"`
	Action      string     `json:"action"`
}

// Weights for the composite. They sum to 1.
type Weights struct {
	IPReputation float64
	Behavior     float64
	Device       float64
	Network      float64
	Pattern      float64
	Velocity     float64
}

// Config is the rule set the scorer runs with, built once at startup.
type Config struct {
	Weights Weights

	// DenylistedCIDRs are IP ranges that add a flat penalty to the IP
	// reputation component.
	DenylistedCIDRs []*net.IPNet

	// DatacenterASNs penalize the IP component; SuspiciousASNs penalize
	// the network component.
	DatacenterASNs map[int]bool
	SuspiciousASNs map[int]bool

	HeadlessMarkers []string

	// CommonResolutions is the allowlist of screen sizes that do not
	// look synthetic, keyed "WxH".
	CommonResolutions map[string]bool

	PatternRules []Rule
}

// Rule is one named pattern check. Evaluate returns the points it adds
// to the pattern component, zero when it does not match.
type Rule struct {
	Name     string
	Evaluate func(in Input, stats Stats) int
}

// DefaultConfig returns the production rule set.
func DefaultConfig() Config {
	cidrs := []string{
		"185.220.100.0/22", // well-known Tor exit range
		"198.51.100.0/24",
		"203.0.113.0/24",
	}
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		if _, n, err := net.ParseCIDR(c); err == nil {
			nets = append(nets, n)
		}
	}

	return Config{
		Weights: Weights{
			IPReputation: 0.25,
			Behavior:     0.20,
			Device:       0.15,
			Network:      0.20,
			Pattern:      0.10,
			Velocity:     0.10,
		},
		DenylistedCIDRs: nets,
		DatacenterASNs: map[int]bool{
			16509: true, // Amazon
			15169: true, // Google
			8075:  true, // Microsoft
			14061: true, // DigitalOcean
			24940: true, // Hetzner
			16276: true, // OVH
			63949: true, // Linode
		},
		SuspiciousASNs: map[int]bool{
			9009:   true,
			206092: true,
			212238: true,
			49981:  true,
		},
		HeadlessMarkers: []string{
			"headlesschrome", "phantomjs", "selenium", "puppeteer",
			"playwright", "electron", "slimerjs", "htmlunit",
		},
		CommonResolutions: map[string]bool{
			"1920x1080": true, "1366x768": true, "1536x864": true,
			"1440x900": true, "1280x720": true, "1600x900": true,
			"2560x1440": true, "1280x800": true, "1024x768": true,
			"3840x2160": true, "1680x1050": true, "2560x1600": true,
			"375x667": true, "390x844": true, "414x896": true,
			"360x800": true, "393x873": true, "412x915": true,
			"768x1024": true, "810x1080": true, "820x1180": true,
		},
		PatternRules: DefaultRules(),
	}
}

// sessionLookback is how far back session history feeds the behavior
// component.
const sessionLookback = time.Hour
