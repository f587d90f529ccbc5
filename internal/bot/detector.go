package bot

import (
	"math"
	"regexp"
	"strings"
	"time"
)

// Input is everything one detection call looks at. SessionTimestamps
// are the session's recent event times, oldest first; the detector only
// uses the last ten.
type Input struct {
	UserAgent     string
	VerifiedBot   bool
	HoneypotValue string

	ScreenWidth  int
	ScreenHeight int

	TimeOnPageSec float64
	ScrollDepth   int
	ClickCount    int

	SessionTimestamps []time.Time
}

// Detection is the classifier output. Confidence is the weighted share
// of checks that fired, as a 0-100 percentage.
type Detection struct {
	IsBot      bool `json:"is_bot"`
	IsCrawler  bool `json:"is_crawler"`
	Confidence int  `json:"confidence"`
}

// Signatures is the pattern configuration, built once at startup.
type Signatures struct {
	// BotPatterns match any automated client, good or bad.
	BotPatterns []*regexp.Regexp
	// CrawlerPatterns match legitimate crawlers (search engines,
	// social preview fetchers) for the narrower isCrawler flag.
	CrawlerPatterns []*regexp.Regexp
}

// DefaultSignatures returns the standard signature lists.
func DefaultSignatures() Signatures {
	bots := []string{
		`(?i)bot\b`, `(?i)crawler`, `(?i)spider`, `(?i)scraper`,
		`(?i)curl/`, `(?i)wget/`, `(?i)python-requests`, `(?i)go-http-client`,
		`(?i)java/`, `(?i)okhttp`, `(?i)httpclient`, `(?i)libwww`,
		`(?i)headless`, `(?i)phantomjs`, `(?i)selenium`, `(?i)puppeteer`,
		`(?i)playwright`,
	}
	crawlers := []string{
		`(?i)googlebot`, `(?i)bingbot`, `(?i)slurp`, `(?i)duckduckbot`,
		`(?i)baiduspider`, `(?i)yandexbot`, `(?i)applebot`,
		`(?i)facebookexternalhit`, `(?i)twitterbot`, `(?i)linkedinbot`,
		`(?i)slackbot`, `(?i)discordbot`, `(?i)telegrambot`, `(?i)whatsapp`,
	}
	sig := Signatures{}
	for _, p := range bots {
		sig.BotPatterns = append(sig.BotPatterns, regexp.MustCompile(p))
	}
	for _, p := range crawlers {
		sig.CrawlerPatterns = append(sig.CrawlerPatterns, regexp.MustCompile(p))
	}
	return sig
}

var headlessMarkers = []string{
	"headlesschrome", "phantomjs", "selenium", "puppeteer", "playwright",
}

// Confidence weights per check.
const (
	weightUserAgent   = 0.3
	weightVerified    = 0.3
	weightBehavior    = 0.2
	weightHoneypot    = 0.1
	weightFingerprint = 0.1
)

// Detector runs five independent checks and reports any positive as a
// bot. Crawler classification is a separate allowlist match.
type Detector struct {
	sig Signatures
}

func NewDetector(sig Signatures) *Detector {
	return &Detector{sig: sig}
}

// Detect classifies one event.
func (d *Detector) Detect(in Input) Detection {
	uaCheck := d.userAgentCheck(in.UserAgent)
	verifiedCheck := in.VerifiedBot
	behaviorCheck := behaviorCheck(in)
	honeypotCheck := strings.TrimSpace(in.HoneypotValue) != ""
	fingerprintCheck := fingerprintCheck(in)

	conf := 0.0
	if uaCheck {
		conf += weightUserAgent
	}
	if verifiedCheck {
		conf += weightVerified
	}
	if behaviorCheck {
		conf += weightBehavior
	}
	if honeypotCheck {
		conf += weightHoneypot
	}
	if fingerprintCheck {
		conf += weightFingerprint
	}

	return Detection{
		IsBot:      uaCheck || verifiedCheck || behaviorCheck || honeypotCheck || fingerprintCheck,
		IsCrawler:  d.crawlerCheck(in.UserAgent),
		Confidence: int(math.Round(conf * 100)),
	}
}

// userAgentCheck treats a missing user agent as a positive match.
func (d *Detector) userAgentCheck(ua string) bool {
	if strings.TrimSpace(ua) == "" {
		return true
	}
	for _, p := range d.sig.BotPatterns {
		if p.MatchString(ua) {
			return true
		}
	}
	return false
}

func (d *Detector) crawlerCheck(ua string) bool {
	for _, p := range d.sig.CrawlerPatterns {
		if p.MatchString(ua) {
			return true
		}
	}
	return false
}

// behaviorCheck flags timing anomalies: clicks with zero dwell time,
// instant full scroll, or perfectly uniform intervals across the
// session's last ten events.
func behaviorCheck(in Input) bool {
	if in.TimeOnPageSec == 0 && in.ClickCount > 0 {
		return true
	}
	if in.ScrollDepth >= 100 && in.TimeOnPageSec < 2 {
		return true
	}
	return uniformIntervals(in.SessionTimestamps)
}

// uniformIntervals reports whether the last ten timestamps tick with
// near-zero jitter. Needs at least three events to mean anything.
func uniformIntervals(times []time.Time) bool {
	if len(times) > 10 {
		times = times[len(times)-10:]
	}
	if len(times) < 3 {
		return false
	}

	intervals := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		d := times[i].Sub(times[i-1]).Seconds()
		if d < 0 {
			return false
		}
		intervals = append(intervals, d)
	}

	mean := 0.0
	for _, iv := range intervals {
		mean += iv
	}
	mean /= float64(len(intervals))
	if mean == 0 {
		return true
	}

	variance := 0.0
	for _, iv := range intervals {
		variance += (iv - mean) * (iv - mean)
	}
	variance /= float64(len(intervals))

	// Coefficient of variation under 5% means machine-paced.
	return math.Sqrt(variance)/mean < 0.05
}

func fingerprintCheck(in Input) bool {
	if in.ScreenWidth <= 0 || in.ScreenHeight <= 0 {
		return true
	}
	ua := strings.ToLower(in.UserAgent)
	for _, marker := range headlessMarkers {
		if strings.Contains(ua, marker) {
			return true
		}
	}
	return false
}
