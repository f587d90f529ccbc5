package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHumanTrafficPassesClean(t *testing.T) {
	d := NewDetector(DefaultSignatures())

	res := d.Detect(Input{
		UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0",
		ScreenWidth:   1920,
		ScreenHeight:  1080,
		TimeOnPageSec: 23,
		ScrollDepth:   60,
		ClickCount:    2,
	})

	assert.False(t, res.IsBot)
	assert.False(t, res.IsCrawler)
	assert.Equal(t, 0, res.Confidence)
}

func TestMissingUserAgentIsPositiveMatch(t *testing.T) {
	d := NewDetector(DefaultSignatures())

	res := d.Detect(Input{
		ScreenWidth:   1920,
		ScreenHeight:  1080,
		TimeOnPageSec: 10,
	})

	assert.True(t, res.IsBot)
	assert.Equal(t, 30, res.Confidence)
}

func TestBareFingerprintScenario(t *testing.T) {
	d := NewDetector(DefaultSignatures())

	// No screen dimensions, no user agent, no timing: UA and
	// fingerprint checks both fire.
	res := d.Detect(Input{})

	assert.True(t, res.IsBot)
	assert.GreaterOrEqual(t, res.Confidence, 40)
}

func TestCrawlerAllowlistIsIndependent(t *testing.T) {
	d := NewDetector(DefaultSignatures())

	res := d.Detect(Input{
		UserAgent:     "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
		ScreenWidth:   1024,
		ScreenHeight:  768,
		TimeOnPageSec: 5,
	})

	assert.True(t, res.IsBot)
	assert.True(t, res.IsCrawler)

	// A scraper UA is a bot but not a crawler.
	res = d.Detect(Input{
		UserAgent:     "python-requests/2.31.0",
		ScreenWidth:   1024,
		ScreenHeight:  768,
		TimeOnPageSec: 5,
	})
	assert.True(t, res.IsBot)
	assert.False(t, res.IsCrawler)
}

func TestBehavioralTimingChecks(t *testing.T) {
	d := NewDetector(DefaultSignatures())
	human := "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"

	// Clicks with zero dwell.
	res := d.Detect(Input{
		UserAgent:    human,
		ScreenWidth:  1920, ScreenHeight: 1080,
		ClickCount:   3,
	})
	assert.True(t, res.IsBot)
	assert.Equal(t, 20, res.Confidence)

	// Full scroll in under two seconds.
	res = d.Detect(Input{
		UserAgent:     human,
		ScreenWidth:   1920, ScreenHeight: 1080,
		TimeOnPageSec: 1.2,
		ScrollDepth:   100,
	})
	assert.True(t, res.IsBot)

	// Machine-paced session: identical 5s intervals.
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	var times []time.Time
	for i := 0; i < 10; i++ {
		times = append(times, base.Add(time.Duration(i*5)*time.Second))
	}
	res = d.Detect(Input{
		UserAgent:         human,
		ScreenWidth:       1920, ScreenHeight: 1080,
		TimeOnPageSec:     8,
		SessionTimestamps: times,
	})
	assert.True(t, res.IsBot)

	// Jittery human pacing does not trip the check.
	jitter := []time.Duration{0, 7, 19, 21, 40, 73, 90, 140, 170, 260}
	times = times[:0]
	for _, s := range jitter {
		times = append(times, base.Add(s*time.Second))
	}
	res = d.Detect(Input{
		UserAgent:         human,
		ScreenWidth:       1920, ScreenHeight: 1080,
		TimeOnPageSec:     8,
		SessionTimestamps: times,
	})
	assert.False(t, res.IsBot)
}

func TestHoneypotField(t *testing.T) {
	d := NewDetector(DefaultSignatures())

	res := d.Detect(Input{
		UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		ScreenWidth:   1920, ScreenHeight: 1080,
		TimeOnPageSec: 10,
		HoneypotValue: "filled by a script",
	})

	assert.True(t, res.IsBot)
	assert.Equal(t, 10, res.Confidence)
}

func TestConfidenceSumsWeights(t *testing.T) {
	d := NewDetector(DefaultSignatures())

	// UA + verified + behavior + honeypot + fingerprint all firing.
	res := d.Detect(Input{
		UserAgent:     "HeadlessChrome",
		VerifiedBot:   true,
		ClickCount:    5,
		HoneypotValue: "x",
	})
	assert.True(t, res.IsBot)
	assert.Equal(t, 100, res.Confidence)
}

func TestUniformIntervalsNeedsHistory(t *testing.T) {
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	assert.False(t, uniformIntervals([]time.Time{base, base.Add(5 * time.Second)}))
	assert.True(t, uniformIntervals([]time.Time{base, base, base}))

	// Only the last ten events count: old jitter is ignored.
	times := []time.Time{base, base.Add(47 * time.Second), base.Add(2 * time.Minute)}
	for i := 0; i < 10; i++ {
		times = append(times, base.Add(5*time.Minute).Add(time.Duration(i*3)*time.Second))
	}
	assert.True(t, uniformIntervals(times))
}
