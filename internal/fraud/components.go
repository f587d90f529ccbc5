package fraud

import (
	"fmt"
	"net"
	"sort"
	"strings"
	"time"
)

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// ipComponent starts from the IP's persisted base score (30 when
// unseen) and stacks anonymizer, history, denylist and datacenter
// penalties on top.
func (c Config) ipComponent(in Input, stats Stats) int {
	score := 30
	vpn, proxy, tor, hosting := in.Context.VPN, in.Context.Proxy, in.Context.Tor, in.Context.Hosting

	if rep := stats.Reputation; rep != nil {
		score = rep.BaseScore
		vpn = vpn || rep.VPNDetected
		proxy = proxy || rep.ProxyDetected
		tor = tor || rep.TorDetected
		hosting = hosting || rep.HostingProvider

		if rep.SuspiciousEvents > 10 {
			score += 10
		}
		if rep.BlockedEvents > 5 {
			score += 15
		}
	}

	if vpn {
		score += 20
	}
	if proxy {
		score += 25
	}
	if tor {
		score += 35
	}
	if hosting {
		score += 15
	}

	if ip := net.ParseIP(in.Event.IPAddress); ip != nil {
		for _, cidr := range c.DenylistedCIDRs {
			if cidr.Contains(ip) {
				score += 30
				break
			}
		}
	}
	if c.DatacenterASNs[in.Context.ASN] {
		score += 15
	}

	return clamp(score)
}

// behaviorComponent inspects the session's last hour of activity plus
// on-page signals of the current event.
func (c Config) behaviorComponent(in Input, stats Stats) int {
	score := 0

	times := make([]time.Time, 0, len(stats.SessionEvents))
	for _, e := range stats.SessionEvents {
		times = append(times, e.CreatedAt)
	}
	if MaxEventsInWindow(times, time.Minute) > 10 {
		score += 30
	}

	ev := in.Event
	if ev.TimeOnPageSec == 0 {
		score += 10
	}
	if ev.ScrollDepth >= 100 && ev.TimeOnPageSec < 1 {
		score += 20
	}
	if ev.PageLoadMs == 0 && ev.ResponseMs == 0 {
		score += 15
	}

	// Referrer should match the page the session last clicked through.
	if n := len(stats.SessionEvents); n > 0 && ev.ReferrerDomain != "" {
		prev := stats.SessionEvents[n-1]
		if prev.PageDomain != "" && !strings.EqualFold(prev.PageDomain, ev.ReferrerDomain) {
			score += 10
		}
	}

	return clamp(score)
}

// deviceComponent checks the user agent and the reported geometry for
// signs of automation or spoofing.
func (c Config) deviceComponent(in Input, stats Stats) int {
	score := 0
	ev := in.Event

	ua := strings.ToLower(ev.UserAgent)
	for _, marker := range c.HeadlessMarkers {
		if strings.Contains(ua, marker) {
			score += 40
			break
		}
	}
	if len(ev.UserAgent) < 20 {
		score += 20
	}

	if impossibleGeometry(ev.DeviceType, ev.ScreenWidth, ev.ScreenHeight, ev.ViewportWidth, ev.ViewportHeight) {
		score += 30
	}

	if ev.ScreenWidth > 0 && ev.ScreenHeight > 0 {
		key := fmt.Sprintf("%dx%d", ev.ScreenWidth, ev.ScreenHeight)
		if !c.CommonResolutions[key] {
			score += 10
		}
	}

	return clamp(score)
}

func impossibleGeometry(deviceType string, sw, sh, vw, vh int) bool {
	if deviceType == "mobile" && sw >= 1920 {
		return true
	}
	if sw > 0 && vw > sw {
		return true
	}
	if sh > 0 && vh > sh {
		return true
	}
	return false
}

// networkComponent folds in the origin network layer's own verdicts
// plus session IP churn.
func (c Config) networkComponent(in Input, stats Stats) int {
	score := in.Context.BotScore
	if score > 50 {
		score = 50
	}
	if score < 0 {
		score = 0
	}

	if in.Context.VerifiedBot {
		score += 30
	}
	if c.SuspiciousASNs[in.Context.ASN] {
		score += 20
	}

	switch {
	case stats.SessionIPCount > 5:
		score += 30
	case stats.SessionIPCount > 3:
		score += 20
	}

	return clamp(score)
}

// patternComponent sums the configured rule matches.
func (c Config) patternComponent(in Input, stats Stats) int {
	score := 0
	for _, rule := range c.PatternRules {
		score += rule.Evaluate(in, stats)
	}
	return clamp(score)
}

// velocityComponent scores same-IP click rates. Tiers are cumulative:
// 60 clicks in a minute crosses the >10, >20 and >50 marks for 100.
func (c Config) velocityComponent(in Input, stats Stats) int {
	score := 0

	m := stats.EventsLastMinute
	if m > 10 {
		score += 20
	}
	if m > 20 {
		score += 30
	}
	if m > 50 {
		score += 50
	}

	h := stats.EventsLastHour
	if h > 100 {
		score += 10
	}
	if h > 500 {
		score += 20
	}
	if h > 1000 {
		score += 30
	}

	return clamp(score)
}

// MaxEventsInWindow returns the largest number of timestamps that fall
// inside any span of the given width. Input order does not matter.
func MaxEventsInWindow(times []time.Time, window time.Duration) int {
	if len(times) == 0 {
		return 0
	}
	sorted := make([]time.Time, len(times))
	copy(sorted, times)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	best := 0
	lo := 0
	for hi := range sorted {
		for sorted[hi].Sub(sorted[lo]) > window {
			lo++
		}
		if n := hi - lo + 1; n > best {
			best = n
		}
	}
	return best
}
