package fraud

import "strings"

// botUTMTokens are utm_source values that automated traffic tends to
// stamp on its clicks.
var botUTMTokens = []string{
	"bot", "crawler", "spider", "scraper", "automation", "headless", "test-traffic",
}

// DefaultRules is the standard pattern rule set. Each rule is a named,
// independently testable check; the pattern component is the clamped
// sum of whatever matches.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "session_country_hopping",
			Evaluate: func(in Input, stats Stats) int {
				if stats.SessionCountryCount > 3 {
					return 30
				}
				return 0
			},
		},
		{
			Name: "bot_like_utm_source",
			Evaluate: func(in Input, stats Stats) int {
				src := strings.ToLower(in.Event.UTMSource)
				if src == "" {
					return 0
				}
				for _, tok := range botUTMTokens {
					if strings.Contains(src, tok) {
						return 20
					}
				}
				return 0
			},
		},
		{
			Name: "missing_performance_metrics",
			Evaluate: func(in Input, stats Stats) int {
				if in.Event.PageLoadMs == 0 && in.Event.ResponseMs == 0 {
					return 15
				}
				return 0
			},
		},
	}
}
