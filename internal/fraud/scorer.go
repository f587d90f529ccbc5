package fraud

import (
	"context"
	"log"
	"math"
	"time"

	dbpkg "clickguard/internal/db"
)

// History supplies the persisted lookups scoring depends on. Any call
// may fail; the scorer treats a failure as "no data" and the affected
// component contributes zero.
type History interface {
	Reputation(ctx context.Context, ip string) (*dbpkg.FraudReputation, error)
	SessionEvents(ctx context.Context, sessionID string, since time.Time) ([]dbpkg.Event, error)
	SessionDistinctIPs(ctx context.Context, sessionID string, since time.Time) (int64, error)
	SessionDistinctCountries(ctx context.Context, sessionID string, since time.Time) (int64, error)
	IPEventCount(ctx context.Context, ip string, since time.Time) (int64, error)
	SaveReputation(ctx context.Context, rep *dbpkg.FraudReputation) error
}

// Scorer computes the composite fraud score and maintains per-IP
// reputations.
type Scorer struct {
	cfg     Config
	history History

	now func() time.Time
}

func NewScorer(cfg Config, history History) *Scorer {
	return &Scorer{cfg: cfg, history: history, now: time.Now}
}

// Score computes the six weighted components for one event. It always
// returns a usable Result: history lookups that fail degrade the
// affected components to zero, and a failed reputation write is logged
// for retry rather than surfaced.
func (s *Scorer) Score(ctx context.Context, in Input) Result {
	stats := s.gather(ctx, in)

	comps := Components{
		IPReputation: s.cfg.ipComponent(in, stats),
		Behavior:     s.cfg.behaviorComponent(in, stats),
		Device:       s.cfg.deviceComponent(in, stats),
		Network:      s.cfg.networkComponent(in, stats),
		Pattern:      s.cfg.patternComponent(in, stats),
		Velocity:     s.cfg.velocityComponent(in, stats),
	}

	score := Composite(comps, s.cfg.Weights)

	result := Result{
		Score:       score,
		Components:  comps,
		ThreatLevel: ThreatLevel(score),
		Action:      RecommendedAction(score),
	}

	if err := s.updateReputation(ctx, in, stats.Reputation, score); err != nil {
		log.Printf("fraud: reputation upsert for %s failed: %v", in.Event.IPAddress, err)
	}

	return result
}

func (s *Scorer) gather(ctx context.Context, in Input) Stats {
	var stats Stats
	now := s.now().UTC()
	ev := in.Event

	rep, err := s.history.Reputation(ctx, ev.IPAddress)
	if err != nil {
		log.Printf("fraud: reputation lookup for %s failed: %v", ev.IPAddress, err)
	} else {
		stats.Reputation = rep
	}

	if ev.SessionID != "" {
		since := now.Add(-sessionLookback)
		if events, err := s.history.SessionEvents(ctx, ev.SessionID, since); err != nil {
			log.Printf("fraud: session history for %s failed: %v", ev.SessionID, err)
		} else {
			stats.SessionEvents = events
		}
		if n, err := s.history.SessionDistinctIPs(ctx, ev.SessionID, since); err == nil {
			stats.SessionIPCount = n
		}
		if n, err := s.history.SessionDistinctCountries(ctx, ev.SessionID, since); err == nil {
			stats.SessionCountryCount = n
		}
	}

	if n, err := s.history.IPEventCount(ctx, ev.IPAddress, now.Add(-time.Minute)); err == nil {
		stats.EventsLastMinute = n
	}
	if n, err := s.history.IPEventCount(ctx, ev.IPAddress, now.Add(-time.Hour)); err == nil {
		stats.EventsLastHour = n
	}

	return stats
}

// updateReputation merges this call's outcome into the IP's running
// record: flags accumulate, total always increments, suspicious at
// score >= 60, blocked at >= 80. The base score is a running blend of
// the previous base and the new composite.
func (s *Scorer) updateReputation(ctx context.Context, in Input, prev *dbpkg.FraudReputation, score int) error {
	rep := prev
	if rep == nil {
		rep = &dbpkg.FraudReputation{
			IPAddress: in.Event.IPAddress,
			BaseScore: 30,
		}
	}

	rep.BaseScore = (rep.BaseScore + score) / 2
	rep.VPNDetected = rep.VPNDetected || in.Context.VPN
	rep.ProxyDetected = rep.ProxyDetected || in.Context.Proxy
	rep.TorDetected = rep.TorDetected || in.Context.Tor
	rep.HostingProvider = rep.HostingProvider || in.Context.Hosting

	rep.TotalEvents++
	if score >= 60 {
		rep.SuspiciousEvents++
	}
	if score >= 80 {
		rep.BlockedEvents++
	}

	return s.history.SaveReputation(ctx, rep)
}

// Composite folds the components into the rounded, capped 0-100 score.
func Composite(c Components, w Weights) int {
	sum := float64(c.IPReputation)*w.IPReputation +
		float64(c.Behavior)*w.Behavior +
		float64(c.Device)*w.Device +
		float64(c.Network)*w.Network +
		float64(c.Pattern)*w.Pattern +
		float64(c.Velocity)*w.Velocity

	score := int(math.Round(sum))
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// ThreatLevel maps a composite score onto the discrete ladder.
func ThreatLevel(score int) string {
	switch {
	case score >= 80:
		return "critical"
	case score >= 60:
		return "high"
	case score >= 40:
		return "medium"
	case score >= 20:
		return "low"
	default:
		return "minimal"
	}
}

// RecommendedAction maps a composite score onto the enforcement ladder.
func RecommendedAction(score int) string {
	switch {
	case score >= 80:
		return "block"
	case score >= 60:
		return "challenge"
	case score >= 40:
		return "monitor"
	default:
		return "allow"
	}
}
