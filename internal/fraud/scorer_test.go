package fraud

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbpkg "clickguard/internal/db"
)

// fakeHistory is an in-memory History with configurable responses.
type fakeHistory struct {
	rep              *dbpkg.FraudReputation
	repErr           error
	sessionEvents    []dbpkg.Event
	sessionIPs       int64
	sessionCountries int64
	perMinute        int64
	perHour          int64

	lookupErr error
	saveErr   error
	saved     []dbpkg.FraudReputation
}

func (f *fakeHistory) Reputation(ctx context.Context, ip string) (*dbpkg.FraudReputation, error) {
	if f.repErr != nil {
		return nil, f.repErr
	}
	if f.rep == nil {
		return nil, nil
	}
	cp := *f.rep
	return &cp, nil
}

func (f *fakeHistory) SessionEvents(ctx context.Context, sessionID string, since time.Time) ([]dbpkg.Event, error) {
	return f.sessionEvents, f.lookupErr
}

func (f *fakeHistory) SessionDistinctIPs(ctx context.Context, sessionID string, since time.Time) (int64, error) {
	return f.sessionIPs, f.lookupErr
}

func (f *fakeHistory) SessionDistinctCountries(ctx context.Context, sessionID string, since time.Time) (int64, error) {
	return f.sessionCountries, f.lookupErr
}

func (f *fakeHistory) IPEventCount(ctx context.Context, ip string, since time.Time) (int64, error) {
	if f.lookupErr != nil {
		return 0, f.lookupErr
	}
	if time.Since(since) <= 2*time.Minute {
		return f.perMinute, nil
	}
	return f.perHour, nil
}

func (f *fakeHistory) SaveReputation(ctx context.Context, rep *dbpkg.FraudReputation) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	cp := *rep
	f.saved = append(f.saved, cp)
	f.rep = &cp
	return nil
}

func cleanEvent() *dbpkg.Event {
	return &dbpkg.Event{
		IPAddress:     "203.0.114.7",
		SessionID:     "sess-1",
		UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		DeviceType:    "desktop",
		ScreenWidth:   1920, ScreenHeight: 1080,
		ViewportWidth: 1900, ViewportHeight: 950,
		TimeOnPageSec: 14,
		PageLoadMs:    850,
		ResponseMs:    120,
	}
}

func TestCompositeMatchesWeightedSum(t *testing.T) {
	w := DefaultConfig().Weights
	c := Components{IPReputation: 65, Behavior: 25, Device: 40, Network: 30, Pattern: 15, Velocity: 100}

	// 65*.25 + 25*.2 + 40*.15 + 30*.2 + 15*.1 + 100*.1 = 44.75 -> 45
	assert.Equal(t, 45, Composite(c, w))

	assert.Equal(t, 0, Composite(Components{}, w))
	assert.Equal(t, 100, Composite(Components{IPReputation: 100, Behavior: 100, Device: 100, Network: 100, Pattern: 100, Velocity: 100}, w))
}

func TestThreatLevelAndActionLadders(t *testing.T) {
	cases := []struct {
		score  int
		level  string
		action string
	}{
		{0, "minimal", "allow"},
		{19, "minimal", "allow"},
		{20, "low", "allow"},
		{39, "low", "allow"},
		{40, "medium", "monitor"},
		{59, "medium", "monitor"},
		{60, "high", "challenge"},
		{79, "high", "challenge"},
		{80, "critical", "block"},
		{100, "critical", "block"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.level, ThreatLevel(tc.score), "score %d", tc.score)
		assert.Equal(t, tc.action, RecommendedAction(tc.score), "score %d", tc.score)
	}
}

func TestTotalEventsIncrementsPerCall(t *testing.T) {
	hist := &fakeHistory{}
	scorer := NewScorer(DefaultConfig(), hist)

	for i := 1; i <= 5; i++ {
		scorer.Score(context.Background(), Input{Event: cleanEvent()})
		require.Len(t, hist.saved, i)
		assert.Equal(t, int64(i), hist.saved[i-1].TotalEvents)
	}
}

func TestSuspiciousAndBlockedCounters(t *testing.T) {
	// Force a critical score: everything hostile at once.
	base := time.Now().UTC()
	var rapid []dbpkg.Event
	for i := 0; i < 12; i++ {
		rapid = append(rapid, dbpkg.Event{
			CreatedAt:  base.Add(time.Duration(i*4) * time.Second),
			PageDomain: "shop.example.com",
		})
	}
	hist := &fakeHistory{
		rep:              &dbpkg.FraudReputation{BaseScore: 90, TorDetected: true},
		sessionEvents:    rapid,
		sessionIPs:       6,
		sessionCountries: 4,
		perMinute:        60,
		perHour:          1200,
	}
	scorer := NewScorer(DefaultConfig(), hist)

	ev := &dbpkg.Event{
		IPAddress:      "203.0.114.7",
		SessionID:      "sess-hostile",
		UserAgent:      "HeadlessChrome",
		DeviceType:     "mobile",
		ScreenWidth:    2000, ScreenHeight: 1100,
		ScrollDepth:    100,
		ReferrerDomain: "other.example.org",
		UTMSource:      "bot-net",
	}
	res := scorer.Score(context.Background(), Input{
		Event:   ev,
		Context: RequestContext{BotScore: 99, VerifiedBot: true},
	})

	require.GreaterOrEqual(t, res.Score, 80)
	require.Len(t, hist.saved, 1)
	assert.Equal(t, int64(1), hist.saved[0].SuspiciousEvents)
	assert.Equal(t, int64(1), hist.saved[0].BlockedEvents)
}

func TestTorExitHeadlessScenario(t *testing.T) {
	hist := &fakeHistory{
		rep:       &dbpkg.FraudReputation{BaseScore: 30, TorDetected: true},
		perMinute: 60,
	}
	scorer := NewScorer(DefaultConfig(), hist)

	ev := &dbpkg.Event{
		IPAddress:  "203.0.114.7",
		SessionID:  "sess-tor",
		UserAgent:  "Mozilla/5.0 HeadlessChrome/119.0.0.0 Safari/537.36",
		DeviceType: "desktop",
	}
	res := scorer.Score(context.Background(), Input{
		Event:   ev,
		Context: RequestContext{VerifiedBot: true},
	})

	assert.GreaterOrEqual(t, res.Components.IPReputation, 65)
	assert.GreaterOrEqual(t, res.Components.Device, 40)
	assert.GreaterOrEqual(t, res.Score, 45)
	assert.Contains(t, []string{"medium", "high", "critical"}, res.ThreatLevel)
}

func TestRapidClickingYieldsHighVelocity(t *testing.T) {
	hist := &fakeHistory{perMinute: 60}
	scorer := NewScorer(DefaultConfig(), hist)

	res := scorer.Score(context.Background(), Input{Event: cleanEvent()})
	assert.GreaterOrEqual(t, res.Components.Velocity, 50)
}

func TestHistoryFailureDegradesToZeroComponents(t *testing.T) {
	hist := &fakeHistory{
		repErr:    errors.New("db down"),
		lookupErr: errors.New("db down"),
		saveErr:   errors.New("db down"),
	}
	scorer := NewScorer(DefaultConfig(), hist)

	res := scorer.Score(context.Background(), Input{Event: cleanEvent()})

	// Unseen base only; nothing else computable.
	assert.Equal(t, 30, res.Components.IPReputation)
	assert.Equal(t, 0, res.Components.Behavior)
	assert.Equal(t, 0, res.Components.Velocity)
	assert.Equal(t, Composite(res.Components, DefaultConfig().Weights), res.Score)
}

func TestReputationFlagsAccumulate(t *testing.T) {
	hist := &fakeHistory{}
	scorer := NewScorer(DefaultConfig(), hist)

	scorer.Score(context.Background(), Input{Event: cleanEvent(), Context: RequestContext{VPN: true}})
	scorer.Score(context.Background(), Input{Event: cleanEvent(), Context: RequestContext{Tor: true}})

	require.Len(t, hist.saved, 2)
	assert.True(t, hist.saved[1].VPNDetected)
	assert.True(t, hist.saved[1].TorDetected)
	assert.False(t, hist.saved[1].ProxyDetected)
}
