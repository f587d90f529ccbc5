package ratelimit

import (
	"context"
	"fmt"
	"log"
	"time"

	"clickguard/internal/config"
)

// Scope identifies what a counter is keyed on.
type Scope string

const (
	ScopeIP      Scope = "ip"
	ScopeSession Scope = "session"
	ScopeProject Scope = "project"
)

// Policy is the (maxRequests, window) pair for one scope.
type Policy struct {
	MaxRequests int
	Window      time.Duration
}

// Store persists request timestamps and violations. The gorm-backed
// implementation lives in store.go; tests use an in-memory fake.
type Store interface {
	CountInWindow(ctx context.Context, scope Scope, identifier string, from, to time.Time) (int64, error)
	Record(ctx context.Context, scope Scope, identifier string, at time.Time) error
	RecordViolation(ctx context.Context, scope Scope, identifier string, observed int64, limit int) error
	PruneBefore(ctx context.Context, cutoff time.Time) error
}

// Limiter counts requests per identifier inside a fixed lookback window.
// This is not a token bucket: a burst straddling the window boundary can
// briefly pass up to twice the nominal rate.
type Limiter struct {
	store    Store
	policies map[Scope]Policy

	now func() time.Time
}

func NewLimiter(store Store, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		store: store,
		policies: map[Scope]Policy{
			ScopeIP:      {MaxRequests: cfg.IPMax, Window: time.Duration(cfg.IPWindowSec) * time.Second},
			ScopeSession: {MaxRequests: cfg.SessionMax, Window: time.Duration(cfg.SessionWindowSec) * time.Second},
			ScopeProject: {MaxRequests: cfg.ProjectMax, Window: time.Duration(cfg.ProjectWindowSec) * time.Second},
		},
		now: time.Now,
	}
}

// CheckAndRecord counts prior requests for identifier within the scope's
// window. At or over the limit it records a violation and reports
// exceeded without adding to the count; otherwise it records the request.
// Entries older than an hour are pruned on the way.
func (l *Limiter) CheckAndRecord(ctx context.Context, identifier string, scope Scope) (bool, error) {
	policy, ok := l.policies[scope]
	if !ok {
		return false, fmt.Errorf("ratelimit: unknown scope %q", scope)
	}

	now := l.now().UTC()

	if err := l.store.PruneBefore(ctx, now.Add(-time.Hour)); err != nil {
		log.Printf("ratelimit: prune failed: %v", err)
	}

	count, err := l.store.CountInWindow(ctx, scope, identifier, now.Add(-policy.Window), now)
	if err != nil {
		return false, err
	}

	if count >= int64(policy.MaxRequests) {
		if err := l.store.RecordViolation(ctx, scope, identifier, count, policy.MaxRequests); err != nil {
			log.Printf("ratelimit: violation record for %s/%s failed: %v", scope, identifier, err)
		}
		return true, nil
	}

	if err := l.store.Record(ctx, scope, identifier, now); err != nil {
		return false, err
	}
	return false, nil
}
