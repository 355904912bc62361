package papersources

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/helixir/research-finder/internal/domain"
)

// Minimum spacing between requests to each provider, with and without a
// configured credential (API key or polite-pool contact address), as
// {credentialed, anonymous}.
var intervals = map[domain.SourceType][2]time.Duration{
	domain.SourceTypeSemanticScholar: {time.Second, 10 * time.Second},
	domain.SourceTypePubMed:          {100 * time.Millisecond, 330 * time.Millisecond},
	domain.SourceTypeOpenAlex:        {100 * time.Millisecond, 500 * time.Millisecond},
	domain.SourceTypeCrossRef:        {time.Second, 2 * time.Second},
	domain.SourceTypeArXiv:           {500 * time.Millisecond, 500 * time.Millisecond},
	domain.SourceTypeGoogleScholar:   {5 * time.Second, 5 * time.Second},
}

// defaultInterval applies to sources missing from the table.
const defaultInterval = time.Second

// IntervalFor returns the minimum inter-request interval for source.
func IntervalFor(source domain.SourceType, credentialed bool) time.Duration {
	iv, ok := intervals[source]
	if !ok {
		return defaultInterval
	}
	if credentialed {
		return iv[0]
	}
	return iv[1]
}

// RateLimiter paces requests to one provider. Each granted acquisition is at
// least Interval after the previous one; waiters are served in arrival order.
// It is safe for concurrent use because the underlying rate.Limiter is.
type RateLimiter struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// NewRateLimiter creates a limiter granting one request per interval.
// The first acquisition is immediate.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &RateLimiter{
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
	}
}

// Interval returns the configured spacing.
func (r *RateLimiter) Interval() time.Duration {
	return r.interval
}

// Acquire blocks until the next request may be sent and returns how long it
// waited. It only fails when ctx ends first; a wait that would overrun the
// context deadline fails immediately with context.DeadlineExceeded.
func (r *RateLimiter) Acquire(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := r.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return time.Since(start), ctxErr
		}
		return time.Since(start), fmt.Errorf("rate limiter: %w: %v", context.DeadlineExceeded, err)
	}
	return time.Since(start), nil
}

// Allow reports whether a request may be sent now, consuming the slot if so.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Limiters holds one RateLimiter per provider for the life of the process.
// Every adapter for a provider shares the same limiter, so concurrent runs
// still respect the provider's interval.
type Limiters struct {
	mu           sync.Mutex
	limiters     map[domain.SourceType]*RateLimiter
	credentialed func(domain.SourceType) bool
}

// NewLimiters creates an empty set. credentialed reports whether a credential
// is configured for a source; nil means none are.
func NewLimiters(credentialed func(domain.SourceType) bool) *Limiters {
	if credentialed == nil {
		credentialed = func(domain.SourceType) bool { return false }
	}
	return &Limiters{
		limiters:     make(map[domain.SourceType]*RateLimiter),
		credentialed: credentialed,
	}
}

// For returns the limiter for source, creating it on first use.
func (l *Limiters) For(source domain.SourceType) *RateLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	rl, ok := l.limiters[source]
	if !ok {
		rl = NewRateLimiter(IntervalFor(source, l.credentialed(source)))
		l.limiters[source] = rl
	}
	return rl
}

// Set installs a limiter for source, replacing any existing one.
func (l *Limiters) Set(source domain.SourceType, rl *RateLimiter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiters[source] = rl
}
