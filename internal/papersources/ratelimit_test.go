package papersources

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-finder/internal/domain"
)

func TestIntervalFor(t *testing.T) {
	tests := []struct {
		source       domain.SourceType
		credentialed time.Duration
		anonymous    time.Duration
	}{
		{domain.SourceTypeSemanticScholar, time.Second, 10 * time.Second},
		{domain.SourceTypePubMed, 100 * time.Millisecond, 330 * time.Millisecond},
		{domain.SourceTypeOpenAlex, 100 * time.Millisecond, 500 * time.Millisecond},
		{domain.SourceTypeCrossRef, time.Second, 2 * time.Second},
		{domain.SourceTypeArXiv, 500 * time.Millisecond, 500 * time.Millisecond},
		{domain.SourceTypeGoogleScholar, 5 * time.Second, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(string(tt.source), func(t *testing.T) {
			assert.Equal(t, tt.credentialed, IntervalFor(tt.source, true))
			assert.Equal(t, tt.anonymous, IntervalFor(tt.source, false))
			assert.LessOrEqual(t, IntervalFor(tt.source, true), IntervalFor(tt.source, false))
		})
	}

	t.Run("unknown source", func(t *testing.T) {
		assert.Equal(t, defaultInterval, IntervalFor("nope", true))
	})
}

func TestRateLimiter_Acquire(t *testing.T) {
	t.Run("first acquisition is immediate", func(t *testing.T) {
		rl := NewRateLimiter(time.Hour)
		waited, err := rl.Acquire(context.Background())
		require.NoError(t, err)
		assert.Less(t, waited, 50*time.Millisecond)
	})

	t.Run("spaces acquisitions by the interval", func(t *testing.T) {
		rl := NewRateLimiter(50 * time.Millisecond)
		ctx := context.Background()

		start := time.Now()
		for i := 0; i < 3; i++ {
			_, err := rl.Acquire(ctx)
			require.NoError(t, err)
		}
		assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	})

	t.Run("serializes concurrent callers", func(t *testing.T) {
		rl := NewRateLimiter(20 * time.Millisecond)
		ctx := context.Background()

		var (
			mu     sync.Mutex
			grants []time.Time
			wg     sync.WaitGroup
		)
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := rl.Acquire(ctx)
				assert.NoError(t, err)
				mu.Lock()
				grants = append(grants, time.Now())
				mu.Unlock()
			}()
		}
		wg.Wait()

		require.Len(t, grants, 5)
		first, last := grants[0], grants[0]
		for _, g := range grants {
			if g.Before(first) {
				first = g
			}
			if g.After(last) {
				last = g
			}
		}
		assert.GreaterOrEqual(t, last.Sub(first), 70*time.Millisecond)
	})

	t.Run("returns context error when cancelled", func(t *testing.T) {
		rl := NewRateLimiter(time.Hour)
		_, err := rl.Acquire(context.Background())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = rl.Acquire(ctx)
		assert.True(t, errors.Is(err, context.Canceled))
	})

	t.Run("wait beyond deadline reports deadline exceeded", func(t *testing.T) {
		rl := NewRateLimiter(time.Hour)
		_, err := rl.Acquire(context.Background())
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err = rl.Acquire(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 50*time.Millisecond, "should fail fast, not sleep until the deadline")
	})

	t.Run("zero interval never blocks", func(t *testing.T) {
		rl := NewRateLimiter(0)
		for i := 0; i < 100; i++ {
			assert.True(t, rl.Allow())
		}
	})
}

func TestLimiters(t *testing.T) {
	credentialed := func(st domain.SourceType) bool { return st == domain.SourceTypeSemanticScholar }
	l := NewLimiters(credentialed)

	t.Run("selects interval from credential presence", func(t *testing.T) {
		assert.Equal(t, time.Second, l.For(domain.SourceTypeSemanticScholar).Interval())
		assert.Equal(t, 500*time.Millisecond, l.For(domain.SourceTypeOpenAlex).Interval())
	})

	t.Run("returns the same limiter for a source", func(t *testing.T) {
		assert.Same(t, l.For(domain.SourceTypePubMed), l.For(domain.SourceTypePubMed))
	})

	t.Run("set replaces limiter", func(t *testing.T) {
		rl := NewRateLimiter(time.Millisecond)
		l.Set(domain.SourceTypeArXiv, rl)
		assert.Same(t, rl, l.For(domain.SourceTypeArXiv))
	})

	t.Run("nil credential func means anonymous", func(t *testing.T) {
		anon := NewLimiters(nil)
		assert.Equal(t, 10*time.Second, anon.For(domain.SourceTypeSemanticScholar).Interval())
	})
}
