// Package cache stores raw provider responses keyed by a deterministic hash
// of the request that produced them.
//
// Payloads are opaque bytes. Each entry records when it was stored and its
// time-to-live. An entry expires once its age exceeds the ttl, so it is still
// served at exactly stored_at+ttl. Reads of an expired entry are misses, and
// expired entries are removed by ClearExpired. Stores are safe for concurrent use; concurrent
// writes to the same key are last-writer-wins.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/research-finder/internal/domain"
)

// Store is a durable key to payload cache with TTL expiry.
type Store interface {
	// Get returns the payload for key. It returns domain.ErrCacheMiss when
	// the key is absent or expired, and a *domain.CacheCorruptionError when
	// the stored payload cannot be trusted.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores payload under key, replacing any previous entry.
	Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error

	// ClearExpired removes entries past their TTL and returns how many.
	ClearExpired(ctx context.Context) (int, error)

	// ClearAll removes every entry and returns how many.
	ClearAll(ctx context.Context) (int, error)

	// Stats reports entry counts.
	Stats(ctx context.Context) (Stats, error)

	// Close releases the underlying database.
	Close() error
}

// Stats summarizes a store's contents.
type Stats struct {
	Entries int `json:"entries"`
	Expired int `json:"expired"`
}

// KeyParts are the request attributes a cache key is derived from.
type KeyParts struct {
	Source  domain.SourceType
	Mode    domain.SearchMode
	Query   string
	Limit   int
	Filters domain.Filters
	// Step distinguishes the requests of a multi-request adapter
	// (for example a PubMed id search followed by a record fetch).
	Step string
	// Extra carries step-specific inputs such as the ids being fetched.
	Extra string
}

// keyVersion is bumped whenever the derivation below changes.
const keyVersion = "v1"

// Key derives a cache key. Query text is compared in its normalized form, so
// queries differing only in case or spacing share an entry. Each field is
// length-prefixed, so no two distinct tuples serialize identically.
func Key(p KeyParts) string {
	fields := []string{
		keyVersion,
		string(p.Source),
		string(p.Mode),
		strings.Join(strings.Fields(strings.ToLower(p.Query)), " "),
		strconv.Itoa(p.Limit),
		strconv.Itoa(p.Filters.YearMin),
		strconv.Itoa(p.Filters.YearMax),
		strconv.Itoa(p.Filters.MinCitations),
		p.Step,
		p.Extra,
	}

	h := sha256.New()
	for _, f := range fields {
		fmt.Fprintf(h, "%d:%s|", len(f), f)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// checksum fingerprints a payload so corrupted rows can be detected.
func checksum(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// verify returns a corruption error when payload does not match sum.
func verify(key string, payload []byte, sum string) error {
	if got := checksum(payload); got != sum {
		return domain.NewCacheCorruptionError(key, fmt.Errorf("checksum mismatch: stored %.12s, computed %.12s", sum, got))
	}
	return nil
}

// Clear applies a cache directive and returns the number of entries removed.
func Clear(ctx context.Context, s Store, directive domain.CacheDirective) (int, error) {
	switch directive {
	case domain.CacheDirectiveNone, "":
		return 0, nil
	case domain.CacheDirectiveClearExpired:
		return s.ClearExpired(ctx)
	case domain.CacheDirectiveClearAll:
		return s.ClearAll(ctx)
	default:
		return 0, domain.NewValidationError("cache_directive", fmt.Sprintf("unknown cache directive %q", directive))
	}
}
