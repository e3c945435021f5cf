// Package dedup provides signature-based duplicate detection backed by
// Redis SET NX EX, so reprocessed stream entries (e.g. after a claim of
// stale pending messages) never double-count.
package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "sig:"

// Filter deduplicates transaction signatures with an automatic expiry,
// requiring no explicit cleanup pass.
type Filter struct {
	rdb *redis.Client
	ttl time.Duration

	checked    int64
	duplicates int64
}

// NewFilter constructs a dedup Filter with the given TTL.
func NewFilter(rdb *redis.Client, ttl time.Duration) *Filter {
	return &Filter{rdb: rdb, ttl: ttl}
}

// IsDuplicate atomically checks and marks signature as seen. It returns
// true if the signature had already been recorded.
func (f *Filter) IsDuplicate(ctx context.Context, signature string) (bool, error) {
	f.checked++
	ok, err := f.rdb.SetNX(ctx, keyPrefix+signature, 1, f.ttl).Result()
	if err != nil {
		return false, err
	}
	if !ok {
		f.duplicates++
		return true, nil
	}
	return false, nil
}

// CheckBatch pipelines a SET NX EX per signature and returns only the
// ones that were not already seen, in input order.
func (f *Filter) CheckBatch(ctx context.Context, signatures []string) ([]string, error) {
	if len(signatures) == 0 {
		return nil, nil
	}

	pipe := f.rdb.Pipeline()
	cmds := make([]*redis.BoolCmd, len(signatures))
	for i, sig := range signatures {
		cmds[i] = pipe.SetNX(ctx, keyPrefix+sig, 1, f.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	fresh := make([]string, 0, len(signatures))
	for i, cmd := range cmds {
		f.checked++
		ok, err := cmd.Result()
		if err != nil {
			continue
		}
		if ok {
			fresh = append(fresh, signatures[i])
		} else {
			f.duplicates++
		}
	}
	return fresh, nil
}

// Stats returns dedup counters for observability.
func (f *Filter) Stats() (checked, duplicates int64, dupRatePct float64) {
	if f.checked == 0 {
		return 0, 0, 0
	}
	return f.checked, f.duplicates, float64(f.duplicates) / float64(f.checked) * 100
}
