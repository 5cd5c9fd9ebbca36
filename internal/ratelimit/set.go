package ratelimit

import (
	"context"
	"fmt"
	"sort"
)

// Named quotas used by the adapters.
const (
	QuotaTicker  = "ticker"
	QuotaSymbols = "symbols"
	QuotaDefault = "default"
)

// Set holds the named buckets of one adapter.
type Set struct {
	buckets map[string]*Bucket
}

// NewSet builds one bucket per entry. A "default" quota must be present;
// lookups for unknown names fall back to it.
func NewSet(configs map[string]Config, initial map[string]int, opts ...Option) (*Set, error) {
	if _, ok := configs[QuotaDefault]; !ok {
		return nil, fmt.Errorf("quota %q is required", QuotaDefault)
	}

	s := &Set{buckets: make(map[string]*Bucket, len(configs))}
	for name, cfg := range configs {
		bucketOpts := opts
		if n, ok := initial[name]; ok {
			bucketOpts = append(append([]Option{}, opts...), WithInitialTokens(n))
		}
		b, err := New(cfg, bucketOpts...)
		if err != nil {
			return nil, fmt.Errorf("quota %s: %w", name, err)
		}
		s.buckets[name] = b
	}
	return s, nil
}

// Bucket returns the named bucket, or the default bucket.
func (s *Set) Bucket(name string) *Bucket {
	if b, ok := s.buckets[name]; ok {
		return b
	}
	return s.buckets[QuotaDefault]
}

// Wait blocks on the named bucket.
func (s *Set) Wait(ctx context.Context, name string, n int) error {
	return s.Bucket(name).Wait(ctx, n)
}

// Names returns the configured quota names, sorted.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.buckets))
	for name := range s.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
