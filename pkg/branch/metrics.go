package branch

import "time"

// CacheMetrics accumulates cache outcomes. It is owned by the cache and
// only mutated under the cache lock; Snapshot returns a copy.
type CacheMetrics struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Puts          int64 `json:"puts"`
	Evictions     int64 `json:"evictions"`
	Invalidations int64 `json:"invalidations"`
	Expiries      int64 `json:"expiries"`

	hitLatencyTotal time.Duration
}

// HitRate returns hits / (hits + misses), or zero before any lookup.
func (m CacheMetrics) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0
	}
	return float64(m.Hits) / float64(total)
}

// AvgHitLatency returns the mean lookup latency across hits.
func (m CacheMetrics) AvgHitLatency() time.Duration {
	if m.Hits == 0 {
		return 0
	}
	return m.hitLatencyTotal / time.Duration(m.Hits)
}

// CollapseMetrics accumulates collapse outcomes: variant distribution,
// twist rate, and timing.
type CollapseMetrics struct {
	Collapses        int64                 `json:"collapses"`
	Twists           int64                 `json:"twists"`
	VariantCounts    map[VariantType]int64 `json:"variant_counts"`
	collapseDuration time.Duration
}

// TwistRate returns the share of collapses that resolved a twist
// decision.
func (m CollapseMetrics) TwistRate() float64 {
	if m.Collapses == 0 {
		return 0
	}
	return float64(m.Twists) / float64(m.Collapses)
}

// AvgCollapseDuration returns the mean time spent per collapse.
func (m CollapseMetrics) AvgCollapseDuration() time.Duration {
	if m.Collapses == 0 {
		return 0
	}
	return m.collapseDuration / time.Duration(m.Collapses)
}
