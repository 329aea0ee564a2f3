// Package pipeline implements the per-URL scrape-or-skip state machine and
// the worker pool that drives a run.
package pipeline

import "sync/atomic"

// Summary is the immutable per-run outcome tally.
type Summary struct {
	Scraped          int64 `json:"scraped"`
	SkippedCached    int64 `json:"skipped_cached"`
	SkippedCooldown  int64 `json:"skipped_cooldown"`
	SkippedPermanent int64 `json:"skipped_permanent"`
	Failed           int64 `json:"failed"`
	NewlyPermanent   int64 `json:"newly_permanent"`
}

// Attempted returns how many URLs actually reached the fetcher.
func (s Summary) Attempted() int64 {
	return s.Scraped + s.Failed
}

// Report accumulates outcome counts during a run. All increments are
// atomic; workers update it concurrently and the operator API may snapshot
// it mid-run.
type Report struct {
	scraped          atomic.Int64
	skippedCached    atomic.Int64
	skippedCooldown  atomic.Int64
	skippedPermanent atomic.Int64
	failed           atomic.Int64
	newlyPermanent   atomic.Int64
}

// NewReport constructs an empty Report.
func NewReport() *Report {
	return &Report{}
}

// Scraped records one successful archive commit.
func (r *Report) Scraped() { r.scraped.Add(1) }

// SkippedCached records one cache hit.
func (r *Report) SkippedCached() { r.skippedCached.Add(1) }

// SkippedCooldown records one cooldown suppression.
func (r *Report) SkippedCooldown() { r.skippedCooldown.Add(1) }

// SkippedPermanent records one permanently-failed skip.
func (r *Report) SkippedPermanent() { r.skippedPermanent.Add(1) }

// Failed records one fetch failure.
func (r *Report) Failed() { r.failed.Add(1) }

// NewlyPermanent records a failure that crossed the permanent threshold.
func (r *Report) NewlyPermanent() { r.newlyPermanent.Add(1) }

// Snapshot returns the current tallies as an immutable Summary.
func (r *Report) Snapshot() Summary {
	return Summary{
		Scraped:          r.scraped.Load(),
		SkippedCached:    r.skippedCached.Load(),
		SkippedCooldown:  r.skippedCooldown.Load(),
		SkippedPermanent: r.skippedPermanent.Load(),
		Failed:           r.failed.Load(),
		NewlyPermanent:   r.newlyPermanent.Load(),
	}
}
