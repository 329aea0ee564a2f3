// Package ledger implements persistent per-URL failure bookkeeping: retry
// counts, cooldown windows, and the append-only permanent-failure set.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkvault/internal/archive"
)

// Defaults for the retry state machine.
const (
	DefaultCooldown    = 7 * 24 * time.Hour
	DefaultMaxFailures = 5
)

// Backend persists failure records. The ledger loads once at construction
// and pushes every mutation through Put/MarkPermanent so a crash loses at
// most the in-flight update.
type Backend interface {
	// Load returns all known failure records, including permanent ones.
	Load(ctx context.Context) (map[archive.ArticleID]archive.FailureRecord, error)
	// Put upserts one failure record.
	Put(ctx context.Context, record archive.FailureRecord) error
	// MarkPermanent appends the record to the permanent-failure set. The set
	// is append-only; entries are never removed by the pipeline.
	MarkPermanent(ctx context.Context, record archive.FailureRecord) error
}

// Options tune the state machine. Zero values select the defaults.
type Options struct {
	Cooldown    time.Duration
	MaxFailures int
}

// Ledger is the concrete archive.Ledger. It serializes all state mutations
// internally; workers on different ArticleIDs share one instance.
type Ledger struct {
	mu          sync.RWMutex
	records     map[archive.ArticleID]archive.FailureRecord
	backend     Backend
	clock       archive.Clock
	cooldown    time.Duration
	maxFailures int
	logger      *zap.Logger
}

// New loads existing state from the backend and returns a ready Ledger.
func New(ctx context.Context, backend Backend, clock archive.Clock, opts Options, logger *zap.Logger) (*Ledger, error) {
	if backend == nil {
		return nil, fmt.Errorf("ledger backend is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("ledger clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = DefaultMaxFailures
	}

	records, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	if records == nil {
		records = make(map[archive.ArticleID]archive.FailureRecord)
	}

	return &Ledger{
		records:     records,
		backend:     backend,
		clock:       clock,
		cooldown:    opts.Cooldown,
		maxFailures: opts.MaxFailures,
		logger:      logger,
	}, nil
}

// Status reports where id sits in the retry state machine.
func (l *Ledger) Status(id archive.ArticleID) archive.Status {
	l.mu.RLock()
	record, ok := l.records[id]
	l.mu.RUnlock()

	switch {
	case !ok || record.FailureCount == 0:
		return archive.Status{State: archive.StateNeverFailed}
	case record.Permanent:
		return archive.Status{State: archive.StatePermanent}
	case record.CooldownUntil != nil && l.clock.Now().Before(*record.CooldownUntil):
		return archive.Status{State: archive.StateCooling, CooldownUntil: *record.CooldownUntil}
	default:
		return archive.Status{State: archive.StateRetryable}
	}
}

// RecordFailure advances the failure state for id and flushes it. Once the
// failure count reaches the limit the id becomes permanent and is appended
// to the permanent set.
func (l *Ledger) RecordFailure(ctx context.Context, id archive.ArticleID, url string, now time.Time) (archive.FailureRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.records[id]
	if !ok {
		record = archive.FailureRecord{ArticleID: id, URL: url}
	}
	if record.URL == "" {
		record.URL = url
	}

	record.FailureCount++
	record.LastFailureAt = &now
	until := now.Add(l.cooldown)
	record.CooldownUntil = &until

	newlyPermanent := false
	if record.FailureCount >= l.maxFailures && !record.Permanent {
		record.Permanent = true
		newlyPermanent = true
	}

	l.records[id] = record

	if err := l.backend.Put(ctx, record); err != nil {
		return record, fmt.Errorf("flush failure record: %w", err)
	}
	if newlyPermanent {
		if err := l.backend.MarkPermanent(ctx, record); err != nil {
			return record, fmt.Errorf("append permanent record: %w", err)
		}
		l.logger.Warn("article marked permanently failed",
			zap.String("article_id", string(id)),
			zap.String("url", record.URL),
			zap.Int("failure_count", record.FailureCount),
		)
	}
	return record, nil
}

// RecordSuccess clears failure state for id and flushes the reset. Success
// on a permanent id cannot happen through the pipeline (permanent ids are
// never attempted), so Permanent is left untouched.
func (l *Ledger) RecordSuccess(ctx context.Context, id archive.ArticleID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.records[id]
	if !ok || record.FailureCount == 0 {
		return nil
	}

	record.FailureCount = 0
	record.LastFailureAt = nil
	record.CooldownUntil = nil
	l.records[id] = record

	if err := l.backend.Put(ctx, record); err != nil {
		return fmt.Errorf("flush success reset: %w", err)
	}
	return nil
}

// Records returns a snapshot of all failure records sorted by ArticleID,
// for the operator-facing failures listing.
func (l *Ledger) Records() []archive.FailureRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]archive.FailureRecord, 0, len(l.records))
	for _, record := range l.records {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ArticleID < out[j].ArticleID })
	return out
}
