package ledger

import (
	"context"
	"sync"

	"github.com/JakeFAU/linkvault/internal/archive"
)

// MemoryBackend keeps ledger state in memory, for development and tests.
type MemoryBackend struct {
	mu        sync.Mutex
	records   map[archive.ArticleID]archive.FailureRecord
	permanent []archive.FailureRecord

	// PutErr, when set, is returned by Put to model a broken backend.
	PutErr error
}

// NewMemoryBackend constructs an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[archive.ArticleID]archive.FailureRecord)}
}

// Load returns a copy of the stored records.
func (b *MemoryBackend) Load(_ context.Context) (map[archive.ArticleID]archive.FailureRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[archive.ArticleID]archive.FailureRecord, len(b.records))
	for id, record := range b.records {
		out[id] = record
	}
	return out, nil
}

// Put upserts one record.
func (b *MemoryBackend) Put(_ context.Context, record archive.FailureRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.PutErr != nil {
		return b.PutErr
	}
	b.records[record.ArticleID] = record
	return nil
}

// MarkPermanent appends to the in-memory permanent list.
func (b *MemoryBackend) MarkPermanent(_ context.Context, record archive.FailureRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.permanent = append(b.permanent, record)
	return nil
}

// Permanent returns the appended permanent records, for test assertions.
func (b *MemoryBackend) Permanent() []archive.FailureRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]archive.FailureRecord, len(b.permanent))
	copy(out, b.permanent)
	return out
}
