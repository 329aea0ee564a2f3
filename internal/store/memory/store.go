// Package memory stores archive records in-memory for development/testing.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/linkvault/internal/archive"
)

// Store is an in-memory archive.Store. Writes replace the record and assets
// as one unit under a lock, mirroring the commit discipline of the
// filesystem store.
type Store struct {
	mu      sync.RWMutex
	records map[archive.ArticleID]archive.Record
	assets  map[archive.ArticleID]archive.Assets

	// WriteErr, when set, is returned by Write. Tests use it to model a
	// broken storage environment.
	WriteErr error
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		records: make(map[archive.ArticleID]archive.Record),
		assets:  make(map[archive.ArticleID]archive.Assets),
	}
}

// Exists reports whether a record is stored for id.
func (s *Store) Exists(_ context.Context, id archive.ArticleID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok, nil
}

// Read returns the record for id or ErrNotFound.
func (s *Store) Read(_ context.Context, id archive.ArticleID) (archive.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return archive.Record{}, archive.ErrNotFound
	}
	return record, nil
}

// Write replaces the stored record and assets for id.
func (s *Store) Write(_ context.Context, id archive.ArticleID, record archive.Record, assets archive.Assets) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return s.WriteErr
	}
	record.ArticleID = id
	s.records[id] = record
	s.assets[id] = assets
	return nil
}

// LastScrapedAt returns the stored scrape time for id.
func (s *Store) LastScrapedAt(_ context.Context, id archive.ArticleID) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return time.Time{}, false, nil
	}
	return record.ScrapedAt, true, nil
}

// Assets returns the stored assets for id, for test assertions.
func (s *Store) Assets(id archive.ArticleID) (archive.Assets, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[id]
	return a, ok
}

// Len reports the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
