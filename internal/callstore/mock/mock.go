// Package mock provides an in-memory test double for callstore.Store.
package mock

import (
	"context"
	"sync"

	"github.com/phonio-ai/phonio/internal/callstore"
)

// Compile-time check: Store must implement callstore.Store.
var _ callstore.Store = (*Store)(nil)

// Store keeps records in memory, newest first.
type Store struct {
	mu sync.Mutex

	// RecordErr, when non-nil, is returned from Record.
	RecordErr error

	records []callstore.CallRecord
}

// Record implements callstore.Store.
func (s *Store) Record(_ context.Context, rec callstore.CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RecordErr != nil {
		return s.RecordErr
	}
	s.records = append([]callstore.CallRecord{rec}, s.records...)
	return nil
}

// Recent implements callstore.Store.
func (s *Store) Recent(_ context.Context, limit int) ([]callstore.CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.records)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]callstore.CallRecord, n)
	copy(out, s.records[:n])
	return out, nil
}

// Close implements callstore.Store.
func (s *Store) Close() error { return nil }

// Records returns a copy of everything recorded so far, newest first.
func (s *Store) Records() []callstore.CallRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]callstore.CallRecord, len(s.records))
	copy(out, s.records)
	return out
}
