package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process; used by tests and single-instance local runs.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore constructs an empty memory-backed store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Reserve(_ context.Context, id, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[id]; ok {
		state, err := classify(existing, fingerprint, now)
		if err != nil {
			return 0, Record{}, err
		}
		if state != StateNew {
			return state, existing, nil
		}
	}
	record := newPending(fingerprint, now, ttl)
	s.records[id] = record
	return StateNew, record, nil
}

func (s *MemoryStore) Complete(_ context.Context, id, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[id]; ok && existing.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	record := newPending(fingerprint, now, ttl)
	record.Completed = true
	record.Status = resp.Status
	record.Header = replayableHeader(resp.Header)
	record.Body = append([]byte(nil), resp.Body...)
	s.records[id] = record
	return nil
}

func (s *MemoryStore) Release(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, record := range s.records {
		if limit > 0 && removed >= limit {
			break
		}
		if now.Before(record.ExpiresAt) {
			continue
		}
		delete(s.records, id)
		removed++
	}
	return removed, nil
}

