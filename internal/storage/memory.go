package storage

import (
	"context"
	"sync"
	"time"
)

// memoryStore keeps both tables in process memory. It backs dry runs
// (persistence disabled) and tests. State is empty after every restart, so
// the worst case is a burst of duplicate alerts, never a miss of marking.
type memoryStore struct {
	mu      sync.Mutex
	seen    map[string]SeenRecord
	buckets map[string]BucketRecord
}

// NewMemory returns an empty in-memory store.
func NewMemory() Store {
	return &memoryStore{
		seen:    map[string]SeenRecord{},
		buckets: map[string]BucketRecord{},
	}
}

func (s *memoryStore) Close() error { return nil }

func (s *memoryStore) GetSeen(_ context.Context, itemID string) (time.Time, bool, error) {
	if itemID == "" {
		return time.Time{}, false, nil
	}
	s.mu.Lock()
	rec, ok := s.seen[itemID]
	s.mu.Unlock()
	if !ok || !time.Now().Before(rec.Expires) {
		return time.Time{}, false, nil
	}
	return rec.Expires, true, nil
}

func (s *memoryStore) PutSeen(_ context.Context, rec SeenRecord) error {
	if rec.ItemID == "" {
		return nil
	}
	if rec.FirstSeen.IsZero() {
		rec.FirstSeen = time.Now()
	}
	s.mu.Lock()
	if prev, ok := s.seen[rec.ItemID]; ok {
		// Keep the original first-seen on repeat marks.
		rec.FirstSeen = prev.FirstSeen
	}
	s.seen[rec.ItemID] = rec
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) SweepSeen(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.seen {
		if rec.Expires.Before(now) {
			delete(s.seen, id)
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) GetBucket(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	s.mu.Lock()
	rec, ok := s.buckets[key]
	s.mu.Unlock()
	return ok && time.Now().Before(rec.Expires), nil
}

func (s *memoryStore) PutBucket(_ context.Context, rec BucketRecord) error {
	if rec.Key == "" {
		return nil
	}
	s.mu.Lock()
	s.buckets[rec.Key] = rec
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) PruneBuckets(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, rec := range s.buckets {
		if rec.Expires.Before(now) {
			delete(s.buckets, k)
			n++
		}
	}
	return n, nil
}
