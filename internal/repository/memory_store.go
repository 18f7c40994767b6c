package repository

import (
	"context"
	"fmt"
	"sync"
)

// DefaultMemoryCapacity bounds the in-memory history.
const DefaultMemoryCapacity = 1000

// MemoryStore keeps the most recent classifications in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	logs     []*ClassificationLog
	byID     map[string]*ClassificationLog
}

// NewMemoryStore creates a store holding at most capacity entries.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{
		capacity: capacity,
		byID:     make(map[string]*ClassificationLog),
	}
}

// SaveLog appends an entry, evicting the oldest when full.
func (s *MemoryStore) SaveLog(_ context.Context, log *ClassificationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[log.RequestID]; exists {
		return fmt.Errorf("duplicate request id %q", log.RequestID)
	}
	stored := *log
	s.logs = append(s.logs, &stored)
	s.byID[stored.RequestID] = &stored
	if len(s.logs) > s.capacity {
		evicted := s.logs[0]
		s.logs = s.logs[1:]
		delete(s.byID, evicted.RequestID)
	}
	return nil
}

// FindByRequestID returns a copy of the matching entry.
func (s *MemoryStore) FindByRequestID(_ context.Context, requestID string) (*ClassificationLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.byID[requestID]
	if !ok {
		return nil, ErrNotFound
	}
	found := *log
	return &found, nil
}

// ListRecent returns up to limit entries, newest first.
func (s *MemoryStore) ListRecent(_ context.Context, limit int) ([]*ClassificationLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.logs) {
		limit = len(s.logs)
	}
	out := make([]*ClassificationLog, 0, limit)
	for i := len(s.logs) - 1; i >= 0 && len(out) < limit; i-- {
		entry := *s.logs[i]
		out = append(out, &entry)
	}
	return out, nil
}

// AggregateMetrics computes totals over the retained entries.
func (s *MemoryStore) AggregateMetrics(_ context.Context) (*MetricsAggregation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg := &MetricsAggregation{CategoryCounts: make(map[string]int64)}
	var confidenceSum, latencySum int64
	for _, log := range s.logs {
		agg.TotalCount++
		if log.OfflineMode {
			agg.OfflineCount++
		}
		agg.TotalBuds += int64(log.BudsReward)
		agg.CategoryCounts[log.Category]++
		confidenceSum += int64(log.Confidence)
		latencySum += log.LatencyMs
	}
	if agg.TotalCount > 0 {
		agg.AverageConfidence = float64(confidenceSum) / float64(agg.TotalCount)
		agg.AverageLatencyMs = float64(latencySum) / float64(agg.TotalCount)
	}
	return agg, nil
}
