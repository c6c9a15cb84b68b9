package ledger

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore implements the Store interface in memory. It exists for tests
// and examples; semantics match the SQLite backend, including append-only
// behavior and newest-first ordering.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots []*Snapshot
	changes   []*ChangeRecord
}

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// AppendBatch persists a snapshot and its change records atomically.
func (s *MemoryStore) AppendBatch(ctx context.Context, batch *Batch) error {
	if err := validateBatch(batch); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := *batch.Snapshot
	snap.Policies = append([]SnapshotPolicy(nil), batch.Snapshot.Policies...)
	s.snapshots = append(s.snapshots, &snap)

	for _, change := range batch.Changes {
		c := *change
		c.SnapshotID = snap.SnapshotID
		s.changes = append(s.changes, &c)
	}

	return nil
}

// Changes returns change records matching the query, newest first.
func (s *MemoryStore) Changes(ctx context.Context, query *Query) ([]*ChangeRecord, error) {
	if query == nil {
		query = &Query{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	filtered := s.filter(query)

	limit := 100
	if query.Limit > 0 {
		limit = query.Limit
	}
	offset := query.Offset
	if offset > len(filtered) {
		offset = len(filtered)
	}
	end := offset + limit
	if end > len(filtered) {
		end = len(filtered)
	}

	out := make([]*ChangeRecord, 0, end-offset)
	for _, record := range filtered[offset:end] {
		c := *record
		out = append(out, &c)
	}
	return out, nil
}

// Count returns the number of change records matching the query.
func (s *MemoryStore) Count(ctx context.Context, query *Query) (int64, error) {
	if query == nil {
		query = &Query{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.filter(query))), nil
}

// LatestApply returns the most recent successful apply record for the
// policy, or ErrNotFound.
func (s *MemoryStore) LatestApply(ctx context.Context, policyID string) (*ChangeRecord, error) {
	success := true
	records, err := s.Changes(ctx, &Query{
		PolicyID:  policyID,
		Operation: OperationApply,
		Success:   &success,
		Limit:     1,
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0], nil
}

// GetSnapshot returns one snapshot with its per-policy states.
func (s *MemoryStore) GetSnapshot(ctx context.Context, snapshotID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, snap := range s.snapshots {
		if snap.SnapshotID == snapshotID {
			return copySnapshot(snap, true), nil
		}
	}
	return nil, ErrNotFound
}

// LatestSnapshot returns the most recent snapshot, or ErrNotFound.
func (s *MemoryStore) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.snapshots) == 0 {
		return nil, ErrNotFound
	}

	latest := s.snapshots[0]
	for _, snap := range s.snapshots[1:] {
		if !snap.CreatedAt.Before(latest.CreatedAt) {
			latest = snap
		}
	}
	return copySnapshot(latest, true), nil
}

// ListSnapshots returns up to limit snapshots, newest first, without
// per-policy states.
func (s *MemoryStore) ListSnapshots(ctx context.Context, limit int) ([]*Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := make([]*Snapshot, len(s.snapshots))
	copy(sorted, s.snapshots)
	for i, j := 0, len(sorted)-1; i < j; i, j = i+1, j-1 {
		sorted[i], sorted[j] = sorted[j], sorted[i]
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	if limit < len(sorted) {
		sorted = sorted[:limit]
	}

	out := make([]*Snapshot, 0, len(sorted))
	for _, snap := range sorted {
		out = append(out, copySnapshot(snap, false))
	}
	return out, nil
}

// Close is a no-op for the memory backend.
func (s *MemoryStore) Close() error {
	return nil
}

// filter returns matching records newest first. Caller holds the lock.
func (s *MemoryStore) filter(query *Query) []*ChangeRecord {
	filtered := make([]*ChangeRecord, 0, len(s.changes))
	for i := len(s.changes) - 1; i >= 0; i-- {
		if matchesQuery(s.changes[i], query) {
			filtered = append(filtered, s.changes[i])
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].AppliedAt.After(filtered[j].AppliedAt)
	})
	return filtered
}

func matchesQuery(record *ChangeRecord, query *Query) bool {
	if query.PolicyID != "" && record.PolicyID != query.PolicyID {
		return false
	}
	if query.SnapshotID != "" && record.SnapshotID != query.SnapshotID {
		return false
	}
	if query.Operation != "" && record.Operation != query.Operation {
		return false
	}
	if query.Mechanism != "" && record.Mechanism != query.Mechanism {
		return false
	}
	if query.Success != nil && record.Success != *query.Success {
		return false
	}
	if query.Since != nil && record.AppliedAt.Before(*query.Since) {
		return false
	}
	if query.Until != nil && record.AppliedAt.After(*query.Until) {
		return false
	}
	return true
}

func copySnapshot(snap *Snapshot, withPolicies bool) *Snapshot {
	out := *snap
	if withPolicies {
		out.Policies = append([]SnapshotPolicy(nil), snap.Policies...)
	} else {
		out.Policies = nil
	}
	return &out
}
