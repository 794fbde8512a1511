package quota

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu     sync.RWMutex
	latest Snapshot
	set    bool
}

func NewMemory() Store {
	return &memoryStore{}
}

func (s *memoryStore) Record(_ context.Context, snap Snapshot) error {
	if snap.ObservedAt.IsZero() {
		snap.ObservedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = cloneSnapshot(snap)
	s.set = true
	return nil
}

func (s *memoryStore) Latest(_ context.Context) (Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return Snapshot{}, false, nil
	}
	return cloneSnapshot(s.latest), true, nil
}

func (s *memoryStore) Close(_ context.Context) error {
	return nil
}
