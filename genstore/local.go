package genstore

import (
	"context"
	"sync"
)

// Local keeps epochs in-process.
type Local struct {
	mu     sync.RWMutex
	epochs map[string]uint64
}

var _ Store = (*Local)(nil)

func NewLocal() *Local {
	return &Local{epochs: make(map[string]uint64)}
}

func (s *Local) Snapshot(_ context.Context, name string) (uint64, error) {
	s.mu.RLock()
	e := s.epochs[name]
	s.mu.RUnlock()
	return e, nil
}

func (s *Local) Bump(_ context.Context, name string) (uint64, error) {
	s.mu.Lock()
	s.epochs[name]++
	e := s.epochs[name]
	s.mu.Unlock()
	return e, nil
}

func (s *Local) Close(context.Context) error { return nil }
