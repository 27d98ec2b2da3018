// Package storage provides the key/value tiers the client persists its
// small pieces of state into: tokens, the intended redirect path and the
// pending payment reference. The ephemeral tier lives for the process,
// the persistent tier survives restarts.
package storage

import (
	"context"
	"sync"
)

// Store is a flat string key/value store. Get reports presence explicitly so
// an empty value is distinguishable from an absent key.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Memory is the ephemeral tier: process-lifetime, safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
