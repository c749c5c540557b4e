// Package kv holds the local key-value substrates: process memory and a
// directory of files.
package kv

import (
	"context"
	"sync"

	"github.com/boddenberg/burger-place-bfa-go/internal/domain"
)

// Memory is an in-process substrate. A positive MaxBytes caps the summed
// size of keys and values; writes past it fail with ErrQuotaExceeded.
type Memory struct {
	mu       sync.RWMutex
	items    map[string]string
	size     int
	maxBytes int
}

// NewMemory creates an empty memory substrate. maxBytes <= 0 disables the quota.
func NewMemory(maxBytes int) *Memory {
	return &Memory{items: make(map[string]string), maxBytes: maxBytes}
}

// GetItem returns the value stored at key.
func (m *Memory) GetItem(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok, nil
}

// SetItem stores value at key, replacing any previous value.
func (m *Memory) SetItem(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	size := m.size + len(key) + len(value)
	if old, ok := m.items[key]; ok {
		size -= len(key) + len(old)
	}
	if m.maxBytes > 0 && size > m.maxBytes {
		return domain.ErrQuotaExceeded
	}
	m.items[key] = value
	m.size = size
	return nil
}

// RemoveItem deletes key. Missing keys are not an error.
func (m *Memory) RemoveItem(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.items[key]; ok {
		m.size -= len(key) + len(old)
		delete(m.items, key)
	}
	return nil
}

// Ping always succeeds.
func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}
