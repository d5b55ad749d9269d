// Package kv is the named-blob storage a terminal keeps its offline state
// in. The queue serializes itself into a single blob per key, so the
// contract is deliberately small: get, set, delete.
package kv

import (
	"context"
	"sync"
)

type BlobStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}

type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: map[string]string{}}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.blobs[key]
	return val, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = value
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}
