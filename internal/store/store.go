// Package store holds the token metadata documents the service hands out.
// Documents are opaque JSON keyed by collection and token ID; gating against
// on-chain state happens in the resolver, not here.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned when no document exists for a key
var ErrNotFound = errors.New("store: metadata not found")

// PlaceholderToken keys the pre-reveal placeholder document of a collection
const PlaceholderToken = "placeholder"

// Store is the metadata document store
type Store interface {
	// Get retrieves the document for a token in a collection
	Get(ctx context.Context, collection, tokenID string) (json.RawMessage, error)

	// Put stores or replaces a document
	Put(ctx context.Context, collection, tokenID string, doc json.RawMessage) error

	// List returns the token IDs present in a collection, sorted
	List(ctx context.Context, collection string) ([]string, error)
}

// StateKey derives the store key for a state-gated document: one document
// per (token, state ordinal).
func StateKey(tokenID string, state uint64) string {
	return fmt.Sprintf("%s/%d", tokenID, state)
}

type memoryKey struct {
	collection string
	tokenID    string
}

// MemoryStore is a map-backed store used for tests and single-node setups
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[memoryKey]json.RawMessage
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[memoryKey]json.RawMessage)}
}

// Get retrieves the document for a token in a collection
func (s *MemoryStore) Get(_ context.Context, collection, tokenID string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[memoryKey{collection: collection, tokenID: tokenID}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, tokenID)
	}

	// Return a copy so callers cannot mutate the stored document
	out := make(json.RawMessage, len(doc))
	copy(out, doc)
	return out, nil
}

// Put stores or replaces a document
func (s *MemoryStore) Put(_ context.Context, collection, tokenID string, doc json.RawMessage) error {
	stored := make(json.RawMessage, len(doc))
	copy(stored, doc)

	s.mu.Lock()
	s.docs[memoryKey{collection: collection, tokenID: tokenID}] = stored
	s.mu.Unlock()
	return nil
}

// List returns the token IDs present in a collection, sorted
func (s *MemoryStore) List(_ context.Context, collection string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for k := range s.docs {
		if k.collection == collection {
			ids = append(ids, k.tokenID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

var _ Store = (*MemoryStore)(nil)
