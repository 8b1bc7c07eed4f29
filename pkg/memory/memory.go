// Package memory provides key/value stores used to persist embedding
// vectors between runs. Values are stored as JSON.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/scottdavis/metatool/pkg/errors"
)

// StoreOption defines options for Store operations
type StoreOption func(*StoreOptions)

// StoreOptions contains configuration for Store operations
type StoreOptions struct {
	TTL time.Duration
}

// WithTTL creates an option to set a TTL for a stored value
func WithTTL(ttl time.Duration) StoreOption {
	return func(options *StoreOptions) {
		options.TTL = ttl
	}
}

// Store defines the interface for key-value storage backends.
type Store interface {
	// Store saves a value with the specified key.
	Store(ctx context.Context, key string, value any, opts ...StoreOption) error

	// Retrieve decodes the value stored at key into dst. A missing or
	// expired key yields a ResourceNotFound error.
	Retrieve(ctx context.Context, key string, dst any) error

	// List returns all live keys in the store.
	List(ctx context.Context) ([]string, error)

	// Clear removes all values from the store.
	Clear(ctx context.Context) error

	// CleanExpired removes all expired entries from the store.
	CleanExpired(ctx context.Context) (int64, error)

	// Close releases resources used by the store.
	Close() error
}

// IsNotFound reports whether err is a missing-key error.
func IsNotFound(err error) bool {
	return errors.CodeOf(err) == errors.ResourceNotFound
}

func encode(key string, value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to marshal value to JSON"),
			errors.Fields{
				"key":        key,
				"value_type": fmt.Sprintf("%T", value),
			},
		)
	}
	return data, nil
}

func decode(key string, data []byte, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.InvalidResponse, "failed to unmarshal value from JSON"),
			errors.Fields{"key": key},
		)
	}
	return nil
}

func notFound(key string) error {
	return errors.WithFields(
		errors.New(errors.ResourceNotFound, "key not found"),
		errors.Fields{"key": key},
	)
}

// InMemoryStore is a process-local Store.
type InMemoryStore struct {
	data   map[string][]byte
	expiry map[string]time.Time
	mu     sync.RWMutex
}

var _ Store = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		data:   make(map[string][]byte),
		expiry: make(map[string]time.Time),
	}
}

func (s *InMemoryStore) Store(ctx context.Context, key string, value any, opts ...StoreOption) error {
	options := &StoreOptions{}
	for _, opt := range opts {
		opt(options)
	}

	data, err := encode(key, value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = data
	if options.TTL > 0 {
		s.expiry[key] = time.Now().Add(options.TTL)
	} else {
		delete(s.expiry, key)
	}
	return nil
}

func (s *InMemoryStore) Retrieve(ctx context.Context, key string, dst any) error {
	s.mu.RLock()
	data, exists := s.data[key]
	expiry, hasExpiry := s.expiry[key]
	s.mu.RUnlock()

	if !exists {
		return notFound(key)
	}
	if hasExpiry && time.Now().After(expiry) {
		s.mu.Lock()
		// re-check: the key may have been rewritten since the read lock
		if current, ok := s.expiry[key]; ok && current.Equal(expiry) {
			delete(s.data, key)
			delete(s.expiry, key)
		}
		s.mu.Unlock()
		return errors.WithFields(
			errors.New(errors.ResourceNotFound, "key expired in memory store"),
			errors.Fields{"key": key, "expiry_time": expiry},
		)
	}
	return decode(key, data, dst)
}

func (s *InMemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanExpiredNoLock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *InMemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[string][]byte)
	s.expiry = make(map[string]time.Time)
	return nil
}

// CleanExpired removes expired entries and returns count of removed items
func (s *InMemoryStore) CleanExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cleanExpiredNoLock(), nil
}

// Caller must hold the write lock.
func (s *InMemoryStore) cleanExpiredNoLock() int64 {
	var count int64
	now := time.Now()
	for key, expiry := range s.expiry {
		if now.After(expiry) {
			delete(s.data, key)
			delete(s.expiry, key)
			count++
		}
	}
	return count
}

// Close is a no-op for InMemoryStore
func (s *InMemoryStore) Close() error {
	return nil
}
