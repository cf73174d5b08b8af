// Package persist keeps the latest persisted payload of each topic across
// node restarts. Only one record per topic is ever stored; a save replaces
// the previous one.
package persist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DeBrosOfficial/cogmesh/pkg/config"
)

// Record is the persisted payload of one topic.
type Record struct {
	Topic    string
	Data     []byte
	Origin   string
	StoredAt time.Time
}

// Store is a single-slot-per-topic payload store. Implementations must be
// safe for concurrent use; the node calls them from worker goroutines.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Load(ctx context.Context, topic string) (Record, bool, error)
	Close() error
}

// Open returns the store selected by cfg.
func Open(cfg config.PersistenceConfig) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return OpenSQLite(cfg.Path)
	case "rqlite":
		return OpenRQLite(cfg.URL)
	case "olric":
		return OpenOlric(cfg.Servers)
	default:
		return nil, fmt.Errorf("unknown persistence backend %q", cfg.Backend)
	}
}

// MemoryStore keeps records for the lifetime of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Save replaces the record for rec.Topic unless the stored one is newer.
func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	if rec.StoredAt.IsZero() {
		rec.StoredAt = time.Now()
	}
	data := make([]byte, len(rec.Data))
	copy(data, rec.Data)
	rec.Data = data

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.records[rec.Topic]; ok && old.StoredAt.After(rec.StoredAt) {
		return nil
	}
	s.records[rec.Topic] = rec
	return nil
}

// Load returns the record for topic, if any.
func (s *MemoryStore) Load(_ context.Context, topic string) (Record, bool, error) {
	s.mu.RLock()
	rec, ok := s.records[topic]
	s.mu.RUnlock()
	return rec, ok, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
