package storage

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

const memorySweepInterval = time.Second

type memoryEntry struct {
	value []byte
	// zero deadline means the record never expires
	deadline time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.deadline.IsZero() && !now.Before(e.deadline)
}

// MemoryDB is an in memory implementation of ServiceStorage that is safe for
// concurrent use. Updates run under the store lock, which makes them atomic
// with respect to every other operation.
type MemoryDB struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]memoryEntry
	clk        clock.Clock
	stop       chan struct{}
	closeOnce  sync.Once
}

func NewMemoryDB(clk clock.Clock) *MemoryDB {
	db := &MemoryDB{
		namespaces: make(map[string]map[string]memoryEntry),
		clk:        clk,
		stop:       make(chan struct{}),
	}
	go db.sweepExpired()
	return db
}

func (m *MemoryDB) Type() Type {
	return Memory
}

func (m *MemoryDB) URI() string {
	return "memory"
}

func (m *MemoryDB) IsOpen() bool {
	select {
	case <-m.stop:
		return false
	default:
		return true
	}
}

func (m *MemoryDB) Close() error {
	m.closeOnce.Do(func() {
		close(m.stop)
	})
	return nil
}

func (m *MemoryDB) Write(_ context.Context, namespace, key string, value []byte) error {
	if namespace == "" {
		return errors.New("namespace required")
	}
	if key == "" {
		return errors.New("key required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bucket(namespace)[key] = memoryEntry{value: value}
	return nil
}

func (m *MemoryDB) WriteWithExpiry(_ context.Context, namespace, key string, value []byte, expiry time.Duration) error {
	if namespace == "" {
		return errors.New("namespace required")
	}
	if key == "" {
		return errors.New("key required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bucket(namespace)[key] = memoryEntry{value: value, deadline: m.clk.Now().Add(expiry)}
	return nil
}

func (m *MemoryDB) Read(_ context.Context, namespace, key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("key required")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.namespaces[namespace][key]
	if !ok || entry.expired(m.clk.Now()) {
		return nil, nil
	}
	return entry.value, nil
}

func (m *MemoryDB) ReadAll(_ context.Context, namespace string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.clk.Now()
	result := make(map[string][]byte)
	for key, entry := range m.namespaces[namespace] {
		if entry.expired(now) {
			continue
		}
		result[key] = entry.value
	}
	return result, nil
}

func (m *MemoryDB) Update(_ context.Context, namespace, key string, updater Updater) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.namespaces[namespace][key]
	if !ok || entry.expired(m.clk.Now()) {
		return nil, ErrKeyNotFound
	}
	if err := updater.Validate(entry.value); err != nil {
		return nil, err
	}
	updated, err := updater.Update(entry.value)
	if err != nil {
		return nil, err
	}
	m.namespaces[namespace][key] = memoryEntry{value: updated, deadline: entry.deadline}
	return updated, nil
}

func (m *MemoryDB) Delete(_ context.Context, namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.namespaces[namespace]
	if !ok {
		return errors.Errorf("namespace<%s> does not exist", namespace)
	}
	delete(bucket, key)
	return nil
}

func (m *MemoryDB) DeleteNamespace(_ context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.namespaces[namespace]; !ok {
		return errors.Errorf("could not delete namespace<%s>", namespace)
	}
	delete(m.namespaces, namespace)
	return nil
}

// bucket returns the namespace map, creating it if needed. Callers must hold the write lock.
func (m *MemoryDB) bucket(namespace string) map[string]memoryEntry {
	b, ok := m.namespaces[namespace]
	if !ok {
		b = make(map[string]memoryEntry)
		m.namespaces[namespace] = b
	}
	return b
}

func (m *MemoryDB) sweepExpired() {
	ticker := m.clk.Ticker(memorySweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweepOnce()
		}
	}
}

func (m *MemoryDB) sweepOnce() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clk.Now()
	for _, bucket := range m.namespaces {
		for key, entry := range bucket {
			if entry.expired(now) {
				delete(bucket, key)
			}
		}
	}
}
