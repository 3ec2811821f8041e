package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

type Type string

const (
	Bolt   Type = "bolt"
	Redis  Type = "redis"
	Memory Type = "memory"

	// DBFile is the default bolt database file
	DBFile = "vc-exchange.db"
)

var (
	// ErrKeyNotFound is returned by Update when no record exists for the key,
	// or when the record has expired. Callers cannot distinguish the two.
	ErrKeyNotFound = errors.New("key not found")

	// ErrUpdateConditionFailed is returned by Update when the stored value did
	// not satisfy the updater's condition. The record is left untouched.
	ErrUpdateConditionFailed = errors.New("update condition failed")
)

// Updater encapsulates a conditional read-modify-write. Validate is the
// compare step and Update the swap step; drivers guarantee no concurrent
// writer can interleave between them.
type Updater interface {
	// Validate checks the current value. Returning an error aborts the update
	// without writing; return ErrUpdateConditionFailed (or a wrap of it) to
	// signal a failed condition rather than a storage fault.
	Validate(v []byte) error
	// Update produces the new value to be written.
	Update(v []byte) ([]byte, error)
}

// ServiceStorage describes the api for storage independent of DB providers.
//
// Records written with WriteWithExpiry become unreadable once their expiry
// passes and are eventually deleted by the driver; the sweep is a driver
// concern, callers never poll.
type ServiceStorage interface {
	Type() Type
	URI() string
	IsOpen() bool
	Write(ctx context.Context, namespace, key string, value []byte) error
	WriteWithExpiry(ctx context.Context, namespace, key string, value []byte, expiry time.Duration) error
	Read(ctx context.Context, namespace, key string) ([]byte, error)
	ReadAll(ctx context.Context, namespace string) (map[string][]byte, error)
	// Update applies the updater atomically. Returns ErrKeyNotFound when the
	// key is missing or expired, and the updater's error when validation fails.
	Update(ctx context.Context, namespace, key string, updater Updater) ([]byte, error)
	Delete(ctx context.Context, namespace, key string) error
	DeleteNamespace(ctx context.Context, namespace string) error
	Close() error
}

// AvailableStorage returns the storage providers this build supports.
func AvailableStorage() []Type {
	return []Type{Bolt, Redis, Memory}
}

// IsStorageAvailable determines whether a given storage provider is available for instantiation.
func IsStorageAvailable(storage Type) bool {
	for _, s := range AvailableStorage() {
		if storage == s {
			return true
		}
	}
	return false
}
