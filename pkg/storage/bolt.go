package storage

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

// expiryBucket tracks expiring records across all namespaces. Keys are
// namespace#key, values are unix-nano deadlines.
const (
	expiryBucket      = "record_expiry"
	expiryKeySep      = "#"
	boltSweepInterval = time.Second
)

type BoltDB struct {
	db        *bolt.DB
	clk       clock.Clock
	path      string
	stop      chan struct{}
	closeOnce sync.Once
}

func NewBoltDB(clk clock.Clock) (*BoltDB, error) {
	return NewBoltDBWithFile(clk, DBFile)
}

func NewBoltDBWithFile(clk clock.Clock, filePath string) (*BoltDB, error) {
	db, err := bolt.Open(filePath, 0600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening bolt file: %s", filePath)
	}
	b := &BoltDB{
		db:   db,
		clk:  clk,
		path: filePath,
		stop: make(chan struct{}),
	}
	go b.sweepExpired()
	return b, nil
}

func (b *BoltDB) Type() Type {
	return Bolt
}

func (b *BoltDB) URI() string {
	return b.path
}

func (b *BoltDB) IsOpen() bool {
	if b.db == nil {
		return false
	}
	return b.db.Path() != ""
}

func (b *BoltDB) Close() error {
	b.closeOnce.Do(func() {
		close(b.stop)
	})
	return b.db.Close()
}

func (b *BoltDB) Write(_ context.Context, namespace, key string, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(namespace))
		if err != nil {
			return errors.Wrapf(err, "creating bucket<%s>", namespace)
		}
		if err = bucket.Put([]byte(key), value); err != nil {
			return err
		}
		// a plain write clears any previous deadline
		if expiries := tx.Bucket([]byte(expiryBucket)); expiries != nil {
			return expiries.Delete([]byte(expiryKey(namespace, key)))
		}
		return nil
	})
}

func (b *BoltDB) WriteWithExpiry(_ context.Context, namespace, key string, value []byte, expiry time.Duration) error {
	deadline := b.clk.Now().Add(expiry).UnixNano()
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(namespace))
		if err != nil {
			return errors.Wrapf(err, "creating bucket<%s>", namespace)
		}
		if err = bucket.Put([]byte(key), value); err != nil {
			return err
		}
		expiries, err := tx.CreateBucketIfNotExists([]byte(expiryBucket))
		if err != nil {
			return errors.Wrap(err, "creating expiry bucket")
		}
		return expiries.Put([]byte(expiryKey(namespace, key)), []byte(strconv.FormatInt(deadline, 10)))
	})
}

func (b *BoltDB) Read(_ context.Context, namespace, key string) ([]byte, error) {
	var result []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		if b.isExpired(tx, namespace, key) {
			return nil
		}
		bucket := tx.Bucket([]byte(namespace))
		if bucket == nil {
			logrus.Debugf("namespace<%s> does not exist", namespace)
			return nil
		}
		if v := bucket.Get([]byte(key)); v != nil {
			result = append([]byte(nil), v...)
		}
		return nil
	})
	return result, err
}

func (b *BoltDB) ReadAll(_ context.Context, namespace string) (map[string][]byte, error) {
	result := make(map[string][]byte)
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(namespace))
		if bucket == nil {
			logrus.Debugf("namespace<%s> does not exist", namespace)
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			if b.isExpired(tx, namespace, string(k)) {
				return nil
			}
			result[string(k)] = append([]byte(nil), v...)
			return nil
		})
	})
	return result, err
}

func (b *BoltDB) Update(_ context.Context, namespace, key string, updater Updater) ([]byte, error) {
	var updated []byte
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(namespace))
		if bucket == nil {
			return ErrKeyNotFound
		}
		if b.isExpired(tx, namespace, key) {
			return ErrKeyNotFound
		}
		current := bucket.Get([]byte(key))
		if current == nil {
			return ErrKeyNotFound
		}
		if err := updater.Validate(current); err != nil {
			return err
		}
		next, err := updater.Update(current)
		if err != nil {
			return err
		}
		if err = bucket.Put([]byte(key), next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (b *BoltDB) Delete(_ context.Context, namespace, key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(namespace))
		if bucket == nil {
			return errors.Errorf("namespace<%s> does not exist", namespace)
		}
		if err := bucket.Delete([]byte(key)); err != nil {
			return err
		}
		if expiries := tx.Bucket([]byte(expiryBucket)); expiries != nil {
			return expiries.Delete([]byte(expiryKey(namespace, key)))
		}
		return nil
	})
}

func (b *BoltDB) DeleteNamespace(_ context.Context, namespace string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(namespace)); err != nil {
			return errors.Wrapf(err, "deleting namespace<%s>", namespace)
		}
		expiries := tx.Bucket([]byte(expiryBucket))
		if expiries == nil {
			return nil
		}
		var keys [][]byte
		c := expiries.Cursor()
		prefix := []byte(namespace + expiryKeySep)
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := expiries.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// isExpired reports whether the record has a deadline in the past. Expired
// records are removed by the sweep goroutine, reads just skip them.
func (b *BoltDB) isExpired(tx *bolt.Tx, namespace, key string) bool {
	expiries := tx.Bucket([]byte(expiryBucket))
	if expiries == nil {
		return false
	}
	v := expiries.Get([]byte(expiryKey(namespace, key)))
	if v == nil {
		return false
	}
	deadline, err := strconv.ParseInt(string(v), 10, 64)
	if err != nil {
		logrus.WithError(err).Warnf("malformed expiry for<%s>", expiryKey(namespace, key))
		return false
	}
	return b.clk.Now().UnixNano() >= deadline
}

// sweepExpired deletes expired records until the store is closed.
func (b *BoltDB) sweepExpired() {
	ticker := b.clk.Ticker(boltSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			if err := b.sweepOnce(); err != nil {
				logrus.WithError(err).Error("sweeping expired records")
			}
		}
	}
}

func (b *BoltDB) sweepOnce() error {
	now := b.clk.Now().UnixNano()
	return b.db.Update(func(tx *bolt.Tx) error {
		expiries := tx.Bucket([]byte(expiryBucket))
		if expiries == nil {
			return nil
		}
		var dead [][]byte
		c := expiries.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			deadline, err := strconv.ParseInt(string(v), 10, 64)
			if err == nil && now >= deadline {
				dead = append(dead, append([]byte(nil), k...))
			}
		}
		for _, k := range dead {
			namespace, key, ok := splitExpiryKey(string(k))
			if !ok {
				continue
			}
			if bucket := tx.Bucket([]byte(namespace)); bucket != nil {
				if err := bucket.Delete([]byte(key)); err != nil {
					return err
				}
			}
			if err := expiries.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func expiryKey(namespace, key string) string {
	return namespace + expiryKeySep + key
}

func splitExpiryKey(k string) (namespace, key string, ok bool) {
	idx := strings.Index(k, expiryKeySep)
	if idx < 0 {
		return "", "", false
	}
	return k[:idx], k[idx+1:], true
}
