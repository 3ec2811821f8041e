package storage

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	goredislib "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	pong               = "PONG"
	redisScanBatchSize = 1000
	// how many times a contended compare-and-swap is retried before giving up
	redisMaxCASRetries = 64
)

// RedisDB implements ServiceStorage on redis. Expiry rides on redis' native
// key TTLs and conditional updates on WATCH transactions, so no client-side
// locking is needed.
type RedisDB struct {
	db *goredislib.Client
}

func NewRedisDB(address, password string) *RedisDB {
	client := goredislib.NewClient(&goredislib.Options{
		Addr:     address,
		Password: password,
	})
	return &RedisDB{db: client}
}

func (r *RedisDB) Type() Type {
	return Redis
}

func (r *RedisDB) URI() string {
	return r.db.Options().Addr
}

func (r *RedisDB) IsOpen() bool {
	result, err := r.db.Ping(context.Background()).Result()
	if err != nil {
		logrus.WithError(err).Error("pinging redis")
		return false
	}
	return result == pong
}

func (r *RedisDB) Close() error {
	return r.db.Close()
}

func (r *RedisDB) Write(ctx context.Context, namespace, key string, value []byte) error {
	// Zero expiration means the key has no expiration time.
	return r.db.Set(ctx, getRedisKey(namespace, key), value, 0).Err()
}

func (r *RedisDB) WriteWithExpiry(ctx context.Context, namespace, key string, value []byte, expiry time.Duration) error {
	return r.db.Set(ctx, getRedisKey(namespace, key), value, expiry).Err()
}

func (r *RedisDB) Read(ctx context.Context, namespace, key string) ([]byte, error) {
	value, err := r.db.Get(ctx, getRedisKey(namespace, key)).Bytes()
	if errors.Is(err, goredislib.Nil) {
		return nil, nil
	}
	return value, err
}

func (r *RedisDB) ReadAll(ctx context.Context, namespace string) (map[string][]byte, error) {
	keys, err := r.readAllKeys(ctx, namespace)
	if err != nil {
		return nil, errors.Wrap(err, "reading all keys")
	}
	result := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return result, nil
	}
	values, err := r.db.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "getting multiple keys")
	}
	if len(keys) != len(values) {
		return nil, errors.New("key length does not match value length")
	}
	prefix := namespace + "-"
	for i, value := range values {
		// values concurrently expired between SCAN and MGET come back nil
		s, ok := value.(string)
		if !ok {
			continue
		}
		result[strings.TrimPrefix(keys[i], prefix)] = []byte(s)
	}
	return result, nil
}

// Update runs the updater inside a WATCH transaction: if another writer
// touches the key between read and write the transaction fails and the whole
// read-validate-write cycle is retried against the new value.
func (r *RedisDB) Update(ctx context.Context, namespace, key string, updater Updater) ([]byte, error) {
	nameSpaceKey := getRedisKey(namespace, key)
	var updated []byte
	txn := func(tx *goredislib.Tx) error {
		current, err := tx.Get(ctx, nameSpaceKey).Bytes()
		if errors.Is(err, goredislib.Nil) {
			return ErrKeyNotFound
		}
		if err != nil {
			return err
		}
		if err = updater.Validate(current); err != nil {
			return err
		}
		next, err := updater.Update(current)
		if err != nil {
			return err
		}
		remaining, err := tx.PTTL(ctx, nameSpaceKey).Result()
		if err != nil {
			return err
		}
		if remaining < 0 {
			remaining = 0
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredislib.Pipeliner) error {
			pipe.Set(ctx, nameSpaceKey, next, remaining)
			return nil
		})
		if err == nil {
			updated = next
		}
		return err
	}
	for i := 0; i < redisMaxCASRetries; i++ {
		err := r.db.Watch(ctx, txn, nameSpaceKey)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, goredislib.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, errors.Errorf("update of key<%s> aborted after %d contended attempts", nameSpaceKey, redisMaxCASRetries)
}

func (r *RedisDB) Delete(ctx context.Context, namespace, key string) error {
	return r.db.Del(ctx, getRedisKey(namespace, key)).Err()
}

func (r *RedisDB) DeleteNamespace(ctx context.Context, namespace string) error {
	keys, err := r.readAllKeys(ctx, namespace)
	if err != nil {
		return errors.Wrap(err, "reading all keys")
	}
	if len(keys) == 0 {
		return nil
	}
	return r.db.Del(ctx, keys...).Err()
}

func (r *RedisDB) readAllKeys(ctx context.Context, namespace string) ([]string, error) {
	var cursor uint64
	allKeys := make([]string, 0)
	for {
		keys, nextCursor, err := r.db.Scan(ctx, cursor, namespace+"-*", redisScanBatchSize).Result()
		if err != nil {
			return nil, errors.Wrap(err, "scanning keys")
		}
		allKeys = append(allKeys, keys...)
		if nextCursor == 0 {
			break
		}
		cursor = nextCursor
	}
	return allKeys, nil
}

func getRedisKey(namespace, key string) string {
	return namespace + "-" + key
}
