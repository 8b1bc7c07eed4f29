package memory

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/scottdavis/metatool/pkg/errors"
)

// RedisStore implements Store using Redis as the backend. All keys are
// namespaced under a prefix so Clear never touches foreign data.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a new Redis-backed store and verifies the connection.
func NewRedisStore(addr, password string, db int, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.WithFields(
			errors.Wrap(err, errors.Unknown, "failed to connect to Redis"),
			errors.Fields{"addr": addr},
		)
	}

	if prefix == "" {
		prefix = "metatool:"
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (r *RedisStore) Store(ctx context.Context, key string, value any, opts ...StoreOption) error {
	options := &StoreOptions{}
	for _, opt := range opts {
		opt(options)
	}

	data, err := encode(key, value)
	if err != nil {
		return err
	}

	if err := r.client.Set(ctx, r.prefix+key, data, options.TTL).Err(); err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.Unknown, "failed to store value in Redis"),
			errors.Fields{"key": key, "ttl": options.TTL},
		)
	}
	return nil
}

func (r *RedisStore) Retrieve(ctx context.Context, key string, dst any) error {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err == redis.Nil {
		return notFound(key)
	}
	if err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.Unknown, "failed to retrieve value from Redis"),
			errors.Fields{"key": key},
		)
	}
	return decode(key, data, dst)
}

func (r *RedisStore) List(ctx context.Context) ([]string, error) {
	keys := []string{}
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[len(r.prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "failed to list keys from Redis")
	}
	return keys, nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return errors.WithFields(
				errors.Wrap(err, errors.Unknown, "failed to delete key from Redis"),
				errors.Fields{"key": iter.Val()},
			)
		}
	}
	if err := iter.Err(); err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to clear Redis store")
	}
	return nil
}

// CleanExpired is a no-op: Redis expires keys itself.
func (r *RedisStore) CleanExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

func (r *RedisStore) Close() error {
	if err := r.client.Close(); err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to close Redis connection")
	}
	return nil
}
