package infra

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tnqbao/gau-property-media/config"
	"github.com/tnqbao/gau-property-media/entity"
)

// RedisClient is the transient store for raw uploads awaiting transcoding.
// Keys live under the temp prefix and every write refreshes the TTL.
type RedisClient struct {
	Client *redis.Client
	prefix string
	ttl    time.Duration
}

func InitRedisClient(cfg *config.EnvConfig) *RedisClient {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.RedisHost + ":" + cfg.Redis.RedisPort,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.Database,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Redis connection failed: %v", err)
	}

	log.Println("Connected to Redis:", cfg.Redis.RedisPort+" on "+cfg.Redis.RedisHost)

	return NewRedisClient(client, cfg.Image.TempDir, cfg.Redis.StagingTTL)
}

func NewRedisClient(client *redis.Client, prefix string, ttl time.Duration) *RedisClient {
	return &RedisClient{Client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisClient) key(k string) string {
	return r.prefix + k
}

func (r *RedisClient) Put(ctx context.Context, key string, data []byte) error {
	if err := r.Client.Set(ctx, r.key(key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to stage %s: %w", key, err)
	}
	return nil
}

// PutBatch stores every file of a batch in one hash, written atomically with its expiry.
func (r *RedisClient) PutBatch(ctx context.Context, batchKey string, files map[string][]byte) error {
	if len(files) == 0 {
		return nil
	}

	values := make(map[string]interface{}, len(files))
	for name, data := range files {
		values[name] = data
	}

	pipe := r.Client.TxPipeline()
	pipe.HSet(ctx, r.key(batchKey), values)
	pipe.Expire(ctx, r.key(batchKey), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to stage batch %s: %w", batchKey, err)
	}
	return nil
}

func (r *RedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.Client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", entity.ErrStagingKeyNotFound, key)
		}
		return nil, err
	}
	return data, nil
}

func (r *RedisClient) GetBatch(ctx context.Context, batchKey string) (map[string][]byte, error) {
	values, err := r.Client.HGetAll(ctx, r.key(batchKey)).Result()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: %s", entity.ErrStagingKeyNotFound, batchKey)
	}

	files := make(map[string][]byte, len(values))
	for name, data := range values {
		files[name] = []byte(data)
	}
	return files, nil
}

func (r *RedisClient) GetFromBatch(ctx context.Context, batchKey, filename string) ([]byte, error) {
	data, err := r.Client.HGet(ctx, r.key(batchKey), filename).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s/%s", entity.ErrStagingKeyNotFound, batchKey, filename)
		}
		return nil, err
	}
	return data, nil
}

func (r *RedisClient) Delete(ctx context.Context, key string) error {
	return r.Client.Del(ctx, r.key(key)).Err()
}

// DeleteKeyInBatch removes one file; the hash disappears with its last field.
func (r *RedisClient) DeleteKeyInBatch(ctx context.Context, batchKey, filename string) error {
	return r.Client.HDel(ctx, r.key(batchKey), filename).Err()
}

func (r *RedisClient) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}
