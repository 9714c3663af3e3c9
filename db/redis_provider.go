package db

import (
	"context"
	"fmt"
	"sort"

	"github.com/mezonai/quorumcoin/logx"
	"github.com/redis/go-redis/v9"
)

// RedisProvider implements IterableProvider for Redis
type RedisProvider struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisProvider connects to the Redis server at address using logical database dbIndex
func NewRedisProvider(address string, dbIndex int) (*RedisProvider, error) {
	client := redis.NewClient(&redis.Options{
		Addr: address,
		DB:   dbIndex,
	})

	ctx := context.Background()

	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisProvider{
		client: client,
		ctx:    ctx,
	}, nil
}

func (p *RedisProvider) Get(key []byte) ([]byte, error) {
	value, err := p.client.Get(p.ctx, string(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	return value, nil
}

func (p *RedisProvider) GetBatch(keys [][]byte) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return result, nil
	}
	strKeys := make([]string, len(keys))
	for i, k := range keys {
		strKeys[i] = string(k)
	}
	values, err := p.client.MGet(p.ctx, strKeys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		if s, ok := v.(string); ok {
			result[strKeys[i]] = []byte(s)
		}
	}
	return result, nil
}

func (p *RedisProvider) Put(key, value []byte) error {
	logx.Debug("REDIS", "Put key:", string(key), " value length:", len(value))
	return p.client.Set(p.ctx, string(key), value, 0).Err()
}

func (p *RedisProvider) Delete(key []byte) error {
	return p.client.Del(p.ctx, string(key)).Err()
}

func (p *RedisProvider) Has(key []byte) (bool, error) {
	count, err := p.client.Exists(p.ctx, string(key)).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (p *RedisProvider) Close() error {
	return p.client.Close()
}

// Batch returns a MULTI/EXEC pipeline so the whole batch applies atomically
func (p *RedisProvider) Batch() DatabaseBatch {
	return &RedisBatch{
		client: p.client,
		ctx:    p.ctx,
		pipe:   p.client.TxPipeline(),
	}
}

// IteratePrefix scans keys matching prefix. SCAN has no ordering guarantee, so the keys are
// collected and sorted before the callback sees them.
func (p *RedisProvider) IteratePrefix(prefix []byte, fn func(key, value []byte) bool) error {
	pattern := string(prefix) + "*"
	var keys []string
	var cursor uint64
	for {
		page, newCursor, err := p.client.Scan(p.ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return err
		}
		keys = append(keys, page...)
		cursor = newCursor
		if cursor == 0 {
			break
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		val, err := p.client.Get(p.ctx, k).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return err
		}
		if !fn([]byte(k), val) {
			return nil
		}
	}
	return nil
}

// RedisBatch implements DatabaseBatch for Redis
type RedisBatch struct {
	client *redis.Client
	ctx    context.Context
	pipe   redis.Pipeliner
}

func (b *RedisBatch) Put(key, value []byte) {
	b.pipe.Set(b.ctx, string(key), value, 0)
}

func (b *RedisBatch) Delete(key []byte) {
	b.pipe.Del(b.ctx, string(key))
}

func (b *RedisBatch) Write() error {
	_, err := b.pipe.Exec(b.ctx)
	return err
}

func (b *RedisBatch) Reset() {
	b.pipe.Discard()
	b.pipe = b.client.TxPipeline()
}

func (b *RedisBatch) Close() error {
	b.pipe.Discard()
	return nil
}
