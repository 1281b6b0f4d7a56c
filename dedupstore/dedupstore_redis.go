package dedupstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"github.com/e-dreyer/discussbot/post"

	"github.com/redis/go-redis/v9"
)

// number of keys requested per SCAN round-trip
var redisScanCount int64 = 200

type RedisStore struct {
	Client *redis.Client
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	if _, err := rdb.Ping(context.TODO()).Result(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStore{Client: rdb}, nil
}

func (s *RedisStore) Exists(ctx context.Context, ns Namespace, key string) (bool, error) {
	if err := checkNamespace(ns); err != nil {
		return false, err
	}
	n, err := s.Client.Exists(ctx, backendKey(ns, key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) Get(ctx context.Context, ns Namespace, key string) (*post.Post, error) {
	if err := checkNamespace(ns); err != nil {
		return nil, err
	}
	b, err := s.Client.Get(ctx, backendKey(ns, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	var p post.Post
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("decoding record %s: %w", backendKey(ns, key), err)
	}
	return &p, nil
}

func (s *RedisStore) Set(ctx context.Context, ns Namespace, key string, p *post.Post) error {
	if err := checkNamespace(ns); err != nil {
		return err
	}
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	// no expiration: confirmed records are the dedup history
	return s.Client.Set(ctx, backendKey(ns, key), b, 0).Err()
}

func (s *RedisStore) Delete(ctx context.Context, ns Namespace, key string) error {
	if err := checkNamespace(ns); err != nil {
		return err
	}
	return s.Client.Del(ctx, backendKey(ns, key)).Err()
}

// Scan walks the keyspace with SCAN and a namespace MATCH pattern. SCAN may
// return a key more than once during a pass; duplicates are suppressed.
func (s *RedisStore) Scan(ctx context.Context, ns Namespace) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := checkNamespace(ns); err != nil {
			yield("", err)
			return
		}
		seen := make(map[string]bool)
		it := s.Client.Scan(ctx, 0, string(ns)+":*", redisScanCount).Iterator()
		for it.Next(ctx) {
			kns, key, err := parseBackendKey(it.Val())
			if err != nil || kns != ns || seen[key] {
				continue
			}
			seen[key] = true
			if !yield(key, nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield("", err)
		}
	}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.Client.Close()
}
