package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Раскладка ключей:
//
//	onboarder:cache:entry:{domain}:{type} — HASH {content, cached_at}
//	onboarder:cache:domain:{domain}       — ZSET type → cached_at (unix ms)
//	onboarder:cache:index                 — ZSET "{domain}|{type}" → cached_at
const (
	keyPrefix = "onboarder:cache:"
	indexKey  = keyPrefix + "index"
)

// RedisStore — Store поверх Redis.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore создаёт RedisStore поверх готового клиента.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisClient создаёт клиента по URL вида redis://host:6379/0 и проверяет соединение.
func NewRedisClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func entryKey(domain, contentType string) string {
	return keyPrefix + "entry:" + domain + ":" + contentType
}

func domainKey(domain string) string {
	return keyPrefix + "domain:" + domain
}

func indexMember(domain, contentType string) string {
	return domain + "|" + contentType
}

// Latest возвращает самый свежий артефакт домена.
func (s *RedisStore) Latest(ctx context.Context, domain string) (*Entry, error) {
	top, err := s.client.ZRevRangeWithScores(ctx, domainKey(domain), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("read domain index: %w", err)
	}
	if len(top) == 0 {
		return nil, ErrNotFound
	}
	contentType, _ := top[0].Member.(string)
	return s.Get(ctx, domain, contentType)
}

// Get возвращает артефакт конкретного типа.
func (s *RedisStore) Get(ctx context.Context, domain, contentType string) (*Entry, error) {
	fields, err := s.client.HGetAll(ctx, entryKey(domain, contentType)).Result()
	if err != nil {
		return nil, fmt.Errorf("read cache entry: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	ms, err := strconv.ParseInt(fields["cached_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse cached_at: %w", err)
	}
	return &Entry{
		Domain:      domain,
		ContentType: contentType,
		Content:     fields["content"],
		CachedAt:    time.UnixMilli(ms).UTC(),
	}, nil
}

// Put сохраняет артефакт и обновляет индексы в одной транзакции.
func (s *RedisStore) Put(ctx context.Context, entry Entry) error {
	if entry.Domain == "" {
		return ErrEmptyDomain
	}
	score := float64(entry.CachedAt.UnixMilli())

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, entryKey(entry.Domain, entry.ContentType), map[string]any{
			"content":   entry.Content,
			"cached_at": strconv.FormatInt(entry.CachedAt.UnixMilli(), 10),
		})
		pipe.ZAdd(ctx, domainKey(entry.Domain), redis.Z{Score: score, Member: entry.ContentType})
		pipe.ZAdd(ctx, indexKey, redis.Z{Score: score, Member: indexMember(entry.Domain, entry.ContentType)})
		return nil
	})
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// Purge удаляет артефакты старше olderThan.
func (s *RedisStore) Purge(ctx context.Context, olderThan time.Time) (int, error) {
	members, err := s.client.ZRangeByScore(ctx, indexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(olderThan.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("read cache index: %w", err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, m := range members {
			domain, contentType, ok := strings.Cut(m, "|")
			if !ok {
				pipe.ZRem(ctx, indexKey, m)
				continue
			}
			pipe.Del(ctx, entryKey(domain, contentType))
			pipe.ZRem(ctx, domainKey(domain), contentType)
			pipe.ZRem(ctx, indexKey, m)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("purge cache entries: %w", err)
	}
	return len(members), nil
}
