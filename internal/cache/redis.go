package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/OldStager01/farm-bi/pkg/models"
)

// RedisStore keeps each entry in a hash under prefix+"entry:"+key and each
// tag as a set of entry keys under prefix+"tag:"+tag. A key is listed only
// in the sets of the tags it currently carries. Redis expiry removes
// entries one second after their TTL; Cache still checks expiry on read.
type RedisStore struct {
	client *redis.Client
	prefix string
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	PoolSize  int
	KeyPrefix string
}

func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     poolSize,
		MinIdleConns: 1,
		MaxRetries:   3,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "farmbi:cache:"
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) entryKey(key string) string { return s.prefix + "entry:" + key }
func (s *RedisStore) tagKey(tag string) string   { return s.prefix + "tag:" + tag }

func (s *RedisStore) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	fields, err := s.client.HGetAll(ctx, s.entryKey(key)).Result()
	if err != nil {
		return nil, models.Persistence("get cache entry", err)
	}
	if len(fields) == 0 {
		return nil, models.ErrNotFound
	}
	return decodeEntry(key, fields)
}

func (s *RedisStore) Put(ctx context.Context, e *models.CacheEntry) error {
	k := s.entryKey(e.Key)
	ttl := time.Duration(e.TTLSeconds)*time.Second + time.Second

	previous, err := s.tagsOf(ctx, []string{k})
	if err != nil {
		return models.Persistence("put cache entry", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, tag := range previous[0] {
			pipe.SRem(ctx, s.tagKey(tag), e.Key)
		}
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k,
			"value", e.Value,
			"created_at", e.CreatedAt.Unix(),
			"ttl_seconds", e.TTLSeconds,
			"hits", 0,
			"tags", e.Tags,
		)
		pipe.Expire(ctx, k, ttl)
		for _, tag := range models.DecodeTags(e.Tags) {
			pipe.SAdd(ctx, s.tagKey(tag), e.Key)
		}
		return nil
	})
	return models.Persistence("put cache entry", err)
}

var touchScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return redis.call('HINCRBY', KEYS[1], 'hits', 1)
end
return 0
`)

// Touch increments the hit counter without recreating an evicted entry.
func (s *RedisStore) Touch(ctx context.Context, key string) error {
	err := touchScript.Run(ctx, s.client, []string{s.entryKey(key)}).Err()
	return models.Persistence("touch cache entry", err)
}

func (s *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.drop(ctx, "delete cache entry", []string{s.entryKey(key)})
	return n > 0, err
}

func (s *RedisStore) DeletePattern(ctx context.Context, pattern string) (int64, error) {
	keys, err := s.scan(ctx, s.entryKey(escapeRedisGlob(pattern)))
	if err != nil {
		return 0, models.Persistence("delete cache pattern", err)
	}
	return s.drop(ctx, "delete cache pattern", keys)
}

func (s *RedisStore) DeleteTagged(ctx context.Context, tag string) (int64, error) {
	members, err := s.client.SMembers(ctx, s.tagKey(tag)).Result()
	if err != nil {
		return 0, models.Persistence("delete cache tag", err)
	}
	keys := make([]string, 0, len(members))
	for _, m := range members {
		keys = append(keys, s.entryKey(m))
	}
	n, err := s.drop(ctx, "delete cache tag", keys)
	if err != nil {
		return 0, err
	}
	if err := s.client.Del(ctx, s.tagKey(tag)).Err(); err != nil {
		return n, models.Persistence("delete cache tag", err)
	}
	return n, nil
}

func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	entries, err := s.all(ctx)
	if err != nil {
		return 0, models.Persistence("sweep cache", err)
	}
	var expired []string
	for k, e := range entries {
		if e.CreatedAt.Unix()+e.TTLSeconds < now.Unix() {
			expired = append(expired, k)
		}
	}
	return s.drop(ctx, "sweep cache", expired)
}

func (s *RedisStore) Clear(ctx context.Context) (int64, error) {
	entries, err := s.scan(ctx, s.prefix+"entry:*")
	if err != nil {
		return 0, models.Persistence("clear cache", err)
	}
	tags, err := s.scan(ctx, s.prefix+"tag:*")
	if err != nil {
		return 0, models.Persistence("clear cache", err)
	}
	n, err := s.del(ctx, "clear cache", entries)
	if err != nil {
		return 0, err
	}
	if _, err := s.del(ctx, "clear cache", tags); err != nil {
		return n, err
	}
	return n, nil
}

func (s *RedisStore) Stats(ctx context.Context) (models.CacheStats, error) {
	entries, err := s.all(ctx)
	if err != nil {
		return models.CacheStats{}, models.Persistence("cache stats", err)
	}
	var stats models.CacheStats
	for _, e := range entries {
		stats.Entries++
		stats.TotalHits += e.Hits
		if e.Hits > stats.MaxHits {
			stats.MaxHits = e.Hits
		}
	}
	if stats.Entries > 0 {
		stats.AvgHits = float64(stats.TotalHits) / float64(stats.Entries)
	}
	return stats, nil
}

func (s *RedisStore) scan(ctx context.Context, match string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, match, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *RedisStore) all(ctx context.Context) (map[string]*models.CacheEntry, error) {
	keys, err := s.scan(ctx, s.prefix+"entry:*")
	if err != nil {
		return nil, err
	}

	pipe := s.client.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(keys))
	for _, k := range keys {
		cmds[k] = pipe.HGetAll(ctx, k)
	}
	if len(keys) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, err
		}
	}

	entries := make(map[string]*models.CacheEntry, len(keys))
	for k, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		e, err := decodeEntry(strings.TrimPrefix(k, s.prefix+"entry:"), fields)
		if err != nil {
			return nil, err
		}
		entries[k] = e
	}
	return entries, nil
}

func (s *RedisStore) del(ctx context.Context, op string, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, models.Persistence(op, err)
	}
	return n, nil
}

// drop deletes entry hashes and unlists them from the tag sets they carry.
func (s *RedisStore) drop(ctx context.Context, op string, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	tags, err := s.tagsOf(ctx, keys)
	if err != nil {
		return 0, models.Persistence(op, err)
	}

	var deleted *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, keys...)
		for i, k := range keys {
			member := strings.TrimPrefix(k, s.prefix+"entry:")
			for _, tag := range tags[i] {
				pipe.SRem(ctx, s.tagKey(tag), member)
			}
		}
		return nil
	})
	if err != nil {
		return 0, models.Persistence(op, err)
	}
	return deleted.Val(), nil
}

// tagsOf reads the tags stored on each entry hash. Missing entries have none.
func (s *RedisStore) tagsOf(ctx context.Context, keys []string) ([][]string, error) {
	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.HGet(ctx, k, "tags")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	tags := make([][]string, len(keys))
	for i, cmd := range cmds {
		tags[i] = models.DecodeTags(cmd.Val())
	}
	return tags, nil
}

func decodeEntry(key string, fields map[string]string) (*models.CacheEntry, error) {
	created, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("cache entry %s: bad created_at: %w", key, err)
	}
	ttl, err := strconv.ParseInt(fields["ttl_seconds"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("cache entry %s: bad ttl_seconds: %w", key, err)
	}
	hits, _ := strconv.ParseInt(fields["hits"], 10, 64)

	return &models.CacheEntry{
		Key:        key,
		Value:      fields["value"],
		CreatedAt:  models.NewUnixTime(time.Unix(created, 0)),
		TTLSeconds: ttl,
		Hits:       hits,
		Tags:       fields["tags"],
	}, nil
}

// escapeRedisGlob keeps * and ? as wildcards and makes the rest literal.
func escapeRedisGlob(pattern string) string {
	r := strings.NewReplacer(`\`, `\\`, `[`, `\[`, `]`, `\]`)
	return r.Replace(pattern)
}
