package queries

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/OldStager01/farm-bi/pkg/database"
	"github.com/OldStager01/farm-bi/pkg/models"
)

// CacheEntryRepository is the SQL backend of the analytics cache.
type CacheEntryRepository struct {
	db *database.DB
}

func NewCacheEntryRepository(db *database.DB) *CacheEntryRepository {
	return &CacheEntryRepository{db: db}
}

func (r *CacheEntryRepository) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	var e models.CacheEntry
	err := r.db.GetContext(ctx, &e, r.db.Rebind(`
		SELECT cache_key, value_json, created_at, ttl_seconds, hits, tags
		FROM analytics_cache
		WHERE cache_key = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, models.Persistence("get cache entry", err)
	}
	return &e, nil
}

// Put stores or replaces an entry; replacing resets its hit counter.
func (r *CacheEntryRepository) Put(ctx context.Context, e *models.CacheEntry) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO analytics_cache (cache_key, value_json, created_at, ttl_seconds, hits, tags)
		VALUES (:cache_key, :value_json, :created_at, :ttl_seconds, 0, :tags)
		ON CONFLICT (cache_key) DO UPDATE SET
			value_json = excluded.value_json,
			created_at = excluded.created_at,
			ttl_seconds = excluded.ttl_seconds,
			hits = 0,
			tags = excluded.tags`, e)
	return models.Persistence("put cache entry", err)
}

func (r *CacheEntryRepository) Touch(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE analytics_cache SET hits = hits + 1 WHERE cache_key = ?`), key)
	return models.Persistence("touch cache entry", err)
}

func (r *CacheEntryRepository) Delete(ctx context.Context, key string) (bool, error) {
	n, err := r.exec(ctx, "delete cache entry", `DELETE FROM analytics_cache WHERE cache_key = ?`, key)
	return n > 0, err
}

// DeletePattern removes entries whose key matches a glob where * matches any
// run of characters and ? a single one.
func (r *CacheEntryRepository) DeletePattern(ctx context.Context, pattern string) (int64, error) {
	return r.exec(ctx, "delete cache pattern",
		`DELETE FROM analytics_cache WHERE cache_key LIKE ? ESCAPE '\'`, globToLike(pattern))
}

func (r *CacheEntryRepository) DeleteTagged(ctx context.Context, tag string) (int64, error) {
	return r.exec(ctx, "delete cache tag",
		`DELETE FROM analytics_cache WHERE tags LIKE ? ESCAPE '\'`, "%,"+escapeLike(tag)+",%")
}

// DeleteExpired removes entries older than their TTL at now.
func (r *CacheEntryRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.exec(ctx, "sweep cache",
		`DELETE FROM analytics_cache WHERE created_at + ttl_seconds < ?`, now.Unix())
}

func (r *CacheEntryRepository) Clear(ctx context.Context) (int64, error) {
	return r.exec(ctx, "clear cache", `DELETE FROM analytics_cache`)
}

func (r *CacheEntryRepository) Stats(ctx context.Context) (models.CacheStats, error) {
	var stats models.CacheStats
	err := r.db.GetContext(ctx, &stats, `
		SELECT
			COUNT(*) AS entries,
			COALESCE(SUM(hits), 0) AS total_hits,
			COALESCE(AVG(hits), 0) AS avg_hits,
			COALESCE(MAX(hits), 0) AS max_hits
		FROM analytics_cache`)
	if err != nil {
		return models.CacheStats{}, models.Persistence("cache stats", err)
	}
	return stats, nil
}

func (r *CacheEntryRepository) exec(ctx context.Context, op, query string, args ...interface{}) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, models.Persistence(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, models.Persistence(op, err)
	}
	return n, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func globToLike(pattern string) string {
	var b strings.Builder
	for _, ch := range pattern {
		switch ch {
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteRune(ch)
		default:
			b.WriteRune(ch)
		}
	}
	return b.String()
}
