package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/HanTheDev/onboard-assistant/internal/metrics"
	"github.com/HanTheDev/onboard-assistant/internal/models"
)

const (
	DefaultTTL           = time.Hour
	DefaultPopularityTTL = 30 * 24 * time.Hour
	statsPopularLimit    = 10
	scanBatch            = 200
)

// hashPattern matches exactly one hex-encoded sha256 digest, so a tenant
// prefix scan cannot reach into tenants whose ids extend it.
var hashPattern = strings.Repeat("?", sha256.Size*2)

// ResponseCache memoizes answers per (normalized query, tenant) and keeps a
// per-tenant popularity ranking. Lookups, tracking and the popularity reports
// are best effort: a Redis failure reads as a miss or an empty report and
// never reaches the caller.
type ResponseCache struct {
	client        *redis.Client
	breaker       *gobreaker.CircuitBreaker
	ttl           time.Duration
	popularityTTL time.Duration
	logger        *zap.Logger
	metrics       *metrics.Collector
	now           func() time.Time
}

type Option func(*ResponseCache)

func WithTTL(d time.Duration) Option {
	return func(c *ResponseCache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

func WithPopularityTTL(d time.Duration) Option {
	return func(c *ResponseCache) {
		if d > 0 {
			c.popularityTTL = d
		}
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(c *ResponseCache) { c.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(c *ResponseCache) { c.now = now }
}

func NewRedisClient(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opt), nil
}

func NewResponseCache(client *redis.Client, logger *zap.Logger, opts ...Option) *ResponseCache {
	c := &ResponseCache{
		client:        client,
		ttl:           DefaultTTL,
		popularityTTL: DefaultPopularityTTL,
		logger:        logger,
		now:           time.Now,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-cache",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Normalize is the lossy form queries are keyed on.
func Normalize(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

func hashQuery(query, tenantID string) string {
	sum := sha256.Sum256([]byte(Normalize(query) + ":" + tenantID))
	return fmt.Sprintf("%x", sum)
}

func answerKey(tenantID, hash string) string { return "ai:chat:" + tenantID + ":" + hash }
func statsKey(tenantID, hash string) string  { return "ai:stats:" + tenantID + ":" + hash }
func popularKey(tenantID string) string      { return "ai:popular:" + tenantID }
func lastAskedKey(tenantID string) string    { return "ai:popular:" + tenantID + ":last" }

// do runs fn through the circuit breaker.
func (c *ResponseCache) do(fn func() error) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

func (c *ResponseCache) Get(ctx context.Context, query, tenantID string) (*models.CachedAnswer, bool) {
	var raw []byte
	err := c.do(func() error {
		var err error
		raw, err = c.client.Get(ctx, answerKey(tenantID, hashQuery(query, tenantID))).Bytes()
		return err
	})
	if errors.Is(err, redis.Nil) {
		c.metrics.CacheLookup("miss")
		return nil, false
	}
	if err != nil {
		c.metrics.CacheLookup("error")
		c.logger.Warn("cache lookup failed, treating as miss", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, false
	}

	var answer models.CachedAnswer
	if err := json.Unmarshal(raw, &answer); err != nil {
		c.metrics.CacheLookup("error")
		c.logger.Warn("discarding undecodable cache entry", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, false
	}
	c.metrics.CacheLookup("hit")
	return &answer, true
}

func (c *ResponseCache) Put(ctx context.Context, query, tenantID string, answer models.CachedAnswer) error {
	if answer.CachedAt.IsZero() {
		answer.CachedAt = c.now().UTC()
	}
	payload, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("encode cached answer: %w", err)
	}
	return c.do(func() error {
		return c.client.Set(ctx, answerKey(tenantID, hashQuery(query, tenantID)), payload, c.ttl).Err()
	})
}

// Track counts one occurrence of query for the tenant and refreshes its
// position in the tenant's ranking.
func (c *ResponseCache) Track(ctx context.Context, query, tenantID string) error {
	normalized := Normalize(query)
	if normalized == "" {
		return nil
	}
	key := statsKey(tenantID, hashQuery(query, tenantID))

	return c.do(func() error {
		var incr *redis.IntCmd
		_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(ctx, key)
			pipe.Expire(ctx, key, c.popularityTTL)
			return nil
		})
		if err != nil {
			return fmt.Errorf("increment query counter: %w", err)
		}

		_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZAdd(ctx, popularKey(tenantID), redis.Z{Score: float64(incr.Val()), Member: normalized})
			pipe.HSet(ctx, lastAskedKey(tenantID), normalized, c.now().Unix())
			return nil
		})
		if err != nil {
			return fmt.Errorf("update popularity ranking: %w", err)
		}
		return nil
	})
}

func (c *ResponseCache) TopN(ctx context.Context, tenantID string, n int) ([]models.PopularQuestion, error) {
	if n <= 0 {
		return []models.PopularQuestion{}, nil
	}

	var (
		ranked []redis.Z
		last   []interface{}
	)
	err := c.do(func() error {
		var err error
		ranked, err = c.client.ZRevRangeWithScores(ctx, popularKey(tenantID), 0, int64(n-1)).Result()
		if err != nil || len(ranked) == 0 {
			return err
		}
		fields := make([]string, len(ranked))
		for i, z := range ranked {
			fields[i] = fmt.Sprint(z.Member)
		}
		last, err = c.client.HMGet(ctx, lastAskedKey(tenantID), fields...).Result()
		return err
	})
	if err != nil {
		c.metrics.CacheLookup("error")
		c.logger.Warn("read popular questions failed", zap.String("tenant_id", tenantID), zap.Error(err))
		return []models.PopularQuestion{}, nil
	}

	out := make([]models.PopularQuestion, 0, len(ranked))
	for i, z := range ranked {
		q := models.PopularQuestion{
			Query:    fmt.Sprint(z.Member),
			TenantID: tenantID,
			Count:    int64(z.Score),
		}
		if i < len(last) {
			if s, ok := last[i].(string); ok {
				if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
					q.LastAsked = time.Unix(ts, 0).UTC()
				}
			}
		}
		out = append(out, q)
	}
	return out, nil
}

func (c *ResponseCache) Stats(ctx context.Context, tenantID string) (*models.CacheStats, error) {
	var (
		total int64
		keys  []string
	)
	err := c.do(func() error {
		var err error
		if total, err = c.client.ZCard(ctx, popularKey(tenantID)).Result(); err != nil {
			return err
		}
		keys, err = c.scan(ctx, answerKey(globEscape(tenantID), hashPattern))
		return err
	})
	if err != nil {
		c.metrics.CacheLookup("error")
		c.logger.Warn("read cache stats failed", zap.String("tenant_id", tenantID), zap.Error(err))
		return &models.CacheStats{PopularQuestions: []models.PopularQuestion{}}, nil
	}

	popular, _ := c.TopN(ctx, tenantID, statsPopularLimit)
	return &models.CacheStats{
		TotalQuestions:   total,
		CachedQuestions:  int64(len(keys)),
		PopularQuestions: popular,
	}, nil
}

// Clear removes the tenant's cached answers, query counters and ranking.
// Other tenants' keys are never touched, including tenants whose id extends
// this one. Clearing an empty tenant is a no-op, and so is a Redis failure.
func (c *ResponseCache) Clear(ctx context.Context, tenantID string) error {
	err := c.do(func() error {
		answers, err := c.scan(ctx, answerKey(globEscape(tenantID), hashPattern))
		if err != nil {
			return err
		}
		counters, err := c.scan(ctx, statsKey(globEscape(tenantID), hashPattern))
		if err != nil {
			return err
		}

		keys := append(answers, counters...)
		keys = append(keys, popularKey(tenantID), lastAskedKey(tenantID))
		for start := 0; start < len(keys); start += scanBatch {
			end := min(start+scanBatch, len(keys))
			if err := c.client.Del(ctx, keys[start:end]...).Err(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.metrics.CacheLookup("error")
		c.logger.Warn("clear tenant cache failed", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil
	}
	c.logger.Info("cleared tenant cache", zap.String("tenant_id", tenantID))
	return nil
}

func (c *ResponseCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *ResponseCache) Close() error {
	return c.client.Close()
}

func (c *ResponseCache) scan(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := c.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

var globReplacer = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func globEscape(s string) string {
	return globReplacer.Replace(s)
}
