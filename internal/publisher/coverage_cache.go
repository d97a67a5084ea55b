package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"vitals-compare/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrCacheMiss 表示缓存不存在
var ErrCacheMiss = errors.New("cache miss")

// KVStore 抽象的 KV 存储（用于在单元测试中替换 Redis）
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// RedisKVStore 基于 go-redis 的 KV 实现
type RedisKVStore struct {
	client *redis.Client
}

func NewRedisKVStore(client *redis.Client) *RedisKVStore {
	return &RedisKVStore{client: client}
}

func (r *RedisKVStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrCacheMiss
		}
		return "", err
	}
	return val, nil
}

func (r *RedisKVStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// CachedCoverage 缓存中的单个来源覆盖率
type CachedCoverage struct {
	RunID         uuid.UUID         `json:"run_id"`
	Session       string            `json:"session"`
	Source        models.SourceKind `json:"source"`
	Label         string            `json:"label"`
	Coverage      models.Coverage   `json:"coverage"`
	CoverageRatio float64           `json:"coverage_ratio"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// CoverageCache 按 (session, label) 缓存最近一次的覆盖率
type CoverageCache struct {
	kv  KVStore
	ttl time.Duration
}

// NewCoverageCache 创建覆盖率缓存，ttl <= 0 表示不过期
func NewCoverageCache(kv KVStore, ttl time.Duration) *CoverageCache {
	return &CoverageCache{kv: kv, ttl: ttl}
}

// CoverageKey 缓存 key: vitals-compare:<session>:<label>:coverage
// label 默认为来源名；同一来源的多个输入各自一个 key
func CoverageKey(session, label string) string {
	return fmt.Sprintf("vitals-compare:%s:%s:coverage", session, label)
}

func (c *CoverageCache) Name() string {
	return "coverage-cache"
}

// Notify 写入汇总中每个来源的覆盖率
func (c *CoverageCache) Notify(ctx context.Context, summary *models.RunSummary) error {
	for _, src := range summary.Sources {
		entry := CachedCoverage{
			RunID:         summary.RunID,
			Session:       summary.Session,
			Source:        src.Kind,
			Label:         src.Label,
			Coverage:      src.Coverage,
			CoverageRatio: src.CoverageRatio,
			UpdatedAt:     summary.FinishedAt,
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal coverage: %w", err)
		}
		key := CoverageKey(summary.Session, src.Label)
		if err := c.kv.Set(ctx, key, string(data), c.ttl); err != nil {
			return fmt.Errorf("failed to set cache %s: %w", key, err)
		}
	}
	return nil
}

// Get 读取某个输入最近一次的覆盖率
func (c *CoverageCache) Get(ctx context.Context, session, label string) (*CachedCoverage, error) {
	raw, err := c.kv.Get(ctx, CoverageKey(session, label))
	if err != nil {
		return nil, err
	}
	var entry CachedCoverage
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal coverage: %w", err)
	}
	return &entry, nil
}
