package aicore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitStatus 限流检查结果
type RateLimitStatus struct {
	Allowed           bool
	Remaining         int
	RetryAfterSeconds int
}

// counterStore 窗口计数存储
// Incr 必须是原子自增，先读后写在并发下会放过超额请求
type counterStore interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RateLimiter 固定窗口限流器，按 (principal, feature) 计数
type RateLimiter struct {
	store counterStore
}

// NewRateLimiter 创建限流器
func NewRateLimiter(store counterStore) *RateLimiter {
	return &RateLimiter{store: store}
}

// Check 限流检查，计入本次请求
// 窗口边界 = floor(now / window) * window，跨窗口后计数自然从新 key 重新开始
func (r *RateLimiter) Check(ctx context.Context, principalID, featureKey string, cfg RateLimitConfig, now time.Time) (*RateLimitStatus, error) {
	window := int64(cfg.WindowSeconds)
	windowStart := now.Unix() / window * window
	key := fmt.Sprintf("ai:rl:%s:%s:%d", principalID, featureKey, windowStart)

	// TTL 给一个窗口的余量，窗口结束后 key 自动清理
	count, err := r.store.Incr(ctx, key, time.Duration(2*window)*time.Second)
	if err != nil {
		return nil, fmt.Errorf("限流计数失败: %w", err)
	}

	remaining := cfg.MaxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	status := &RateLimitStatus{
		Allowed:   count <= int64(cfg.MaxRequests),
		Remaining: remaining,
	}

	if !status.Allowed {
		windowEnd := windowStart + window
		retryAfter := windowEnd - now.Unix()
		if retryAfter <= 0 {
			retryAfter = 1
		}
		status.RetryAfterSeconds = int(retryAfter)
	}
	return status, nil
}

// redisCounterStore 基于 Redis INCR 的计数存储
type redisCounterStore struct {
	client redis.UniversalClient
}

// NewRedisCounterStore 创建 Redis 计数存储
func NewRedisCounterStore(client redis.UniversalClient) counterStore {
	return &redisCounterStore{client: client}
}

func (s *redisCounterStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// memoryCounterStore 进程内计数存储，测试和单机部署用
type memoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]int64
	expires  map[string]time.Time
}

// NewMemoryCounterStore 创建进程内计数存储
func NewMemoryCounterStore() counterStore {
	return &memoryCounterStore{
		counters: make(map[string]int64),
		expires:  make(map[string]time.Time),
	}
}

func (s *memoryCounterStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if exp, ok := s.expires[key]; ok && now.After(exp) {
		delete(s.counters, key)
		delete(s.expires, key)
	}
	s.counters[key]++
	s.expires[key] = now.Add(ttl)
	return s.counters[key], nil
}
