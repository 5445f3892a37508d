package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient 连接本地测试 Redis（DB 15），不可用时跳过测试
func RedisClient(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skip("Redis not available, skipping test")
		return nil
	}

	CleanRedis(t, client)
	t.Cleanup(func() {
		CleanRedis(t, client)
		_ = client.Close()
	})
	return client
}

// CleanRedis 清理 Redis 测试数据
func CleanRedis(t *testing.T, rdb *redis.Client) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	iter := rdb.Scan(ctx, 0, "fdm:*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if err := rdb.Del(ctx, key).Err(); err != nil {
			t.Logf("Warning: failed to delete key %s: %v", key, err)
		}
	}
	if err := iter.Err(); err != nil {
		t.Logf("Warning: redis scan error: %v", err)
	}
}

// Eventually 轮询 cond 直到为 true 或超时
func Eventually(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
