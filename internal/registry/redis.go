package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis Key设计
const (
	// fdm:device:{fdmID} -> Device JSON
	keyDevicePrefix = "fdm:device:"

	// fdm:server:{serverID}:devices -> Set[fdmID]
	keyServerPrefix = "fdm:server:"
)

// RedisRegistry Redis版本的设备登记，多台主机共享可见性
type RedisRegistry struct {
	client   *redis.Client
	serverID string
	ttl      time.Duration
}

// NewRedisRegistry 创建Redis登记
func NewRedisRegistry(client *redis.Client, serverID string, ttl time.Duration) *RedisRegistry {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if serverID == "" {
		serverID = uuid.New().String()
	}
	return &RedisRegistry{client: client, serverID: serverID, ttl: ttl}
}

// ServerID 当前实例ID
func (r *RedisRegistry) ServerID() string { return r.serverID }

func (r *RedisRegistry) Register(ctx context.Context, d Device) error {
	d.ServerID = r.serverID
	if d.LastSeen.IsZero() {
		d.LastSeen = d.ConnectedAt
	}
	if err := r.setDevice(ctx, &d); err != nil {
		return err
	}
	return r.client.SAdd(ctx, r.serverKey(), d.FDMID).Err()
}

func (r *RedisRegistry) Unregister(ctx context.Context, fdmID string) error {
	d, err := r.getDevice(ctx, fdmID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return r.client.SRem(ctx, r.serverKey(), fdmID).Err()
		}
		return err
	}
	// 设备已被其他实例接管时不删除
	if d.ServerID == r.serverID {
		if err := r.client.Del(ctx, keyDevicePrefix+fdmID).Err(); err != nil {
			return err
		}
	}
	return r.client.SRem(ctx, r.serverKey(), fdmID).Err()
}

func (r *RedisRegistry) Touch(ctx context.Context, fdmIDs []string, t time.Time) error {
	for _, id := range fdmIDs {
		d, err := r.getDevice(ctx, id)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return err
		}
		if d.ServerID != r.serverID {
			continue
		}
		d.LastSeen = t
		if err := r.setDevice(ctx, d); err != nil {
			return err
		}
	}
	if len(fdmIDs) > 0 {
		return r.client.Expire(ctx, r.serverKey(), r.ttl*2).Err()
	}
	return nil
}

func (r *RedisRegistry) List(ctx context.Context) ([]Device, error) {
	var out []Device
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, keyDevicePrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan devices: %w", err)
		}
		for _, key := range keys {
			d, err := r.getDevice(ctx, key[len(keyDevicePrefix):])
			if err != nil {
				// 扫描与读取之间过期
				continue
			}
			out = append(out, *d)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FDMID < out[j].FDMID })
	return out, nil
}

func (r *RedisRegistry) Cleanup(ctx context.Context) error {
	ids, err := r.client.SMembers(ctx, r.serverKey()).Result()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := r.Unregister(ctx, id); err != nil {
			return err
		}
	}
	return r.client.Del(ctx, r.serverKey()).Err()
}

// --- 辅助方法 ---

func (r *RedisRegistry) getDevice(ctx context.Context, fdmID string) (*Device, error) {
	val, err := r.client.Get(ctx, keyDevicePrefix+fdmID).Result()
	if err != nil {
		return nil, err
	}
	var d Device
	if err := json.Unmarshal([]byte(val), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *RedisRegistry) setDevice(ctx context.Context, d *Device) error {
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, keyDevicePrefix+d.FDMID, b, r.ttl).Err()
}

func (r *RedisRegistry) serverKey() string {
	return fmt.Sprintf("%s%s:devices", keyServerPrefix, r.serverID)
}
