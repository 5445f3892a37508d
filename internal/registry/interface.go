package registry

import (
	"context"
	"time"
)

// Device 已识别 FDM 的登记信息
type Device struct {
	FDMID       string    `json:"fdm_id"`
	Path        string    `json:"path"`
	SessionID   string    `json:"session_id"`
	ServerID    string    `json:"server_id"`
	ConnectedAt time.Time `json:"connected_at"`
	LastSeen    time.Time `json:"last_seen"`
}

// Registry 设备在线登记，支持内存和Redis两种实现
// 驱动内部的 fdm_id -> 会话映射仍是唯一权威，此处仅对外可见
type Registry interface {
	// Register 登记设备（覆盖同 ID 的旧记录）
	Register(ctx context.Context, d Device) error

	// Unregister 注销设备；仅删除属于本实例的记录
	Unregister(ctx context.Context, fdmID string) error

	// Touch 刷新设备最近可见时间
	Touch(ctx context.Context, fdmIDs []string, t time.Time) error

	// List 返回当前登记的全部设备
	List(ctx context.Context) ([]Device, error)

	// Cleanup 清理本实例登记的全部设备（用于优雅关闭）
	Cleanup(ctx context.Context) error
}
