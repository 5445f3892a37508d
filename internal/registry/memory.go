package registry

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory 进程内登记实现
type Memory struct {
	mu      sync.RWMutex
	devices map[string]Device
}

// NewMemory 创建内存登记
func NewMemory() *Memory {
	return &Memory{devices: make(map[string]Device)}
}

func (m *Memory) Register(_ context.Context, d Device) error {
	if d.LastSeen.IsZero() {
		d.LastSeen = d.ConnectedAt
	}
	m.mu.Lock()
	m.devices[d.FDMID] = d
	m.mu.Unlock()
	return nil
}

func (m *Memory) Unregister(_ context.Context, fdmID string) error {
	m.mu.Lock()
	delete(m.devices, fdmID)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Touch(_ context.Context, fdmIDs []string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range fdmIDs {
		if d, ok := m.devices[id]; ok {
			d.LastSeen = t
			m.devices[id] = d
		}
	}
	return nil
}

func (m *Memory) List(_ context.Context) ([]Device, error) {
	m.mu.RLock()
	out := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].FDMID < out[j].FDMID })
	return out, nil
}

func (m *Memory) Cleanup(_ context.Context) error {
	m.mu.Lock()
	m.devices = make(map[string]Device)
	m.mu.Unlock()
	return nil
}
