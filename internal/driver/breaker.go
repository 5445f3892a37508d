package driver

import (
	"sync"
	"time"
)

// State 探测熔断器状态
type State int

const (
	StateClosed   State = iota // 正常探测
	StateOpen                  // 冷却中，跳过该串口
	StateHalfOpen              // 冷却结束，允许一次试探
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// probeBreaker 单个串口路径的识别熔断器
// 连续识别失败达到阈值后熔断，冷却期内扫描跳过该路径；
// 半开状态下一次失败立即重新熔断，一次成功恢复正常。
type probeBreaker struct {
	state    State
	failures int
	openedAt time.Time
	trips    int64
}

// BreakerStats 熔断器统计信息
type BreakerStats struct {
	Path     string `json:"path"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
	Trips    int64  `json:"trips"`
}

// probeGuard 按路径管理熔断器
type probeGuard struct {
	mu        sync.Mutex
	threshold int           // 连续失败阈值，0 表示不熔断
	cooldown  time.Duration // Open → HalfOpen
	breakers  map[string]*probeBreaker
	now       func() time.Time
}

func newProbeGuard(threshold int, cooldown time.Duration) *probeGuard {
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	return &probeGuard{
		threshold: threshold,
		cooldown:  cooldown,
		breakers:  make(map[string]*probeBreaker),
		now:       time.Now,
	}
}

// Allow 本轮扫描是否探测该路径
func (g *probeGuard) Allow(path string) bool {
	if g.threshold <= 0 {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.breakers[path]
	if !ok {
		return true
	}
	switch b.state {
	case StateOpen:
		if g.now().Sub(b.openedAt) >= g.cooldown {
			b.state = StateHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// Success 识别成功，清除该路径的失败记录
func (g *probeGuard) Success(path string) {
	g.mu.Lock()
	delete(g.breakers, path)
	g.mu.Unlock()
}

// Failure 记录一次识别失败，返回是否因此熔断
func (g *probeGuard) Failure(path string) bool {
	if g.threshold <= 0 {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.breakers[path]
	if !ok {
		b = &probeBreaker{state: StateClosed}
		g.breakers[path] = b
	}
	b.failures++
	if b.state == StateHalfOpen || b.failures >= g.threshold {
		b.state = StateOpen
		b.openedAt = g.now()
		b.trips++
		return true
	}
	return false
}

// State 返回路径的当前状态
func (g *probeGuard) State(path string) State {
	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok := g.breakers[path]; ok {
		return b.state
	}
	return StateClosed
}

// Stats 返回所有有失败记录的路径
func (g *probeGuard) Stats() []BreakerStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]BreakerStats, 0, len(g.breakers))
	for path, b := range g.breakers {
		out = append(out, BreakerStats{Path: path, State: b.state.String(), Failures: b.failures, Trips: b.trips})
	}
	return out
}
