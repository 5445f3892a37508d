package driver

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// handshakeLimiter 基于Token Bucket的握手节流器
// 一轮扫描中发现大量新串口时，平滑打开与识别的节奏
type handshakeLimiter struct {
	limiter    *rate.Limiter
	ratePerSec int
	burst      int
	waited     atomic.Int64
}

// newHandshakeLimiter ratePerSec<=0 表示不限速
func newHandshakeLimiter(ratePerSec int, burst int) *handshakeLimiter {
	if ratePerSec <= 0 {
		return &handshakeLimiter{}
	}
	if burst <= 0 {
		burst = ratePerSec * 2 // 默认突发为稳定速率的2倍
	}
	return &handshakeLimiter{
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), burst),
		ratePerSec: ratePerSec,
		burst:      burst,
	}
}

// Wait 等待直到允许下一次握手
func (l *handshakeLimiter) Wait(ctx context.Context) error {
	if l.limiter == nil {
		return ctx.Err()
	}
	if !l.limiter.Allow() {
		l.waited.Add(1)
		return l.limiter.Wait(ctx)
	}
	return nil
}

// LimiterStats 握手节流统计
type LimiterStats struct {
	RatePerSecond int   `json:"rate_per_second"`
	Burst         int   `json:"burst"`
	WaitedTotal   int64 `json:"waited_total"`
}

func (l *handshakeLimiter) Stats() LimiterStats {
	return LimiterStats{RatePerSecond: l.ratePerSec, Burst: l.burst, WaitedTotal: l.waited.Load()}
}
