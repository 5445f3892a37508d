package portsession

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/fdm-driver/internal/metrics"
	"github.com/taoyao-code/fdm-driver/internal/protocol/fdm"
	"github.com/taoyao-code/fdm-driver/internal/serialport"
)

var (
	// ErrTimeout 重试耗尽仍未收到应答
	ErrTimeout = errors.New("fdm response timeout")
	// ErrDisconnected 串口断开或会话已关闭
	ErrDisconnected = errors.New("fdm port disconnected")
	// ErrDuplicatePending 同一关联键已有在途请求
	ErrDuplicatePending = errors.New("duplicate pending request")
	// ErrTooManyRetries 重试计数超出 1 位数字
	ErrTooManyRetries = errors.New("max retries exceeds 9")
	// ErrInvalidSequence 序号不在 0..99
	ErrInvalidSequence = errors.New("sequence out of range")
)

const readBufSize = 256

// Config 会话可选依赖
type Config struct {
	Logger  *zap.Logger
	Metrics *metrics.DriverMetrics
	Status  *fdm.StatusTable
	// Timeout 单次等待应答的时长，默认 T2
	Timeout time.Duration
}

// pendingRequest 一次性完成槽：发送一次、接收一次，断开时关闭
type pendingRequest struct {
	ch chan string
}

// Session 单个串口会话：持有串口句柄、帧读取器与在途请求表
type Session struct {
	id      string
	path    string
	port    serialport.Port
	reader  *fdm.FrameReader
	log     *zap.Logger
	msgLog  *zap.Logger
	metrics *metrics.DriverMetrics
	status  *fdm.StatusTable
	timeout time.Duration
	opened  time.Time

	writeMu sync.Mutex // 串行化串口写入，避免并发帧交错

	mu      sync.Mutex
	pending map[string]*pendingRequest
	seq     map[byte]uint8
	onStop  []func()
	closed  bool
	cause   error

	done chan struct{}
}

// New 创建会话并立即启动读协程
func New(path string, port serialport.Port, cfg Config) *Session {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = fdm.T2
	}
	status := cfg.Status
	if status == nil {
		status = fdm.DefaultStatusTable()
	}
	s := &Session{
		id:      uuid.New().String(),
		path:    path,
		port:    port,
		log:     log.With(zap.String("port", path)),
		msgLog:  log.Named("fdm_message").With(zap.String("port", path)),
		metrics: cfg.Metrics,
		status:  status,
		timeout: timeout,
		opened:  time.Now(),
		pending: make(map[string]*pendingRequest),
		seq:     make(map[byte]uint8),
		done:    make(chan struct{}),
	}
	s.reader = fdm.NewFrameReader(s.writeControl, s.complete, s.log)
	if s.metrics != nil {
		s.reader.SetMetricsCallbacks(
			func(b byte) { s.metrics.ControlReceived.WithLabelValues(metrics.ControlLabel(b)).Inc() },
			func(ok bool) {
				if ok {
					s.metrics.FramesReceived.WithLabelValues("ok").Inc()
				} else {
					s.metrics.FramesReceived.WithLabelValues("bad").Inc()
				}
			},
		)
		s.metrics.SessionsOpen.Inc()
	}
	go s.readLoop()
	return s
}

// ID 会话唯一标识
func (s *Session) ID() string { return s.id }

// Path 串口路径
func (s *Session) Path() string { return s.path }

// OpenedAt 会话创建时间
func (s *Session) OpenedAt() time.Time { return s.opened }

// Done 返回读协程退出通知通道
func (s *Session) Done() <-chan struct{} { return s.done }

// Closed 会话是否已进入终态
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// NextSequence 返回 identifier 的当前序号并后移（模 100）
func (s *Session) NextSequence(identifier byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.seq[identifier]
	s.seq[identifier] = (v + 1) % fdm.SequenceModulo
	return int(v)
}

// OnStop 注册断开回调；按注册顺序执行且仅执行一次
// 会话已关闭时立即执行
func (s *Session) OnStop(fn func()) {
	s.mu.Lock()
	if !s.closed {
		s.onStop = append(s.onStop, fn)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	fn()
}

// SendAndWait 以默认超时 T2 与默认重试次数发送并等待应答
func (s *Session) SendAndWait(identifier byte, sequence int, body string) (string, error) {
	return s.SendAndWaitRetry(identifier, sequence, body, s.timeout, fdm.DefaultMaxRetries)
}

// SendAndWaitRetry 发送请求并等待同一关联键的应答
// 每次超时后递增重试计数重发；同一关联键在所有重发间共享，
// 因此较早一次发送的迟到应答同样满足本次等待。
func (s *Session) SendAndWaitRetry(identifier byte, sequence int, body string, timeout time.Duration, maxRetries int) (string, error) {
	if maxRetries < 0 || maxRetries > fdm.MaxRetryDigit {
		return "", ErrTooManyRetries
	}
	if sequence < 0 || sequence >= fdm.SequenceModulo {
		return "", fmt.Errorf("%w: %d", ErrInvalidSequence, sequence)
	}
	if timeout <= 0 {
		timeout = s.timeout
	}

	key := fdm.Key(identifier, sequence)
	req, err := s.register(key)
	if err != nil {
		return "", err
	}
	defer s.unregister(key, req)

	cmd := string(identifier)
	start := time.Now()
	for retry := 0; retry <= maxRetries; retry++ {
		frame := fdm.Wrap([]byte(fdm.BuildRequest(identifier, sequence, retry, body)))
		if err := s.write(frame); err != nil {
			if s.Closed() {
				s.observe(cmd, "disconnect", start)
				return "", fmt.Errorf("%s: %w", key, s.disconnectCause())
			}
			s.log.Warn("write request failed", zap.String("key", key), zap.Int("retry", retry), zap.Error(err))
		}

		payload, ok, timedOut := s.wait(req, timeout)
		if !timedOut {
			if !ok {
				s.observe(cmd, "disconnect", start)
				return "", fmt.Errorf("%s: %w", key, s.disconnectCause())
			}
			s.observe(cmd, "ok", start)
			return payload, nil
		}
		if retry < maxRetries {
			s.log.Warn("no response, retrying",
				zap.String("key", key), zap.Int("retry", retry+1), zap.Duration("timeout", timeout))
			if s.metrics != nil {
				s.metrics.RetryTotal.WithLabelValues(cmd).Inc()
			}
		}
	}

	s.log.Warn("no response after retries", zap.String("key", key), zap.Int("attempts", maxRetries+1))
	s.observe(cmd, "timeout", start)
	return "", fmt.Errorf("%s: %w", key, ErrTimeout)
}

// Close 主动关闭会话：失败所有在途请求并触发断开回调
func (s *Session) Close() error {
	s.stop(errors.New("closed"))
	return nil
}

// Wait 等待读协程退出
func (s *Session) Wait() { <-s.done }

// wait 阻塞等待完成槽；timedOut 为 true 表示本次等待超时
func (s *Session) wait(req *pendingRequest, timeout time.Duration) (payload string, ok bool, timedOut bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case payload, ok = <-req.ch:
		return payload, ok, false
	case <-timer.C:
		return "", false, true
	}
}

func (s *Session) register(key string) (*pendingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("%s: %w", key, ErrDisconnected)
	}
	if _, exists := s.pending[key]; exists {
		return nil, fmt.Errorf("%s: %w", key, ErrDuplicatePending)
	}
	req := &pendingRequest{ch: make(chan string, 1)}
	s.pending[key] = req
	return req, nil
}

func (s *Session) unregister(key string, req *pendingRequest) {
	s.mu.Lock()
	if cur, ok := s.pending[key]; ok && cur == req {
		delete(s.pending, key)
	}
	s.mu.Unlock()
}

// complete 读协程上交的应答：交给等待方，无等待方则记录并丢弃
func (s *Session) complete(key, payload string) {
	s.logMessage(payload)

	s.mu.Lock()
	req, ok := s.pending[key]
	if ok {
		// 一次性：交付后立即摘除，后续同键应答视为迟到
		delete(s.pending, key)
		req.ch <- payload
	}
	s.mu.Unlock()

	if !ok {
		s.log.Warn("unsolicited or late response dropped", zap.String("key", key), zap.String("payload", payload))
		if s.metrics != nil {
			s.metrics.LateResponses.Inc()
		}
	}
}

func (s *Session) logMessage(payload string) {
	resp, err := fdm.ParseResponse(payload)
	if err != nil {
		s.msgLog.Info("fdm message", zap.String("payload", payload), zap.NamedError("header", err))
		return
	}
	s.msgLog.Info("fdm message",
		zap.String("key", resp.Key()),
		zap.Int("retry", resp.Retry),
		zap.String("status", resp.Status.String()),
		zap.String("severity", severity(resp.Status)),
		zap.String("status_text", s.status.Describe(resp.Status.Code())),
	)
}

// severity 状态三元组的类别；日志级别固定为 info，由该字段区分
func severity(st fdm.StatusTriple) string {
	switch {
	case st.IsError():
		return "error"
	case st.IsWarning():
		return "warning"
	default:
		return "info"
	}
}

func (s *Session) write(p []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.port.Write(p)
	return err
}

func (s *Session) writeControl(b byte) error {
	if err := s.write([]byte{b}); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.ControlSent.WithLabelValues(metrics.ControlLabel(b)).Inc()
	}
	return nil
}

func (s *Session) readLoop() {
	defer close(s.done)
	buf := make([]byte, readBufSize)
	for {
		n, err := s.port.Read(buf)
		if n > 0 {
			s.reader.Feed(buf[:n])
		}
		if err != nil {
			if !s.Closed() {
				s.log.Warn("serial connection lost", zap.Error(err))
			}
			s.stop(err)
			return
		}
		if s.Closed() {
			return
		}
	}
}

// stop 进入终态：失败在途请求、关闭串口、按序触发断开回调（仅一次）
func (s *Session) stop(cause error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cause = cause
	for key, req := range s.pending {
		close(req.ch)
		delete(s.pending, key)
	}
	callbacks := s.onStop
	s.onStop = nil
	s.mu.Unlock()

	if err := s.port.Close(); err != nil {
		s.log.Debug("close port", zap.Error(err))
	}
	if s.metrics != nil {
		s.metrics.SessionsOpen.Dec()
	}
	for _, fn := range callbacks {
		fn()
	}
}

func (s *Session) disconnectCause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cause != nil {
		return fmt.Errorf("%w: %v", ErrDisconnected, s.cause)
	}
	return ErrDisconnected
}

func (s *Session) observe(cmd, result string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.SendTotal.WithLabelValues(cmd, result).Inc()
	s.metrics.SendLatency.WithLabelValues(cmd).Observe(time.Since(start).Seconds())
}
