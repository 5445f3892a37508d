package driver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/fdm-driver/internal/metrics"
	"github.com/taoyao-code/fdm-driver/internal/portsession"
	"github.com/taoyao-code/fdm-driver/internal/protocol/fdm"
	"github.com/taoyao-code/fdm-driver/internal/registry"
	"github.com/taoyao-code/fdm-driver/internal/serialport"
)

// ScanInterval 串口重新枚举周期（固定，无抖动）
const ScanInterval = 10 * time.Second

// 识别应答中 FDM 唯一出厂编号的位置：载荷第 11..21 个字符
const (
	fdmIDOffset = 10
	fdmIDLen    = 11
)

var (
	// ErrUnknownFDM 未登记的 FDM 编号
	ErrUnknownFDM = errors.New("unknown fdm")
	// ErrUnknownCommand 命令不在 {H, I, P, S, O} 内
	ErrUnknownCommand = errors.New("unknown fdm command")
	// ErrIdentification 识别握手失败
	ErrIdentification = errors.New("fdm identification failed")
	// ErrDuplicateFDM 同一 FDM 编号已在其他串口登记
	ErrDuplicateFDM = errors.New("duplicate fdm id")
	// ErrStopped 驱动已停止
	ErrStopped = errors.New("driver stopped")
)

// Options 驱动依赖与可调项
type Options struct {
	Logger   *zap.Logger
	Metrics  *metrics.DriverMetrics
	Status   *fdm.StatusTable
	Registry registry.Registry

	// Open/List 默认使用真实串口
	Open serialport.Opener
	List serialport.Lister

	ProbeFailureThreshold int
	ProbeCooldown         time.Duration
	HandshakeRate         int
	HandshakeBurst        int
	ExcludePorts          []string

	// 测试缩短时序用
	scanInterval    time.Duration
	responseTimeout time.Duration
}

// DeviceInfo 已识别设备
type DeviceInfo struct {
	FDMID       string    `json:"fdm_id"`
	Path        string    `json:"path"`
	SessionID   string    `json:"session_id"`
	ConnectedAt time.Time `json:"connected_at"`
}

type device struct {
	sess *portsession.Session
	info DeviceInfo
}

// Driver 进程级 FDM 驱动：周期扫描串口、握手识别、按 FDM 编号转发命令
type Driver struct {
	log      *zap.Logger
	metrics  *metrics.DriverMetrics
	status   *fdm.StatusTable
	registry registry.Registry
	open     serialport.Opener
	list     serialport.Lister
	exclude  map[string]struct{}
	guard    *probeGuard
	limiter  *handshakeLimiter
	interval time.Duration
	timeout  time.Duration

	// mu 同时保护两张映射，登记与摘除相对查询原子
	mu     sync.Mutex
	byPath map[string]*portsession.Session
	byID   map[string]*device

	scanning atomic.Bool
	running  atomic.Bool
	stopped  atomic.Bool
	lastScan atomic.Int64 // unix nano

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// New 创建驱动（不启动扫描）
func New(opts Options) *Driver {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	reg := opts.Registry
	if reg == nil {
		reg = registry.NewMemory()
	}
	open := opts.Open
	if open == nil {
		open = serialport.Open
	}
	list := opts.List
	if list == nil {
		list = serialport.List
	}
	status := opts.Status
	if status == nil {
		status = fdm.DefaultStatusTable()
	}
	interval := opts.scanInterval
	if interval <= 0 {
		interval = ScanInterval
	}
	exclude := make(map[string]struct{}, len(opts.ExcludePorts))
	for _, p := range opts.ExcludePorts {
		exclude[p] = struct{}{}
	}
	return &Driver{
		log:      log.Named("driver"),
		metrics:  opts.Metrics,
		status:   status,
		registry: reg,
		open:     open,
		list:     list,
		exclude:  exclude,
		guard:    newProbeGuard(opts.ProbeFailureThreshold, opts.ProbeCooldown),
		limiter:  newHandshakeLimiter(opts.HandshakeRate, opts.HandshakeBurst),
		interval: interval,
		timeout:  opts.responseTimeout,
		byPath:   make(map[string]*portsession.Session),
		byID:     make(map[string]*device),
	}
}

// Start 启动周期扫描（立即执行首轮），非阻塞
func (d *Driver) Start(ctx context.Context) {
	d.once.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		d.cancel = cancel
		d.running.Store(true)

		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			defer d.running.Store(false)
			d.spawnScan(ctx)
			ticker := time.NewTicker(d.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					d.spawnScan(ctx)
				}
			}
		}()
		d.log.Info("fdm driver started", zap.Duration("scan_interval", d.interval))
	})
}

func (d *Driver) spawnScan(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.Scan(ctx)
	}()
}

// Stop 停止扫描、等待在途扫描结束、关闭全部会话并清理登记
func (d *Driver) Stop(ctx context.Context) error {
	if !d.stopped.CompareAndSwap(false, true) {
		return nil
	}
	if d.cancel != nil {
		d.cancel()
	}

	joined := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(joined)
	}()
	select {
	case <-joined:
	case <-ctx.Done():
		return ctx.Err()
	}

	d.mu.Lock()
	sessions := make([]*portsession.Session, 0, len(d.byPath))
	for _, s := range d.byPath {
		sessions = append(sessions, s)
	}
	d.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
	for _, s := range sessions {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := d.registry.Cleanup(ctx); err != nil {
		d.log.Warn("registry cleanup failed", zap.Error(err))
	}
	d.log.Info("fdm driver stopped", zap.Int("sessions_closed", len(sessions)))
	return nil
}

// Send 向指定 FDM 发送命令并返回完整应答载荷
func (d *Driver) Send(fdmID string, command byte, body string) (string, error) {
	if !fdm.IsCommand(command) {
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}
	if d.stopped.Load() {
		return "", ErrStopped
	}

	d.mu.Lock()
	dev, ok := d.byID[fdmID]
	d.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownFDM, fdmID)
	}

	seq := dev.sess.NextSequence(command)
	return d.sendAndWait(dev.sess, command, seq, body)
}

// Devices 返回当前已识别设备（按编号排序）
func (d *Driver) Devices() []DeviceInfo {
	d.mu.Lock()
	out := make([]DeviceInfo, 0, len(d.byID))
	for _, dev := range d.byID {
		out = append(out, dev.info)
	}
	d.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].FDMID < out[j].FDMID })
	return out
}

// Running 扫描循环是否在运行
func (d *Driver) Running() bool { return d.running.Load() }

// LastScan 最近一次扫描完成时间
func (d *Driver) LastScan() time.Time {
	ns := d.lastScan.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// ProbeStats 识别熔断统计
func (d *Driver) ProbeStats() []BreakerStats { return d.guard.Stats() }

// HandshakeStats 握手节流统计
func (d *Driver) HandshakeStats() LimiterStats { return d.limiter.Stats() }

// Scan 执行一轮扫描；上一轮尚未结束时跳过
func (d *Driver) Scan(ctx context.Context) {
	if !d.scanning.CompareAndSwap(false, true) {
		d.log.Debug("previous scan still running, skipped")
		if d.metrics != nil {
			d.metrics.ScanSkipped.Inc()
		}
		return
	}
	defer d.scanning.Store(false)
	defer d.lastScan.Store(time.Now().UnixNano())
	if d.metrics != nil {
		d.metrics.ScanTotal.Inc()
	}

	paths, err := d.list()
	if err != nil {
		d.log.Error("enumerate serial ports failed", zap.Error(err))
		return
	}

	for _, path := range paths {
		if ctx.Err() != nil {
			return
		}
		if _, skip := d.exclude[path]; skip {
			continue
		}
		d.mu.Lock()
		_, known := d.byPath[path]
		d.mu.Unlock()
		if known {
			continue
		}
		if !d.guard.Allow(path) {
			d.probeResult("breaker_open")
			continue
		}
		if err := d.limiter.Wait(ctx); err != nil {
			return
		}
		d.probe(path)
	}

	d.touchRegistry(ctx)
}

// probe 打开新串口、启动会话并握手识别
func (d *Driver) probe(path string) {
	log := d.log.With(zap.String("port", path))

	port, err := d.open(path)
	if err != nil {
		log.Error("open serial port failed", zap.Error(err))
		d.probeResult("open_error")
		return
	}

	sess := portsession.New(path, port, portsession.Config{
		Logger:  d.log,
		Metrics: d.metrics,
		Status:  d.status,
		Timeout: d.timeout,
	})
	d.mu.Lock()
	d.byPath[path] = sess
	d.mu.Unlock()
	sess.OnStop(func() { d.forget(sess) })

	fdmID, err := d.identify(sess)
	if err != nil {
		log.Error("identification failed, closing port", zap.Error(err))
		if d.guard.Failure(path) {
			log.Warn("port probing suspended after repeated identification failures")
		}
		d.probeResult("ident_error")
		d.closeSession(sess)
		return
	}
	d.guard.Success(path)
	log = log.With(zap.String("fdm_id", fdmID))

	info := DeviceInfo{FDMID: fdmID, Path: path, SessionID: sess.ID(), ConnectedAt: sess.OpenedAt()}
	d.mu.Lock()
	if _, dup := d.byID[fdmID]; dup {
		d.mu.Unlock()
		log.Warn("fdm already registered on another port, closing", zap.Error(ErrDuplicateFDM))
		d.probeResult("duplicate")
		d.closeSession(sess)
		return
	}
	if sess.Closed() {
		// 握手完成后立即断开，断开回调已执行
		d.mu.Unlock()
		log.Warn("port disconnected right after identification")
		d.probeResult("ident_error")
		return
	}
	d.byID[fdmID] = &device{sess: sess, info: info}
	online := len(d.byID)
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.DevicesOnline.Set(float64(online))
	}
	d.probeResult("ok")
	log.Info("fdm identified")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := d.registry.Register(ctx, registry.Device{
		FDMID: fdmID, Path: path, SessionID: sess.ID(), ConnectedAt: info.ConnectedAt,
	}); err != nil {
		log.Warn("registry register failed", zap.Error(err))
	}
}

// identify 发送 'I' 序号 1 的识别请求并提取 FDM 编号
func (d *Driver) identify(sess *portsession.Session) (string, error) {
	payload, err := d.sendAndWait(sess, fdm.CmdIdentify, 1, "")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIdentification, err)
	}
	if _, err := fdm.ParseResponse(payload); err != nil {
		return "", fmt.Errorf("%w: %w", ErrIdentification, err)
	}
	return parseFDMID(payload)
}

func parseFDMID(payload string) (string, error) {
	if len(payload) <= fdmIDOffset {
		return "", fmt.Errorf("%w: no fdm id in %q", ErrIdentification, payload)
	}
	end := fdmIDOffset + fdmIDLen
	if end > len(payload) {
		end = len(payload)
	}
	id := strings.TrimSpace(payload[fdmIDOffset:end])
	if id == "" {
		return "", fmt.Errorf("%w: empty fdm id", ErrIdentification)
	}
	return id, nil
}

func (d *Driver) sendAndWait(sess *portsession.Session, command byte, seq int, body string) (string, error) {
	if d.timeout > 0 {
		return sess.SendAndWaitRetry(command, seq, body, d.timeout, fdm.DefaultMaxRetries)
	}
	return sess.SendAndWait(command, seq, body)
}

// closeSession 关闭会话并等待读协程退出，确保串口句柄在返回前释放
func (d *Driver) closeSession(sess *portsession.Session) {
	_ = sess.Close()
	sess.Wait()
}

// forget 会话断开回调：从两张映射中摘除该会话
func (d *Driver) forget(sess *portsession.Session) {
	var removed []string
	d.mu.Lock()
	if cur, ok := d.byPath[sess.Path()]; ok && cur == sess {
		delete(d.byPath, sess.Path())
	}
	for id, dev := range d.byID {
		if dev.sess == sess {
			delete(d.byID, id)
			removed = append(removed, id)
		}
	}
	online := len(d.byID)
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.DevicesOnline.Set(float64(online))
	}
	for _, id := range removed {
		d.log.Info("fdm disconnected", zap.String("fdm_id", id), zap.String("port", sess.Path()))
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := d.registry.Unregister(ctx, id); err != nil {
			d.log.Warn("registry unregister failed", zap.String("fdm_id", id), zap.Error(err))
		}
		cancel()
	}
}

func (d *Driver) touchRegistry(ctx context.Context) {
	d.mu.Lock()
	ids := make([]string, 0, len(d.byID))
	for id := range d.byID {
		ids = append(ids, id)
	}
	d.mu.Unlock()
	if len(ids) == 0 {
		return
	}
	if err := d.registry.Touch(ctx, ids, time.Now()); err != nil {
		d.log.Warn("registry touch failed", zap.Error(err))
	}
}

func (d *Driver) probeResult(result string) {
	if d.metrics != nil {
		d.metrics.ProbeTotal.WithLabelValues(result).Inc()
	}
}
