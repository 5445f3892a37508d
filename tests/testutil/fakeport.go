package testutil

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/taoyao-code/fdm-driver/internal/serialport"
)

// ErrPortClosed 伪串口已关闭
var ErrPortClosed = errors.New("port closed")

// FakePort 内存伪串口，用于会话与驱动测试
// Inject 模拟设备发出的字节；OnWrite 可挂接设备模拟逻辑；Disconnect 模拟拔出
type FakePort struct {
	mu       sync.Mutex
	in       chan []byte
	leftover []byte
	written  []byte
	onWrite  func(p []byte)
	timeout  time.Duration

	closeOnce sync.Once
	closed    chan struct{}
	eof       bool
}

var _ serialport.Port = (*FakePort)(nil)

// NewFakePort 创建伪串口
func NewFakePort() *FakePort {
	return &FakePort{
		in:      make(chan []byte, 64),
		closed:  make(chan struct{}),
		timeout: serialport.ReadTimeout,
	}
}

// SetOnWrite 设置写入回调（在写入方协程中同步调用）
func (f *FakePort) SetOnWrite(h func(p []byte)) {
	f.mu.Lock()
	f.onWrite = h
	f.mu.Unlock()
}

// Inject 注入设备侧数据
func (f *FakePort) Inject(p []byte) {
	dup := make([]byte, len(p))
	copy(dup, p)
	select {
	case f.in <- dup:
	case <-f.closed:
	}
}

// Written 返回迄今写入的全部字节
func (f *FakePort) Written() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]byte, len(f.written))
	copy(out, f.written)
	return out
}

// Disconnect 模拟设备断开：后续 Read 返回 io.EOF
func (f *FakePort) Disconnect() {
	f.mu.Lock()
	f.eof = true
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.closed) })
}

// IsClosed 是否已关闭或断开
func (f *FakePort) IsClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *FakePort) Read(p []byte) (int, error) {
	f.mu.Lock()
	if len(f.leftover) > 0 {
		n := copy(p, f.leftover)
		f.leftover = f.leftover[n:]
		f.mu.Unlock()
		return n, nil
	}
	f.mu.Unlock()

	timer := time.NewTimer(f.timeout)
	defer timer.Stop()
	select {
	case b := <-f.in:
		n := copy(p, b)
		if n < len(b) {
			f.mu.Lock()
			f.leftover = append(f.leftover, b[n:]...)
			f.mu.Unlock()
		}
		return n, nil
	case <-f.closed:
		f.mu.Lock()
		eof := f.eof
		f.mu.Unlock()
		if eof {
			return 0, io.EOF
		}
		return 0, ErrPortClosed
	case <-timer.C:
		return 0, nil
	}
}

func (f *FakePort) Write(p []byte) (int, error) {
	if f.IsClosed() {
		return 0, ErrPortClosed
	}
	f.mu.Lock()
	f.written = append(f.written, p...)
	h := f.onWrite
	f.mu.Unlock()
	if h != nil {
		dup := make([]byte, len(p))
		copy(dup, p)
		h(dup)
	}
	return len(p), nil
}

func (f *FakePort) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}
