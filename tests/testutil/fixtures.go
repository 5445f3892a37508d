package testutil

import (
	"sync"

	"github.com/taoyao-code/fdm-driver/internal/protocol/fdm"
)

// OKStatus 无错误的状态三元组
const OKStatus = "000000"

// Responder 根据请求载荷决定应答载荷；ok=false 表示不应答
type Responder func(request string) (response string, ok bool)

// FDMDevice 挂接在伪串口上的 FDM 设备模拟器
// 解析主机写入的帧，按 Responder 回应并发送 ACK
type FDMDevice struct {
	Port *FakePort

	mu       sync.Mutex
	reader   *fdm.FrameReader
	respond  Responder
	requests []string
}

// NewFDMDevice 创建设备模拟器并挂接到 port
func NewFDMDevice(port *FakePort, respond Responder) *FDMDevice {
	d := &FDMDevice{Port: port, respond: respond}
	d.reader = fdm.NewFrameReader(
		func(b byte) error { port.Inject([]byte{b}); return nil },
		d.onRequest,
		nil,
	)
	port.SetOnWrite(func(p []byte) {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.reader.Feed(p)
	})
	return d
}

// SetResponder 替换应答策略
func (d *FDMDevice) SetResponder(r Responder) {
	d.mu.Lock()
	d.respond = r
	d.mu.Unlock()
}

// Requests 返回收到的全部请求载荷（按到达顺序）
func (d *FDMDevice) Requests() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.requests))
	copy(out, d.requests)
	return out
}

// 在 d.mu 持有期间由 reader 回调
func (d *FDMDevice) onRequest(_ string, payload string) {
	d.requests = append(d.requests, payload)
	if d.respond == nil {
		return
	}
	if resp, ok := d.respond(payload); ok {
		d.Port.Inject(fdm.Wrap([]byte(resp)))
	}
}

// Reply 构造应答：沿用请求头（identifier+序号+重试）+ 状态三元组 + 数据
func Reply(request, status, data string) string {
	head := request
	if len(head) > 4 {
		head = head[:4]
	}
	return head + status + data
}

// Identify 对 'I' 请求回应指定的 FDM 编号，其余请求回应 OK 状态
func Identify(fdmID string) Responder {
	return func(req string) (string, bool) {
		if len(req) > 0 && req[0] == fdm.CmdIdentify {
			return Reply(req, OKStatus, fdmID), true
		}
		return Reply(req, OKStatus, ""), true
	}
}

// Silent 从不应答
func Silent() Responder {
	return func(string) (string, bool) { return "", false }
}
