package fdm

import (
	"bytes"

	"go.uber.org/zap"
)

// FrameReader 单串口的流式帧读取器
// 处理任意分片的上行字节流：消费 ACK/NACK 控制字节，切分 STX…ETX+LRC 帧，
// 校验通过回 ACK 并上交载荷，校验失败回 NACK 并丢弃。
// 缓冲区本身即状态，不维护显式状态机。非并发安全，由单个读协程驱动。
type FrameReader struct {
	buf     []byte
	reply   func(b byte) error
	deliver func(key, payload string)
	log     *zap.Logger

	// 可选指标回调
	onControl func(b byte)
	onFrame   func(ok bool)
}

// NewFrameReader 创建帧读取器
// reply 用于向对端回写 ACK/NACK；deliver 接收校验通过的 (key, payload)
func NewFrameReader(reply func(b byte) error, deliver func(key, payload string), log *zap.Logger) *FrameReader {
	if log == nil {
		log = zap.NewNop()
	}
	return &FrameReader{reply: reply, deliver: deliver, log: log}
}

// SetMetricsCallbacks 设置指标回调
func (r *FrameReader) SetMetricsCallbacks(onControl func(b byte), onFrame func(ok bool)) {
	r.onControl, r.onFrame = onControl, onFrame
}

// Buffered 返回当前缓冲中未消费的字节数
func (r *FrameReader) Buffered() int { return len(r.buf) }

// Feed 追加数据并尽可能解出多帧
func (r *FrameReader) Feed(p []byte) {
	r.buf = append(r.buf, p...)
	for {
		for len(r.buf) > 0 && isControl(r.buf[0]) {
			r.control(r.buf[0])
			r.buf = r.buf[1:]
		}
		if len(r.buf) == 0 {
			r.buf = nil
			return
		}

		start := bytes.IndexByte(r.buf, STX)
		if start < 0 {
			r.discard(r.buf)
			r.buf = nil
			return
		}
		if start > 0 {
			r.discard(r.buf[:start])
			r.buf = r.buf[start:]
		}
		if len(r.buf) < 3 {
			return
		}

		end := bytes.IndexByte(r.buf[1:], ETX)
		if end < 0 {
			return
		}
		end++ // 相对 r.buf 的下标
		if end+1 >= len(r.buf) {
			// LRC 字节尚未到达
			return
		}

		frame := make([]byte, end+2)
		copy(frame, r.buf[:end+2])
		r.buf = r.buf[end+2:]

		payload, err := Unwrap(frame)
		if err == nil && len(payload) == 0 {
			err = ErrShortFrame
		}
		if err != nil {
			r.log.Warn("invalid frame, sending NACK", zap.Error(err), zap.Binary("frame", frame))
			r.frameResult(false)
			r.send(NACK)
			continue
		}

		r.frameResult(true)
		r.send(ACK)
		text := DecodeASCII(payload)
		if r.deliver != nil {
			r.deliver(KeyOf(text), text)
		}
	}
}

// discard 丢弃 STX 之前的垃圾字节，其中夹带的 ACK/NACK 仍计为控制字节
func (r *FrameReader) discard(junk []byte) {
	for _, b := range junk {
		if isControl(b) {
			r.control(b)
		}
	}
	r.log.Debug("discarding bytes before STX", zap.Int("bytes", len(junk)))
}

func (r *FrameReader) control(b byte) {
	if b == ACK {
		r.log.Debug("ACK received")
	} else {
		r.log.Debug("NACK received")
	}
	if r.onControl != nil {
		r.onControl(b)
	}
}

func (r *FrameReader) frameResult(ok bool) {
	if r.onFrame != nil {
		r.onFrame(ok)
	}
}

func (r *FrameReader) send(b byte) {
	if r.reply == nil {
		return
	}
	if err := r.reply(b); err != nil {
		r.log.Warn("write control byte failed", zap.Uint8("byte", b), zap.Error(err))
	}
}

func isControl(b byte) bool { return b == ACK || b == NACK }
