package fdm

import "errors"

var (
	// ErrShortFrame 帧长度不足（至少 STX + ETX + LRC）
	ErrShortFrame = errors.New("short frame")
	// ErrBadFraming STX/ETX 位置不正确
	ErrBadFraming = errors.New("bad framing")
	// ErrLRCMismatch LRC 校验失败
	ErrLRCMismatch = errors.New("lrc mismatch")
)

// LRC 计算 STX 与 ETX 之间（均不含）字节的纵向冗余校验
// 算法：字节累加取低 8 位，按位取反后加 1（即累加和的补码）
func LRC(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return (sum ^ 0xFF) + 1
}

// Wrap 将载荷封装为 STX + payload + ETX + LRC
// 调用方保证载荷为 ASCII
func Wrap(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+3)
	out = append(out, STX)
	out = append(out, payload...)
	out = append(out, ETX, LRC(payload))
	return out
}

// Unwrap 校验一帧完整数据并返回载荷（引用 frame 的底层数组）
func Unwrap(frame []byte) ([]byte, error) {
	if len(frame) < 3 {
		return nil, ErrShortFrame
	}
	if frame[0] != STX || frame[len(frame)-2] != ETX {
		return nil, ErrBadFraming
	}
	payload := frame[1 : len(frame)-2]
	if LRC(payload) != frame[len(frame)-1] {
		return nil, ErrLRCMismatch
	}
	return payload, nil
}
