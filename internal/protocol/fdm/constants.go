package fdm

import "time"

// 控制字节
const (
	STX  byte = 0x02
	ETX  byte = 0x03
	ACK  byte = 0x06
	NACK byte = 0x15
)

// 时序约束
const (
	// T1 等待 ACK/NACK 的上限
	T1 = 300 * time.Millisecond
	// T2 等待应答帧的上限
	T2 = 750 * time.Millisecond
	// DefaultMaxRetries 首发之外的重发次数（共 4 次发送）
	DefaultMaxRetries = 3
	// MaxRetryDigit 重试计数只占 1 个 ASCII 数字
	MaxRetryDigit = 9
	// SequenceModulo 序号为两位十进制
	SequenceModulo = 100
)

// 报文头布局（0 起始下标）
const (
	headerLen   = 4 // identifier(1) + sequence(2) + retry(1)
	statusLen   = 6 // error1(1) + error2(2) + error3(3)
	responseLen = headerLen + statusLen
	// KeyLen identifier + sequence 组成的关联键长度
	KeyLen = 3
)

// 命令标识
const (
	CmdHash     byte = 'H' // 哈希签名请求
	CmdIdentify byte = 'I' // 识别请求
	CmdPin      byte = 'P' // PIN 码
	CmdStatus   byte = 'S' // 状态查询
	CmdReport   byte = 'O' // 报表请求
)

// IsCommand 判断是否属于驱动允许下发的命令集合 {H, I, P, S, O}
func IsCommand(c byte) bool {
	switch c {
	case CmdHash, CmdIdentify, CmdPin, CmdStatus, CmdReport:
		return true
	}
	return false
}
