package fdm

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrShortHeader 应答载荷不足 10 个字符（头 + 状态三元组）
	ErrShortHeader = errors.New("short response header")
	// ErrBadHeader 头部字段非法
	ErrBadHeader = errors.New("bad response header")
)

// StatusTriple 应答中的状态三元组 error1(1) error2(2) error3(3)
type StatusTriple struct {
	Error1 string
	Error2 string
	Error3 string
}

// Code 返回 error1+error2 组成的 3 位状态码，如 "000"、"101"、"206"
func (s StatusTriple) Code() string { return s.Error1 + s.Error2 }

// IsError error1 为 '2' 时表示错误
func (s StatusTriple) IsError() bool { return s.Error1 == "2" }

// IsWarning error1 为 '1' 时表示警告
func (s StatusTriple) IsWarning() bool { return s.Error1 == "1" }

func (s StatusTriple) String() string { return s.Error1 + s.Error2 + s.Error3 }

// Response FDM 应答的公共头部
// 格式：identifier(1) + sequence(2) + retry(1) + error1(1) + error2(2) + error3(3) + data(n)
type Response struct {
	Identifier byte
	Sequence   int
	Retry      int
	Status     StatusTriple
	Data       string // 第 11 个字符之后的命令相关内容，本层不解析
}

// Key 返回关联键 identifier + 两位序号
func (r *Response) Key() string { return Key(r.Identifier, r.Sequence) }

// ParseResponse 解析应答载荷的前 10 个字符
func ParseResponse(payload string) (*Response, error) {
	if len(payload) < responseLen {
		return nil, ErrShortHeader
	}
	if !isDigits(payload[1:4]) {
		return nil, fmt.Errorf("%w: %q", ErrBadHeader, payload[:headerLen])
	}
	seq, _ := strconv.Atoi(payload[1:3])
	retry := int(payload[3] - '0')
	return &Response{
		Identifier: payload[0],
		Sequence:   seq,
		Retry:      retry,
		Status: StatusTriple{
			Error1: payload[4:5],
			Error2: payload[5:7],
			Error3: payload[7:10],
		},
		Data: payload[responseLen:],
	}, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Key 生成关联键：identifier + 两位补零序号
func Key(identifier byte, sequence int) string {
	return fmt.Sprintf("%c%02d", identifier, sequence)
}

// KeyOf 从载荷前 3 个字符提取关联键，不足 3 个字符时原样返回
func KeyOf(payload string) string {
	if len(payload) < KeyLen {
		return payload
	}
	return payload[:KeyLen]
}

// BuildRequest 构造请求载荷：identifier + 两位序号 + 一位重试计数 + body
func BuildRequest(identifier byte, sequence, retry int, body string) string {
	var b strings.Builder
	b.Grow(headerLen + len(body))
	b.WriteString(Key(identifier, sequence))
	b.WriteByte(byte('0' + retry))
	b.WriteString(body)
	return b.String()
}

// DecodeASCII 丢弃非 7 位 ASCII 字节后转换为字符串
func DecodeASCII(p []byte) string {
	clean := true
	for _, c := range p {
		if c >= 0x80 {
			clean = false
			break
		}
	}
	if clean {
		return string(p)
	}
	out := make([]byte, 0, len(p))
	for _, c := range p {
		if c < 0x80 {
			out = append(out, c)
		}
	}
	return string(out)
}
