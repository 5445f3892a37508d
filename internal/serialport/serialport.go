package serialport

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// 串口固定参数：19200 bps，8N1，无流控，读超时 200ms
const (
	BaudRate    = 19200
	DataBits    = 8
	ReadTimeout = 200 * time.Millisecond
)

// ErrOpen 打开串口失败
var ErrOpen = errors.New("open serial port")

// Port 驱动所需的串口能力
// Read 在读超时到期时返回 (0, nil)；返回错误即视为连接断开
type Port interface {
	io.ReadWriteCloser
}

// Opener 按路径打开串口
type Opener func(path string) (Port, error)

// Lister 枚举当前可用的串口路径
type Lister func() ([]string, error)

// 测试可替换的外部依赖
var (
	openPort     = func(path string, mode *serial.Mode) (serial.Port, error) { return serial.Open(path, mode) }
	getPortsList = serial.GetPortsList
)

// Mode 返回 FDM 链路的串口模式
func Mode() *serial.Mode {
	return &serial.Mode{
		BaudRate: BaudRate,
		DataBits: DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// Open 以固定参数打开串口并设置读超时
func Open(path string) (Port, error) {
	p, err := openPort(path, Mode())
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrOpen, path, err)
	}
	if err := p.SetReadTimeout(ReadTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("%w %s: set read timeout: %w", ErrOpen, path, err)
	}
	return p, nil
}

// List 枚举系统串口
func List() ([]string, error) {
	ports, err := getPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}
