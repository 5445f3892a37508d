package fdm

import (
	"bytes"
	"testing"
)

func TestLRC(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected byte
	}{
		{name: "空数据", data: []byte{}, expected: 0x00},
		{name: "单字节", data: []byte{0x01}, expected: 0xFF},
		{name: "识别请求头", data: []byte("I010"), expected: 0x26},
		{name: "LRC恰为ETX", data: []byte("H050000000"), expected: 0x03},
		{name: "识别应答", data: []byte("I010000000FDM0000001"), expected: 0xDE},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LRC(tt.data); got != tt.expected {
				t.Errorf("LRC() = 0x%02X, expected 0x%02X", got, tt.expected)
			}
		})
	}
}

// 累加和与 LRC 相加模 256 恒为 0
func TestLRC_SumProperty(t *testing.T) {
	samples := [][]byte{
		{0x00},
		{0xFF},
		{0x7F, 0x7F, 0x7F},
		[]byte("S120000000"),
		bytes.Repeat([]byte{0xAB}, 300),
	}
	for i := 0; i < 256; i++ {
		samples = append(samples, []byte{byte(i), byte(255 - i), byte(i * 7)})
	}
	for _, p := range samples {
		var sum byte
		for _, b := range p {
			sum += b
		}
		if sum+LRC(p) != 0 {
			t.Fatalf("sum+lrc != 0 for % X", p)
		}
	}
}

func TestWrap(t *testing.T) {
	got := Wrap([]byte("I010"))
	want := []byte{0x02, 0x49, 0x30, 0x31, 0x30, 0x03, 0x26}
	if !bytes.Equal(got, want) {
		t.Fatalf("Wrap() = % X, want % X", got, want)
	}

	for _, p := range [][]byte{[]byte("H000"), []byte("P010123456"), []byte("S99")} {
		f := Wrap(p)
		if f[0] != STX {
			t.Fatalf("frame must start with STX: % X", f)
		}
		if f[len(f)-1] != LRC(p) {
			t.Fatalf("frame must end with LRC: % X", f)
		}
		if bytes.Count(f[:len(f)-1], []byte{ETX}) != 1 || f[len(f)-2] != ETX {
			t.Fatalf("exactly one ETX right before LRC expected: % X", f)
		}
	}
}

func TestWrap_EmptyPayload(t *testing.T) {
	got := Wrap(nil)
	if !bytes.Equal(got, []byte{STX, ETX, 0x00}) {
		t.Fatalf("Wrap(nil) = % X", got)
	}
}

func TestUnwrap(t *testing.T) {
	payload, err := Unwrap(Wrap([]byte("I010000000FDM0000001")))
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	if string(payload) != "I010000000FDM0000001" {
		t.Fatalf("payload = %q", payload)
	}

	bad := Wrap([]byte("I010"))
	bad[len(bad)-1] = 0x00
	if _, err := Unwrap(bad); err != ErrLRCMismatch {
		t.Fatalf("expected ErrLRCMismatch, got %v", err)
	}
	if _, err := Unwrap([]byte{STX, ETX}); err != ErrShortFrame {
		t.Fatalf("expected ErrShortFrame, got %v", err)
	}
	if _, err := Unwrap([]byte{'X', 'A', ETX, 0x00}); err != ErrBadFraming {
		t.Fatalf("expected ErrBadFraming, got %v", err)
	}
}
