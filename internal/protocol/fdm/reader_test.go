package fdm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delivered struct {
	key     string
	payload string
}

type readerHarness struct {
	r        *FrameReader
	replies  []byte
	got      []delivered
	controls []byte
}

func newHarness() *readerHarness {
	h := &readerHarness{}
	h.r = NewFrameReader(
		func(b byte) error { h.replies = append(h.replies, b); return nil },
		func(key, payload string) { h.got = append(h.got, delivered{key, payload}) },
		nil,
	)
	h.r.SetMetricsCallbacks(func(b byte) { h.controls = append(h.controls, b) }, nil)
	return h
}

func TestFrameReader_WellFormed(t *testing.T) {
	h := newHarness()
	h.r.Feed(Wrap([]byte("I010000000FDM0000001")))

	require.Len(t, h.got, 1)
	assert.Equal(t, delivered{"I01", "I010000000FDM0000001"}, h.got[0])
	assert.Equal(t, []byte{ACK}, h.replies)
	assert.Equal(t, 0, h.r.Buffered())
}

func TestFrameReader_LRCRejection(t *testing.T) {
	h := newHarness()
	bad := []byte{0x02, 0x49, 0x30, 0x31, 0x30, 0x30, 0x30, 0x30, 0x30, 0x30, 0x30,
		0x46, 0x44, 0x4D, 0x30, 0x30, 0x30, 0x30, 0x30, 0x30, 0x31, 0x03, 0x00}
	h.r.Feed(bad)

	assert.Empty(t, h.got)
	assert.Equal(t, []byte{NACK}, h.replies)
	assert.Equal(t, 0, h.r.Buffered())

	h.r.Feed(Wrap([]byte("I010000000FDM0000001")))
	require.Len(t, h.got, 1)
	assert.Equal(t, []byte{NACK, ACK}, h.replies)
}

func TestFrameReader_GarbageAckThenFrame(t *testing.T) {
	h := newHarness()
	in := []byte{0xFF, 0x06, 0x02, 0x48, 0x30, 0x35, 0x30, 0x30, 0x30, 0x30, 0x30, 0x30, 0x30, 0x03, 0x03}
	h.r.Feed(in)

	require.Len(t, h.got, 1)
	assert.Equal(t, delivered{"H05", "H050000000"}, h.got[0])
	assert.Equal(t, []byte{ACK}, h.controls)
	assert.Equal(t, []byte{ACK}, h.replies)
}

func TestFrameReader_ByteByByte(t *testing.T) {
	h := newHarness()
	stream := append([]byte{ACK}, Wrap([]byte("S010000000"))...)
	stream = append(stream, NACK)
	stream = append(stream, Wrap([]byte("H020000000abc"))...)
	for _, b := range stream {
		h.r.Feed([]byte{b})
	}

	require.Len(t, h.got, 2)
	assert.Equal(t, "S010000000", h.got[0].payload)
	assert.Equal(t, "H020000000abc", h.got[1].payload)
	assert.Equal(t, []byte{ACK, ACK}, h.replies)
	assert.Equal(t, []byte{ACK, NACK}, h.controls)
}

// 合法帧与控制字节任意拼接：按序上交全部载荷，且不产生 NACK
func TestFrameReader_ConcatenatedStream(t *testing.T) {
	payloads := []string{"I010000000FDM0000001", "H050000000", "P120010000", "S990000000xyz", "O000000000"}
	var stream []byte
	for i, p := range payloads {
		if i%2 == 0 {
			stream = append(stream, ACK)
		} else {
			stream = append(stream, NACK, ACK)
		}
		stream = append(stream, Wrap([]byte(p))...)
	}

	for _, chunk := range []int{1, 2, 3, 7, 13, len(stream)} {
		h := newHarness()
		for i := 0; i < len(stream); i += chunk {
			end := i + chunk
			if end > len(stream) {
				end = len(stream)
			}
			h.r.Feed(stream[i:end])
		}
		require.Len(t, h.got, len(payloads), "chunk=%d", chunk)
		for i, p := range payloads {
			assert.Equal(t, p, h.got[i].payload)
		}
		assert.NotContains(t, h.replies, NACK, "chunk=%d", chunk)
	}
}

// 帧间插入垃圾、重复或损坏字节：完整帧全部上交，损坏帧绝不上交
func TestFrameReader_CorruptedBetweenFrames(t *testing.T) {
	good1 := Wrap([]byte("H010000000"))
	good2 := Wrap([]byte("H020000000"))
	good3 := Wrap([]byte("H030000000"))

	corrupt := Wrap([]byte("H040000000"))
	corrupt[5] ^= 0x01

	var stream []byte
	stream = append(stream, 0x41, 0x42)
	stream = append(stream, good1...)
	stream = append(stream, 0x7F, 0x7F)
	stream = append(stream, corrupt...)
	stream = append(stream, good2...)
	stream = append(stream, good2[len(good2)-1]) // LRC 字节重复
	stream = append(stream, good3...)

	h := newHarness()
	h.r.Feed(stream)

	var keys []string
	for _, d := range h.got {
		keys = append(keys, d.key)
		assert.NotEqual(t, "H041000000", d.payload)
	}
	assert.Equal(t, []string{"H01", "H02", "H03"}, keys)
	assert.Equal(t, 1, bytes.Count(h.replies, []byte{NACK}))
}

func TestFrameReader_NoSTXDiscardsBuffer(t *testing.T) {
	h := newHarness()
	h.r.Feed(bytes.Repeat([]byte{0x55}, 512))
	assert.Equal(t, 0, h.r.Buffered())
	assert.Empty(t, h.replies)

	h.r.Feed(Wrap([]byte("S010000000")))
	require.Len(t, h.got, 1)
}

func TestFrameReader_AwaitsMoreData(t *testing.T) {
	h := newHarness()
	f := Wrap([]byte("S010000000"))

	h.r.Feed(f[:1])
	assert.Equal(t, 1, h.r.Buffered())
	h.r.Feed(f[1 : len(f)-1]) // 缺 LRC
	assert.Empty(t, h.got)
	assert.Equal(t, len(f)-1, h.r.Buffered())
	h.r.Feed(f[len(f)-1:])
	require.Len(t, h.got, 1)
	assert.Equal(t, 0, h.r.Buffered())
}

func TestFrameReader_EmptyPayloadNACK(t *testing.T) {
	h := newHarness()
	h.r.Feed([]byte{STX, ETX, 0x00})
	assert.Empty(t, h.got)
	assert.Equal(t, []byte{NACK}, h.replies)
}

func TestFrameReader_NonASCIIDropped(t *testing.T) {
	h := newHarness()
	h.r.Feed(Wrap([]byte{'S', '0', '1', 0xC3, '0', '0', '0', '0', '0', '0', '0'}))
	require.Len(t, h.got, 1)
	assert.Equal(t, "S010000000", h.got[0].payload)
}
