package testutil

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakePort(t *testing.T) {
	f := NewFakePort()
	var seen []byte
	f.SetOnWrite(func(p []byte) { seen = append(seen, p...) })

	_, err := f.Write([]byte{0x06})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x06}, seen)
	assert.Equal(t, []byte{0x06}, f.Written())

	f.Inject([]byte("abcdef"))
	buf := make([]byte, 4)
	n, err := f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(buf[:n]))
	n, err = f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ef", string(buf[:n]))

	f.Disconnect()
	_, err = f.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
	_, err = f.Write([]byte{0x15})
	assert.ErrorIs(t, err, ErrPortClosed)
}
