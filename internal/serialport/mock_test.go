package serialport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMock_EchoAndResponse(t *testing.T) {
	m := NewMock(true, func(w []byte) []byte { return []byte{0xAA, 0xBB} })

	n, err := m.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	echo, _ := m.ReadExactly(3)
	assert.Equal(t, []byte{1, 2, 3}, echo)

	// 短读：只剩2字节
	rest, err := m.ReadExactly(5)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB}, rest)

	empty, err := m.ReadExactly(1)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMock_FlushAndClose(t *testing.T) {
	m := NewMock(false, nil)
	m.Feed([]byte{9, 9})
	require.NoError(t, m.FlushInput())
	b, _ := m.ReadExactly(2)
	assert.Empty(t, b)
	assert.Equal(t, 1, m.Flushes())

	require.NoError(t, m.SetTimeout(5*time.Millisecond))
	assert.Equal(t, 5*time.Millisecond, m.Timeout())

	require.NoError(t, m.Close())
	_, err := m.Write([]byte{1})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = m.ReadExactly(1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMock_WritesAreCopies(t *testing.T) {
	m := NewMock(false, nil)
	buf := []byte{1, 2}
	_, _ = m.Write(buf)
	buf[0] = 7
	assert.Equal(t, [][]byte{{1, 2}}, m.Writes())
}

func TestMock_Lag(t *testing.T) {
	m := NewMock(false, func(w []byte) []byte { return []byte{5, 6} })
	m.SetLag(1)
	_, err := m.Write([]byte{1})
	require.NoError(t, err)

	first, _ := m.ReadExactly(2)
	assert.Empty(t, first)
	second, _ := m.ReadExactly(2)
	assert.Equal(t, []byte{5, 6}, second)
}
