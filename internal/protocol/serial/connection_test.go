package serial_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	serialproto "digit-service/internal/protocol/serial"
	"digit-service/internal/protocol/serial/serialtest"
)

func openConnection(t *testing.T, port *serialtest.FakePort) *serialproto.Connection {
	conn, err := serialproto.NewConnection(&serialproto.Config{
		Port:         "/dev/ttyFAKE0",
		BaudRate:     115200,
		ReadTimeout:  50 * time.Millisecond,
		WriteTimeout: time.Second,
	}, port.Opener(), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, conn.Open(context.Background()))
	return conn
}

func TestNewConnectionRequiresPort(t *testing.T) {
	_, err := serialproto.NewConnection(&serialproto.Config{}, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestOpenFailure(t *testing.T) {
	cause := errors.New("no such device")
	conn, err := serialproto.NewConnection(&serialproto.Config{Port: "COM9", BaudRate: 9600},
		serialtest.FailingOpener(cause), zap.NewNop())
	require.NoError(t, err)

	err = conn.Open(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, cause))
	assert.False(t, conn.IsOpen())
}

func TestOpenRejectsInvalidMode(t *testing.T) {
	port := serialtest.NewFakePort()
	conn, err := serialproto.NewConnection(&serialproto.Config{Port: "COM9", BaudRate: 0},
		port.Opener(), zap.NewNop())
	require.NoError(t, err)
	assert.Error(t, conn.Open(context.Background()))
}

func TestReadLineSplitsChunks(t *testing.T) {
	port := serialtest.NewFakePort()
	conn := openConnection(t, port)

	port.Feed("READY\r\nSTM32 ", "boot\n7")
	deadline := time.Now().Add(time.Second)

	line, ok, err := conn.ReadLine(deadline)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "READY\r", line)

	line, ok, err = conn.ReadLine(deadline)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "STM32 boot", line)
}

func TestReadLineDeadlineReturnsPartial(t *testing.T) {
	port := serialtest.NewFakePort()
	conn := openConnection(t, port)

	port.Feed("12")
	line, ok, err := conn.ReadLine(time.Now().Add(120 * time.Millisecond))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "12", line)

	_, ok, err = conn.ReadLine(time.Now().Add(60 * time.Millisecond))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadLineEOF(t *testing.T) {
	port := serialtest.NewFakePort()
	conn := openConnection(t, port)

	port.Reply(true, "tail")
	require.NoError(t, conn.Write(make([]byte, serialtest.ExchangeBytes)))

	line, ok, err := conn.ReadLine(time.Now().Add(time.Second))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tail", line)

	_, ok, err = conn.ReadLine(time.Now().Add(time.Second))
	assert.False(t, ok)
	assert.True(t, errors.Is(err, io.EOF))
}

func TestResetDropsBufferedLine(t *testing.T) {
	port := serialtest.NewFakePort()
	conn := openConnection(t, port)

	port.Feed("1\n2\n")
	_, _, err := conn.ReadLine(time.Now().Add(time.Second))
	require.NoError(t, err)

	require.NoError(t, conn.Reset())
	_, ok, err := conn.ReadLine(time.Now().Add(60 * time.Millisecond))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteChunked(t *testing.T) {
	port := serialtest.NewFakePort()
	conn := openConnection(t, port)

	data := make([]byte, 784)
	for i := range data {
		data[i] = byte(i)
	}

	require.NoError(t, conn.WriteChunked(data, 64, 0))
	assert.Equal(t, data, port.Written())
	assert.Equal(t, 13, port.Writes())
	assert.Equal(t, 13, port.Drains())

	stats := conn.GetStats()
	assert.Equal(t, int64(784), stats.BytesWritten)
	assert.True(t, stats.IsOpen)
}

func TestWriteChunkedRejectsBadSize(t *testing.T) {
	port := serialtest.NewFakePort()
	conn := openConnection(t, port)
	assert.Error(t, conn.WriteChunked([]byte{1}, 0, 0))
}

func TestWriteError(t *testing.T) {
	port := serialtest.NewFakePort()
	conn := openConnection(t, port)

	cause := errors.New("cable unplugged")
	port.FailWrites(cause)
	err := conn.Write([]byte("START"))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, int64(1), conn.GetStats().ErrorCount)
}

func TestWriteTimeoutBlocksLaterWrites(t *testing.T) {
	port := serialtest.NewFakePort()
	conn, err := serialproto.NewConnection(&serialproto.Config{
		Port:         "/dev/ttyFAKE0",
		BaudRate:     115200,
		WriteTimeout: 30 * time.Millisecond,
	}, port.Opener(), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, conn.Open(context.Background()))

	release := port.BlockWrites()
	defer release()

	err = conn.Write([]byte("START"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")

	assert.ErrorIs(t, conn.Write([]byte("NEXT")), serialproto.ErrWriteStalled)
	assert.ErrorIs(t, conn.WriteChunked([]byte("NEXT"), 2, 0), serialproto.ErrWriteStalled)
	assert.Equal(t, 0, port.Writes())

	release()
	require.Eventually(t, func() bool {
		return conn.Write([]byte("NEXT")) == nil
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []byte("STARTNEXT"), port.Written())
}

func TestCloseIsIdempotent(t *testing.T) {
	port := serialtest.NewFakePort()
	conn := openConnection(t, port)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.True(t, port.IsClosed())

	assert.True(t, errors.Is(conn.Write([]byte("x")), serialproto.ErrNotOpen))
	_, _, err := conn.ReadLine(time.Now().Add(time.Second))
	assert.True(t, errors.Is(err, serialproto.ErrNotOpen))
}

func TestNewMode(t *testing.T) {
	mode, err := serialproto.NewMode(&serialproto.Config{BaudRate: 115200})
	require.NoError(t, err)
	assert.Equal(t, 115200, mode.BaudRate)
	assert.Equal(t, 8, mode.DataBits)

	_, err = serialproto.NewMode(&serialproto.Config{BaudRate: 9600, Parity: "mark"})
	assert.Error(t, err)

	_, err = serialproto.NewMode(&serialproto.Config{BaudRate: 9600, StopBits: 3})
	assert.Error(t, err)
}
