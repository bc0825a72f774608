package classifier_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"digit-service/internal/classifier"
	"digit-service/internal/protocol/serial/serialtest"
	"digit-service/internal/sample"
)

var testConfig = classifier.ConnectionConfig{Port: "/dev/ttyTEST0", BaudRate: 115200}

func fastOptions() classifier.Options {
	return classifier.Options{
		ReadTimeout:     50 * time.Millisecond,
		WriteTimeout:    time.Second,
		ChunkSize:       64,
		ResponseTimeout: 300 * time.Millisecond,
		HistorySize:     5,
	}
}

func testSample() sample.Sample {
	var s sample.Sample
	for i := range s {
		s[i] = byte(i % 256)
	}
	return s
}

func connectedSession(t *testing.T, options classifier.Options) (*classifier.Session, *serialtest.FakePort) {
	t.Helper()

	port := serialtest.NewFakePort()
	session := classifier.NewSession(options, port.Opener(), zap.NewNop())
	require.NoError(t, session.Connect(context.Background(), testConfig))
	t.Cleanup(session.Disconnect)
	return session, port
}

func TestClassifyReturnsDigit(t *testing.T) {
	session, port := connectedSession(t, fastOptions())
	port.Reply(false, "7\r\n")

	readsBefore := port.Reads()
	prediction, err := session.Classify(context.Background(), testSample())
	require.NoError(t, err)

	assert.Equal(t, 7, prediction.Digit)
	assert.True(t, prediction.InRange())
	assert.Equal(t, []string{"7"}, prediction.Lines)
	assert.Equal(t, 1, port.Reads()-readsBefore)
}

func TestClassifyWritesStartThenSample(t *testing.T) {
	session, port := connectedSession(t, fastOptions())
	port.Reply(false, "3\n")

	smp := testSample()
	_, err := session.Classify(context.Background(), smp)
	require.NoError(t, err)

	written := port.Written()
	require.Len(t, written, serialtest.ExchangeBytes)
	assert.Equal(t, "START", string(written[:5]))
	assert.True(t, bytes.Equal(smp.Bytes(), written[5:]))
	// START plus 13 chunks, each flushed
	assert.Equal(t, 14, port.Writes())
	assert.Equal(t, 14, port.Drains())
}

func TestClassifySkipsNoiseBeforeDigit(t *testing.T) {
	session, port := connectedSession(t, fastOptions())
	port.Reply(false, "\r\n", "Received 784 bytes\r\n", "  \r\n", "4\r\n")

	prediction, err := session.Classify(context.Background(), testSample())
	require.NoError(t, err)
	assert.Equal(t, 4, prediction.Digit)
	assert.Equal(t, []string{"Received 784 bytes", "4"}, prediction.Lines)
}

func TestClassifyAcceptsOutOfRangeInteger(t *testing.T) {
	session, port := connectedSession(t, fastOptions())
	port.Reply(false, "42\n")

	prediction, err := session.Classify(context.Background(), testSample())
	require.NoError(t, err)
	assert.Equal(t, 42, prediction.Digit)
	assert.False(t, prediction.InRange())
}

func TestClassifyOverflowingIntegerIsDeviceError(t *testing.T) {
	session, port := connectedSession(t, fastOptions())
	port.Reply(false, "noise\n", "99999999999999999999999\n")

	prediction, err := session.Classify(context.Background(), testSample())
	assert.Nil(t, prediction)
	require.ErrorIs(t, err, classifier.ErrDevice)

	var classifierErr *classifier.Error
	require.True(t, errors.As(err, &classifierErr))
	assert.Contains(t, classifierErr.Message, "out of range")
	assert.Equal(t, []string{"noise", "99999999999999999999999"}, classifierErr.Lines)
	assert.True(t, session.IsConnected())
}

func TestClassifyDeviceError(t *testing.T) {
	session, port := connectedSession(t, fastOptions())
	port.Reply(false, "garbage\n", "ERROR bad input\n")

	prediction, err := session.Classify(context.Background(), testSample())
	require.Error(t, err)
	assert.Nil(t, prediction)
	assert.ErrorIs(t, err, classifier.ErrDevice)
	assert.Contains(t, err.Error(), "bad input")

	var classifierErr *classifier.Error
	require.True(t, errors.As(err, &classifierErr))
	assert.Equal(t, "ERROR bad input", classifierErr.Message)
	assert.True(t, session.IsConnected())
}

func TestClassifyDeviceErrorIsCaseInsensitive(t *testing.T) {
	session, port := connectedSession(t, fastOptions())
	port.Reply(false, "Inference error: timeout\n")

	_, err := session.Classify(context.Background(), testSample())
	assert.ErrorIs(t, err, classifier.ErrDevice)
}

func TestClassifyTimeoutWithoutOutput(t *testing.T) {
	session, _ := connectedSession(t, fastOptions())

	start := time.Now()
	_, err := session.Classify(context.Background(), testSample())
	assert.ErrorIs(t, err, classifier.ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
	assert.True(t, session.IsConnected())
}

func TestClassifyNoDigitFoundAtEndOfStream(t *testing.T) {
	session, port := connectedSession(t, fastOptions())
	port.Reply(true, "foo\n", "bar\n", "baz\n")

	_, err := session.Classify(context.Background(), testSample())
	require.ErrorIs(t, err, classifier.ErrNoDigitFound)

	var classifierErr *classifier.Error
	require.True(t, errors.As(err, &classifierErr))
	assert.Equal(t, []string{"foo", "bar", "baz"}, classifierErr.Lines)
}

func TestClassifyKeepsRecentHistory(t *testing.T) {
	session, port := connectedSession(t, fastOptions())
	port.Reply(true, "l1\n", "l2\n", "l3\n", "l4\n", "l5\n", "l6\n", "l7")

	_, err := session.Classify(context.Background(), testSample())
	require.ErrorIs(t, err, classifier.ErrNoDigitFound)

	var classifierErr *classifier.Error
	require.True(t, errors.As(err, &classifierErr))
	assert.Equal(t, []string{"l3", "l4", "l5", "l6", "l7"}, classifierErr.Lines)
}

func TestClassifyNoDigitFoundAtDeadline(t *testing.T) {
	session, port := connectedSession(t, fastOptions())
	port.Reply(false, "thinking\n")

	_, err := session.Classify(context.Background(), testSample())
	assert.ErrorIs(t, err, classifier.ErrNoDigitFound)
}

func TestClassifyDropsInvalidUTF8(t *testing.T) {
	session, port := connectedSession(t, fastOptions())
	port.Reply(false, "\xff\xfe5\r\n")

	prediction, err := session.Classify(context.Background(), testSample())
	require.NoError(t, err)
	assert.Equal(t, 5, prediction.Digit)
}

func TestClassifyRequiresConnection(t *testing.T) {
	session := classifier.NewSession(fastOptions(), serialtest.NewFakePort().Opener(), zap.NewNop())

	_, err := session.Classify(context.Background(), testSample())
	assert.ErrorIs(t, err, classifier.ErrNotConnected)
}

func TestClassifyWhileBusy(t *testing.T) {
	options := fastOptions()
	options.ResponseTimeout = 500 * time.Millisecond
	session, port := connectedSession(t, options)

	done := make(chan error, 1)
	go func() {
		_, err := session.Classify(context.Background(), testSample())
		done <- err
	}()

	require.Eventually(t, func() bool {
		return len(port.Written()) == serialtest.ExchangeBytes
	}, time.Second, 5*time.Millisecond)
	assert.True(t, session.IsBusy())

	writes := port.Writes()
	resets := port.InputResets()

	_, err := session.Classify(context.Background(), testSample())
	assert.ErrorIs(t, err, classifier.ErrBusy)
	assert.Equal(t, writes, port.Writes())
	assert.Equal(t, resets, port.InputResets())

	assert.ErrorIs(t, <-done, classifier.ErrTimeout)
	assert.False(t, session.IsBusy())
}

func TestClassifyCancelledBeforeStart(t *testing.T) {
	session, port := connectedSession(t, fastOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := session.Classify(ctx, testSample())
	assert.ErrorIs(t, err, classifier.ErrCommunication)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, port.Written())
}

func TestClassifyWriteFailure(t *testing.T) {
	session, port := connectedSession(t, fastOptions())
	port.FailWrites(errors.New("cable unplugged"))

	_, err := session.Classify(context.Background(), testSample())
	assert.ErrorIs(t, err, classifier.ErrCommunication)
	assert.True(t, session.IsConnected())
}

func TestClassifyReadFailure(t *testing.T) {
	session, port := connectedSession(t, fastOptions())
	port.FailReads(errors.New("framing error"))

	_, err := session.Classify(context.Background(), testSample())
	assert.ErrorIs(t, err, classifier.ErrCommunication)
}

func TestDisconnectAbortsExchange(t *testing.T) {
	options := fastOptions()
	options.ResponseTimeout = 5 * time.Second
	session, port := connectedSession(t, options)

	done := make(chan error, 1)
	go func() {
		_, err := session.Classify(context.Background(), testSample())
		done <- err
	}()

	require.Eventually(t, func() bool {
		return len(port.Written()) == serialtest.ExchangeBytes
	}, time.Second, 5*time.Millisecond)
	session.Disconnect()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, classifier.ErrCommunication), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("exchange did not end after disconnect")
	}
	assert.False(t, session.IsBusy())
}

func TestClassifyRecordsStats(t *testing.T) {
	session, port := connectedSession(t, fastOptions())
	port.Reply(false, "1\n")

	_, err := session.Classify(context.Background(), testSample())
	require.NoError(t, err)

	port.Reply(false, "ERROR\n")
	_, err = session.Classify(context.Background(), testSample())
	require.Error(t, err)

	stats := session.Stats()
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Succeeded)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.ByKind[classifier.KindDevice])
	assert.NotEmpty(t, stats.LastError)
}

func TestConnectFailure(t *testing.T) {
	session := classifier.NewSession(fastOptions(), serialtest.FailingOpener(errors.New("no such device")), zap.NewNop())

	err := session.Connect(context.Background(), testConfig)
	assert.ErrorIs(t, err, classifier.ErrConnect)
	assert.Contains(t, err.Error(), "no such device")
	assert.False(t, session.IsConnected())
	assert.Equal(t, classifier.StateDisconnected, session.State())
}

func TestConnectRejectsInvalidConfig(t *testing.T) {
	session := classifier.NewSession(fastOptions(), serialtest.NewFakePort().Opener(), zap.NewNop())

	err := session.Connect(context.Background(), classifier.ConnectionConfig{Port: "COM3"})
	assert.ErrorIs(t, err, classifier.ErrConfig)

	err = session.Connect(context.Background(), classifier.ConnectionConfig{BaudRate: 9600})
	assert.ErrorIs(t, err, classifier.ErrConfig)
}

func TestConnectDrainsBanner(t *testing.T) {
	options := fastOptions()
	options.BannerWindow = 100 * time.Millisecond

	port := serialtest.NewFakePort()
	port.Feed("STM32F411 Ready - Cube AI Initialized\r\n", "\r\n")

	session := classifier.NewSession(options, port.Opener(), zap.NewNop())
	require.NoError(t, session.Connect(context.Background(), testConfig))
	defer session.Disconnect()

	assert.Equal(t, []string{"STM32F411 Ready - Cube AI Initialized"}, session.Banner())

	port.Reply(false, "9\n")
	prediction, err := session.Classify(context.Background(), testSample())
	require.NoError(t, err)
	assert.Equal(t, 9, prediction.Digit)
}

func TestConnectIsIdempotent(t *testing.T) {
	session, port := connectedSession(t, fastOptions())

	require.NoError(t, session.Connect(context.Background(), classifier.ConnectionConfig{Port: "/dev/other", BaudRate: 9600}))
	assert.Equal(t, testConfig, session.Config())
	assert.False(t, port.IsClosed())
}

func TestConnectHonoursContextDuringSettle(t *testing.T) {
	options := fastOptions()
	options.SettleDelay = time.Second

	port := serialtest.NewFakePort()
	session := classifier.NewSession(options, port.Opener(), zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := session.Connect(ctx, testConfig)
	assert.ErrorIs(t, err, classifier.ErrConnect)
	assert.True(t, port.IsClosed())
	assert.Equal(t, classifier.StateDisconnected, session.State())
}

func TestDisconnect(t *testing.T) {
	session, port := connectedSession(t, fastOptions())

	session.Disconnect()
	assert.True(t, port.IsClosed())
	assert.False(t, session.IsConnected())

	session.Disconnect()

	_, err := session.Classify(context.Background(), testSample())
	assert.ErrorIs(t, err, classifier.ErrNotConnected)
}

func TestDisconnectWithoutConnect(t *testing.T) {
	session := classifier.NewSession(fastOptions(), nil, zap.NewNop())
	assert.NotPanics(t, session.Disconnect)
	assert.Equal(t, classifier.StateDisconnected, session.State())
}

func TestReconnectAfterDisconnect(t *testing.T) {
	session, _ := connectedSession(t, fastOptions())
	session.Disconnect()

	port := serialtest.NewFakePort()
	reconnected := classifier.NewSession(fastOptions(), port.Opener(), zap.NewNop())
	require.NoError(t, reconnected.Connect(context.Background(), testConfig))
	defer reconnected.Disconnect()

	port.Reply(false, "0\n")
	prediction, err := reconnected.Classify(context.Background(), testSample())
	require.NoError(t, err)
	assert.Equal(t, 0, prediction.Digit)
}

func TestStatus(t *testing.T) {
	session, port := connectedSession(t, fastOptions())
	port.Reply(false, "2\n")
	_, err := session.Classify(context.Background(), testSample())
	require.NoError(t, err)

	status := session.Status()
	assert.Equal(t, classifier.StateConnected, status.State)
	assert.Equal(t, testConfig.Port, status.Port)
	assert.NotNil(t, status.ConnectedSince)
	require.NotNil(t, status.Link)
	assert.Equal(t, int64(serialtest.ExchangeBytes), status.Link.BytesWritten)
	assert.Equal(t, int64(1), status.Exchanges.Succeeded)

	session.Disconnect()
	status = session.Status()
	assert.Equal(t, classifier.StateDisconnected, status.State)
	assert.Nil(t, status.Link)
	assert.Nil(t, status.ConnectedSince)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "DISCONNECTED", classifier.StateDisconnected.String())
	assert.Equal(t, "CONNECTING", classifier.StateConnecting.String())
	assert.Equal(t, "CONNECTED", classifier.StateConnected.String())
}

func TestParseConnectionConfig(t *testing.T) {
	config, err := classifier.ParseConnectionConfig(" COM3 ", "115200")
	require.NoError(t, err)
	assert.Equal(t, classifier.ConnectionConfig{Port: "COM3", BaudRate: 115200}, config)

	for _, baud := range []string{"", "fast", "-9600", "0"} {
		_, err := classifier.ParseConnectionConfig("COM3", baud)
		assert.ErrorIs(t, err, classifier.ErrConfig, baud)
	}

	_, err = classifier.ParseConnectionConfig("  ", "9600")
	assert.ErrorIs(t, err, classifier.ErrConfig)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, classifier.ErrorKind(""), classifier.KindOf(nil))
	assert.Equal(t, classifier.KindInvalidInput, classifier.KindOf(sample.ErrInvalidInput))
	assert.Equal(t, classifier.KindUnknown, classifier.KindOf(errors.New("boom")))

	_, err := sample.Encode(nil)
	assert.Equal(t, classifier.KindInvalidInput, classifier.KindOf(err))
}

func TestErrorMessage(t *testing.T) {
	err := &classifier.Error{Kind: classifier.KindNoDigitFound, Message: "nothing", Lines: []string{"a", "b"}}
	assert.True(t, strings.HasPrefix(err.Error(), "no digit found: nothing"))
	assert.Contains(t, err.Error(), "a, b")
}
