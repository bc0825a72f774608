package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"digit-service/internal/classifier"
	"digit-service/internal/config"
	"digit-service/internal/discovery"
	serialscan "digit-service/internal/discovery/serial"
	"digit-service/internal/events"
	"digit-service/internal/model"
	"digit-service/internal/protocol/serial/serialtest"
	"digit-service/internal/repository"
	"digit-service/internal/sample"
	"digit-service/internal/sketch"
)

var testPort = classifier.ConnectionConfig{Port: "/dev/ttyTEST0", BaudRate: 115200}

type fixture struct {
	service *ClassificationService
	port    *serialtest.FakePort
	repo    repository.ClassificationRepository
	events  *events.Subscription
}

func testDevice() config.DeviceConfig {
	return config.DeviceConfig{
		BaudRate:        115200,
		ReadTimeout:     50 * time.Millisecond,
		WriteTimeout:    time.Second,
		ChunkSize:       64,
		ResponseTimeout: 300 * time.Millisecond,
		HistorySize:     5,
		CanvasSize:      sketch.DefaultSize,
		StrokeWidth:     sketch.DefaultStrokeWidth,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := zap.NewNop()
	port := serialtest.NewFakePort()
	device := testDevice()

	bus := events.NewEventBus(logger)
	ctx, cancel := context.WithCancel(context.Background())
	go bus.Start(ctx)
	t.Cleanup(cancel)

	scanners := discovery.NewScannerManager(logger)
	scanners.RegisterScanner(serialscan.NewScanner(func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{{Name: "/dev/ttyTEST0", IsUSB: true, VID: "0483"}}, nil
	}, logger))

	repo := repository.NewMemoryRepository(0)
	session := classifier.NewSession(SessionOptions(device), port.Opener(), logger)

	f := &fixture{
		service: NewClassificationService(session, repo, bus, scanners, device, logger),
		port:    port,
		repo:    repo,
		events:  bus.Subscribe(),
	}
	t.Cleanup(func() {
		f.service.Shutdown(context.Background())
	})
	return f
}

func (f *fixture) connect(t *testing.T) {
	t.Helper()
	require.NoError(t, f.service.Connect(context.Background(), testPort))
}

func (f *fixture) nextEvent(t *testing.T) events.Event {
	t.Helper()
	select {
	case event := <-f.events.C:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return events.Event{}
	}
}

func whiteInput() Input {
	bitmap, _ := sample.NewBitmap(28, 28, bytesOf(28*28, 255))
	return Input{Source: model.SourcePixels, Bitmap: bitmap}
}

func bytesOf(n int, v byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestSessionOptions(t *testing.T) {
	device := testDevice()
	device.SettleDelay = 2 * time.Second

	options := SessionOptions(device)
	assert.Equal(t, 2*time.Second, options.SettleDelay)
	assert.Equal(t, 64, options.ChunkSize)
	assert.Equal(t, 5, options.HistorySize)
}

func TestConnectAsyncDeliversOneOutcome(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.service.ConnectAsync(testPort)
	require.NoError(t, err)

	result := <-outcome
	assert.NoError(t, result.Err)
	assert.Equal(t, testPort, result.Config)
	assert.True(t, f.service.IsReady())
	assert.Equal(t, events.SessionConnected, f.nextEvent(t).Type)
}

func TestConnectAsyncRejectsBadConfigSynchronously(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.ConnectAsync(classifier.ConnectionConfig{Port: "COM3", BaudRate: -1})
	assert.ErrorIs(t, err, classifier.ErrConfig)
}

func TestConnectFailurePublishesEvent(t *testing.T) {
	f := newFixture(t)
	session := classifier.NewSession(SessionOptions(testDevice()), serialtest.FailingOpener(errors.New("busy port")), zap.NewNop())
	f.service.session = session

	err := f.service.Connect(context.Background(), testPort)
	assert.ErrorIs(t, err, classifier.ErrConnect)

	event := f.nextEvent(t)
	assert.Equal(t, events.SessionConnectFailed, event.Type)
	assert.Equal(t, string(classifier.KindConnect), event.Data["error_kind"])
}

func TestClassifyAsyncSuccess(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	f.nextEvent(t)

	f.port.Reply(false, "6\r\n")

	record, results, err := f.service.ClassifyAsync(context.Background(), whiteInput())
	require.NoError(t, err)
	assert.Equal(t, model.ClassificationStatusPending, record.Status)
	assert.Equal(t, testPort.Port, record.Port)

	result := <-results
	require.NoError(t, result.Err)
	assert.Equal(t, 6, result.Prediction.Digit)

	stored, err := f.service.GetClassification(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClassificationStatusSuccess, stored.Status)
	assert.Equal(t, 6, *stored.Digit)

	assert.Equal(t, events.ClassificationStarted, f.nextEvent(t).Type)
	completed := f.nextEvent(t)
	assert.Equal(t, events.ClassificationCompleted, completed.Type)
	assert.Equal(t, 6, completed.Data["digit"])

	// The white input encodes to an all-zero sample
	assert.Equal(t, bytesOf(sample.Size, 0), f.port.Written()[5:])
}

func TestClassifyRecordsDeviceFailure(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	f.port.Reply(false, "ERROR: inference failed\n")

	result, err := f.service.Classify(context.Background(), whiteInput())
	require.ErrorIs(t, err, classifier.ErrDevice)

	stored, err := f.service.GetClassification(context.Background(), result.Classification.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClassificationStatusFailed, stored.Status)
	assert.Equal(t, string(classifier.KindDevice), *stored.ErrorKind)
}

func TestClassifyRecordsTimeout(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	result, err := f.service.Classify(context.Background(), whiteInput())
	require.ErrorIs(t, err, classifier.ErrTimeout)
	assert.Equal(t, model.ClassificationStatusTimeout, result.Classification.Status)
}

func TestClassifyRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	_, _, err := f.service.ClassifyAsync(context.Background(), Input{Source: model.SourcePixels, Bitmap: &sample.Bitmap{Width: 2, Height: 2}})
	assert.ErrorIs(t, err, classifier.ErrInvalidInput)

	list, err := f.service.ListClassifications(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestClassifyRequiresConnection(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.service.ClassifyAsync(context.Background(), whiteInput())
	assert.ErrorIs(t, err, classifier.ErrNotConnected)
}

func TestClassifyWhileBusy(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	_, first, err := f.service.ClassifyAsync(context.Background(), whiteInput())
	require.NoError(t, err)

	require.Eventually(t, f.service.session.IsBusy, time.Second, 2*time.Millisecond)

	_, _, err = f.service.ClassifyAsync(context.Background(), whiteInput())
	assert.ErrorIs(t, err, classifier.ErrBusy)

	assert.ErrorIs(t, (<-first).Err, classifier.ErrTimeout)
}

func TestClassifyContextEndsBeforeOutcome(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result, err := f.service.Classify(ctx, whiteInput())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, result.Classification)

	// The exchange still completes in the background
	assert.Eventually(t, func() bool {
		stored, err := f.service.GetClassification(context.Background(), result.Classification.ID)
		return err == nil && stored.Status == model.ClassificationStatusTimeout
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDisconnectPublishesEvent(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	f.nextEvent(t)

	f.service.Disconnect()
	assert.False(t, f.service.IsReady())
	assert.True(t, f.port.IsClosed())

	event := f.nextEvent(t)
	assert.Equal(t, events.SessionDisconnected, event.Type)
	assert.Equal(t, testPort.Port, event.Data["port"])
}

func TestRenderStrokes(t *testing.T) {
	f := newFixture(t)

	bitmap, err := f.service.RenderStrokes([][]sketch.Point{{{X: 160, Y: 40}, {X: 160, Y: 280}}}, 0)
	require.NoError(t, err)
	assert.Equal(t, sketch.DefaultSize, bitmap.Width)

	blank, err := f.service.RenderStrokes(nil, 28)
	require.NoError(t, err)
	assert.Equal(t, 28, blank.Width)
	for _, v := range blank.Pix {
		require.Equal(t, byte(255), v)
	}

	_, err = f.service.RenderStrokes([][]sketch.Point{{{X: 1, Y: 1}}}, sketch.MaxSize+1)
	assert.ErrorIs(t, err, sample.ErrInvalidInput)
}

func TestListPorts(t *testing.T) {
	f := newFixture(t)

	ports, err := f.service.ListPorts(context.Background())
	require.NoError(t, err)
	require.Len(t, ports, 1)
	assert.True(t, ports[0].Likely)
}

func TestShutdownRejectsNewWork(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	require.NoError(t, f.service.Shutdown(context.Background()))
	assert.False(t, f.service.IsReady())

	_, err := f.service.ConnectAsync(testPort)
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestStatsAndPrune(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	f.port.Reply(false, "1\n")
	_, err := f.service.Classify(context.Background(), whiteInput())
	require.NoError(t, err)

	stats, err := f.service.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.ByDigit[1])

	removed, err := f.service.PruneHistory(context.Background(), -time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}
