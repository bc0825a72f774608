package serial

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"digit-service/internal/discovery"
)

func fixedList(ports ...*enumerator.PortDetails) ListFunc {
	return func() ([]*enumerator.PortDetails, error) {
		return ports, nil
	}
}

func TestScanMarksSTMBoards(t *testing.T) {
	scanner := NewScanner(fixedList(
		&enumerator.PortDetails{Name: "/dev/ttyS0"},
		&enumerator.PortDetails{Name: "/dev/ttyACM0", IsUSB: true, VID: "0483", PID: "374B", Product: "STM32 STLink"},
		&enumerator.PortDetails{Name: "/dev/ttyUSB0", IsUSB: true, VID: "10C4", PID: "EA60"},
		nil,
	), zap.NewNop())

	ports, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, ports, 3)

	assert.False(t, ports[0].Likely)
	assert.True(t, ports[1].Likely)
	assert.Equal(t, "374b", ports[1].ProductID)
	assert.Equal(t, "STM32 STLink", ports[1].Product)
	assert.False(t, ports[2].Likely)
	assert.Greater(t, ports[2].Confidence, ports[0].Confidence)
}

func TestScanPropagatesErrors(t *testing.T) {
	scanner := NewScanner(func() ([]*enumerator.PortDetails, error) {
		return nil, errors.New("permission denied")
	}, zap.NewNop())

	_, err := scanner.Scan(context.Background())
	assert.ErrorContains(t, err, "permission denied")
}

func TestScanHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewScanner(fixedList(), zap.NewNop()).Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestManagerOrdersLikelyFirst(t *testing.T) {
	manager := discovery.NewScannerManager(zap.NewNop())
	manager.RegisterScanner(NewScanner(fixedList(
		&enumerator.PortDetails{Name: "COM1"},
		&enumerator.PortDetails{Name: "COM7", IsUSB: true, VID: "0483"},
		&enumerator.PortDetails{Name: "COM4", IsUSB: true, VID: "0403"},
	), zap.NewNop()))

	ports, err := manager.ScanAll(context.Background())
	require.NoError(t, err)
	require.Len(t, ports, 3)
	assert.Equal(t, "COM7", ports[0].Name)
	assert.Equal(t, "COM4", ports[1].Name)
	assert.Equal(t, "COM1", ports[2].Name)
}

func TestManagerFailsWhenAllScannersFail(t *testing.T) {
	manager := discovery.NewScannerManager(zap.NewNop())
	manager.RegisterScanner(NewScanner(func() ([]*enumerator.PortDetails, error) {
		return nil, errors.New("no access")
	}, zap.NewNop()))

	_, err := manager.ScanAll(context.Background())
	assert.Error(t, err)
}
