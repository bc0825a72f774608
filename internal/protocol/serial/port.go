// internal/protocol/serial/port.go
package serial

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Port is the duplex byte stream to the device. go.bug.st/serial ports satisfy it.
// Read returns (0, nil) when the read timeout expires without data.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	ResetOutputBuffer() error
	Drain() error
}

// Opener opens a named port in the given mode
type Opener func(name string, mode *serial.Mode) (Port, error)

// OpenSystemPort opens an operating system serial port
func OpenSystemPort(name string, mode *serial.Mode) (Port, error) {
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// NewMode builds a serial mode from configuration values
func NewMode(config *Config) (*serial.Mode, error) {
	if config.BaudRate <= 0 {
		return nil, fmt.Errorf("invalid baud rate: %d", config.BaudRate)
	}

	mode := &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: config.DataBits,
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}

	// Set stop bits
	switch config.StopBits {
	case 0, 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("unsupported stop bits: %d", config.StopBits)
	}

	// Set parity
	switch config.Parity {
	case "", "none":
		mode.Parity = serial.NoParity
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	default:
		return nil, fmt.Errorf("unsupported parity: %s", config.Parity)
	}

	return mode, nil
}
