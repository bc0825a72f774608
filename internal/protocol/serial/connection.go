// internal/protocol/serial/connection.go
package serial

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// readChunkSize is the largest single read from the port
const readChunkSize = 256

// Connection represents a serial port connection with a line reader
type Connection struct {
	config *Config
	opener Opener
	port   Port
	logger *zap.Logger
	mutex  sync.RWMutex
	isOpen bool

	// pending holds bytes read past the last returned line
	pending []byte

	// stalled is the write still running on the port after its timeout
	stalled atomic.Pointer[portWrite]

	bytesWritten atomic.Int64
	bytesRead    atomic.Int64
	errorCount   atomic.Int64
	lastActivity atomic.Int64
}

// Config represents serial port configuration
type Config struct {
	Port         string        `json:"port"`
	BaudRate     int           `json:"baud_rate"`
	DataBits     int           `json:"data_bits"`
	StopBits     int           `json:"stop_bits"`
	Parity       string        `json:"parity"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// Stats provides connection-level counters
type Stats struct {
	BytesWritten int64     `json:"bytes_written"`
	BytesRead    int64     `json:"bytes_read"`
	ErrorCount   int64     `json:"error_count"`
	LastActivity time.Time `json:"last_activity"`
	IsOpen       bool      `json:"is_open"`
}

// ErrNotOpen is returned for I/O on a closed connection
var ErrNotOpen = errors.New("port not open")

// ErrWriteStalled is returned while a timed out write has not returned yet
var ErrWriteStalled = errors.New("previous write still pending")

type portWrite struct {
	done atomic.Bool
}

// NewConnection creates a new serial connection. A nil opener uses the system ports.
func NewConnection(config *Config, opener Opener, logger *zap.Logger) (*Connection, error) {
	if config.Port == "" {
		return nil, fmt.Errorf("port is required")
	}
	if opener == nil {
		opener = OpenSystemPort
	}

	return &Connection{
		config: config,
		opener: opener,
		logger: logger.With(zap.String("port", config.Port)),
	}, nil
}

// Open opens the serial connection
func (c *Connection) Open(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.isOpen {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	mode, err := NewMode(c.config)
	if err != nil {
		return fmt.Errorf("invalid serial mode: %w", err)
	}

	// Open port
	port, err := c.opener(c.config.Port, mode)
	if err != nil {
		c.logger.Error("Failed to open serial port", zap.Error(err))
		return fmt.Errorf("failed to open serial port: %w", err)
	}

	// Set timeouts
	if c.config.ReadTimeout > 0 {
		if err := port.SetReadTimeout(c.config.ReadTimeout); err != nil {
			port.Close()
			return fmt.Errorf("failed to set read timeout: %w", err)
		}
	}

	c.port = port
	c.isOpen = true
	c.pending = nil
	c.stalled.Store(nil)
	c.touch()

	c.logger.Info("Serial port opened successfully",
		zap.Int("baud_rate", c.config.BaudRate),
		zap.Duration("read_timeout", c.config.ReadTimeout),
		zap.Duration("write_timeout", c.config.WriteTimeout),
	)

	return nil
}

// Close closes the serial connection. Closing a closed connection is a no-op.
func (c *Connection) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.isOpen || c.port == nil {
		return nil
	}

	err := c.port.Close()
	c.port = nil
	c.isOpen = false

	if err != nil {
		c.logger.Error("Failed to close serial port", zap.Error(err))
		return fmt.Errorf("failed to close serial port: %w", err)
	}

	c.logger.Info("Serial port closed")
	return nil
}

// IsOpen returns whether the connection is open
func (c *Connection) IsOpen() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.isOpen && c.port != nil
}

// Write writes all of data, bounded by the write timeout. After a timeout
// further writes fail with ErrWriteStalled until the stuck write returns or
// the port is reopened.
func (c *Connection) Write(data []byte) error {
	port, err := c.activePort()
	if err != nil {
		return err
	}
	if c.stalled.Load() != nil {
		c.errorCount.Add(1)
		return ErrWriteStalled
	}

	type writeResult struct {
		n   int
		err error
	}
	op := &portWrite{}
	done := make(chan writeResult, 1)
	go func() {
		n, err := port.Write(data)
		op.done.Store(true)
		c.stalled.CompareAndSwap(op, nil)
		done <- writeResult{n: n, err: err}
	}()

	var timeout <-chan time.Time
	if c.config.WriteTimeout > 0 {
		timer := time.NewTimer(c.config.WriteTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case result := <-done:
		if result.err != nil {
			c.errorCount.Add(1)
			c.logger.Error("Failed to write to serial port",
				zap.Error(result.err),
				zap.Int("bytes_to_write", len(data)),
			)
			return fmt.Errorf("failed to write to serial port: %w", result.err)
		}
		if result.n != len(data) {
			c.errorCount.Add(1)
			return fmt.Errorf("incomplete write: wrote %d of %d bytes", result.n, len(data))
		}

	case <-timeout:
		c.errorCount.Add(1)
		c.stalled.Store(op)
		if op.done.Load() {
			c.stalled.CompareAndSwap(op, nil)
		}
		c.logger.Error("Serial write timed out",
			zap.Duration("write_timeout", c.config.WriteTimeout),
			zap.Int("bytes_to_write", len(data)),
		)
		return fmt.Errorf("write timed out after %s", c.config.WriteTimeout)
	}

	c.bytesWritten.Add(int64(len(data)))
	c.touch()

	c.logger.Debug("Data written to serial port", zap.Int("bytes_written", len(data)))
	return nil
}

// WriteChunked writes data in chunks of at most size bytes, flushing after
// each chunk and pausing between chunks
func (c *Connection) WriteChunked(data []byte, size int, pause time.Duration) error {
	if size <= 0 {
		return fmt.Errorf("invalid chunk size: %d", size)
	}

	for offset := 0; offset < len(data); offset += size {
		end := offset + size
		if end > len(data) {
			end = len(data)
		}

		if err := c.Write(data[offset:end]); err != nil {
			return fmt.Errorf("failed to write chunk at offset %d: %w", offset, err)
		}
		if err := c.Flush(); err != nil {
			return err
		}
		if pause > 0 {
			time.Sleep(pause)
		}
	}

	return nil
}

// Flush blocks until written data has been transmitted
func (c *Connection) Flush() error {
	port, err := c.activePort()
	if err != nil {
		return err
	}

	if err := port.Drain(); err != nil {
		c.errorCount.Add(1)
		return fmt.Errorf("failed to flush serial port: %w", err)
	}
	return nil
}

// Reset discards unread input, unsent output and any buffered partial line
func (c *Connection) Reset() error {
	port, err := c.activePort()
	if err != nil {
		return err
	}

	c.pending = nil

	if err := port.ResetInputBuffer(); err != nil {
		c.errorCount.Add(1)
		return fmt.Errorf("failed to reset input buffer: %w", err)
	}
	if err := port.ResetOutputBuffer(); err != nil {
		c.errorCount.Add(1)
		return fmt.Errorf("failed to reset output buffer: %w", err)
	}
	return nil
}

// ReadLine reads until a newline or the deadline. It returns ok=false when the
// deadline passes with nothing buffered and io.EOF when the stream has ended.
// A trailing partial line is returned as a line. The newline is not included.
func (c *Connection) ReadLine(deadline time.Time) (string, bool, error) {
	chunk := make([]byte, readChunkSize)

	for {
		if i := bytes.IndexByte(c.pending, '\n'); i >= 0 {
			line := string(c.pending[:i])
			c.pending = c.pending[i+1:]
			return line, true, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			if line, ok := c.takePending(); ok {
				return line, true, nil
			}
			return "", false, nil
		}

		port, err := c.activePort()
		if err != nil {
			return "", false, err
		}

		slice := remaining
		if c.config.ReadTimeout > 0 && slice > c.config.ReadTimeout {
			slice = c.config.ReadTimeout
		}
		if err := port.SetReadTimeout(slice); err != nil {
			c.errorCount.Add(1)
			return "", false, fmt.Errorf("failed to set read timeout: %w", err)
		}

		n, err := port.Read(chunk)
		if n > 0 {
			c.pending = append(c.pending, chunk[:n]...)
			c.bytesRead.Add(int64(n))
			c.touch()

			c.logger.Debug("Data read from serial port",
				zap.Int("bytes_read", n),
				zap.Binary("data", chunk[:n]),
			)
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				if bytes.IndexByte(c.pending, '\n') >= 0 {
					continue
				}
				if line, ok := c.takePending(); ok {
					return line, true, nil
				}
				return "", false, io.EOF
			}

			c.errorCount.Add(1)
			c.logger.Error("Failed to read from serial port", zap.Error(err))
			return "", false, fmt.Errorf("failed to read from serial port: %w", err)
		}
	}
}

// GetStats returns a snapshot of connection counters
func (c *Connection) GetStats() Stats {
	stats := Stats{
		BytesWritten: c.bytesWritten.Load(),
		BytesRead:    c.bytesRead.Load(),
		ErrorCount:   c.errorCount.Load(),
		IsOpen:       c.IsOpen(),
	}
	if ts := c.lastActivity.Load(); ts > 0 {
		stats.LastActivity = time.Unix(0, ts)
	}
	return stats
}

func (c *Connection) activePort() (Port, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if !c.isOpen || c.port == nil {
		return nil, ErrNotOpen
	}
	return c.port, nil
}

func (c *Connection) takePending() (string, bool) {
	if len(c.pending) == 0 {
		return "", false
	}
	line := string(c.pending)
	c.pending = nil
	return line, true
}

func (c *Connection) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}
