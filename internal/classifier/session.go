// internal/classifier/session.go
package classifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"digit-service/internal/protocol/serial"
	"digit-service/internal/sample"
	"digit-service/internal/utils"
)

// startCommand switches the device into receive mode. It has no terminator.
var startCommand = []byte("START")

// errorToken marks a device-reported failure line, matched case-insensitively
const errorToken = "ERROR"

// maxBannerLines bounds the startup lines kept for status reporting
const maxBannerLines = 8

// State is the connection lifecycle state
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "DISCONNECTED"
	}
}

// MarshalText encodes the state name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Prediction is a successful classification
type Prediction struct {
	Digit    int           `json:"digit"`
	Lines    []string      `json:"lines,omitempty"`
	Duration time.Duration `json:"duration"`
}

// InRange reports whether the device answered with a digit 0-9. The protocol
// accepts any integer; callers decide how to treat values outside the range.
func (p *Prediction) InRange() bool {
	return p.Digit >= 0 && p.Digit <= 9
}

// Session owns the duplex stream to one device. At most one exchange runs at a time.
type Session struct {
	options Options
	opener  serial.Opener
	base    *zap.Logger
	logger  *utils.DeviceLogger

	mutex      sync.Mutex
	conn       *serial.Connection
	config     ConnectionConfig
	state      State
	generation uint64
	banner     []string
	since      time.Time

	busy  atomic.Bool
	stats statsRecorder
}

// NewSession creates a disconnected session. A nil opener uses system serial ports.
func NewSession(options Options, opener serial.Opener, logger *zap.Logger) *Session {
	return &Session{
		options: options.normalized(),
		opener:  opener,
		base:    logger,
		logger:  utils.NewDeviceLogger(logger, ""),
	}
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

// IsConnected reports whether the session is ready for exchanges
func (s *Session) IsConnected() bool {
	return s.State() == StateConnected
}

// IsBusy reports whether an exchange is in flight
func (s *Session) IsBusy() bool {
	return s.busy.Load()
}

// Config returns the connection parameters of the current or last connection
func (s *Session) Config() ConnectionConfig {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.config
}

// Banner returns the startup lines drained during connect
func (s *Session) Banner() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]string(nil), s.banner...)
}

// Connect opens the port, waits for the device to boot, discards its banner
// and resets both buffers. Connecting an already connected session is a no-op.
func (s *Session) Connect(ctx context.Context, config ConnectionConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}

	s.mutex.Lock()
	switch s.state {
	case StateConnected:
		s.mutex.Unlock()
		return nil
	case StateConnecting:
		s.mutex.Unlock()
		return newError(KindBusy, "connect already in progress", nil)
	}
	s.state = StateConnecting
	s.config = config
	generation := s.generation
	s.mutex.Unlock()

	logger := utils.NewDeviceLogger(s.base, config.Port)
	logger.Info("Connecting to device", zap.Int("baud_rate", config.BaudRate))

	conn, banner, err := s.open(ctx, config, logger)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err == nil && s.generation != generation {
		conn.Close()
		err = newError(KindConnect, "connection cancelled by disconnect", nil)
	}
	if err != nil {
		if s.generation == generation {
			s.state = StateDisconnected
		}
		logger.LogConnection("connect", false, err)
		return err
	}

	s.conn = conn
	s.logger = logger
	s.banner = banner
	s.state = StateConnected
	s.since = time.Now()

	logger.LogConnection("connect", true, nil)
	return nil
}

func (s *Session) open(ctx context.Context, config ConnectionConfig, logger *utils.DeviceLogger) (*serial.Connection, []string, error) {
	conn, err := serial.NewConnection(&serial.Config{
		Port:         config.Port,
		BaudRate:     config.BaudRate,
		ReadTimeout:  s.options.ReadTimeout,
		WriteTimeout: s.options.WriteTimeout,
	}, s.opener, s.base)
	if err != nil {
		return nil, nil, newError(KindConnect, "failed to create connection", err)
	}

	if err := conn.Open(ctx); err != nil {
		return nil, nil, newError(KindConnect, fmt.Sprintf("failed to open %s", config.Port), err)
	}

	// Let the device finish booting before the line is used
	if err := sleepContext(ctx, s.options.SettleDelay); err != nil {
		conn.Close()
		return nil, nil, newError(KindConnect, "connect cancelled", err)
	}

	banner := s.drainBanner(conn, logger)

	if err := conn.Reset(); err != nil {
		conn.Close()
		return nil, nil, newError(KindConnect, "failed to reset buffers", err)
	}

	return conn, banner, nil
}

// drainBanner discards startup output for the banner window. Best effort.
func (s *Session) drainBanner(conn *serial.Connection, logger *utils.DeviceLogger) []string {
	var banner []string
	deadline := time.Now().Add(s.options.BannerWindow)

	for time.Now().Before(deadline) {
		raw, ok, err := conn.ReadLine(deadline)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug("Banner drain stopped", zap.Error(err))
			}
			break
		}
		if !ok {
			break
		}

		line := decodeLine(raw)
		if line == "" {
			continue
		}
		logger.Debug("Discarded banner line", zap.String("line", line))
		if len(banner) < maxBannerLines {
			banner = append(banner, line)
		}
	}

	return banner
}

// Disconnect closes the stream. It never fails and may be called at any time;
// an in-flight exchange then ends with a communication error.
func (s *Session) Disconnect() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.generation++
	conn := s.conn
	s.conn = nil
	wasConnected := s.state == StateConnected
	s.state = StateDisconnected
	s.banner = nil

	if conn == nil {
		return
	}

	if err := conn.Close(); err != nil {
		s.logger.Debug("Ignoring close error", zap.Error(err))
	}
	if wasConnected {
		s.logger.LogConnection("disconnect", true, nil)
	}
}

// Classify sends one sample and waits for the device's answer. Concurrent
// calls fail with Busy without touching the stream. The context is honoured
// until START is written; after that the exchange runs to completion.
func (s *Session) Classify(ctx context.Context, smp sample.Sample) (*Prediction, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, newError(KindBusy, "an exchange is already in flight", nil)
	}
	defer s.busy.Store(false)

	s.mutex.Lock()
	conn, logger, state := s.conn, s.logger, s.state
	s.mutex.Unlock()

	if state != StateConnected || conn == nil {
		return nil, newError(KindNotConnected, "device is not connected", nil)
	}

	if err := ctx.Err(); err != nil {
		return nil, newError(KindCommunication, "exchange cancelled before start", err)
	}

	start := time.Now()
	prediction, err := s.exchange(conn, smp)

	duration := time.Since(start)
	s.stats.record(duration, err)

	if prediction != nil {
		prediction.Duration = duration
		logger.LogExchange(duration, prediction.Digit, prediction.Lines, nil)
	} else {
		var lines []string
		var classifierErr *Error
		if errors.As(err, &classifierErr) {
			lines = classifierErr.Lines
		}
		logger.LogExchange(duration, 0, lines, err)
	}

	return prediction, err
}

func (s *Session) exchange(conn *serial.Connection, smp sample.Sample) (*Prediction, error) {
	if err := conn.Reset(); err != nil {
		return nil, newError(KindCommunication, "failed to reset buffers", err)
	}

	if err := conn.Write(startCommand); err != nil {
		return nil, newError(KindCommunication, "failed to send START", err)
	}
	if err := conn.Flush(); err != nil {
		return nil, newError(KindCommunication, "failed to flush START", err)
	}
	// Device needs time to arm its receive buffer
	if s.options.StartDelay > 0 {
		time.Sleep(s.options.StartDelay)
	}

	if err := conn.WriteChunked(smp.Bytes(), s.options.ChunkSize, s.options.ChunkDelay); err != nil {
		return nil, newError(KindCommunication, "failed to send sample", err)
	}

	return s.awaitResponse(conn)
}

// awaitResponse reads lines until a digit, an error line, the overall
// deadline or the end of the stream
func (s *Session) awaitResponse(conn *serial.Connection) (*Prediction, error) {
	history := newLineHistory(s.options.HistorySize)
	deadline := time.Now().Add(s.options.ResponseTimeout)

	for {
		raw, ok, err := conn.ReadLine(deadline)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, newError(KindCommunication, "failed to read response", err)
		}
		if !ok {
			break
		}

		line := decodeLine(raw)
		if line == "" {
			continue
		}
		history.add(line)

		if strings.Contains(strings.ToUpper(line), errorToken) {
			return nil, &Error{Kind: KindDevice, Message: line, Lines: history.lines()}
		}

		digit, err := strconv.Atoi(line)
		if err == nil {
			return &Prediction{Digit: digit, Lines: history.lines()}, nil
		}
		// An integer too large to represent is still an answer, just not a usable one
		if errors.Is(err, strconv.ErrRange) {
			return nil, &Error{Kind: KindDevice, Message: "digit out of range: " + line, Lines: history.lines()}
		}
	}

	if history.len() == 0 {
		return nil, newError(KindTimeout, "no response from device", nil)
	}
	return nil, &Error{
		Kind:    KindNoDigitFound,
		Message: "no digit found in device response",
		Lines:   history.lines(),
	}
}

// Status is a snapshot of the session for reporting
type Status struct {
	State          State         `json:"state"`
	Busy           bool          `json:"busy"`
	Port           string        `json:"port,omitempty"`
	BaudRate       int           `json:"baud_rate,omitempty"`
	ConnectedSince *time.Time    `json:"connected_since,omitempty"`
	Banner         []string      `json:"banner,omitempty"`
	Exchanges      ExchangeStats `json:"exchanges"`
	Link           *serial.Stats `json:"link,omitempty"`
}

// Status returns the current session status
func (s *Session) Status() Status {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	status := Status{
		State:     s.state,
		Busy:      s.busy.Load(),
		Port:      s.config.Port,
		BaudRate:  s.config.BaudRate,
		Banner:    append([]string(nil), s.banner...),
		Exchanges: s.stats.snapshot(),
	}
	if s.state == StateConnected {
		since := s.since
		status.ConnectedSince = &since
	}
	if s.conn != nil {
		link := s.conn.GetStats()
		status.Link = &link
	}
	return status
}

// Stats returns exchange counters
func (s *Session) Stats() ExchangeStats {
	return s.stats.snapshot()
}

// decodeLine drops undecodable bytes and surrounding whitespace
func decodeLine(raw string) string {
	return strings.TrimSpace(strings.ToValidUTF8(raw, ""))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
