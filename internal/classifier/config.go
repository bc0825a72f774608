// internal/classifier/config.go
package classifier

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ConnectionConfig identifies the device port
type ConnectionConfig struct {
	Port     string `json:"port"`
	BaudRate int    `json:"baud_rate"`
}

// ParseConnectionConfig builds a config from user supplied text
func ParseConnectionConfig(port, baudRate string) (ConnectionConfig, error) {
	baud, err := strconv.Atoi(strings.TrimSpace(baudRate))
	if err != nil {
		return ConnectionConfig{}, newError(KindConfig, fmt.Sprintf("invalid baud rate %q", baudRate), err)
	}

	config := ConnectionConfig{
		Port:     strings.TrimSpace(port),
		BaudRate: baud,
	}
	if err := config.Validate(); err != nil {
		return ConnectionConfig{}, err
	}
	return config, nil
}

// Validate checks the port and baud rate
func (c ConnectionConfig) Validate() error {
	if c.Port == "" {
		return newError(KindConfig, "port is required", nil)
	}
	if c.BaudRate <= 0 {
		return newError(KindConfig, fmt.Sprintf("baud rate must be a positive integer, got %d", c.BaudRate), nil)
	}
	return nil
}

// Options holds protocol timing. Zero durations disable the corresponding pause.
type Options struct {
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	SettleDelay     time.Duration `json:"settle_delay"`
	BannerWindow    time.Duration `json:"banner_window"`
	StartDelay      time.Duration `json:"start_delay"`
	ChunkSize       int           `json:"chunk_size"`
	ChunkDelay      time.Duration `json:"chunk_delay"`
	ResponseTimeout time.Duration `json:"response_timeout"`
	HistorySize     int           `json:"history_size"`
}

// DefaultOptions returns the timing the device firmware expects
func DefaultOptions() Options {
	return Options{
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		SettleDelay:     2 * time.Second,
		BannerWindow:    2 * time.Second,
		StartDelay:      50 * time.Millisecond,
		ChunkSize:       64,
		ChunkDelay:      5 * time.Millisecond,
		ResponseTimeout: 10 * time.Second,
		HistorySize:     5,
	}
}

func (o Options) normalized() Options {
	defaults := DefaultOptions()
	if o.ChunkSize <= 0 {
		o.ChunkSize = defaults.ChunkSize
	}
	if o.ResponseTimeout <= 0 {
		o.ResponseTimeout = defaults.ResponseTimeout
	}
	if o.HistorySize <= 0 {
		o.HistorySize = defaults.HistorySize
	}
	return o
}
