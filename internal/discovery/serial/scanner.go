// internal/discovery/serial/scanner.go
package serial

import (
	"context"
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"digit-service/internal/discovery"
)

// STMicroVendorID is the USB vendor of the board's virtual COM port
const STMicroVendorID = "0483"

// ListFunc enumerates serial ports
type ListFunc func() ([]*enumerator.PortDetails, error)

// Scanner lists serial ports and ranks likely inference boards
type Scanner struct {
	list   ListFunc
	logger *zap.Logger
}

// NewScanner creates a serial scanner. A nil list uses the system enumerator.
func NewScanner(list ListFunc, logger *zap.Logger) *Scanner {
	if list == nil {
		list = enumerator.GetDetailedPortsList
	}
	return &Scanner{
		list:   list,
		logger: logger.With(zap.String("scanner", "serial")),
	}
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string {
	return "serial"
}

// Scan lists serial ports
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredPort, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	details, err := s.list()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	ports := make([]*discovery.DiscoveredPort, 0, len(details))
	for _, d := range details {
		if d == nil || d.Name == "" {
			continue
		}
		port := &discovery.DiscoveredPort{
			Name:         d.Name,
			Type:         s.GetScannerType(),
			IsUSB:        d.IsUSB,
			VendorID:     strings.ToLower(d.VID),
			ProductID:    strings.ToLower(d.PID),
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		}
		port.Confidence = confidence(port)
		port.Likely = port.Confidence >= 0.9
		ports = append(ports, port)
	}

	s.logger.Debug("Serial ports enumerated", zap.Int("count", len(ports)))
	return ports, nil
}

func confidence(port *discovery.DiscoveredPort) float64 {
	switch {
	case port.VendorID == STMicroVendorID:
		return 0.9
	case port.IsUSB:
		return 0.5
	default:
		return 0.1
	}
}
