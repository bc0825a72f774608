// internal/classifier/errors.go
package classifier

import (
	"errors"
	"fmt"
	"strings"

	"digit-service/internal/sample"
)

// ErrorKind classifies a failure of the inference path
type ErrorKind string

const (
	KindInvalidInput  ErrorKind = "INVALID_INPUT"
	KindConfig        ErrorKind = "CONFIG_ERROR"
	KindConnect       ErrorKind = "CONNECT_ERROR"
	KindBusy          ErrorKind = "BUSY"
	KindNotConnected  ErrorKind = "NOT_CONNECTED"
	KindDevice        ErrorKind = "DEVICE_ERROR"
	KindNoDigitFound  ErrorKind = "NO_DIGIT_FOUND"
	KindTimeout       ErrorKind = "TIMEOUT"
	KindCommunication ErrorKind = "COMMUNICATION_ERROR"
	KindUnknown       ErrorKind = "UNKNOWN"
)

// Error is a typed failure. Lines carries the device output seen before a
// NoDigitFound failure.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Lines   []string  `json:"lines,omitempty"`
	Err     error     `json:"-"`
}

// Sentinels for errors.Is matching by kind
var (
	ErrInvalidInput  = &Error{Kind: KindInvalidInput}
	ErrConfig        = &Error{Kind: KindConfig}
	ErrConnect       = &Error{Kind: KindConnect}
	ErrBusy          = &Error{Kind: KindBusy}
	ErrNotConnected  = &Error{Kind: KindNotConnected}
	ErrDevice        = &Error{Kind: KindDevice}
	ErrNoDigitFound  = &Error{Kind: KindNoDigitFound}
	ErrTimeout       = &Error{Kind: KindTimeout}
	ErrCommunication = &Error{Kind: KindCommunication}
)

func newError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// Error implements error
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.ReplaceAll(string(e.Kind), "_", " ")))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Lines) > 0 {
		fmt.Fprintf(&b, " (received: %s)", strings.Join(e.Lines, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of err, mapping encoder failures to InvalidInput
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var classifierErr *Error
	if errors.As(err, &classifierErr) {
		return classifierErr.Kind
	}
	if errors.Is(err, sample.ErrInvalidInput) {
		return KindInvalidInput
	}
	return KindUnknown
}
