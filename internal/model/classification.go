// internal/model/classification.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// ClassificationStatus represents the status of a classification request
type ClassificationStatus string

const (
	ClassificationStatusPending ClassificationStatus = "PENDING"
	ClassificationStatusSuccess ClassificationStatus = "SUCCESS"
	ClassificationStatusFailed  ClassificationStatus = "FAILED"
	ClassificationStatusTimeout ClassificationStatus = "TIMEOUT"
)

// Source describes how the submitted image was produced
type Source string

const (
	SourceUpload Source = "UPLOAD"
	SourcePixels Source = "PIXELS"
	SourceSketch Source = "SKETCH"
)

// Classification is one submitted sample and its outcome
type Classification struct {
	ID           uuid.UUID            `json:"id" db:"id"`
	Status       ClassificationStatus `json:"status" db:"status"`
	Source       Source               `json:"source" db:"source"`
	Port         string               `json:"port" db:"port"`
	Digit        *int                 `json:"digit,omitempty" db:"digit"`
	ErrorKind    *string              `json:"error_kind,omitempty" db:"error_kind"`
	ErrorMessage *string              `json:"error_message,omitempty" db:"error_message"`
	Lines        []string             `json:"lines,omitempty" db:"lines"`
	StartedAt    time.Time            `json:"started_at" db:"started_at"`
	CompletedAt  *time.Time           `json:"completed_at,omitempty" db:"completed_at"`
	DurationMs   *int                 `json:"duration_ms,omitempty" db:"duration_ms"`
}

// NewClassification creates a pending classification
func NewClassification(source Source, port string) *Classification {
	return &Classification{
		ID:        uuid.New(),
		Status:    ClassificationStatusPending,
		Source:    source,
		Port:      port,
		StartedAt: time.Now().UTC(),
	}
}

// IsCompleted checks if the classification has an outcome
func (c *Classification) IsCompleted() bool {
	return c.Status != ClassificationStatusPending
}

// Succeed records a predicted digit
func (c *Classification) Succeed(digit int, lines []string) {
	c.Status = ClassificationStatusSuccess
	c.Digit = &digit
	c.Lines = lines
	c.complete()
}

// Fail records a failure. Timeouts get their own status.
func (c *Classification) Fail(kind, message string, lines []string) {
	c.Status = ClassificationStatusFailed
	if kind == "TIMEOUT" {
		c.Status = ClassificationStatusTimeout
	}
	c.ErrorKind = &kind
	c.ErrorMessage = &message
	c.Lines = lines
	c.complete()
}

func (c *Classification) complete() {
	now := time.Now().UTC()
	duration := int(now.Sub(c.StartedAt).Milliseconds())
	c.CompletedAt = &now
	c.DurationMs = &duration
}
