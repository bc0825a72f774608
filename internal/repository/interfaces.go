// internal/repository/interfaces.go
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"digit-service/internal/model"
)

// ErrNotFound is returned when a classification does not exist
var ErrNotFound = errors.New("classification not found")

// ClassificationRepository defines classification history access
type ClassificationRepository interface {
	Create(ctx context.Context, classification *model.Classification) error
	Complete(ctx context.Context, classification *model.Classification) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Classification, error)
	ListRecent(ctx context.Context, filter *ClassificationFilter) ([]*model.Classification, error)
	GetStats(ctx context.Context) (*ClassificationStats, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ClassificationFilter represents listing filters
type ClassificationFilter struct {
	Status *model.ClassificationStatus `json:"status,omitempty"`
	Limit  int                         `json:"limit"`
	Offset int                         `json:"offset"`
}

// ClassificationStats summarizes stored classifications
type ClassificationStats struct {
	Total         int                                `json:"total"`
	ByStatus      map[model.ClassificationStatus]int `json:"by_status"`
	ByDigit       map[int]int                        `json:"by_digit"`
	AvgDurationMs float64                            `json:"avg_duration_ms"`
}

// DefaultListLimit applies when a filter has no limit
const DefaultListLimit = 50

// MaxListLimit caps a single page
const MaxListLimit = 500

func (f *ClassificationFilter) normalized() ClassificationFilter {
	out := ClassificationFilter{Limit: DefaultListLimit}
	if f == nil {
		return out
	}
	out = *f
	if out.Limit <= 0 {
		out.Limit = DefaultListLimit
	}
	if out.Limit > MaxListLimit {
		out.Limit = MaxListLimit
	}
	if out.Offset < 0 {
		out.Offset = 0
	}
	return out
}
