// internal/repository/memory_repository.go
package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"digit-service/internal/model"
)

// memoryRepository keeps classifications in process memory, bounded by capacity
type memoryRepository struct {
	mutex    sync.RWMutex
	items    map[uuid.UUID]*model.Classification
	order    []uuid.UUID
	capacity int
}

// NewMemoryRepository creates an in-memory repository. The oldest entries are
// evicted once capacity is reached; a non-positive capacity means unbounded.
func NewMemoryRepository(capacity int) ClassificationRepository {
	return &memoryRepository{
		items:    make(map[uuid.UUID]*model.Classification),
		capacity: capacity,
	}
}

func (r *memoryRepository) Create(ctx context.Context, c *model.Classification) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.items[c.ID]; exists {
		return fmt.Errorf("classification already exists: %s", c.ID)
	}

	r.items[c.ID] = clone(c)
	r.order = append(r.order, c.ID)

	if r.capacity > 0 && len(r.order) > r.capacity {
		evicted := r.order[0]
		r.order = r.order[1:]
		delete(r.items, evicted)
	}
	return nil
}

func (r *memoryRepository) Complete(ctx context.Context, c *model.Classification) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.items[c.ID]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, c.ID)
	}
	r.items[c.ID] = clone(c)
	return nil
}

func (r *memoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Classification, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	c, exists := r.items[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return clone(c), nil
}

func (r *memoryRepository) ListRecent(ctx context.Context, filter *ClassificationFilter) ([]*model.Classification, error) {
	f := filter.normalized()

	r.mutex.RLock()
	matched := make([]*model.Classification, 0, len(r.items))
	for _, c := range r.items {
		if f.Status != nil && c.Status != *f.Status {
			continue
		}
		matched = append(matched, clone(c))
	}
	r.mutex.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})

	if f.Offset >= len(matched) {
		return []*model.Classification{}, nil
	}
	end := f.Offset + f.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[f.Offset:end], nil
}

func (r *memoryRepository) GetStats(ctx context.Context) (*ClassificationStats, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := &ClassificationStats{
		ByStatus: make(map[model.ClassificationStatus]int),
		ByDigit:  make(map[int]int),
	}

	var totalDuration, timed int
	for _, c := range r.items {
		stats.Total++
		stats.ByStatus[c.Status]++
		if c.Digit != nil {
			stats.ByDigit[*c.Digit]++
		}
		if c.DurationMs != nil {
			totalDuration += *c.DurationMs
			timed++
		}
	}
	if timed > 0 {
		stats.AvgDurationMs = float64(totalDuration) / float64(timed)
	}
	return stats, nil
}

func (r *memoryRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var removed int64
	kept := r.order[:0]
	for _, id := range r.order {
		if r.items[id].StartedAt.Before(before) {
			delete(r.items, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	return removed, nil
}

func clone(c *model.Classification) *model.Classification {
	out := *c
	if c.Lines != nil {
		out.Lines = append([]string(nil), c.Lines...)
	}
	if c.Digit != nil {
		d := *c.Digit
		out.Digit = &d
	}
	return &out
}
