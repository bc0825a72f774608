// internal/repository/classification_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"digit-service/internal/database"
	"digit-service/internal/model"
)

const classificationColumns = `
	id, status, source, port, digit, error_kind, error_message,
	lines, started_at, completed_at, duration_ms`

// classificationRepository implements ClassificationRepository on postgres
type classificationRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewClassificationRepository creates a postgres classification repository
func NewClassificationRepository(db *database.DB, logger *zap.Logger) ClassificationRepository {
	return &classificationRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new classification
func (r *classificationRepository) Create(ctx context.Context, c *model.Classification) error {
	query := `
		INSERT INTO classifications (` + classificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.Status, c.Source, c.Port, c.Digit, c.ErrorKind, c.ErrorMessage,
		pq.Array(nonNil(c.Lines)), c.StartedAt, c.CompletedAt, c.DurationMs,
	)
	if err != nil {
		r.logger.Error("Failed to create classification", zap.Error(err))
		return fmt.Errorf("failed to create classification: %w", err)
	}

	return nil
}

// Complete stores the outcome of a classification
func (r *classificationRepository) Complete(ctx context.Context, c *model.Classification) error {
	query := `
		UPDATE classifications SET
			status = $2, digit = $3, error_kind = $4, error_message = $5,
			lines = $6, completed_at = $7, duration_ms = $8
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		c.ID, c.Status, c.Digit, c.ErrorKind, c.ErrorMessage,
		pq.Array(nonNil(c.Lines)), c.CompletedAt, c.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to complete classification: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, c.ID)
	}

	return nil
}

// GetByID retrieves a classification by ID
func (r *classificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Classification, error) {
	query := `SELECT ` + classificationColumns + ` FROM classifications WHERE id = $1`

	c, err := scanClassification(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get classification: %w", err)
	}

	return c, nil
}

// ListRecent lists classifications, newest first
func (r *classificationRepository) ListRecent(ctx context.Context, filter *ClassificationFilter) ([]*model.Classification, error) {
	f := filter.normalized()

	query := `SELECT ` + classificationColumns + ` FROM classifications`
	args := []interface{}{}
	if f.Status != nil {
		query += ` WHERE status = $1`
		args = append(args, *f.Status)
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list classifications: %w", err)
	}
	defer rows.Close()

	classifications := make([]*model.Classification, 0)
	for rows.Next() {
		c, err := scanClassification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan classification: %w", err)
		}
		classifications = append(classifications, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate classifications: %w", err)
	}

	return classifications, nil
}

// GetStats aggregates stored classifications
func (r *classificationRepository) GetStats(ctx context.Context) (*ClassificationStats, error) {
	stats := &ClassificationStats{
		ByStatus: make(map[model.ClassificationStatus]int),
		ByDigit:  make(map[int]int),
	}

	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM classifications GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count classifications: %w", err)
	}
	for rows.Next() {
		var status model.ClassificationStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		stats.ByStatus[status] = count
		stats.Total += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate status counts: %w", err)
	}

	rows, err = r.db.QueryContext(ctx, `
		SELECT digit, COUNT(*) FROM classifications
		WHERE digit IS NOT NULL GROUP BY digit
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count digits: %w", err)
	}
	for rows.Next() {
		var digit, count int
		if err := rows.Scan(&digit, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan digit count: %w", err)
		}
		stats.ByDigit[digit] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate digit counts: %w", err)
	}

	var avg sql.NullFloat64
	err = r.db.QueryRowContext(ctx, `
		SELECT AVG(duration_ms) FROM classifications WHERE duration_ms IS NOT NULL
	`).Scan(&avg)
	if err != nil {
		return nil, fmt.Errorf("failed to average durations: %w", err)
	}
	stats.AvgDurationMs = avg.Float64

	return stats, nil
}

// DeleteBefore removes classifications started before the cutoff
func (r *classificationRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM classifications WHERE started_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete classifications: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	r.logger.Info("Old classifications deleted", zap.Int64("removed", removed))
	return removed, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanClassification(row rowScanner) (*model.Classification, error) {
	c := &model.Classification{}
	var digit, duration sql.NullInt64
	var errorKind, errorMessage sql.NullString
	var completedAt sql.NullTime
	var lines pq.StringArray

	err := row.Scan(
		&c.ID, &c.Status, &c.Source, &c.Port, &digit, &errorKind, &errorMessage,
		&lines, &c.StartedAt, &completedAt, &duration,
	)
	if err != nil {
		return nil, err
	}

	if digit.Valid {
		d := int(digit.Int64)
		c.Digit = &d
	}
	if errorKind.Valid {
		c.ErrorKind = &errorKind.String
	}
	if errorMessage.Valid {
		c.ErrorMessage = &errorMessage.String
	}
	if completedAt.Valid {
		c.CompletedAt = &completedAt.Time
	}
	if duration.Valid {
		d := int(duration.Int64)
		c.DurationMs = &d
	}
	if len(lines) > 0 {
		c.Lines = []string(lines)
	}

	return c, nil
}

func nonNil(lines []string) []string {
	if lines == nil {
		return []string{}
	}
	return lines
}
