// internal/service/classification_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"digit-service/internal/classifier"
	"digit-service/internal/config"
	"digit-service/internal/discovery"
	"digit-service/internal/events"
	"digit-service/internal/model"
	"digit-service/internal/repository"
	"digit-service/internal/sample"
	"digit-service/internal/sketch"
	"digit-service/internal/utils"
)

const eventSource = "classification-service"

// ErrShuttingDown is returned for work submitted after Shutdown
var ErrShuttingDown = errors.New("service is shutting down")

// SessionOptions converts device configuration to protocol timing
func SessionOptions(device config.DeviceConfig) classifier.Options {
	return classifier.Options{
		ReadTimeout:     device.ReadTimeout,
		WriteTimeout:    device.WriteTimeout,
		SettleDelay:     device.SettleDelay,
		BannerWindow:    device.BannerWindow,
		StartDelay:      device.StartDelay,
		ChunkSize:       device.ChunkSize,
		ChunkDelay:      device.ChunkDelay,
		ResponseTimeout: device.ResponseTimeout,
		HistorySize:     device.HistorySize,
	}
}

// ConnectOutcome is the single result of ConnectAsync
type ConnectOutcome struct {
	Config classifier.ConnectionConfig
	Err    error
}

// Input is an image submitted for classification
type Input struct {
	Source model.Source
	Bitmap *sample.Bitmap
}

// Result is the single outcome of ClassifyAsync. Exactly one of Prediction and Err is set.
type Result struct {
	Classification *model.Classification
	Prediction     *classifier.Prediction
	Err            error
}

// ClassificationService runs device work off the caller's goroutine and
// records every classification
type ClassificationService struct {
	session  *classifier.Session
	repo     repository.ClassificationRepository
	bus      *events.EventBus
	scanners *discovery.ScannerManager
	device   config.DeviceConfig
	logger   *utils.ServiceLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mutex  sync.RWMutex
	closed bool
}

// NewClassificationService creates a new classification service
func NewClassificationService(
	session *classifier.Session,
	repo repository.ClassificationRepository,
	bus *events.EventBus,
	scanners *discovery.ScannerManager,
	device config.DeviceConfig,
	logger *zap.Logger,
) *ClassificationService {
	ctx, cancel := context.WithCancel(context.Background())
	return &ClassificationService{
		session:  session,
		repo:     repo,
		bus:      bus,
		scanners: scanners,
		device:   device,
		logger:   utils.NewServiceLogger(logger, eventSource),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// spawn runs fn as tracked background work
func (s *ClassificationService) spawn(fn func()) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.closed {
		return ErrShuttingDown
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
	return nil
}

// ConnectAsync validates cfg and connects in the background
func (s *ClassificationService) ConnectAsync(cfg classifier.ConnectionConfig) (<-chan ConnectOutcome, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	outcome := make(chan ConnectOutcome, 1)
	err := s.spawn(func() {
		err := s.session.Connect(s.ctx, cfg)
		s.publishConnect(cfg, err)
		outcome <- ConnectOutcome{Config: cfg, Err: err}
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// Connect connects and waits for the outcome or ctx
func (s *ClassificationService) Connect(ctx context.Context, cfg classifier.ConnectionConfig) error {
	outcome, err := s.ConnectAsync(cfg)
	if err != nil {
		return err
	}

	select {
	case result := <-outcome:
		return result.Err
	case <-ctx.Done():
		return fmt.Errorf("waiting for connect: %w", ctx.Err())
	}
}

func (s *ClassificationService) publishConnect(cfg classifier.ConnectionConfig, err error) {
	data := map[string]interface{}{
		"port":      cfg.Port,
		"baud_rate": cfg.BaudRate,
	}
	if err != nil {
		data["error_kind"] = string(classifier.KindOf(err))
		data["error"] = err.Error()
		s.bus.Publish(events.SessionConnectFailed, eventSource, data)
		return
	}
	data["banner"] = s.session.Banner()
	s.bus.Publish(events.SessionConnected, eventSource, data)
}

// Disconnect closes the device session
func (s *ClassificationService) Disconnect() {
	port := s.session.Config().Port
	wasConnected := s.session.State() != classifier.StateDisconnected

	s.session.Disconnect()

	if wasConnected {
		s.bus.Publish(events.SessionDisconnected, eventSource, map[string]interface{}{
			"port": port,
		})
	}
}

// Status returns the device session status
func (s *ClassificationService) Status() classifier.Status {
	return s.session.Status()
}

// IsReady reports whether classifications can be accepted
func (s *ClassificationService) IsReady() bool {
	return s.session.IsConnected()
}

// RenderStrokes draws pen strokes onto a canvas. A non-positive size uses the
// configured canvas size. No strokes renders a white canvas.
func (s *ClassificationService) RenderStrokes(strokes [][]sketch.Point, size int) (*sample.Bitmap, error) {
	if size <= 0 {
		size = s.device.CanvasSize
	}

	canvas, err := sketch.NewCanvas(size, s.device.StrokeWidth)
	if err != nil {
		return nil, err
	}
	for _, stroke := range strokes {
		canvas.Stroke(stroke)
	}

	s.logger.Debug("Strokes rendered",
		zap.Int("strokes", len(strokes)),
		zap.Int("canvas_size", canvas.Size()),
	)
	return canvas.Bitmap(), nil
}

// ClassifyAsync encodes the input and classifies it in the background. Invalid
// input, a missing connection and an exchange already in flight are reported
// synchronously; otherwise the pending record is returned together with a
// channel that delivers exactly one Result.
func (s *ClassificationService) ClassifyAsync(ctx context.Context, input Input) (*model.Classification, <-chan Result, error) {
	smp, err := sample.Encode(input.Bitmap)
	if err != nil {
		return nil, nil, &classifier.Error{Kind: classifier.KindInvalidInput, Message: "cannot encode image", Err: err}
	}

	if !s.session.IsConnected() {
		return nil, nil, classifier.ErrNotConnected
	}
	if s.session.IsBusy() {
		return nil, nil, classifier.ErrBusy
	}

	record := model.NewClassification(input.Source, s.session.Config().Port)
	if err := s.repo.Create(ctx, record); err != nil {
		s.logger.Warn("Failed to record classification", zap.Error(err))
	}

	s.bus.Publish(events.ClassificationStarted, eventSource, map[string]interface{}{
		"id":     record.ID.String(),
		"source": string(record.Source),
		"port":   record.Port,
	})

	snapshot := *record
	results := make(chan Result, 1)
	err = s.spawn(func() {
		results <- s.run(record, smp)
	})
	if err != nil {
		record.Fail(string(classifier.KindCommunication), err.Error(), nil)
		s.complete(record)
		return nil, nil, err
	}

	return &snapshot, results, nil
}

// Classify classifies the input and waits for the outcome or ctx. When ctx
// ends first the exchange keeps running and its record still completes.
func (s *ClassificationService) Classify(ctx context.Context, input Input) (*Result, error) {
	record, results, err := s.ClassifyAsync(ctx, input)
	if err != nil {
		return nil, err
	}

	select {
	case result := <-results:
		return &result, result.Err
	case <-ctx.Done():
		return &Result{Classification: record}, fmt.Errorf("waiting for classification: %w", ctx.Err())
	}
}

func (s *ClassificationService) run(record *model.Classification, smp sample.Sample) Result {
	op := utils.NewOperationLogger(s.logger.Logger, "classify", record.ID.String())
	op.Start(zap.String("port", record.Port), zap.String("source", string(record.Source)))

	prediction, err := s.session.Classify(s.ctx, smp)
	if err != nil {
		var classifierErr *classifier.Error
		var lines []string
		if errors.As(err, &classifierErr) {
			lines = classifierErr.Lines
		}
		record.Fail(string(classifier.KindOf(err)), err.Error(), lines)
		s.complete(record)
		op.Error(err, zap.String("error_kind", string(classifier.KindOf(err))))

		s.bus.Publish(events.ClassificationFailed, eventSource, map[string]interface{}{
			"id":          record.ID.String(),
			"error_kind":  string(classifier.KindOf(err)),
			"error":       err.Error(),
			"lines":       lines,
			"duration_ms": *record.DurationMs,
		})
		return Result{Classification: record, Err: err}
	}

	record.Succeed(prediction.Digit, prediction.Lines)
	s.complete(record)
	op.Success(zap.Int("digit", prediction.Digit))

	s.bus.Publish(events.ClassificationCompleted, eventSource, map[string]interface{}{
		"id":          record.ID.String(),
		"digit":       prediction.Digit,
		"in_range":    prediction.InRange(),
		"lines":       prediction.Lines,
		"duration_ms": *record.DurationMs,
	})
	return Result{Classification: record, Prediction: prediction}
}

func (s *ClassificationService) complete(record *model.Classification) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.repo.Complete(ctx, record); err != nil {
		s.logger.Warn("Failed to store classification outcome",
			zap.String("id", record.ID.String()),
			zap.Error(err),
		)
	}
}

// GetClassification returns a stored classification
func (s *ClassificationService) GetClassification(ctx context.Context, id uuid.UUID) (*model.Classification, error) {
	return s.repo.GetByID(ctx, id)
}

// ListClassifications lists stored classifications, newest first
func (s *ClassificationService) ListClassifications(ctx context.Context, filter *repository.ClassificationFilter) ([]*model.Classification, error) {
	return s.repo.ListRecent(ctx, filter)
}

// GetStats aggregates stored classifications
func (s *ClassificationService) GetStats(ctx context.Context) (*repository.ClassificationStats, error) {
	return s.repo.GetStats(ctx)
}

// PruneHistory removes classifications older than age
func (s *ClassificationService) PruneHistory(ctx context.Context, age time.Duration) (int64, error) {
	return s.repo.DeleteBefore(ctx, time.Now().Add(-age))
}

// ListPorts lists candidate serial ports
func (s *ClassificationService) ListPorts(ctx context.Context) ([]*discovery.DiscoveredPort, error) {
	return s.scanners.ScanAll(ctx)
}

// Shutdown rejects new work, waits for in-flight work and closes the session
func (s *ClassificationService) Shutdown(ctx context.Context) error {
	s.mutex.Lock()
	s.closed = true
	s.mutex.Unlock()

	// Pending connects observe cancellation; exchanges past START run to completion
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("waiting for in-flight work: %w", ctx.Err())
	}

	s.Disconnect()
	s.logger.LogServiceStop("shutdown")
	return err
}
