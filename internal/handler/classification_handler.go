// internal/handler/classification_handler.go
package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"digit-service/internal/classifier"
	"digit-service/internal/model"
	"digit-service/internal/repository"
	"digit-service/internal/sample"
	"digit-service/internal/service"
	"digit-service/internal/sketch"
	"digit-service/internal/utils"
)

// ClassificationHandler handles classification requests
type ClassificationHandler struct {
	service       *service.ClassificationService
	maxUploadSize int64
	logger        *utils.ServiceLogger
}

// NewClassificationHandler creates a new classification handler
func NewClassificationHandler(classificationService *service.ClassificationService, maxUploadSize int64, logger *zap.Logger) *ClassificationHandler {
	return &ClassificationHandler{
		service:       classificationService,
		maxUploadSize: maxUploadSize,
		logger:        utils.NewServiceLogger(logger, "classification-handler"),
	}
}

// RegisterRoutes registers classification routes
func (h *ClassificationHandler) RegisterRoutes(router *gin.RouterGroup) {
	classifications := router.Group("/classifications")
	{
		classifications.POST("", h.Classify)
		classifications.GET("", h.ListClassifications)
		classifications.GET("/stats", h.GetStats)
		classifications.GET("/:id", h.GetClassification)
	}
}

// ClassifyRequest carries either raw pixels or pen strokes
type ClassifyRequest struct {
	Width   int              `json:"width,omitempty" example:"28"`
	Height  int              `json:"height,omitempty" example:"28"`
	Pixels  []byte           `json:"pixels,omitempty" swaggertype:"array,integer"`
	Strokes [][]sketch.Point `json:"strokes,omitempty"`
	Size    int              `json:"size,omitempty" example:"320"`
}

// ClassifyResponse is a completed classification
type ClassifyResponse struct {
	Classification *model.Classification `json:"classification"`
	Digit          int                   `json:"digit"`
	InRange        bool                  `json:"in_range"`
	Lines          []string              `json:"lines,omitempty"`
	DurationMs     int64                 `json:"duration_ms"`
}

// Classify submits an image to the device
// @Summary Classify a digit
// @Description Submit a multipart image, raw grayscale pixels or pen strokes. With async=true the pending record is returned immediately.
// @Tags Classifications
// @Accept json,mpfd
// @Produce json
// @Param image formData file false "Image file (png, jpeg, gif, bmp, webp)"
// @Param request body ClassifyRequest false "Pixels or strokes"
// @Param async query bool false "Return before the device answers"
// @Success 200 {object} utils.APIResponse{data=ClassifyResponse} "Digit classified"
// @Success 202 {object} utils.APIResponse{data=model.Classification} "Classification accepted"
// @Failure 400 {object} utils.APIResponse "Invalid image"
// @Failure 409 {object} utils.APIResponse "Another classification is in flight"
// @Failure 412 {object} utils.APIResponse "Device not connected"
// @Failure 422 {object} utils.APIResponse "Device error or no digit in response"
// @Failure 502 {object} utils.APIResponse "Communication error"
// @Failure 504 {object} utils.APIResponse "Device did not answer"
// @Router /api/v1/classifications [post]
func (h *ClassificationHandler) Classify(c *gin.Context) {
	input, err := h.readInput(c)
	if err != nil {
		respondError(c, "Invalid image", err, nil)
		return
	}

	if async, _ := strconv.ParseBool(c.Query("async")); async {
		record, _, err := h.service.ClassifyAsync(c.Request.Context(), input)
		if err != nil {
			respondError(c, "Classification rejected", err, nil)
			return
		}
		c.Header("Location", "/api/v1/classifications/"+record.ID.String())
		utils.SuccessResponse(c, http.StatusAccepted, "Classification accepted", record)
		return
	}

	start := time.Now()
	result, err := h.service.Classify(c.Request.Context(), input)
	if err != nil {
		var data interface{}
		if result != nil && result.Classification != nil {
			data = gin.H{"classification": result.Classification}
			var classifierErr *classifier.Error
			if errors.As(err, &classifierErr) && len(classifierErr.Lines) > 0 {
				data = gin.H{"classification": result.Classification, "lines": classifierErr.Lines}
			}
		}
		respondError(c, "Classification failed", err, data)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Digit classified", &ClassifyResponse{
		Classification: result.Classification,
		Digit:          result.Prediction.Digit,
		InRange:        result.Prediction.InRange(),
		Lines:          result.Prediction.Lines,
		DurationMs:     time.Since(start).Milliseconds(),
	})
}

func (h *ClassificationHandler) readInput(c *gin.Context) (service.Input, error) {
	if h.maxUploadSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize)
	}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		return h.readUpload(c)
	}

	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return service.Input{}, invalidInput("invalid request body", err)
	}

	switch {
	case req.Strokes != nil:
		bitmap, err := h.service.RenderStrokes(req.Strokes, req.Size)
		if err != nil {
			return service.Input{}, invalidInput("invalid strokes", err)
		}
		return service.Input{Source: model.SourceSketch, Bitmap: bitmap}, nil

	case len(req.Pixels) > 0:
		bitmap, err := sample.NewBitmap(req.Width, req.Height, req.Pixels)
		if err != nil {
			return service.Input{}, invalidInput("invalid pixels", err)
		}
		return service.Input{Source: model.SourcePixels, Bitmap: bitmap}, nil
	}

	return service.Input{}, invalidInput("one of image, pixels or strokes is required", sample.ErrInvalidInput)
}

func (h *ClassificationHandler) readUpload(c *gin.Context) (service.Input, error) {
	header, err := c.FormFile("image")
	if err != nil {
		return service.Input{}, invalidInput("image file is required", err)
	}

	file, err := header.Open()
	if err != nil {
		return service.Input{}, invalidInput("cannot open image", err)
	}
	defer file.Close()

	bitmap, format, err := sample.Decode(file)
	if err != nil {
		return service.Input{}, invalidInput("cannot decode image", err)
	}

	h.logger.Debug("Image decoded",
		zap.String("filename", header.Filename),
		zap.String("format", format),
		zap.Int("width", bitmap.Width),
		zap.Int("height", bitmap.Height),
	)
	return service.Input{Source: model.SourceUpload, Bitmap: bitmap}, nil
}

func invalidInput(message string, err error) error {
	return &classifier.Error{Kind: classifier.KindInvalidInput, Message: message, Err: err}
}

// ListClassifications lists stored classifications
// @Summary List classifications
// @Tags Classifications
// @Produce json
// @Param status query string false "Filter by status" Enums(PENDING, SUCCESS, FAILED, TIMEOUT)
// @Param limit query int false "Page size" default(50)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} utils.APIResponse{data=[]model.Classification} "Classifications"
// @Failure 400 {object} utils.APIResponse "Invalid filter"
// @Router /api/v1/classifications [get]
func (h *ClassificationHandler) ListClassifications(c *gin.Context) {
	filter := &repository.ClassificationFilter{}
	invalid := make(map[string]string)

	if status := c.Query("status"); status != "" {
		s := model.ClassificationStatus(strings.ToUpper(status))
		switch s {
		case model.ClassificationStatusPending, model.ClassificationStatusSuccess,
			model.ClassificationStatusFailed, model.ClassificationStatusTimeout:
			filter.Status = &s
		default:
			invalid["status"] = fmt.Sprintf("unknown status %q", status)
		}
	}

	var err error
	if filter.Limit, err = queryInt(c, "limit"); err != nil {
		invalid["limit"] = err.Error()
	}
	if filter.Offset, err = queryInt(c, "offset"); err != nil {
		invalid["offset"] = err.Error()
	}
	if len(invalid) > 0 {
		utils.ValidationErrorResponse(c, invalid)
		return
	}

	classifications, err := h.service.ListClassifications(c.Request.Context(), filter)
	if err != nil {
		utils.LogError(utils.LoggerWithRequestID(h.logger.Logger, c.GetString("request_id")),
			"Failed to list classifications", err)
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list classifications", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Classifications retrieved", classifications)
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return v, nil
}

// GetClassification returns one classification
// @Summary Get a classification
// @Tags Classifications
// @Produce json
// @Param id path string true "Classification ID"
// @Success 200 {object} utils.APIResponse{data=model.Classification} "Classification"
// @Failure 400 {object} utils.APIResponse "Invalid ID"
// @Failure 404 {object} utils.APIResponse "Not found"
// @Router /api/v1/classifications/{id} [get]
func (h *ClassificationHandler) GetClassification(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid classification ID", err)
		return
	}

	classification, err := h.service.GetClassification(c.Request.Context(), id)
	if err != nil {
		respondError(c, "Classification not found", err, nil)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Classification retrieved", classification)
}

// GetStats aggregates stored classifications
// @Summary Classification statistics
// @Tags Classifications
// @Produce json
// @Success 200 {object} utils.APIResponse{data=repository.ClassificationStats} "Statistics"
// @Router /api/v1/classifications/stats [get]
func (h *ClassificationHandler) GetStats(c *gin.Context) {
	stats, err := h.service.GetStats(c.Request.Context())
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to get statistics", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Statistics retrieved", stats)
}
