// internal/handler/session_handler.go
package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"digit-service/internal/classifier"
	"digit-service/internal/config"
	"digit-service/internal/service"
	"digit-service/internal/utils"
)

// SessionHandler handles device session requests
type SessionHandler struct {
	service *service.ClassificationService
	device  config.DeviceConfig
	logger  *utils.ServiceLogger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(classificationService *service.ClassificationService, device config.DeviceConfig, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		service: classificationService,
		device:  device,
		logger:  utils.NewServiceLogger(logger, "session-handler"),
	}
}

// RegisterRoutes registers session routes
func (h *SessionHandler) RegisterRoutes(router *gin.RouterGroup) {
	session := router.Group("/session")
	{
		session.GET("", h.GetStatus)
		session.POST("/connect", h.Connect)
		session.POST("/disconnect", h.Disconnect)
	}
}

// ConnectRequest selects the device port. Omitted fields use the configured device.
type ConnectRequest struct {
	Port     string   `json:"port" example:"/dev/ttyACM0"`
	BaudRate numberOr `json:"baud_rate" swaggertype:"string" example:"115200"`
}

// numberOr accepts a JSON number or string and keeps its text
type numberOr string

// UnmarshalJSON implements json.Unmarshaler
func (n *numberOr) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = numberOr(s)
		return nil
	}
	*n = numberOr(data)
	return nil
}

// Connect opens the device session
// @Summary Connect to the device
// @Description Open the serial port, wait for the board to boot and discard its banner
// @Tags Session
// @Accept json
// @Produce json
// @Param request body ConnectRequest false "Port and baud rate"
// @Success 200 {object} utils.APIResponse{data=classifier.Status} "Connected"
// @Failure 400 {object} utils.APIResponse "Invalid port or baud rate"
// @Failure 409 {object} utils.APIResponse "Connect already in progress"
// @Failure 502 {object} utils.APIResponse "Port could not be opened"
// @Router /api/v1/session/connect [post]
func (h *SessionHandler) Connect(c *gin.Context) {
	var req ConnectRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	port := req.Port
	if port == "" {
		port = h.device.Port
	}
	baud := string(req.BaudRate)
	if baud == "" {
		baud = strconv.Itoa(h.device.BaudRate)
	}

	cfg, err := classifier.ParseConnectionConfig(port, baud)
	if err != nil {
		respondError(c, "Invalid connection settings", err, nil)
		return
	}

	if err := h.service.Connect(c.Request.Context(), cfg); err != nil {
		h.logger.Warn("Device connect failed", zap.String("port", cfg.Port), zap.Error(err))
		respondError(c, "Failed to connect to device", err, nil)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Connected to device", h.service.Status())
}

// Disconnect closes the device session
// @Summary Disconnect from the device
// @Tags Session
// @Produce json
// @Success 200 {object} utils.APIResponse{data=classifier.Status} "Disconnected"
// @Router /api/v1/session/disconnect [post]
func (h *SessionHandler) Disconnect(c *gin.Context) {
	h.service.Disconnect()
	utils.SuccessResponse(c, http.StatusOK, "Disconnected from device", h.service.Status())
}

// GetStatus returns the session status
// @Summary Session status
// @Description Connection state, banner and exchange counters
// @Tags Session
// @Produce json
// @Success 200 {object} utils.APIResponse{data=classifier.Status} "Session status"
// @Router /api/v1/session [get]
func (h *SessionHandler) GetStatus(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Session status", h.service.Status())
}
