// internal/handler/port_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"digit-service/internal/service"
	"digit-service/internal/utils"
)

// PortHandler lists serial ports
type PortHandler struct {
	service *service.ClassificationService
	logger  *utils.ServiceLogger
}

// NewPortHandler creates a new port handler
func NewPortHandler(classificationService *service.ClassificationService, logger *zap.Logger) *PortHandler {
	return &PortHandler{
		service: classificationService,
		logger:  utils.NewServiceLogger(logger, "port-handler"),
	}
}

// RegisterRoutes registers port routes
func (h *PortHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/ports", h.ListPorts)
}

// ListPorts lists candidate serial ports
// @Summary List serial ports
// @Description Enumerate serial ports; STM32 virtual COM ports are marked likely
// @Tags Ports
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]discovery.DiscoveredPort} "Ports"
// @Failure 500 {object} utils.APIResponse "Enumeration failed"
// @Router /api/v1/ports [get]
func (h *PortHandler) ListPorts(c *gin.Context) {
	ports, err := h.service.ListPorts(c.Request.Context())
	if err != nil {
		h.logger.Error("Port scan failed", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list ports", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Ports retrieved", ports)
}
