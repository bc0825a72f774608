// internal/routes/routes.go
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"digit-service/internal/config"
	"digit-service/internal/handler"
	"digit-service/internal/middleware"
	"digit-service/internal/service"
	"digit-service/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config                *config.Config
	logger                *zap.Logger
	db                    handler.DatabaseChecker
	classificationService *service.ClassificationService
	wsHandler             *handler.WebSocketHandler
}

// NewRouter creates a new router instance. db may be nil when history is kept in memory.
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	db handler.DatabaseChecker,
	classificationService *service.ClassificationService,
	wsHandler *handler.WebSocketHandler,
) *Router {
	return &Router{
		config:                config,
		logger:                logger,
		db:                    db,
		classificationService: classificationService,
		wsHandler:             wsHandler,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.MaxMultipartMemory = r.config.Server.MaxUploadSize

	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	// Request ID first so recovered panics carry it
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RecoveryMiddleware(r.logger))

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.db, r.classificationService, r.config, r.logger)
	sessionHandler := handler.NewSessionHandler(r.classificationService, r.config.Device, r.logger)
	classificationHandler := handler.NewClassificationHandler(r.classificationService, r.config.Server.MaxUploadSize, r.logger)
	portHandler := handler.NewPortHandler(r.classificationService, r.logger)

	healthHandler.RegisterRoutes(router)

	apiV1 := router.Group("/api/v1")
	sessionHandler.RegisterRoutes(apiV1)
	classificationHandler.RegisterRoutes(apiV1)
	portHandler.RegisterRoutes(apiV1)

	r.wsHandler.RegisterRoutes(router.Group("/ws"))

	r.addDocumentationRoutes(router)

	r.logger.Info("All routes configured successfully")
}

// addDocumentationRoutes sets up documentation routes
func (r *Router) addDocumentationRoutes(router *gin.Engine) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	router.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
}
