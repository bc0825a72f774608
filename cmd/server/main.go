// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "digit-service/docs"
	"digit-service/internal/classifier"
	"digit-service/internal/config"
	"digit-service/internal/database"
	"digit-service/internal/discovery"
	serialscan "digit-service/internal/discovery/serial"
	"digit-service/internal/events"
	"digit-service/internal/handler"
	serialproto "digit-service/internal/protocol/serial"
	"digit-service/internal/repository"
	"digit-service/internal/routes"
	"digit-service/internal/service"
	"digit-service/internal/utils"
)

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	database *database.DB

	bus                   *events.EventBus
	classificationService *service.ClassificationService
	wsHandler             *handler.WebSocketHandler
	repo                  repository.ClassificationRepository
}

// @title Digit Service API
// @version 1.0.0
// @description Handwritten digit classification through an STM32 board over a serial link

// @contact.name Digit Service API Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8084
// @BasePath /
func main() {
	configPath := pflag.StringP("config", "c", "", "path to config file")
	migrate := pflag.String("migrate", "", "run database migrations (up, down, version) and exit")
	pflag.Parse()

	app, err := NewApplication(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if *migrate != "" {
		if err := app.runMigration(*migrate); err != nil {
			app.logger.Error("Migration failed", zap.Error(err))
			app.close()
			os.Exit(1)
		}
		app.close()
		return
	}

	if err := app.Start(); err != nil {
		app.logger.Error("Application stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

// NewApplication creates a new application instance
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "digit-service")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	if err := app.initializeRepository(); err != nil {
		return nil, fmt.Errorf("failed to initialize repository: %w", err)
	}

	app.initializeServices()
	app.initializeServer()

	return app, nil
}

// initializeRepository selects the postgres or in-memory history store
func (app *Application) initializeRepository() error {
	if !app.config.Database.Enabled {
		app.repo = repository.NewMemoryRepository(app.config.History.Capacity)
		app.logger.Info("Classification history kept in memory",
			zap.Int("capacity", app.config.History.Capacity),
		)
		return nil
	}

	db, err := database.NewConnection(context.Background(), app.config, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	app.database = db

	if app.config.Database.AutoMigrate {
		migrator := database.NewMigrator(app.config, app.logger)
		if err := migrator.Up(); err != nil {
			return fmt.Errorf("failed to run database migrations: %w", err)
		}
	}

	app.repo = repository.NewClassificationRepository(db, app.logger)
	app.logger.Info("Database initialized successfully")
	return nil
}

// initializeServices wires the device session into the classification service
func (app *Application) initializeServices() {
	app.bus = events.NewEventBus(app.logger)

	scanners := discovery.NewScannerManager(app.logger)
	scanners.RegisterScanner(serialscan.NewScanner(nil, app.logger))

	session := classifier.NewSession(
		service.SessionOptions(app.config.Device),
		serialproto.OpenSystemPort,
		app.logger,
	)

	app.classificationService = service.NewClassificationService(
		session,
		app.repo,
		app.bus,
		scanners,
		app.config.Device,
		app.logger,
	)
	app.wsHandler = handler.NewWebSocketHandler(app.classificationService, app.bus, app.config.Security, app.logger)

	app.logger.Info("Services initialized successfully")
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() {
	// A nil *database.DB must not become a non-nil interface
	var db handler.DatabaseChecker
	if app.database != nil {
		db = app.database
	}

	router := routes.NewRouter(app.config, app.logger, db, app.classificationService, app.wsHandler).SetupRouter()

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
		zap.Bool("tls_enabled", app.config.Server.TLS.Enabled),
	)
}

// runMigration runs a single migration command against the configured database
func (app *Application) runMigration(command string) error {
	if app.database == nil {
		return errors.New("database.enabled is false")
	}

	migrator := database.NewMigrator(app.config, app.logger)
	switch command {
	case "up":
		return migrator.Up()
	case "down":
		return migrator.Down()
	case "version":
		version, dirty, err := migrator.Version()
		if err != nil {
			return err
		}
		app.logger.Info("Migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
		return nil
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}
}

// Start serves until a shutdown signal or a fatal server error
func (app *Application) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		app.bus.Start(ctx)
		return nil
	})

	group.Go(func() error {
		app.wsHandler.Run(ctx)
		return nil
	})

	group.Go(func() error {
		app.logger.Info("Starting HTTP server", zap.String("address", app.server.Addr))

		var err error
		if app.config.Server.TLS.Enabled {
			err = app.server.ListenAndServeTLS(app.config.Server.TLS.CertFile, app.config.Server.TLS.KeyFile)
		} else {
			err = app.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if app.config.History.Retention > 0 {
		group.Go(func() error {
			app.runCleanup(ctx)
			return nil
		})
	}

	if app.config.Device.AutoConnect {
		app.autoConnect(ctx)
	}

	group.Go(func() error {
		<-ctx.Done()
		app.logger.Info("Shutdown requested")
		app.shutdown()
		return nil
	})

	err := group.Wait()
	app.close()
	return err
}

// autoConnect connects to the configured port without blocking startup
func (app *Application) autoConnect(ctx context.Context) {
	cfg := classifier.ConnectionConfig{
		Port:     app.config.Device.Port,
		BaudRate: app.config.Device.BaudRate,
	}

	outcome, err := app.classificationService.ConnectAsync(cfg)
	if err != nil {
		app.logger.Warn("Auto-connect rejected", zap.String("port", cfg.Port), zap.Error(err))
		return
	}

	go func() {
		select {
		case result := <-outcome:
			if result.Err != nil {
				app.logger.Warn("Auto-connect failed", zap.String("port", cfg.Port), zap.Error(result.Err))
				return
			}
			app.logger.Info("Auto-connect succeeded", zap.String("port", cfg.Port))
		case <-ctx.Done():
		}
	}()
}

// runCleanup prunes classifications older than the retention period
func (app *Application) runCleanup(ctx context.Context) {
	ticker := time.NewTicker(app.config.History.CleanupInterval)
	defer ticker.Stop()

	app.logger.Info("History cleanup started",
		zap.Duration("retention", app.config.History.Retention),
		zap.Duration("interval", app.config.History.CleanupInterval),
	)

	for {
		select {
		case <-ticker.C:
			pruneCtx, cancel := context.WithTimeout(ctx, time.Minute)
			deleted, err := app.classificationService.PruneHistory(pruneCtx, app.config.History.Retention)
			cancel()
			if err != nil {
				app.logger.Error("Failed to prune classification history", zap.Error(err))
			} else if deleted > 0 {
				app.logger.Info("Pruned classification history", zap.Int64("deleted", deleted))
			}
		case <-ctx.Done():
			return
		}
	}
}

// shutdown stops the HTTP server and drains in-flight device work
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "digit-service")
	serviceLogger.LogServiceStop("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	if err := app.classificationService.Shutdown(ctx); err != nil {
		app.logger.Warn("Classification service shutdown incomplete", zap.Error(err))
	}
}

// close releases the database and flushes the logger
func (app *Application) close() {
	if app.database != nil {
		if err := app.database.Close(); err != nil {
			app.logger.Error("Database close error", zap.Error(err))
		}
	}

	app.logger.Info("Application shutdown completed")
	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Fprintf(os.Stderr, "Logger close error: %v\n", err)
	}
}
