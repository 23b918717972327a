package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/qianghan/docvault/cmd/docvault/container"
	"github.com/qianghan/docvault/cmd/docvault/handlers"
	"github.com/qianghan/docvault/cmd/docvault/repository"
	"github.com/qianghan/docvault/cmd/docvault/routes"
	"github.com/qianghan/docvault/common/bootstrap"
	"github.com/qianghan/docvault/common/db"
	"github.com/qianghan/docvault/common/server"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (DB, logger, queue, caches, telemetry)
	components, err := bootstrap.Setup(ctx, "docvault",
		bootstrap.WithDBInitHook(func(database *db.DB) error {
			return repository.InitSchema(ctx, database)
		}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap docvault: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	// Initialize service container (singleton pattern - all services created once)
	serviceContainer, err := container.NewContainer(components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}

	// Reclaim expired upload sessions in the background
	serviceContainer.UploadService.Start()
	defer serviceContainer.UploadService.Stop()

	// Initialize Echo server
	e := setupEcho()

	// Setup middleware
	setupMiddleware(e)

	// Setup health check
	setupHealthCheck(e, components)

	// Register all routes
	registerRoutes(e, components, serviceContainer)

	// Start server
	startServer(e, components)
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, components *bootstrap.Components) {
	e.GET("/health", func(c echo.Context) error {
		if err := components.Health(c.Request().Context()); err != nil {
			return c.JSON(503, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return c.JSON(200, map[string]string{
			"status":  "ok",
			"service": "docvault",
		})
	})
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, components *bootstrap.Components, serviceContainer *container.Container) {
	api := e.Group("/api/v1")

	documentHandler := handlers.NewDocumentHandler(components, serviceContainer.DocumentService)
	versionHandler := handlers.NewVersionHandler(components, serviceContainer.VersionService, serviceContainer.UploadService)
	uploadHandler := handlers.NewUploadHandler(components, serviceContainer.UploadService)

	routes.RegisterDocumentRoutes(api, documentHandler)
	routes.RegisterVersionRoutes(api, versionHandler)
	routes.RegisterUploadRoutes(api, uploadHandler)
}

// startServer runs the HTTP server with graceful shutdown on SIGINT/SIGTERM
func startServer(e *echo.Echo, components *bootstrap.Components) {
	port := components.Config.Service.Port
	components.Logger.Info("Starting docvault", "port", port)

	srv := server.New("docvault", port, e, components.Logger)
	if err := srv.Start(); err != nil {
		components.Logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}
