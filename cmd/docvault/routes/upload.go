package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/qianghan/docvault/cmd/docvault/handlers"
)

// RegisterUploadRoutes registers chunked upload routes
func RegisterUploadRoutes(e *echo.Group, handler *handlers.UploadHandler) {
	// POST /api/v1/uploads - Open an upload session
	e.POST("/uploads", handler.CreateSession)

	// GET /api/v1/uploads/:id - Session state and progress
	e.GET("/uploads/:id", handler.GetSession)

	// PUT /api/v1/uploads/:id/chunks/:index - Upload one chunk
	e.PUT("/uploads/:id/chunks/:index", handler.UploadChunk)

	// DELETE /api/v1/uploads/:id - Cancel the session
	e.DELETE("/uploads/:id", handler.CancelUpload)
}
