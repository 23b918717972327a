package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/qianghan/docvault/cmd/docvault/handlers"
)

// RegisterDocumentRoutes registers document lifecycle routes
func RegisterDocumentRoutes(e *echo.Group, handler *handlers.DocumentHandler) {
	// POST /api/v1/documents - Create a document
	e.POST("/documents", handler.CreateDocument)

	// GET /api/v1/documents - List documents (optional owner filter)
	e.GET("/documents", handler.ListDocuments)

	// GET /api/v1/documents/:id - Get a document
	e.GET("/documents/:id", handler.GetDocument)

	// PATCH /api/v1/documents/:id/metadata - Merge-patch document metadata
	e.PATCH("/documents/:id/metadata", handler.UpdateMetadata)

	// DELETE /api/v1/documents/:id - Delete a document and its versions
	e.DELETE("/documents/:id", handler.DeleteDocument)
}
