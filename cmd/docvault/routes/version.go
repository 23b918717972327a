package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/qianghan/docvault/cmd/docvault/handlers"
)

// RegisterVersionRoutes registers version chain routes
func RegisterVersionRoutes(e *echo.Group, handler *handlers.VersionHandler) {
	// POST /api/v1/documents/:id/versions - Append a version (raw body)
	e.POST("/documents/:id/versions", handler.CreateVersion)

	// POST /api/v1/documents/:id/versions/from-upload - Assemble a completed upload session
	e.POST("/documents/:id/versions/from-upload", handler.CreateVersionFromUpload)

	// GET /api/v1/documents/:id/versions - Version history in sequence order
	e.GET("/documents/:id/versions", handler.GetVersionHistory)

	// GET /api/v1/documents/:id/versions/compare?from=&to= - Diff two versions
	e.GET("/documents/:id/versions/compare", handler.CompareVersions)

	// GET /api/v1/documents/:id/versions/number/:seq - Get version by sequence number
	e.GET("/documents/:id/versions/number/:seq", handler.GetVersionByNumber)

	// GET /api/v1/documents/:id/versions/:versionId - Get version by ID
	e.GET("/documents/:id/versions/:versionId", handler.GetVersion)

	// GET /api/v1/documents/:id/versions/:versionId/content - Stream version content
	e.GET("/documents/:id/versions/:versionId/content", handler.GetVersionContent)

	// POST /api/v1/documents/:id/versions/:versionId/restore - Restore an older version
	e.POST("/documents/:id/versions/:versionId/restore", handler.RestoreVersion)

	// DELETE /api/v1/documents/:id/versions/:versionId - Delete a version
	e.DELETE("/documents/:id/versions/:versionId", handler.DeleteVersion)
}
