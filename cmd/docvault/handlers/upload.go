package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/qianghan/docvault/cmd/docvault/service"
	"github.com/qianghan/docvault/common/bootstrap"
)

// maxChunkBody bounds how much of a chunk request body is read into memory.
const maxChunkBody = 64 << 20

// UploadHandler handles chunked upload sessions
type UploadHandler struct {
	components *bootstrap.Components
	uploads    *service.UploadService
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(components *bootstrap.Components, uploads *service.UploadService) *UploadHandler {
	return &UploadHandler{
		components: components,
		uploads:    uploads,
	}
}

// CreateSessionRequest is the body for POST /api/v1/uploads
type CreateSessionRequest struct {
	Filename  string `json:"filename"`
	TotalSize int64  `json:"total_size"`
	MimeType  string `json:"mime_type"`
	ChunkSize int64  `json:"chunk_size"` // optional, server default when 0
}

// CreateSession opens a new chunked upload session
// POST /api/v1/uploads
func (h *UploadHandler) CreateSession(c echo.Context) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	session, err := h.uploads.CreateSession(c.Request().Context(), req.Filename, req.TotalSize, req.MimeType, req.ChunkSize)
	if err != nil {
		h.components.Logger.Error("failed to create upload session", "filename", req.Filename, "error", err)
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, session)
}

// UploadChunk writes one chunk of the session's content
// PUT /api/v1/uploads/:id/chunks/:index
func (h *UploadHandler) UploadChunk(c echo.Context) error {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id format")
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid chunk index")
	}

	data, err := io.ReadAll(io.LimitReader(c.Request().Body, maxChunkBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read chunk body")
	}

	progress, err := h.uploads.UploadChunk(c.Request().Context(), sessionID, index, data)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, progress)
}

// GetSession reports a session's state and progress
// GET /api/v1/uploads/:id
func (h *UploadHandler) GetSession(c echo.Context) error {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id format")
	}

	session, err := h.uploads.GetSession(c.Request().Context(), sessionID)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"session":  session,
		"received": session.ChunksReceived(),
		"missing":  session.MissingChunks(),
		"complete": session.IsComplete(),
	})
}

// CancelUpload discards a session and its spooled data
// DELETE /api/v1/uploads/:id
func (h *UploadHandler) CancelUpload(c echo.Context) error {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id format")
	}

	if err := h.uploads.CancelUpload(c.Request().Context(), sessionID); err != nil {
		return httpError(err)
	}

	return c.NoContent(http.StatusNoContent)
}
