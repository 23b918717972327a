package handlers

import (
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/qianghan/docvault/cmd/docvault/models"
	"github.com/qianghan/docvault/cmd/docvault/service"
	"github.com/qianghan/docvault/common/bootstrap"
)

// DocumentHandler handles document lifecycle operations
type DocumentHandler struct {
	components *bootstrap.Components
	documents  *service.DocumentService
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(components *bootstrap.Components, documents *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{
		components: components,
		documents:  documents,
	}
}

// CreateDocumentRequest is the body for POST /api/v1/documents
type CreateDocumentRequest struct {
	OwnerID  string          `json:"owner_id"`
	Metadata models.Metadata `json:"metadata"`
}

// CreateDocument registers a new document
// POST /api/v1/documents
func (h *DocumentHandler) CreateDocument(c echo.Context) error {
	var req CreateDocumentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	doc, err := h.documents.CreateDocument(c.Request().Context(), req.OwnerID, req.Metadata)
	if err != nil {
		h.components.Logger.Error("failed to create document", "owner_id", req.OwnerID, "error", err)
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, doc)
}

// GetDocument retrieves a document by ID
// GET /api/v1/documents/:id
func (h *DocumentHandler) GetDocument(c echo.Context) error {
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document id format")
	}

	doc, err := h.documents.GetDocument(c.Request().Context(), docID)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, doc)
}

// ListDocuments lists documents, optionally filtered by owner
// GET /api/v1/documents?owner_id=...
func (h *DocumentHandler) ListDocuments(c echo.Context) error {
	docs, err := h.documents.ListDocuments(c.Request().Context(), c.QueryParam("owner_id"))
	if err != nil {
		h.components.Logger.Error("failed to list documents", "error", err)
		return httpError(err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"documents": docs,
		"count":     len(docs),
	})
}

// UpdateMetadata applies a JSON merge patch to the document's metadata
// PATCH /api/v1/documents/:id/metadata
func (h *DocumentHandler) UpdateMetadata(c echo.Context) error {
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document id format")
	}

	patch, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	doc, err := h.documents.UpdateMetadata(c.Request().Context(), docID, patch)
	if err != nil {
		h.components.Logger.Error("failed to update metadata", "document_id", docID, "error", err)
		return httpError(err)
	}

	return c.JSON(http.StatusOK, doc)
}

// DeleteDocument removes a document, its versions and their blobs
// DELETE /api/v1/documents/:id
func (h *DocumentHandler) DeleteDocument(c echo.Context) error {
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document id format")
	}

	h.components.Logger.Info("deleting document", "document_id", docID)

	if err := h.documents.DeleteDocument(c.Request().Context(), docID); err != nil {
		h.components.Logger.Error("failed to delete document", "document_id", docID, "error", err)
		return httpError(err)
	}

	return c.NoContent(http.StatusNoContent)
}
