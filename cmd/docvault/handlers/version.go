package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/qianghan/docvault/cmd/docvault/models"
	"github.com/qianghan/docvault/cmd/docvault/service"
	"github.com/qianghan/docvault/common/bootstrap"
)

// VersionHandler handles version chain operations
type VersionHandler struct {
	components *bootstrap.Components
	versions   *service.VersionService
	uploads    *service.UploadService
}

// NewVersionHandler creates a new version handler
func NewVersionHandler(components *bootstrap.Components, versions *service.VersionService, uploads *service.UploadService) *VersionHandler {
	return &VersionHandler{
		components: components,
		versions:   versions,
		uploads:    uploads,
	}
}

// CreateVersion appends a new version with the request body as content
// POST /api/v1/documents/:id/versions?created_by=...&comment=...
func (h *VersionHandler) CreateVersion(c echo.Context) error {
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document id format")
	}

	createdBy := c.QueryParam("created_by")
	comment := c.QueryParam("comment")

	version, err := h.versions.CreateVersion(c.Request().Context(), docID, c.Request().Body, createdBy, comment, nil)
	if err != nil {
		h.components.Logger.Error("failed to create version", "document_id", docID, "error", err)
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, version)
}

// CreateVersionFromUploadRequest is the body for the from-upload endpoint
type CreateVersionFromUploadRequest struct {
	SessionID uuid.UUID       `json:"session_id"`
	CreatedBy string          `json:"created_by"`
	Comment   string          `json:"comment"`
	Metadata  models.Metadata `json:"metadata"`
}

// CreateVersionFromUpload assembles a completed upload session into a version
// POST /api/v1/documents/:id/versions/from-upload
func (h *VersionHandler) CreateVersionFromUpload(c echo.Context) error {
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document id format")
	}

	var req CreateVersionFromUploadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	content, session, err := h.uploads.CompleteUpload(c.Request().Context(), req.SessionID)
	if err != nil {
		return httpError(err)
	}
	defer content.Close()

	version, err := h.versions.CreateVersion(c.Request().Context(), docID, content, req.CreatedBy, req.Comment, req.Metadata)
	if err != nil {
		h.components.Logger.Error("failed to create version from upload",
			"document_id", docID, "session_id", req.SessionID, "error", err)
		return httpError(err)
	}

	h.components.Logger.Info("version created from upload",
		"document_id", docID,
		"version_id", version.ID,
		"filename", session.Filename,
	)
	return c.JSON(http.StatusCreated, version)
}

// GetVersionHistory lists a document's versions in sequence order
// GET /api/v1/documents/:id/versions
func (h *VersionHandler) GetVersionHistory(c echo.Context) error {
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document id format")
	}

	versions, err := h.versions.GetVersionHistory(c.Request().Context(), docID)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"versions": versions,
		"count":    len(versions),
	})
}

// GetVersion retrieves a version record by ID
// GET /api/v1/documents/:id/versions/:versionId
func (h *VersionHandler) GetVersion(c echo.Context) error {
	docID, versionID, err := pathIDs(c)
	if err != nil {
		return err
	}

	version, err := h.versions.GetVersion(c.Request().Context(), docID, versionID)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, version)
}

// GetVersionByNumber retrieves a version record by sequence number
// GET /api/v1/documents/:id/versions/number/:seq
func (h *VersionHandler) GetVersionByNumber(c echo.Context) error {
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document id format")
	}

	seq, err := strconv.Atoi(c.Param("seq"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid sequence number")
	}

	version, err := h.versions.GetVersionByNumber(c.Request().Context(), docID, seq)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, version)
}

// GetVersionContent streams a version's content
// GET /api/v1/documents/:id/versions/:versionId/content
func (h *VersionHandler) GetVersionContent(c echo.Context) error {
	docID, versionID, err := pathIDs(c)
	if err != nil {
		return err
	}

	content, err := h.versions.GetVersionContent(c.Request().Context(), docID, versionID)
	if err != nil {
		return httpError(err)
	}
	defer content.Close()

	return c.Stream(http.StatusOK, echo.MIMEOctetStream, content)
}

// DeleteVersion removes a version from the chain
// DELETE /api/v1/documents/:id/versions/:versionId
func (h *VersionHandler) DeleteVersion(c echo.Context) error {
	docID, versionID, err := pathIDs(c)
	if err != nil {
		return err
	}

	if err := h.versions.DeleteVersion(c.Request().Context(), docID, versionID); err != nil {
		h.components.Logger.Error("failed to delete version",
			"document_id", docID, "version_id", versionID, "error", err)
		return httpError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

// RestoreVersion creates a new latest version from an older one's content
// POST /api/v1/documents/:id/versions/:versionId/restore?created_by=...
func (h *VersionHandler) RestoreVersion(c echo.Context) error {
	docID, versionID, err := pathIDs(c)
	if err != nil {
		return err
	}

	doc, err := h.versions.RestoreVersion(c.Request().Context(), docID, versionID, c.QueryParam("created_by"))
	if err != nil {
		h.components.Logger.Error("failed to restore version",
			"document_id", docID, "version_id", versionID, "error", err)
		return httpError(err)
	}

	return c.JSON(http.StatusOK, doc)
}

// CompareVersions diffs the metadata and size of two versions
// GET /api/v1/documents/:id/versions/compare?from=...&to=...
func (h *VersionHandler) CompareVersions(c echo.Context) error {
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document id format")
	}

	fromID, err := uuid.Parse(c.QueryParam("from"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid from version id")
	}
	toID, err := uuid.Parse(c.QueryParam("to"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid to version id")
	}

	diff, err := h.versions.CompareVersions(c.Request().Context(), docID, fromID, toID)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, diff)
}

func pathIDs(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid document id format")
	}
	versionID, err := uuid.Parse(c.Param("versionId"))
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid version id format")
	}
	return docID, versionID, nil
}
