// Package handlers exposes the docvault HTTP API.
package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/qianghan/docvault/common/apperrors"
)

// httpError maps the error taxonomy to HTTP responses: not-found to 404,
// validation to 400, lock contention to 409, storage failures to 500.
func httpError(err error) error {
	switch {
	case apperrors.IsNotFound(err):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case apperrors.IsValidation(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case apperrors.IsConcurrency(err):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
