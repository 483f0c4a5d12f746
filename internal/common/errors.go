package common

import (
	"errors"
	"net/http"

	"github.com/jo-hoe/opticderm/internal/backend/commands"
	"github.com/jo-hoe/opticderm/internal/catalog"
	"github.com/jo-hoe/opticderm/internal/core"
	"github.com/jo-hoe/opticderm/internal/descriptor"
	"github.com/labstack/echo/v4"
)

// StatusCode maps a domain error to the HTTP status shown to the client
func StatusCode(err error) int {
	var httpErr *echo.HTTPError
	var uploadErr *core.UploadError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &httpErr):
		return httpErr.Code
	case errors.Is(err, core.ErrUploadTooLarge), errors.Is(err, commands.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &uploadErr):
		return http.StatusBadRequest
	// an unknown ROI tag is both unknown and invalid; the ROI error wins
	case errors.Is(err, descriptor.ErrInvalidROI):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrUnknownSelection):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ToHTTPError converts err into an echo error with a message fit for display.
// Unclassified errors are not echoed to the client.
func ToHTTPError(err error) *echo.HTTPError {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	code := StatusCode(err)
	message := err.Error()
	if code == http.StatusInternalServerError && !errors.Is(err, catalog.ErrNoReferenceRange) {
		message = http.StatusText(code)
	}
	return echo.NewHTTPError(code, message).SetInternal(err)
}
