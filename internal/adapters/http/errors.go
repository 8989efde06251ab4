package http

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/gravelatlas/atlas/internal/core/domain"
	"github.com/gravelatlas/atlas/internal/core/drawing"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // bad_request, not_found, invalid_geometry, insufficient_points, ...
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusNotFound, "not_found", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusInternalServerError, "internal_error", msg)
}

// errConflict returns a 409 error.
func errConflict(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusConflict, "conflict", msg)
}

// errDomain maps the domain error taxonomy onto API errors.
func errDomain(c *fiber.Ctx, err error) error {
	var perr *domain.PersistenceError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrSegmentNotFound):
		return errNotFound(c, err.Error())
	case errors.Is(err, domain.ErrInvalidGeometry):
		return newError(c, fiber.StatusBadRequest, "invalid_geometry", err.Error())
	case errors.Is(err, domain.ErrInvalidCoordinate):
		return newError(c, fiber.StatusBadRequest, "invalid_coordinate", err.Error())
	case errors.Is(err, domain.ErrInvalidTitle):
		return newError(c, fiber.StatusBadRequest, "invalid_title", err.Error())
	case errors.Is(err, domain.ErrNotDrawing), errors.Is(err, drawing.ErrClosed):
		return errConflict(c, err.Error())
	case errors.Is(err, domain.ErrInsufficientPoints):
		return newError(c, fiber.StatusUnprocessableEntity, "insufficient_points", err.Error())
	case errors.As(err, &perr):
		LoggerFromCtx(c.UserContext()).Error("persistence failure", slog.String("op", perr.Op), slog.Any("error", perr.Err))
		return newError(c, fiber.StatusInternalServerError, "persistence_error", "could not save segment, please try again")
	default:
		LoggerFromCtx(c.UserContext()).Error("request failed", slog.Any("error", err))
		return errInternal(c, err.Error())
	}
}
