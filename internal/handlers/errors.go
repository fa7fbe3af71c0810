package handlers

import (
	"errors"
	"log/slog"

	"tokopay/internal/apperr"

	"github.com/gofiber/fiber/v2"
)

// statusFor maps an error kind onto its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return fiber.StatusBadRequest
	case apperr.KindNotFound:
		return fiber.StatusNotFound
	case apperr.KindConflict:
		return fiber.StatusConflict
	case apperr.KindVerification:
		return fiber.StatusUnprocessableEntity
	case apperr.KindGateway:
		return fiber.StatusBadGateway
	case apperr.KindUnauthorized:
		return fiber.StatusUnauthorized
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err using the default status for its kind.
func respondError(c *fiber.Ctx, err error) error {
	return writeError(c, err, statusFor(apperr.KindOf(err)))
}

// writeError writes err with the given status. Only the public message of an application
// error reaches the client; gateway and internal causes are logged.
func writeError(c *fiber.Ctx, err error, status int) error {
	var vf *validationFailure
	if errors.As(err, &vf) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  vf.fields,
		})
	}
	var be *bodyError
	if errors.As(err, &be) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   be.Error(),
		})
	}

	appErr, ok := apperr.As(err)
	if !ok {
		slog.Error("request failed", "method", c.Method(), "path", c.Path(), "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Internal server error",
		})
	}
	if status >= fiber.StatusInternalServerError || appErr.Kind == apperr.KindGateway {
		slog.Error("request failed", "method", c.Method(), "path", c.Path(), "status", status, "err", err)
	}
	return c.Status(status).JSON(fiber.Map{
		"message": appErr.PublicMessage(),
		"error":   appErr.Code,
	})
}

// ErrorHandler is the Fiber error handler for errors returned by handlers and middleware.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{
			"message": fe.Message,
		})
	}
	return respondError(c, err)
}
