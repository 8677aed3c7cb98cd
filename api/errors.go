package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/xraph/tally"
	"github.com/xraph/tally/types"
)

// StatusFor maps a ledger error to an HTTP status code.
func StatusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, tally.ErrUnauthorized):
		return fiber.StatusForbidden
	case errors.Is(err, tally.ErrInsufficientBalance):
		return fiber.StatusPaymentRequired
	case errors.Is(err, tally.ErrInvalidInput), errors.Is(err, types.ErrInvalidAmount):
		return fiber.StatusBadRequest
	case errors.Is(err, tally.ErrArithmeticOverflow),
		errors.Is(err, tally.ErrCurrencyMismatch),
		errors.Is(err, tally.ErrInvalidConfig):
		return fiber.StatusUnprocessableEntity
	case tally.IsNotFound(err):
		return fiber.StatusNotFound
	case tally.IsRetryable(err):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandler renders errors as {"error": message}. Server errors are
// logged and their message is not exposed.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := StatusFor(err)
		msg := err.Error()
		if status >= fiber.StatusInternalServerError && status != fiber.StatusServiceUnavailable {
			logger.Error("request failed",
				"method", c.Method(),
				"path", c.Path(),
				"request_id", requestID(c),
				"error", err,
			)
			msg = "internal error"
		}
		var fe *fiber.Error
		if errors.As(err, &fe) {
			msg = fe.Message
		}
		return c.Status(status).JSON(fiber.Map{"error": msg})
	}
}
