// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"fmt"

	businessflow "github.com/brainchat/customer-service/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "email":
		return "Invalid email format"
	case "uuid":
		return err.Field() + " must be a valid UUID"
	case "min":
		return err.Field() + " must be at least " + err.Param() + " characters"
	case "max":
		return err.Field() + " must be at most " + err.Param() + " characters"
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}

// statusFromError maps a business error onto its HTTP status through the
// error taxonomy. Anything outside the taxonomy is an internal error.
func statusFromError(err error) int {
	switch businessflow.KindOf(err) {
	case businessflow.KindNotFound:
		return fiber.StatusNotFound
	case businessflow.KindConflict:
		return fiber.StatusConflict
	case businessflow.KindUnauthorized:
		return fiber.StatusUnauthorized
	case businessflow.KindRateLimited:
		return fiber.StatusTooManyRequests
	case businessflow.KindUnavailable:
		return fiber.StatusServiceUnavailable
	case businessflow.KindInvalidArgument:
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}
