package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"bingwaposters/api-gateway/internal/apperrors"
	"bingwaposters/api-gateway/utils"
)

// fail maps a taxonomy error onto the HTTP response. Validation and not-found
// messages are safe to echo back; gateway, auth and persistence failures all
// collapse to a generic 500 — their detail lives in the logs only, never in
// the response body.
func (h *ApplicationHandler) fail(c *fiber.Ctx, err error, generic string) error {
	var vErr *apperrors.ValidationError
	var nfErr *apperrors.NotFoundError
	switch {
	case errors.As(err, &vErr):
		return utils.RespondWithError(c, fiber.StatusBadRequest, vErr.Msg)
	case errors.As(err, &nfErr):
		return utils.RespondWithError(c, fiber.StatusNotFound, nfErr.Msg)
	default:
		return utils.RespondWithError(c, fiber.StatusInternalServerError, generic)
	}
}
