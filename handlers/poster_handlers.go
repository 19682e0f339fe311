package handlers

import (
	"github.com/gofiber/fiber/v2"

	"bingwaposters/api-gateway/utils"
)

// GetPosterStatus returns the poster row for a session. The storefront polls
// this while waiting for the render webhook to land.
// GET /api/poster-status/:sessionId
func (h *ApplicationHandler) GetPosterStatus(c *fiber.Ctx) error {
	sessionID := c.Params("sessionId")
	if sessionID == "" {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Session ID is required")
	}

	poster, err := h.Store.PosterBySession(sessionID)
	if err != nil {
		h.Logger.WithError(err).WithField("session_id", sessionID).
			Error("Poster status lookup failed")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not look up poster")
	}
	if poster == nil {
		return utils.RespondWithError(c, fiber.StatusNotFound, "No poster found for this session")
	}

	return utils.RespondWithJSON(c, fiber.StatusOK, poster)
}

// ListTemplates returns the poster template catalog.
// GET /api/templates
func (h *ApplicationHandler) ListTemplates(c *fiber.Ctx) error {
	templates, err := h.Store.ListTemplates()
	if err != nil {
		h.Logger.WithError(err).Error("Template listing failed")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not list templates")
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, templates)
}
