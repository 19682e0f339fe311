package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"bingwaposters/api-gateway/internal/apperrors"
	"bingwaposters/api-gateway/models"
	"bingwaposters/api-gateway/utils"
)

const (
	imageUpdateAttempts = 3
	imageUpdateBackoff  = 400 * time.Millisecond
)

// PlacidCallback receives the asynchronous render webhook carrying the final
// asset URL and reconciles it into the poster row for the session.
//
// The response policy is deliberately asymmetric with the payment callback:
// unlinkable events are acknowledged with 200 (a retry cannot improve on
// them), but a write that fails verification returns 5xx so the provider
// retries the whole webhook later.
func (h *ApplicationHandler) PlacidCallback(c *fiber.Ctx) error {
	var payload map[string]interface{}
	if err := c.BodyParser(&payload); err != nil {
		h.Logger.WithError(err).Warn("Could not parse render callback body")
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Invalid callback payload")
	}

	assetURL, ok := resolveAssetURL(payload)
	if !ok {
		h.Logger.Warn("Render callback carried no asset URL")
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Callback has no image URL")
	}

	sessionID, ok := resolveSessionID(payload)
	if !ok {
		// Nothing to link the asset to; acknowledge so the provider does not
		// retry an event it cannot improve on. The write is lost.
		h.Logger.WithField("asset_url", assetURL).
			Warn("Render callback had no resolvable session, dropping")
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"success": true,
			"linked":  false,
		})
	}

	log := h.Logger.WithField("session_id", sessionID)

	existing, err := h.Store.PosterBySession(sessionID)
	if err != nil {
		log.WithError(err).Error("Poster lookup failed, treating as missing row")
		existing = nil
	}

	// Duplicate delivery guard: same URL already stored means nothing to do.
	if existing != nil && existing.ImageURL != nil && *existing.ImageURL == assetURL {
		log.Info("Render callback already applied, skipping")
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"success":    true,
			"idempotent": true,
		})
	}

	if existing == nil {
		// The callback won the race against the initiating request's write.
		// Upsert the row and verify once, best effort.
		job := models.PosterJob{
			SessionID: sessionID,
			ImageURL:  &assetURL,
			Status:    models.PosterStatusAwaitingPayment,
		}
		if err := h.Store.UpsertPoster(job); err != nil {
			log.WithError(err).Error("Could not upsert poster from callback")
			return h.fail(c, &apperrors.PersistenceError{Msg: "poster upsert failed", Err: err}, "Could not record poster image")
		}

		verified := false
		if check, err := h.Store.PosterBySession(sessionID); err == nil &&
			check != nil && check.ImageURL != nil && *check.ImageURL == assetURL {
			verified = true
		}
		log.WithField("verified", verified).Info("Poster row upserted from callback")
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"success":  true,
			"upserted": true,
			"verified": verified,
		})
	}

	// Existing row with a different (or absent) URL: update and re-read to
	// verify the URL actually persisted, with bounded backoff between attempts.
	for attempt := 1; attempt <= imageUpdateAttempts; attempt++ {
		err := h.Store.UpdatePosterFields(sessionID, map[string]interface{}{
			"image_url": assetURL,
			"status":    models.PosterStatusAwaitingPayment,
		})
		if err != nil {
			log.WithError(err).WithField("attempt", attempt).Warn("Poster image update failed")
		} else {
			check, err := h.Store.PosterBySession(sessionID)
			if err == nil && check != nil && check.ImageURL != nil && *check.ImageURL == assetURL {
				log.WithField("attempt", attempt).Info("Poster image updated")
				return c.Status(fiber.StatusOK).JSON(fiber.Map{
					"success":  true,
					"updated":  true,
					"verified": true,
				})
			}
			log.WithField("attempt", attempt).Warn("Poster image update did not verify")
		}

		if attempt < imageUpdateAttempts {
			h.sleep(imageUpdateBackoff * time.Duration(attempt))
		}
	}

	log.Error("Poster image update failed to verify after all attempts")
	return h.fail(c, &apperrors.PersistenceError{Msg: "poster image update did not verify"}, "Could not persist poster image")
}
