package handlers

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"bingwaposters/api-gateway/internal/apperrors"
	"bingwaposters/api-gateway/internal/placid"
	"bingwaposters/api-gateway/models"
	"bingwaposters/api-gateway/utils"
)

var validate = validator.New()

// GenerateRequest defines the expected JSON structure for a poster render request.
type GenerateRequest struct {
	TemplateUUID string                 `json:"template_uuid" validate:"required"`
	TemplateID   *int64                 `json:"template_id"`
	InputData    map[string]interface{} `json:"input_data" validate:"required"`
	SessionID    string                 `json:"session_id" validate:"required"`
}

// passthroughToken is echoed back on the render webhook so the callback can
// recover its context without a prior database lookup.
type passthroughToken struct {
	SessionID    string `json:"session_id"`
	TemplateID   *int64 `json:"template_id,omitempty"`
	TemplateUUID string `json:"template_uuid"`
}

// GeneratePoster accepts a render request, resolves the template, builds the
// layer payload and records the poster row for the session.
func (h *ApplicationHandler) GeneratePoster(c *fiber.Ctx) error {
	payload := new(GenerateRequest)
	if err := c.BodyParser(payload); err != nil {
		h.Logger.WithError(err).Warn("Could not parse generate request body")
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Invalid request body")
	}

	if err := validate.Struct(payload); err != nil {
		h.Logger.WithField("errors", utils.FormatValidationErrors(err)).
			Warn("Generate request failed validation")
		return h.fail(c, &apperrors.ValidationError{
			Msg: "template_uuid, input_data and session_id are required",
		}, "")
	}

	tmpl, err := h.resolveTemplate(payload.TemplateID, payload.TemplateUUID)
	if err != nil {
		h.Logger.WithError(err).Error("Template lookup failed")
		return h.fail(c, err, "Could not resolve template")
	}
	if tmpl == nil {
		return h.fail(c, &apperrors.NotFoundError{Msg: "Template not found"}, "")
	}

	layers := h.buildLayers(payload.SessionID, tmpl, payload.InputData)

	token, err := json.Marshal(passthroughToken{
		SessionID:    payload.SessionID,
		TemplateID:   payload.TemplateID,
		TemplateUUID: payload.TemplateUUID,
	})
	if err != nil {
		h.Logger.WithError(err).Error("Could not encode passthrough token")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not start poster generation")
	}

	render, err := h.Render.CreateImage(c.Context(), placid.RenderRequest{
		TemplateUUID:   payload.TemplateUUID,
		Layers:         layers,
		WebhookSuccess: h.WebhookURL,
		Passthrough:    string(token),
	})
	if err != nil {
		h.Logger.WithError(err).WithField("session_id", payload.SessionID).
			Error("Render gateway call failed")
		// Record the failed attempt so it stays visible before surfacing the error.
		if persistErr := h.Store.UpsertPoster(h.posterRow(payload, tmpl, nil, models.PosterStatusFailed)); persistErr != nil {
			h.Logger.WithError(persistErr).Error("Could not record failed poster attempt")
		}
		return h.fail(c, err, "Poster generation failed")
	}

	status := models.PosterStatusPending
	if render.ImageURL != nil && *render.ImageURL != "" {
		status = models.PosterStatusAwaitingPayment
	}
	if err := h.Store.UpsertPoster(h.posterRow(payload, tmpl, render.ImageURL, status)); err != nil {
		h.Logger.WithError(err).WithField("session_id", payload.SessionID).
			Error("Could not persist poster row")
		return h.fail(c, &apperrors.PersistenceError{Msg: "poster row write failed", Err: err}, "Could not record poster")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":    true,
		"image_url":  render.ImageURL,
		"session_id": payload.SessionID,
	})
}

// resolveTemplate looks up template metadata by numeric id first, falling back
// to the provider uuid.
func (h *ApplicationHandler) resolveTemplate(id *int64, uuid string) (*models.PosterTemplate, error) {
	if id != nil {
		tmpl, err := h.Store.TemplateByID(*id)
		if err != nil {
			return nil, err
		}
		if tmpl != nil {
			return tmpl, nil
		}
	}
	return h.Store.TemplateByUUID(uuid)
}

// buildLayers converts input fields into render layers. Image fields accept a
// base64 data URL (uploaded to storage), an absolute URL (passed through) or a
// storage path (resolved to its public URL); anything else becomes an empty
// image layer. Every other field is a text layer.
func (h *ApplicationHandler) buildLayers(sessionID string, tmpl *models.PosterTemplate, input map[string]interface{}) map[string]placid.Layer {
	layers := make(map[string]placid.Layer, len(input))

	for field, value := range input {
		if !tmpl.ImageField(field) {
			layers[field] = placid.Layer{"text": stringify(value)}
			continue
		}

		raw, _ := value.(string)
		var imageURL string
		switch {
		case strings.HasPrefix(raw, "data:"):
			uploaded, err := h.Store.UploadDataURL(sessionID, field, raw)
			if err != nil {
				h.Logger.WithError(err).WithField("field", field).
					Warn("Embedded image upload failed, sending empty layer")
			} else {
				imageURL = uploaded
			}
		case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
			imageURL = raw
		case raw != "":
			imageURL = h.Store.PublicURL(raw)
		}
		layers[field] = placid.Layer{"image": imageURL}
	}

	return layers
}

func (h *ApplicationHandler) posterRow(payload *GenerateRequest, tmpl *models.PosterTemplate, imageURL *string, status string) models.PosterJob {
	now := time.Now()
	name := tmpl.Name
	templateID := payload.TemplateID
	if templateID == nil {
		templateID = &tmpl.ID
	}
	return models.PosterJob{
		SessionID:    payload.SessionID,
		TemplateID:   templateID,
		TemplateUUID: payload.TemplateUUID,
		TemplateName: &name,
		ImageURL:     imageURL,
		Status:       status,
		UpdatedAt:    &now,
	}
}

func stringify(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
