package handlers

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"bingwaposters/api-gateway/internal/apperrors"
	"bingwaposters/api-gateway/internal/mpesa"
	"bingwaposters/api-gateway/models"
	"bingwaposters/api-gateway/utils"
)

// InitiatePaymentRequest defines the expected JSON structure for starting an
// STK push. Any client-supplied amount field is deliberately not modeled: the
// price always comes from the stored template.
type InitiatePaymentRequest struct {
	SessionID   string `json:"session_id" validate:"required"`
	PhoneNumber string `json:"phoneNumber" validate:"required"`
}

// InitiateMpesaPayment validates the session, resolves the poster's price from
// its template, records a Pending payment and triggers the push prompt.
func (h *ApplicationHandler) InitiateMpesaPayment(c *fiber.Ctx) error {
	payload := new(InitiatePaymentRequest)
	if err := c.BodyParser(payload); err != nil {
		h.Logger.WithError(err).Warn("Could not parse payment initiation body")
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := validate.Struct(payload); err != nil {
		return h.fail(c, &apperrors.ValidationError{Msg: "session_id and phoneNumber are required"}, "")
	}

	poster, err := h.Store.PosterBySession(payload.SessionID)
	if err != nil {
		h.Logger.WithError(err).Error("Poster lookup failed")
		return h.fail(c, err, "Could not look up poster")
	}
	if poster == nil {
		return h.fail(c, &apperrors.NotFoundError{Msg: "No poster found for this session"}, "")
	}

	tmpl, err := h.resolveTemplate(poster.TemplateID, poster.TemplateUUID)
	if err != nil {
		h.Logger.WithError(err).Error("Template lookup failed")
		return h.fail(c, err, "Could not resolve poster price")
	}
	if tmpl == nil || !tmpl.Price.IsPositive() {
		h.Logger.WithField("session_id", payload.SessionID).
			Warn("Poster template has no usable price")
		return h.fail(c, &apperrors.ValidationError{Msg: "Poster price is not configured"}, "")
	}

	phone := utils.NormalizePhone(payload.PhoneNumber)
	amount := tmpl.Price.IntPart()

	payment, err := h.Store.InsertPayment(models.Payment{
		SessionID:   payload.SessionID,
		PhoneNumber: phone,
		Amount:      float64(amount),
		Status:      models.PaymentStatusPending,
	})
	if err != nil {
		h.Logger.WithError(err).Error("Could not record pending payment")
		return h.fail(c, &apperrors.PersistenceError{Msg: "payment row write failed", Err: err}, "Could not record payment")
	}

	push, err := h.Payments.InitiatePush(c.Context(), mpesa.STKPushRequest{
		Amount:           amount,
		PhoneNumber:      phone,
		AccountReference: tmpl.Name,
		TransactionDesc:  fmt.Sprintf("Poster %s", tmpl.Name),
	})
	if err != nil {
		h.Logger.WithError(err).WithField("session_id", payload.SessionID).
			Error("STK push failed")
		return h.fail(c, err, "Payment request failed")
	}

	// Store the checkout ID as the pre-confirmation correlation token. If this
	// write fails the confirmation callback still recovers via the phone
	// fallback, so the push is not failed retroactively.
	if err := h.Store.UpdatePayment(payment.ID, map[string]interface{}{
		"mpesa_code": push.CheckoutRequestID,
	}); err != nil {
		h.Logger.WithError(err).WithField("payment_id", payment.ID).
			Error("Could not store checkout request ID")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":           true,
		"amount":            amount,
		"phone":             phone,
		"CheckoutRequestID": push.CheckoutRequestID,
		"MerchantRequestID": push.MerchantRequestID,
		"CustomerMessage":   push.CustomerMessage,
	})
}

// MpesaCallbackRequest is the payment provider's confirmation webhook body.
// ResponseCode and TransactionAmount arrive as either numbers or strings
// depending on the provider path, so they are decoded loosely.
type MpesaCallbackRequest struct {
	ResponseCode       interface{} `json:"ResponseCode"`
	TransactionID      string      `json:"TransactionID"`
	TransactionAmount  interface{} `json:"TransactionAmount"`
	TransactionReceipt string      `json:"TransactionReceipt"`
	Msisdn             string      `json:"Msisdn"`
}

// MpesaCallback matches a provider confirmation to a pending payment and
// settles it. The provider has no useful recovery action, so the response is
// always 200 regardless of what matched.
func (h *ApplicationHandler) MpesaCallback(c *fiber.Ctx) error {
	payload := new(MpesaCallbackRequest)
	if err := c.BodyParser(payload); err != nil {
		h.Logger.WithError(err).Warn("Could not parse payment callback body")
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"success": true,
			"message": "Callback ignored",
		})
	}

	log := h.Logger.WithFields(map[string]interface{}{
		"transaction_id": payload.TransactionID,
		"receipt":        payload.TransactionReceipt,
	})

	payment := h.matchPayment(payload)
	if payment == nil {
		log.Warn("Payment callback matched no payment row")
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"success": true,
			"message": "No matching payment",
		})
	}

	if looseCodeIsZero(payload.ResponseCode) {
		fields := map[string]interface{}{
			"status": models.PaymentStatusPaid,
			// Overwrite the correlation token with the receipt so a duplicate
			// delivery cannot re-match this row by token.
			"mpesa_code": payload.TransactionReceipt,
		}
		if amount, ok := looseAmount(payload.TransactionAmount); ok {
			fields["amount"] = amount
			payment.Amount = amount
		}
		if err := h.Store.UpdatePayment(payment.ID, fields); err != nil {
			log.WithError(err).Error("Could not mark payment Paid")
		}
		if err := h.Store.UpdatePosterFields(payment.SessionID, map[string]interface{}{
			"status": models.PosterStatusCompleted,
		}); err != nil {
			log.WithError(err).Error("Could not mark poster completed")
		}

		payment.Status = models.PaymentStatusPaid
		h.Notifier.PaymentReceived(*payment)
		log.Info("Payment confirmed")
	} else {
		if err := h.Store.UpdatePayment(payment.ID, map[string]interface{}{
			"status": models.PaymentStatusFailed,
		}); err != nil {
			log.WithError(err).Error("Could not mark payment Failed")
		}

		payment.Status = models.PaymentStatusFailed
		h.Notifier.PaymentFailed(*payment)
		log.Info("Payment failed")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Callback processed",
	})
}

// matchPayment finds the payment a callback belongs to: by the correlation
// token first, then by the most recent Pending payment for the normalized
// subscriber number. The phone fallback can mis-match when several Pending
// payments exist for one subscriber; the correlation token is supposed to make
// that path rare.
func (h *ApplicationHandler) matchPayment(payload *MpesaCallbackRequest) *models.Payment {
	if payload.TransactionID != "" {
		payment, err := h.Store.PaymentByMpesaCode(payload.TransactionID)
		if err != nil {
			h.Logger.WithError(err).Warn("Payment lookup by transaction ID failed")
		} else if payment != nil {
			return payment
		}
	}

	if payload.Msisdn == "" {
		return nil
	}
	phone := utils.NormalizePhone(payload.Msisdn)
	payment, err := h.Store.LatestPendingPaymentByPhone(phone)
	if err != nil {
		h.Logger.WithError(err).Warn("Payment lookup by phone failed")
		return nil
	}
	return payment
}

// looseCodeIsZero reports whether a response code equals zero whether it came
// in as a number or a string.
func looseCodeIsZero(v interface{}) bool {
	switch code := v.(type) {
	case float64:
		return code == 0
	case int:
		return code == 0
	case string:
		n, err := strconv.ParseFloat(code, 64)
		return err == nil && n == 0
	default:
		return false
	}
}

func looseAmount(v interface{}) (float64, bool) {
	switch amount := v.(type) {
	case float64:
		return amount, true
	case int:
		return float64(amount), true
	case string:
		n, err := strconv.ParseFloat(amount, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
