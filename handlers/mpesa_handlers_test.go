package handlers

import (
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bingwaposters/api-gateway/internal/mpesa"
	"bingwaposters/api-gateway/models"
)

func mpesaApp(deps *testDeps) *fiber.App {
	app := fiber.New()
	app.Post("/api/mpesa/initiate", deps.handler.InitiateMpesaPayment)
	app.Post("/api/mpesa/callback", deps.handler.MpesaCallback)
	return app
}

func seedPosterWithTemplate(deps *testDeps, sessionID string, price int64) {
	tmpl := &models.PosterTemplate{
		ID:    7,
		UUID:  "tmpl-uuid",
		Name:  "Bingwa Deal",
		Price: decimal.NewFromInt(price),
	}
	deps.store.templatesByID[tmpl.ID] = tmpl
	deps.store.templatesByUUID[tmpl.UUID] = tmpl
	deps.store.posterBySessionFn = func(_ int, s string) (*models.PosterJob, error) {
		if s != sessionID {
			return nil, nil
		}
		return &models.PosterJob{
			SessionID:    sessionID,
			TemplateID:   int64Ptr(tmpl.ID),
			TemplateUUID: tmpl.UUID,
			Status:       models.PosterStatusAwaitingPayment,
		}, nil
	}
}

func TestInitiatePaymentUnknownSessionIs404(t *testing.T) {
	deps := newTestHandler()
	app := mpesaApp(deps)

	resp, body := postJSON(t, app, "/api/mpesa/initiate", map[string]interface{}{
		"session_id":  "missing",
		"phoneNumber": "0712345678",
	})

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Empty(t, deps.store.insertedPayments)
}

func TestInitiatePaymentIgnoresClientAmount(t *testing.T) {
	deps := newTestHandler()
	seedPosterWithTemplate(deps, "sess-1", 150)
	deps.payments.response = &mpesa.STKPushResponse{
		MerchantRequestID: "MR-1",
		CheckoutRequestID: "ws_CO_123",
		CustomerMessage:   "Success. Request accepted for processing",
	}
	app := mpesaApp(deps)

	resp, body := postJSON(t, app, "/api/mpesa/initiate", map[string]interface{}{
		"session_id":  "sess-1",
		"phoneNumber": "0712345678",
		"amount":      1, // forged; must be ignored
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(150), body["amount"])
	assert.Equal(t, "254712345678", body["phone"])
	assert.Equal(t, "ws_CO_123", body["CheckoutRequestID"])

	// The charged amount always equals the template's stored price.
	require.Len(t, deps.payments.requests, 1)
	assert.Equal(t, int64(150), deps.payments.requests[0].Amount)
	require.Len(t, deps.store.insertedPayments, 1)
	inserted := deps.store.insertedPayments[0]
	assert.Equal(t, float64(150), inserted.Amount)
	assert.Equal(t, models.PaymentStatusPending, inserted.Status)
	assert.Nil(t, inserted.MpesaCode)

	// The checkout ID is stored as the pre-confirmation correlation token.
	updates := deps.store.paymentUpdates[1]
	require.Len(t, updates, 1)
	assert.Equal(t, "ws_CO_123", updates[0]["mpesa_code"])
}

func TestInitiatePaymentRejectsMissingPrice(t *testing.T) {
	deps := newTestHandler()
	seedPosterWithTemplate(deps, "sess-1", 150)
	deps.store.templatesByID[7].Price = decimal.Zero
	deps.store.templatesByUUID["tmpl-uuid"].Price = decimal.Zero
	app := mpesaApp(deps)

	resp, _ := postJSON(t, app, "/api/mpesa/initiate", map[string]interface{}{
		"session_id":  "sess-1",
		"phoneNumber": "0712345678",
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, deps.store.insertedPayments)
	assert.Empty(t, deps.payments.requests)
}

func TestMpesaCallbackSuccessByTransactionID(t *testing.T) {
	deps := newTestHandler()
	deps.store.paymentsByCode["REQ123"] = &models.Payment{
		ID:          42,
		SessionID:   "sess-1",
		PhoneNumber: "254712345678",
		MpesaCode:   strPtr("REQ123"),
		Status:      models.PaymentStatusPending,
	}
	app := mpesaApp(deps)

	resp, body := postJSON(t, app, "/api/mpesa/callback", map[string]interface{}{
		"ResponseCode":       0,
		"TransactionID":      "REQ123",
		"TransactionAmount":  150,
		"TransactionReceipt": "ABC1234567",
		"Msisdn":             "254712345678",
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	updates := deps.store.paymentUpdates[42]
	require.Len(t, updates, 1)
	assert.Equal(t, models.PaymentStatusPaid, updates[0]["status"])
	assert.Equal(t, "ABC1234567", updates[0]["mpesa_code"])
	assert.Equal(t, float64(150), updates[0]["amount"])

	// The linked poster flips to COMPLETED.
	require.Len(t, deps.store.posterUpdates, 1)
	assert.Equal(t, "sess-1", deps.store.posterUpdates[0]["session_id"])
	assert.Equal(t, models.PosterStatusCompleted, deps.store.posterUpdates[0]["status"])

	require.Len(t, deps.notifier.received, 1)
	assert.Empty(t, deps.notifier.failed)
}

func TestMpesaCallbackFallsBackToPhoneMatch(t *testing.T) {
	deps := newTestHandler()
	// No row carries the inbound TransactionID; the most recent Pending row
	// for the normalized subscriber number is used instead.
	deps.store.pendingByPhone["254712345678"] = &models.Payment{
		ID:          7,
		SessionID:   "sess-2",
		PhoneNumber: "254712345678",
		Status:      models.PaymentStatusPending,
	}
	app := mpesaApp(deps)

	resp, _ := postJSON(t, app, "/api/mpesa/callback", map[string]interface{}{
		"ResponseCode":       0,
		"TransactionID":      "UNKNOWN",
		"TransactionAmount":  150,
		"TransactionReceipt": "XYZ987",
		"Msisdn":             "0712345678",
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	updates := deps.store.paymentUpdates[7]
	require.Len(t, updates, 1)
	assert.Equal(t, models.PaymentStatusPaid, updates[0]["status"])
	assert.Equal(t, "XYZ987", updates[0]["mpesa_code"])
	require.Len(t, deps.store.posterUpdates, 1)
	assert.Equal(t, "sess-2", deps.store.posterUpdates[0]["session_id"])
}

func TestMpesaCallbackFailureMarksPaymentFailed(t *testing.T) {
	deps := newTestHandler()
	deps.store.paymentsByCode["REQ123"] = &models.Payment{
		ID:          9,
		SessionID:   "sess-3",
		PhoneNumber: "254712345678",
		MpesaCode:   strPtr("REQ123"),
		Status:      models.PaymentStatusPending,
	}
	app := mpesaApp(deps)

	resp, body := postJSON(t, app, "/api/mpesa/callback", map[string]interface{}{
		"ResponseCode":  "1032",
		"TransactionID": "REQ123",
		"Msisdn":        "254712345678",
	})

	// Logical payment failure is still a 200 to the provider.
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	updates := deps.store.paymentUpdates[9]
	require.Len(t, updates, 1)
	assert.Equal(t, models.PaymentStatusFailed, updates[0]["status"])
	assert.Empty(t, deps.store.posterUpdates)
	require.Len(t, deps.notifier.failed, 1)
	assert.Empty(t, deps.notifier.received)
}

func TestMpesaCallbackNoMatchStillReturns200(t *testing.T) {
	deps := newTestHandler()
	app := mpesaApp(deps)

	resp, body := postJSON(t, app, "/api/mpesa/callback", map[string]interface{}{
		"ResponseCode":       0,
		"TransactionID":      "UNKNOWN",
		"TransactionReceipt": "ABC",
		"Msisdn":             "254700000000",
	})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Empty(t, deps.store.paymentUpdates)
	assert.Empty(t, deps.store.posterUpdates)
}
