// Package notify delivers fire-and-forget domain notifications to the admin
// dashboard's webhook. Delivery failures are logged and never surface to the
// request that triggered them.
package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"bingwaposters/api-gateway/models"
)

// Webhook posts JSON events to a configured URL. An empty URL disables
// delivery entirely.
type Webhook struct {
	url        string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewWebhook creates a webhook notifier.
func NewWebhook(url string, logger *logrus.Logger) *Webhook {
	return &Webhook{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// PaymentReceived announces a confirmed payment.
func (w *Webhook) PaymentReceived(p models.Payment) {
	w.post("payment.received", p)
}

// PaymentFailed announces a failed payment.
func (w *Webhook) PaymentFailed(p models.Payment) {
	w.post("payment.failed", p)
}

func (w *Webhook) post(event string, p models.Payment) {
	if w.url == "" {
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"event":        event,
		"session_id":   p.SessionID,
		"phone_number": p.PhoneNumber,
		"amount":       p.Amount,
		"status":       p.Status,
		"sent_at":      time.Now(),
	})
	if err != nil {
		w.logger.WithError(err).Error("Failed to encode notification payload")
		return
	}

	go func() {
		resp, err := w.httpClient.Post(w.url, "application/json", bytes.NewReader(payload))
		if err != nil {
			w.logger.WithError(err).WithField("event", event).Warn("Notification delivery failed")
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			w.logger.WithFields(logrus.Fields{
				"event":       event,
				"status_code": resp.StatusCode,
			}).Warn("Notification endpoint rejected event")
		}
	}()
}
