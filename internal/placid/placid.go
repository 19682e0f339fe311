// Package placid wraps the Placid REST API used to render poster images from
// templates. Rendering is usually asynchronous: the create call returns without
// an image URL and the final asset arrives later on the success webhook.
package placid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"bingwaposters/api-gateway/internal/apperrors"
)

const defaultBaseURL = "https://api.placid.app/api/rest"

// Layer is one template layer payload, e.g. {"text": "Hello"} or
// {"image": "https://..."}.
type Layer map[string]interface{}

// RenderRequest describes one image render job.
type RenderRequest struct {
	TemplateUUID   string
	Layers         map[string]Layer
	WebhookSuccess string
	// Passthrough is echoed back verbatim on the webhook so the callback can
	// recover its correlation context without a database lookup.
	Passthrough string
}

// RenderResponse is the provider's acknowledgment. ImageURL is nil while the
// render is still queued.
type RenderResponse struct {
	ID       int64   `json:"id"`
	Status   string  `json:"status"`
	ImageURL *string `json:"image_url"`
}

// Client is a Placid REST client.
type Client struct {
	apiToken   string
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// New creates a Placid client.
func New(apiToken string, logger *logrus.Logger) *Client {
	return &Client{
		apiToken:   apiToken,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

type createImagePayload struct {
	TemplateUUID   string           `json:"template_uuid"`
	Layers         map[string]Layer `json:"layers"`
	WebhookSuccess string           `json:"webhook_success,omitempty"`
	Passthrough    string           `json:"passthrough,omitempty"`
	CreateNow      bool             `json:"create_now"`
}

type providerError struct {
	Message string `json:"message"`
}

// CreateImage posts a render job and returns the provider's acknowledgment.
func (c *Client) CreateImage(ctx context.Context, render RenderRequest) (*RenderResponse, error) {
	payload := createImagePayload{
		TemplateUUID:   render.TemplateUUID,
		Layers:         render.Layers,
		WebhookSuccess: render.WebhookSuccess,
		Passthrough:    render.Passthrough,
		CreateNow:      true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding render payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading render response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Surface the provider's own message when it gives one.
		msg := string(respBody)
		var pe providerError
		if json.Unmarshal(respBody, &pe) == nil && pe.Message != "" {
			msg = pe.Message
		}
		return nil, &apperrors.GatewayError{
			Provider:   "placid",
			StatusCode: resp.StatusCode,
			Body:       msg,
		}
	}

	var out RenderResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decoding render response: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"render_id": out.ID,
		"status":    out.Status,
		"sync_url":  out.ImageURL != nil,
	}).Info("Render job created")

	return &out, nil
}
