package models

import "time"

// Poster generation statuses as stored in the generated_posters table.
const (
	PosterStatusPending         = "PENDING"
	PosterStatusProcessing      = "PROCESSING"
	PosterStatusAwaitingPayment = "AWAITING_PAYMENT"
	PosterStatusCompleted       = "COMPLETED"
	PosterStatusFailed          = "FAILED"
)

// PosterJob represents a row in the generated_posters table. The session_id is
// the sole correlation key shared by the generation and payment flows, so writes
// upsert on it rather than inserting blindly.
type PosterJob struct {
	SessionID    string     `json:"session_id"`
	TemplateID   *int64     `json:"template_id,omitempty"` // Nullable BIGINT
	TemplateUUID string     `json:"template_uuid"`
	TemplateName *string    `json:"template_name,omitempty"`
	ImageURL     *string    `json:"image_url,omitempty"`
	Status       string     `json:"status"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"` // Nullable TIMESTAMPTZ
}
