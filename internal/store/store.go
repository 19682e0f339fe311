// Package store wraps the Supabase tables and storage bucket the gateway
// reads and writes: generated_posters, payments, poster_templates and the
// poster image bucket.
package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"

	"bingwaposters/api-gateway/models"
)

const (
	postersTable   = "generated_posters"
	paymentsTable  = "payments"
	templatesTable = "poster_templates"

	posterBucket = "posters"
)

// Client is the durable-state access layer. All durable state lives in
// Supabase; this client only issues row-level select/update/upsert calls and
// storage uploads.
type Client struct {
	db          *supa.Client
	supabaseURL string
	logger      *logrus.Logger
}

// New creates a store client.
func New(db *supa.Client, supabaseURL string, logger *logrus.Logger) *Client {
	return &Client{db: db, supabaseURL: supabaseURL, logger: logger}
}

// PosterBySession returns the poster row for a session, or nil when none exists.
func (s *Client) PosterBySession(sessionID string) (*models.PosterJob, error) {
	body, _, err := s.db.From(postersTable).
		Select("*", "", false).
		Eq("session_id", sessionID).
		Limit(1, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("selecting poster %s: %w", sessionID, err)
	}

	var rows []models.PosterJob
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("unmarshalling poster rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// UpsertPoster writes the poster row keyed by session_id. Concurrent writers
// for the same session converge on one row instead of duplicating it.
func (s *Client) UpsertPoster(job models.PosterJob) error {
	if job.UpdatedAt == nil {
		now := time.Now()
		job.UpdatedAt = &now
	}
	_, _, err := s.db.From(postersTable).
		Insert(job, true, "session_id", "representation", "").
		Execute()
	if err != nil {
		return fmt.Errorf("upserting poster %s: %w", job.SessionID, err)
	}
	return nil
}

// UpdatePosterFields patches the poster row for a session.
func (s *Client) UpdatePosterFields(sessionID string, fields map[string]interface{}) error {
	if _, ok := fields["updated_at"]; !ok {
		fields["updated_at"] = time.Now()
	}
	_, _, err := s.db.From(postersTable).
		Update(fields, "", "").
		Eq("session_id", sessionID).
		Execute()
	if err != nil {
		return fmt.Errorf("updating poster %s: %w", sessionID, err)
	}
	return nil
}

// InsertPayment inserts a payment row and returns the stored representation
// (with the generated id).
func (s *Client) InsertPayment(p models.Payment) (*models.Payment, error) {
	body, _, err := s.db.From(paymentsTable).
		Insert(p, false, "", "representation", "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("inserting payment for session %s: %w", p.SessionID, err)
	}

	var rows []models.Payment
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("unmarshalling inserted payment: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no payment row returned for session %s", p.SessionID)
	}
	return &rows[0], nil
}

// UpdatePayment patches a payment row by id.
func (s *Client) UpdatePayment(id int64, fields map[string]interface{}) error {
	_, _, err := s.db.From(paymentsTable).
		Update(fields, "", "").
		Eq("id", strconv.FormatInt(id, 10)).
		Execute()
	if err != nil {
		return fmt.Errorf("updating payment %d: %w", id, err)
	}
	return nil
}

// PaymentByMpesaCode returns the payment whose mpesa_code currently equals the
// given correlation token, or nil. Once a payment is confirmed the token is
// overwritten with the receipt code, so a consumed token no longer matches.
func (s *Client) PaymentByMpesaCode(code string) (*models.Payment, error) {
	body, _, err := s.db.From(paymentsTable).
		Select("*", "", false).
		Eq("mpesa_code", code).
		Limit(1, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("selecting payment by code: %w", err)
	}

	var rows []models.Payment
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("unmarshalling payment rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// LatestPendingPaymentByPhone returns the most recently created Pending payment
// for a normalized phone number, or nil. Only one candidate is ever returned;
// if several Pending payments exist for the same subscriber the newest wins.
func (s *Client) LatestPendingPaymentByPhone(phone string) (*models.Payment, error) {
	body, _, err := s.db.From(paymentsTable).
		Select("*", "", false).
		Eq("phone_number", phone).
		Eq("status", models.PaymentStatusPending).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(1, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("selecting pending payment by phone: %w", err)
	}

	var rows []models.Payment
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("unmarshalling payment rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// TemplateByID returns a poster template by numeric id, or nil.
func (s *Client) TemplateByID(id int64) (*models.PosterTemplate, error) {
	return s.templateWhere("id", strconv.FormatInt(id, 10))
}

// TemplateByUUID returns a poster template by provider uuid, or nil.
func (s *Client) TemplateByUUID(uuid string) (*models.PosterTemplate, error) {
	return s.templateWhere("uuid", uuid)
}

func (s *Client) templateWhere(column, value string) (*models.PosterTemplate, error) {
	body, _, err := s.db.From(templatesTable).
		Select("*", "", false).
		Eq(column, value).
		Limit(1, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("selecting template by %s: %w", column, err)
	}

	var rows []models.PosterTemplate
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("unmarshalling template rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// ListTemplates returns all poster templates.
func (s *Client) ListTemplates() ([]models.PosterTemplate, error) {
	body, _, err := s.db.From(templatesTable).
		Select("*", "", false).
		Order("name", &postgrest.OrderOpts{Ascending: true}).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}

	var rows []models.PosterTemplate
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("unmarshalling template rows: %w", err)
	}
	return rows, nil
}
