package handlers

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"bingwaposters/api-gateway/internal/mpesa"
	"bingwaposters/api-gateway/internal/placid"
	"bingwaposters/api-gateway/models"
)

// Store defines the row-store and storage operations handlers expect from the
// durable backend. This allows for decoupling and easier testing; the concrete
// implementation is provided by the store package.
type Store interface {
	PosterBySession(sessionID string) (*models.PosterJob, error)
	UpsertPoster(job models.PosterJob) error
	UpdatePosterFields(sessionID string, fields map[string]interface{}) error

	InsertPayment(p models.Payment) (*models.Payment, error)
	UpdatePayment(id int64, fields map[string]interface{}) error
	PaymentByMpesaCode(code string) (*models.Payment, error)
	LatestPendingPaymentByPhone(phone string) (*models.Payment, error)

	TemplateByID(id int64) (*models.PosterTemplate, error)
	TemplateByUUID(uuid string) (*models.PosterTemplate, error)
	ListTemplates() ([]models.PosterTemplate, error)

	UploadDataURL(sessionID, field, dataURL string) (string, error)
	PublicURL(path string) string
}

// RenderClient defines the operations handlers expect from the poster render
// provider.
type RenderClient interface {
	CreateImage(ctx context.Context, render placid.RenderRequest) (*placid.RenderResponse, error)
}

// PaymentClient defines the operations handlers expect from the push-payment
// provider.
type PaymentClient interface {
	InitiatePush(ctx context.Context, push mpesa.STKPushRequest) (*mpesa.STKPushResponse, error)
}

// Notifier emits fire-and-forget domain notifications. Failures never affect
// the HTTP response of the request that emitted them.
type Notifier interface {
	PaymentReceived(p models.Payment)
	PaymentFailed(p models.Payment)
}

// ApplicationHandler holds shared dependencies for handlers.
type ApplicationHandler struct {
	Store      Store
	Render     RenderClient
	Payments   PaymentClient
	Notifier   Notifier
	Logger     *logrus.Logger
	WebhookURL string // render-callback URL handed to the provider

	// sleep is swapped out in tests so retry backoff does not slow them down.
	sleep func(time.Duration)
}

// NewApplicationHandler creates a new ApplicationHandler with the given dependencies.
func NewApplicationHandler(store Store, render RenderClient, payments PaymentClient,
	notifier Notifier, logger *logrus.Logger, webhookURL string) *ApplicationHandler {
	return &ApplicationHandler{
		Store:      store,
		Render:     render,
		Payments:   payments,
		Notifier:   notifier,
		Logger:     logger,
		WebhookURL: webhookURL,
		sleep:      time.Sleep,
	}
}
