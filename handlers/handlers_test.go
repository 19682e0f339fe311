package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"bingwaposters/api-gateway/internal/mpesa"
	"bingwaposters/api-gateway/internal/placid"
	"bingwaposters/api-gateway/models"
)

// fakeStore implements Store with overridable behavior and call recording.
type fakeStore struct {
	posterBySessionFn func(call int, sessionID string) (*models.PosterJob, error)
	posterReads       int

	upsertedPosters []models.PosterJob
	upsertErr       error

	posterUpdates   []map[string]interface{}
	posterUpdateErr error

	insertedPayments []models.Payment
	insertPaymentErr error
	nextPaymentID    int64

	paymentUpdates map[int64][]map[string]interface{}

	paymentsByCode  map[string]*models.Payment
	pendingByPhone  map[string]*models.Payment
	templatesByID   map[int64]*models.PosterTemplate
	templatesByUUID map[string]*models.PosterTemplate

	uploadedDataURLs map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextPaymentID:    1,
		paymentUpdates:   map[int64][]map[string]interface{}{},
		paymentsByCode:   map[string]*models.Payment{},
		pendingByPhone:   map[string]*models.Payment{},
		templatesByID:    map[int64]*models.PosterTemplate{},
		templatesByUUID:  map[string]*models.PosterTemplate{},
		uploadedDataURLs: map[string]string{},
	}
}

func (f *fakeStore) PosterBySession(sessionID string) (*models.PosterJob, error) {
	f.posterReads++
	if f.posterBySessionFn != nil {
		return f.posterBySessionFn(f.posterReads, sessionID)
	}
	return nil, nil
}

func (f *fakeStore) UpsertPoster(job models.PosterJob) error {
	f.upsertedPosters = append(f.upsertedPosters, job)
	return f.upsertErr
}

func (f *fakeStore) UpdatePosterFields(sessionID string, fields map[string]interface{}) error {
	copied := map[string]interface{}{"session_id": sessionID}
	for k, v := range fields {
		copied[k] = v
	}
	f.posterUpdates = append(f.posterUpdates, copied)
	return f.posterUpdateErr
}

func (f *fakeStore) InsertPayment(p models.Payment) (*models.Payment, error) {
	if f.insertPaymentErr != nil {
		return nil, f.insertPaymentErr
	}
	p.ID = f.nextPaymentID
	f.nextPaymentID++
	f.insertedPayments = append(f.insertedPayments, p)
	return &p, nil
}

func (f *fakeStore) UpdatePayment(id int64, fields map[string]interface{}) error {
	f.paymentUpdates[id] = append(f.paymentUpdates[id], fields)
	return nil
}

func (f *fakeStore) PaymentByMpesaCode(code string) (*models.Payment, error) {
	return f.paymentsByCode[code], nil
}

func (f *fakeStore) LatestPendingPaymentByPhone(phone string) (*models.Payment, error) {
	return f.pendingByPhone[phone], nil
}

func (f *fakeStore) TemplateByID(id int64) (*models.PosterTemplate, error) {
	return f.templatesByID[id], nil
}

func (f *fakeStore) TemplateByUUID(uuid string) (*models.PosterTemplate, error) {
	return f.templatesByUUID[uuid], nil
}

func (f *fakeStore) ListTemplates() ([]models.PosterTemplate, error) {
	var out []models.PosterTemplate
	for _, t := range f.templatesByUUID {
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeStore) UploadDataURL(sessionID, field, dataURL string) (string, error) {
	url := "https://cdn.example.com/" + sessionID + "-" + field + ".png"
	f.uploadedDataURLs[field] = url
	return url, nil
}

func (f *fakeStore) PublicURL(path string) string {
	return "https://cdn.example.com/public/" + path
}

type fakeRender struct {
	response *placid.RenderResponse
	err      error
	requests []placid.RenderRequest
}

func (f *fakeRender) CreateImage(_ context.Context, render placid.RenderRequest) (*placid.RenderResponse, error) {
	f.requests = append(f.requests, render)
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

type fakePayments struct {
	response *mpesa.STKPushResponse
	err      error
	requests []mpesa.STKPushRequest
}

func (f *fakePayments) InitiatePush(_ context.Context, push mpesa.STKPushRequest) (*mpesa.STKPushResponse, error) {
	f.requests = append(f.requests, push)
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

type fakeNotifier struct {
	received []models.Payment
	failed   []models.Payment
}

func (f *fakeNotifier) PaymentReceived(p models.Payment) { f.received = append(f.received, p) }
func (f *fakeNotifier) PaymentFailed(p models.Payment)   { f.failed = append(f.failed, p) }

type testDeps struct {
	store    *fakeStore
	render   *fakeRender
	payments *fakePayments
	notifier *fakeNotifier
	handler  *ApplicationHandler
}

func newTestHandler() *testDeps {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	deps := &testDeps{
		store:    newFakeStore(),
		render:   &fakeRender{},
		payments: &fakePayments{},
		notifier: &fakeNotifier{},
	}
	deps.handler = NewApplicationHandler(deps.store, deps.render, deps.payments,
		deps.notifier, logger, "https://gateway.example.com/api/make/placid-callback")
	deps.handler.sleep = func(time.Duration) {} // no backoff waits in tests
	return deps
}

func postJSON(t *testing.T, app *fiber.App, path string, payload interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]interface{}
	if len(respBody) > 0 {
		require.NoError(t, json.Unmarshal(respBody, &decoded))
	}
	return resp, decoded
}

func strPtr(s string) *string { return &s }

func int64Ptr(n int64) *int64 { return &n }
