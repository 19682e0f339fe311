// Package mpesa wraps the Safaricom Daraja API: OAuth token exchange with an
// in-process cache and STK push initiation.
package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"bingwaposters/api-gateway/internal/apperrors"
)

const (
	sandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	productionBaseURL = "https://api.safaricom.co.ke"

	// Refresh the cached token once fewer than this many seconds remain.
	tokenExpiryMargin = 60 * time.Second

	// Daraja rejects AccountReference/TransactionDesc longer than 20 chars
	// or containing anything besides alphanumerics and spaces.
	maxFieldLen = 20

	defaultAccountRef = "BingwaPosters"
)

// Nairobi is the timezone Daraja validates the STK password timestamp against.
var nairobi = loadNairobi()

func loadNairobi() *time.Location {
	loc, err := time.LoadLocation("Africa/Nairobi")
	if err != nil {
		return time.FixedZone("EAT", 3*60*60)
	}
	return loc
}

var fieldSanitizer = regexp.MustCompile(`[^a-zA-Z0-9 ]+`)

// Config carries the Daraja credentials and environment selection.
type Config struct {
	ConsumerKey    string
	ConsumerSecret string
	Shortcode      string
	Passkey        string
	Environment    string // "sandbox" or "production"
	CallbackURL    string
}

// Client is a Daraja API client. The access token is cached per process and
// refreshed when its remaining lifetime falls under the expiry margin. Two
// requests may refresh concurrently; both exchanges are idempotent so the last
// writer simply wins.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *logrus.Logger

	// primaryURL is the host for the configured environment, secondaryURL the
	// other one. Production credentials are routinely issued against the
	// sandbox host (and vice versa), so the token exchange falls back to the
	// secondary host once before giving up.
	primaryURL   string
	secondaryURL string

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time

	now func() time.Time
}

// New creates a Daraja client.
func New(cfg Config, logger *logrus.Logger) *Client {
	primary, secondary := sandboxBaseURL, productionBaseURL
	if strings.EqualFold(cfg.Environment, "production") {
		primary, secondary = productionBaseURL, sandboxBaseURL
	}
	return &Client{
		cfg:          cfg,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
		primaryURL:   primary,
		secondaryURL: secondary,
		now:          time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// AccessToken returns a cached bearer token while it has more than the expiry
// margin of validity left, otherwise performs a client-credentials exchange.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && c.now().Before(c.tokenExpiry.Add(-tokenExpiryMargin)) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	token, expiry, err := c.exchangeToken(ctx, c.primaryURL)
	if err != nil {
		c.logger.WithError(err).WithField("base_url", c.primaryURL).
			Warn("Token exchange failed, retrying against alternate environment")
		token, expiry, err = c.exchangeToken(ctx, c.secondaryURL)
		if err != nil {
			return "", &apperrors.AuthError{Err: err}
		}
	}

	c.mu.Lock()
	c.token = token
	c.tokenExpiry = expiry
	c.mu.Unlock()

	return token, nil
}

func (c *Client) exchangeToken(ctx context.Context, baseURL string) (string, time.Time, error) {
	url := baseURL + "/oauth/v1/generate?grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", time.Time{}, err
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", time.Time{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", time.Time{}, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", time.Time{}, fmt.Errorf("decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("token response missing access_token: %s", string(body))
	}

	// Daraja reports expires_in as a string of seconds.
	seconds, err := strconv.Atoi(tr.ExpiresIn)
	if err != nil || seconds <= 0 {
		seconds = 3599
	}

	return tr.AccessToken, c.now().Add(time.Duration(seconds) * time.Second), nil
}

// STKPushRequest describes one push-payment prompt.
type STKPushRequest struct {
	Amount           int64
	PhoneNumber      string // E.164 without the plus, already normalized
	AccountReference string
	TransactionDesc  string
}

// STKPushResponse is Daraja's raw acknowledgment of a push request. The
// CheckoutRequestID is the correlation token the confirmation callback is
// matched against.
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// InitiatePush sends an STK push prompt to the subscriber's handset.
func (c *Client) InitiatePush(ctx context.Context, push STKPushRequest) (*STKPushResponse, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := c.now().In(nairobi).Format("20060102150405")
	password := base64.StdEncoding.EncodeToString([]byte(c.cfg.Shortcode + c.cfg.Passkey + timestamp))

	ref := sanitizeField(push.AccountReference)
	if ref == "" {
		ref = defaultAccountRef
	}
	desc := sanitizeField(push.TransactionDesc)
	if desc == "" {
		desc = "Poster payment"
	}

	payload := map[string]interface{}{
		"BusinessShortCode": c.cfg.Shortcode,
		"Password":          password,
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            push.Amount,
		"PartyA":            push.PhoneNumber,
		"PartyB":            c.cfg.Shortcode,
		"PhoneNumber":       push.PhoneNumber,
		"CallBackURL":       c.cfg.CallbackURL,
		"AccountReference":  ref,
		"TransactionDesc":   desc,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding stk push payload: %w", err)
	}

	url := c.primaryURL + "/mpesa/stkpush/v1/processrequest"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stk push request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading stk push response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &apperrors.GatewayError{
			Provider:   "daraja",
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	var out STKPushResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decoding stk push response: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"checkout_request_id": out.CheckoutRequestID,
		"merchant_request_id": out.MerchantRequestID,
	}).Info("STK push initiated")

	return &out, nil
}

// sanitizeField strips everything Daraja rejects and truncates to the field limit.
func sanitizeField(s string) string {
	s = fieldSanitizer.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if len(s) > maxFieldLen {
		s = s[:maxFieldLen]
	}
	return s
}
