package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"wallet-ledger/config"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

// Client implements ports.PaymentProvider against the Paystack REST API.
type Client struct {
	baseURL       string
	secretKey     string
	webhookSecret string
	callbackURL   string
	httpClient    *http.Client
	log           zerolog.Logger
}

// NewClient creates a Paystack API client.
func NewClient(cfg config.PaystackConfig, log zerolog.Logger) *Client {
	return &Client{
		baseURL:       cfg.BaseURL,
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
		callbackURL:   cfg.CallbackURL,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		log:           log.With().Str("component", "paystack").Logger(),
	}
}

type initializeRequest struct {
	Email       string `json:"email"`
	Amount      int64  `json:"amount"` // minor units (kobo)
	Reference   string `json:"reference"`
	Currency    string `json:"currency"`
	CallbackURL string `json:"callback_url,omitempty"`
}

type initializeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

// InitializeTransaction registers a checkout with Paystack and returns the
// hosted payment page. The reference is ours, not Paystack's: the webhook
// echoes it back and it is the only join key between the two systems.
func (c *Client) InitializeTransaction(ctx context.Context, email string, amount int64, reference string) (*ports.ProviderCheckout, error) {
	payload := initializeRequest{
		Email:       email,
		Amount:      amount,
		Reference:   reference,
		Currency:    "NGN",
		CallbackURL: c.callbackURL,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal initialize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build initialize request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperror.ErrProviderUnavailable(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperror.ErrProviderUnavailable(err)
	}

	var parsed initializeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, apperror.ErrProviderUnavailable(fmt.Errorf("decode initialize response: %w", err))
	}
	if resp.StatusCode != http.StatusOK || !parsed.Status {
		c.log.Warn().
			Int("http_status", resp.StatusCode).
			Str("message", parsed.Message).
			Str("reference", reference).
			Msg("Paystack initialize rejected")
		return nil, apperror.ErrProviderUnavailable(fmt.Errorf("paystack initialize: %s", parsed.Message))
	}

	return &ports.ProviderCheckout{
		Reference:        parsed.Data.Reference,
		AuthorizationURL: parsed.Data.AuthorizationURL,
		AccessCode:       parsed.Data.AccessCode,
	}, nil
}

// VerifyWebhookSignature checks the X-Paystack-Signature header value:
// HMAC-SHA512 of the raw request body under the webhook secret, hex-encoded.
// Comparison is constant-time.
func (c *Client) VerifyWebhookSignature(payload []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(c.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
