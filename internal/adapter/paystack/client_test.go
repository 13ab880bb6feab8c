package paystack

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"wallet-ledger/config"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(baseURL string) *Client {
	return NewClient(config.PaystackConfig{
		BaseURL:       baseURL,
		SecretKey:     "sk_test_xyz",
		WebhookSecret: "whsec_test",
		CallbackURL:   "https://wallet.example.com/callback",
	}, logger.New("error", false))
}

func TestClient_InitializeTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_xyz", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ada@example.com", body["email"])
		assert.Equal(t, float64(250_000), body["amount"])
		assert.Equal(t, "NGN", body["currency"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": true,
			"message": "Authorization URL created",
			"data": {
				"authorization_url": "https://checkout.paystack.com/abc123",
				"access_code": "abc123",
				"reference": "TRX_5D41402ABC4B2A76B9719D91"
			}
		}`))
	}))
	defer srv.Close()

	client := testClient(srv.URL)

	checkout, err := client.InitializeTransaction(context.Background(), "ada@example.com", 250_000, "TRX_5D41402ABC4B2A76B9719D91")
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.paystack.com/abc123", checkout.AuthorizationURL)
	assert.Equal(t, "TRX_5D41402ABC4B2A76B9719D91", checkout.Reference)
}

func TestClient_InitializeTransaction_ProviderRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status": false, "message": "Invalid amount"}`))
	}))
	defer srv.Close()

	client := testClient(srv.URL)

	checkout, err := client.InitializeTransaction(context.Background(), "ada@example.com", 0, "TRX_0000000000000000000000AA")
	require.Error(t, err)
	assert.Nil(t, checkout)

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.ErrProviderUnavailable(nil).Code, appErr.Code)
}

func TestClient_VerifyWebhookSignature(t *testing.T) {
	client := testClient("http://unused")
	payload := []byte(`{"event":"charge.success","data":{"reference":"TRX_5D41402ABC4B2A76B9719D91"}}`)

	mac := hmac.New(sha512.New, []byte("whsec_test"))
	mac.Write(payload)
	valid := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, client.VerifyWebhookSignature(payload, valid))
	assert.False(t, client.VerifyWebhookSignature(payload, "deadbeef"))
	assert.False(t, client.VerifyWebhookSignature([]byte(`tampered`), valid))
}
