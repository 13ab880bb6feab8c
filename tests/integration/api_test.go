package integration

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wallet-ledger/config"
	httpHandler "wallet-ledger/internal/adapter/http/handler"
	"wallet-ledger/internal/adapter/paystack"
	redisStorage "wallet-ledger/internal/adapter/storage/redis"
	"wallet-ledger/internal/service"
	"wallet-ledger/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_integration_test"

// testApp wires the full stack — real HTTP layer, middleware, services,
// Paystack client against a fake provider backend, Redis via miniredis —
// on top of the in-memory repositories.
type testApp struct {
	server   *httptest.Server
	provider *httptest.Server
	redis    *miniredis.Miniredis
	keyRepo  *inMemoryAPIKeyRepo
	wallets  *inMemoryWalletRepo
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	// Fake Paystack backend: accepts every initialize call.
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Reference string `json:"reference"`
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &req)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":true,"message":"Authorization URL created","data":{"authorization_url":"https://checkout.example/%s","access_code":"ac_%s","reference":"%s"}}`,
			req.Reference, req.Reference, req.Reference)
	}))

	log := logger.New("error", false)
	paystackClient := paystack.NewClient(config.PaystackConfig{
		SecretKey:     "sk_test_integration",
		WebhookSecret: testWebhookSecret,
		BaseURL:       provider.URL,
	}, log)

	userRepo := newInMemoryUserRepo()
	walletRepo := newInMemoryWalletRepo()
	txRepo := newInMemoryTransactionRepo()
	keyRepo := newInMemoryAPIKeyRepo()
	auditRepo := newInMemoryAuditRepo()
	transactor := newInMemoryTransactor()

	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)

	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService("test-jwt-secret-key-32bytes!!", time.Hour, "wallet-ledger")
	auditSvc := service.NewAuditService(auditRepo, log)
	clock := service.NewSystemClock()

	authSvc := service.NewAuthService(userRepo, walletRepo, hashSvc, tokenSvc, auditSvc, log)
	transferSvc := service.NewTransferService(walletRepo, txRepo, idempotencyCache, auditSvc, 100_000_000, log)
	depositSvc := service.NewDepositService(walletRepo, txRepo, userRepo, paystackClient, transactor, auditSvc, 100_000_000, log)
	keySvc := service.NewAPIKeyService(keyRepo, clock, auditSvc, 5, log)
	readSvc := service.NewWalletReadService(walletRepo, txRepo)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:     authSvc,
		DepositSvc:  depositSvc,
		TransferSvc: transferSvc,
		ReadSvc:     readSvc,
		KeySvc:      keySvc,
		TokenSvc:    tokenSvc,
		Logger:      log,
	})

	return &testApp{
		server:   httptest.NewServer(router),
		provider: provider,
		redis:    mr,
		keyRepo:  keyRepo,
		wallets:  walletRepo,
	}
}

func (app *testApp) close() {
	app.server.Close()
	app.provider.Close()
}

func signWebhook(body []byte) string {
	mac := hmac.New(sha512.New, []byte(testWebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// --- HTTP helpers ---

func (app *testApp) do(t *testing.T, method, path, token, apiKey string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, app.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var parsed map[string]interface{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &parsed)
	}
	return resp, parsed
}

func (app *testApp) registerAndLogin(t *testing.T, email string) string {
	t.Helper()
	resp, _ := app.do(t, http.MethodPost, "/api/v1/auth/register", "", "", map[string]string{
		"email": email, "password": "StrongPass123!",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := app.do(t, http.MethodPost, "/api/v1/auth/login", "", "", map[string]string{
		"email": email, "password": "StrongPass123!",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return body["data"].(map[string]interface{})["token"].(string)
}

// fundWallet runs a full deposit: initiate, then deliver the signed
// charge.success webhook.
func (app *testApp) fundWallet(t *testing.T, token string, amount int64) string {
	t.Helper()
	resp, body := app.do(t, http.MethodPost, "/api/v1/wallet/deposit", token, "", map[string]int64{"amount": amount})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	reference := body["data"].(map[string]interface{})["reference"].(string)

	app.deliverWebhook(t, reference, amount, http.StatusOK)
	return reference
}

func (app *testApp) deliverWebhook(t *testing.T, reference string, amount int64, wantStatus int) {
	t.Helper()
	payload := []byte(fmt.Sprintf(`{"event":"charge.success","data":{"reference":"%s","amount":%d,"status":"success"}}`, reference, amount))
	req, err := http.NewRequest(http.MethodPost, app.server.URL+"/api/v1/wallet/paystack/webhook", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("X-Paystack-Signature", signWebhook(payload))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, wantStatus, resp.StatusCode)
}

func (app *testApp) balance(t *testing.T, token, apiKey string) (int64, string) {
	t.Helper()
	resp, body := app.do(t, http.MethodGet, "/api/v1/wallet/balance", token, apiKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]interface{})
	return int64(data["balance"].(float64)), data["wallet_number"].(string)
}

// --- Deposit lifecycle ---

func TestDepositLifecycle(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token := app.registerAndLogin(t, "deposit@example.com")

	reference := app.fundWallet(t, token, 250_000)

	got, _ := app.balance(t, token, "")
	assert.Equal(t, int64(250_000), got)

	// Status endpoint reflects settlement.
	resp, body := app.do(t, http.MethodGet, "/api/v1/wallet/deposit/"+reference+"/status", token, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["data"].(map[string]interface{})["status"])
}

func TestDepositWebhook_ReplayCreditsOnce(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token := app.registerAndLogin(t, "replay@example.com")
	reference := app.fundWallet(t, token, 100_000)

	// Paystack redelivers the same event. Acked, not re-credited.
	app.deliverWebhook(t, reference, 100_000, http.StatusOK)
	app.deliverWebhook(t, reference, 100_000, http.StatusOK)

	got, _ := app.balance(t, token, "")
	assert.Equal(t, int64(100_000), got)
}

func TestDepositWebhook_BadSignature(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	payload := []byte(`{"event":"charge.success","data":{"reference":"TRX_forged","amount":1}}`)
	req, err := http.NewRequest(http.MethodPost, app.server.URL+"/api/v1/wallet/paystack/webhook", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("X-Paystack-Signature", "deadbeef")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"status":false}`, string(raw))
}

func TestDepositWebhook_UnknownReference(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	app.deliverWebhook(t, "TRX_never_initiated", 500, http.StatusNotFound)
}

// --- Transfers ---

func TestTransferLifecycle(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	senderToken := app.registerAndLogin(t, "sender@example.com")
	recipientToken := app.registerAndLogin(t, "recipient@example.com")
	app.fundWallet(t, senderToken, 500_000)
	_, recipientWallet := app.balance(t, recipientToken, "")

	resp, body := app.do(t, http.MethodPost, "/api/v1/wallet/transfer", senderToken, "", map[string]interface{}{
		"recipient_wallet_number": recipientWallet,
		"amount":                  200_000,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["data"].(map[string]interface{})["status"])

	senderBal, _ := app.balance(t, senderToken, "")
	recipientBal, _ := app.balance(t, recipientToken, "")
	assert.Equal(t, int64(300_000), senderBal)
	assert.Equal(t, int64(200_000), recipientBal)

	// Both legs visible in history.
	resp, body = app.do(t, http.MethodGet, "/api/v1/wallet/transactions", recipientToken, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := body["data"].(map[string]interface{})["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "transfer_in", items[0].(map[string]interface{})["kind"])
}

func TestTransfer_ErrorMapping(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	senderToken := app.registerAndLogin(t, "mapping@example.com")
	app.fundWallet(t, senderToken, 1_000)
	_, ownWallet := app.balance(t, senderToken, "")

	recipientToken := app.registerAndLogin(t, "mapping2@example.com")
	_, otherWallet := app.balance(t, recipientToken, "")

	t.Run("insufficient balance is 402", func(t *testing.T) {
		resp, body := app.do(t, http.MethodPost, "/api/v1/wallet/transfer", senderToken, "", map[string]interface{}{
			"recipient_wallet_number": otherWallet,
			"amount":                  999_999,
		})
		assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
		assert.Equal(t, "WAL_001", body["error_code"])
	})

	t.Run("self transfer is 422", func(t *testing.T) {
		resp, body := app.do(t, http.MethodPost, "/api/v1/wallet/transfer", senderToken, "", map[string]interface{}{
			"recipient_wallet_number": ownWallet,
			"amount":                  100,
		})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Equal(t, "WAL_004", body["error_code"])
	})

	t.Run("unknown recipient is 404", func(t *testing.T) {
		resp, body := app.do(t, http.MethodPost, "/api/v1/wallet/transfer", senderToken, "", map[string]interface{}{
			"recipient_wallet_number": "0000000000000000",
			"amount":                  100,
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "WAL_003", body["error_code"])
	})

	// None of the rejections above may move money.
	senderBalance, _ := app.balance(t, senderToken, "")
	recipientBalance, _ := app.balance(t, recipientToken, "")
	assert.Equal(t, int64(1_000), senderBalance)
	assert.Equal(t, int64(0), recipientBalance)
}

func TestTransfer_IdempotencyKeyReplay(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	senderToken := app.registerAndLogin(t, "idem@example.com")
	recipientToken := app.registerAndLogin(t, "idem2@example.com")
	app.fundWallet(t, senderToken, 100_000)
	_, recipientWallet := app.balance(t, recipientToken, "")

	transfer := map[string]interface{}{
		"recipient_wallet_number": recipientWallet,
		"amount":                  40_000,
		"idempotency_key":         "t1",
	}

	resp, first := app.do(t, http.MethodPost, "/api/v1/wallet/transfer", senderToken, "", transfer)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, second := app.do(t, http.MethodPost, "/api/v1/wallet/transfer", senderToken, "", transfer)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Same reference, single debit.
	assert.Equal(t,
		first["data"].(map[string]interface{})["reference"],
		second["data"].(map[string]interface{})["reference"])

	senderBal, _ := app.balance(t, senderToken, "")
	assert.Equal(t, int64(60_000), senderBal)
}

func TestTransfer_IdempotencyKeyScopedPerSender(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	aliceToken := app.registerAndLogin(t, "alice@example.com")
	bobToken := app.registerAndLogin(t, "bob@example.com")
	carolToken := app.registerAndLogin(t, "carol@example.com")
	app.fundWallet(t, aliceToken, 500_000)
	app.fundWallet(t, bobToken, 500_000)
	_, carolWallet := app.balance(t, carolToken, "")

	transfer := map[string]interface{}{
		"recipient_wallet_number": carolWallet,
		"amount":                  200_000,
		"idempotency_key":         "t1",
	}

	// Two different senders reusing the same client token must each get
	// their own transfer, not a replay of the other's.
	resp, aliceBody := app.do(t, http.MethodPost, "/api/v1/wallet/transfer", aliceToken, "", transfer)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, bobBody := app.do(t, http.MethodPost, "/api/v1/wallet/transfer", bobToken, "", transfer)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.NotEqual(t,
		aliceBody["data"].(map[string]interface{})["reference"],
		bobBody["data"].(map[string]interface{})["reference"])

	aliceBal, _ := app.balance(t, aliceToken, "")
	bobBal, _ := app.balance(t, bobToken, "")
	carolBal, _ := app.balance(t, carolToken, "")
	assert.Equal(t, int64(300_000), aliceBal)
	assert.Equal(t, int64(300_000), bobBal)
	assert.Equal(t, int64(400_000), carolBal)
}

// --- History detail and stats ---

func TestTransactionDetail(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	senderToken := app.registerAndLogin(t, "detail@example.com")
	recipientToken := app.registerAndLogin(t, "detail2@example.com")
	app.fundWallet(t, senderToken, 100_000)
	_, recipientWallet := app.balance(t, recipientToken, "")

	resp, body := app.do(t, http.MethodPost, "/api/v1/wallet/transfer", senderToken, "", map[string]interface{}{
		"recipient_wallet_number": recipientWallet,
		"amount":                  30_000,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	reference := body["data"].(map[string]interface{})["reference"].(string)

	resp, body = app.do(t, http.MethodGet, "/api/v1/wallet/transactions/"+reference, senderToken, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, reference, data["reference"])
	assert.Equal(t, "transfer_out", data["kind"])
	assert.Equal(t, float64(30_000), data["amount"])

	// The debit leg belongs to the sender; the recipient sees not-found.
	resp, body = app.do(t, http.MethodGet, "/api/v1/wallet/transactions/"+reference, recipientToken, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "WAL_007", body["error_code"])
}

func TestTransactionHistoryFiltering(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token := app.registerAndLogin(t, "filter@example.com")
	otherToken := app.registerAndLogin(t, "filter2@example.com")
	app.fundWallet(t, token, 100_000)
	_, otherWallet := app.balance(t, otherToken, "")

	resp, _ := app.do(t, http.MethodPost, "/api/v1/wallet/transfer", token, "", map[string]interface{}{
		"recipient_wallet_number": otherWallet,
		"amount":                  10_000,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := app.do(t, http.MethodGet, "/api/v1/wallet/transactions?kind=deposit", token, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := body["data"].(map[string]interface{})["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "deposit", items[0].(map[string]interface{})["kind"])

	resp, body = app.do(t, http.MethodGet, "/api/v1/wallet/transactions?status=pending", token, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["data"].(map[string]interface{})["items"])

	resp, body = app.do(t, http.MethodGet, "/api/v1/wallet/transactions?kind=withdrawal", token, "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "VAL_001", body["error_code"])
}

func TestTransactionStats(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token := app.registerAndLogin(t, "stats@example.com")
	otherToken := app.registerAndLogin(t, "stats2@example.com")
	app.fundWallet(t, token, 100_000)
	_, otherWallet := app.balance(t, otherToken, "")

	resp, _ := app.do(t, http.MethodPost, "/api/v1/wallet/transfer", token, "", map[string]interface{}{
		"recipient_wallet_number": otherWallet,
		"amount":                  25_000,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := app.do(t, http.MethodGet, "/api/v1/wallet/stats", token, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["total_transactions"])
	assert.Equal(t, float64(1), data["total_deposits"])
	assert.Equal(t, float64(1), data["total_transfers"])
	assert.Equal(t, float64(100_000), data["total_deposit_amount"])
	assert.Equal(t, float64(25_000), data["total_transfer_amount"])
	assert.Equal(t, float64(2), data["successful_transactions"])
}

// --- Access mediation ---

func TestAccessControl(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token := app.registerAndLogin(t, "access@example.com")

	t.Run("no credentials is 401", func(t *testing.T) {
		resp, body := app.do(t, http.MethodGet, "/api/v1/wallet/balance", "", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "SEC_001", body["error_code"])
	})

	t.Run("garbage bearer is 401", func(t *testing.T) {
		resp, _ := app.do(t, http.MethodGet, "/api/v1/wallet/balance", "not.a.token", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unknown api key is 401", func(t *testing.T) {
		resp, body := app.do(t, http.MethodGet, "/api/v1/wallet/balance", "", "wl_unknown", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "KEY_002", body["error_code"])
	})

	t.Run("scoped key cannot exceed its grants", func(t *testing.T) {
		resp, body := app.do(t, http.MethodPost, "/api/v1/keys/create", token, "", map[string]interface{}{
			"name":        "read-only",
			"permissions": []string{"read"},
			"expiry":      "1D",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		key := body["data"].(map[string]interface{})["key"].(string)

		// read works
		resp, _ = app.do(t, http.MethodGet, "/api/v1/wallet/balance", "", key, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		// transfer is forbidden
		resp, errBody := app.do(t, http.MethodPost, "/api/v1/wallet/transfer", "", key, map[string]interface{}{
			"recipient_wallet_number": "0000000000000000",
			"amount":                  100,
		})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "SEC_002", errBody["error_code"])

		// key management stays owner-only
		resp, _ = app.do(t, http.MethodPost, "/api/v1/keys/create", "", key, map[string]interface{}{
			"name":        "escalation",
			"permissions": []string{"read"},
			"expiry":      "1D",
		})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

// --- API key lifecycle ---

func issueKey(t *testing.T, app *testApp, token, name string, perms []string) (string, string) {
	t.Helper()
	resp, body := app.do(t, http.MethodPost, "/api/v1/keys/create", token, "", map[string]interface{}{
		"name":        name,
		"permissions": perms,
		"expiry":      "1D",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := body["data"].(map[string]interface{})
	return data["id"].(string), data["key"].(string)
}

func TestAPIKeyLifecycle(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token := app.registerAndLogin(t, "keys@example.com")

	keyID, secret := issueKey(t, app, token, "primary", []string{"read", "transfer"})

	// Works until revoked.
	resp, _ := app.do(t, http.MethodGet, "/api/v1/wallet/balance", "", secret, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = app.do(t, http.MethodPost, "/api/v1/keys/"+keyID+"/revoke", token, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := app.do(t, http.MethodGet, "/api/v1/wallet/balance", "", secret, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "KEY_004", body["error_code"])

	// Revoke again: no-op, still 200.
	resp, _ = app.do(t, http.MethodPost, "/api/v1/keys/"+keyID+"/revoke", token, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Listing masks the secret.
	resp, body = app.do(t, http.MethodGet, "/api/v1/keys", token, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listed := body["data"].([]interface{})[0].(map[string]interface{})
	assert.NotContains(t, listed["masked_key"], secret[8:])
	assert.Equal(t, "revoked", listed["status"])
}

func TestAPIKeyCeiling(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token := app.registerAndLogin(t, "ceiling@example.com")

	var firstID string
	for i := 0; i < 5; i++ {
		id, _ := issueKey(t, app, token, fmt.Sprintf("key-%d", i), []string{"read"})
		if i == 0 {
			firstID = id
		}
	}

	resp, body := app.do(t, http.MethodPost, "/api/v1/keys/create", token, "", map[string]interface{}{
		"name":        "sixth",
		"permissions": []string{"read"},
		"expiry":      "1D",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "KEY_001", body["error_code"])

	// Revoking one frees a slot.
	resp, _ = app.do(t, http.MethodPost, "/api/v1/keys/"+firstID+"/revoke", token, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = app.do(t, http.MethodPost, "/api/v1/keys/create", token, "", map[string]interface{}{
		"name":        "sixth",
		"permissions": []string{"read"},
		"expiry":      "1D",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestAPIKeyRename(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token := app.registerAndLogin(t, "rename@example.com")
	keyID, secret := issueKey(t, app, token, "staging", []string{"read"})

	resp, body := app.do(t, http.MethodPatch, "/api/v1/keys/"+keyID, token, "", map[string]string{
		"name": "production",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["data"].(map[string]interface{})["updated"])

	// The new name appears in the listing; the secret still works.
	resp, body = app.do(t, http.MethodGet, "/api/v1/keys", token, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listed := body["data"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "production", listed["name"])

	resp, _ = app.do(t, http.MethodGet, "/api/v1/wallet/balance", "", secret, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Another user cannot rename a key they do not own.
	intruder := app.registerAndLogin(t, "rename2@example.com")
	resp, body = app.do(t, http.MethodPatch, "/api/v1/keys/"+keyID, intruder, "", map[string]string{
		"name": "mine-now",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "WAL_007", body["error_code"])
}

func TestAPIKeyRollover(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token := app.registerAndLogin(t, "rollover@example.com")
	keyID, oldSecret := issueKey(t, app, token, "rotating", []string{"read"})

	// Active keys do not roll.
	resp, body := app.do(t, http.MethodPost, "/api/v1/keys/rollover", token, "", map[string]string{
		"key_id": keyID, "expiry": "1D",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "KEY_005", body["error_code"])

	// Expire it behind the scenes; the old secret now fails with 403.
	id, err := uuid.Parse(keyID)
	require.NoError(t, err)
	app.keyRepo.expire(id)

	resp, body = app.do(t, http.MethodGet, "/api/v1/wallet/balance", "", oldSecret, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "KEY_003", body["error_code"])

	// Rollover now succeeds with a fresh secret.
	resp, body = app.do(t, http.MethodPost, "/api/v1/keys/rollover", token, "", map[string]string{
		"key_id": keyID, "expiry": "1D",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	newSecret := body["data"].(map[string]interface{})["key"].(string)
	assert.NotEqual(t, oldSecret, newSecret)

	resp, _ = app.do(t, http.MethodGet, "/api/v1/wallet/balance", "", newSecret, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
