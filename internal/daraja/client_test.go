package daraja

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(Config{
		BaseURL:        srv.URL,
		ConsumerKey:    "ck",
		ConsumerSecret: "cs",
		Shortcode:      "174379",
		Passkey:        "bfb279f9aa9bdbcf",
		CallbackURL:    "https://shop.example/api/payments/callback",
	})
	c.now = func() time.Time { return time.Date(2025, 9, 1, 14, 30, 0, 0, gatewayTZ) }
	return c
}

func serveToken(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok-123", ExpiresIn: "3599"})
}

func TestPassword(t *testing.T) {
	// the timestamp is rendered on the gateway clock regardless of the
	// input location
	at := time.Date(2025, 9, 1, 11, 30, 0, 0, time.UTC) // 14:30 EAT
	password, timestamp := Password("174379", "bfb279f9aa9bdbcf", at)

	assert.Equal(t, "20250901143000", timestamp)
	decoded, err := base64.StdEncoding.DecodeString(password)
	require.NoError(t, err)
	assert.Equal(t, "174379bfb279f9aa9bdbcf20250901143000", string(decoded))
}

func TestAccessToken(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/oauth/v1/generate", r.URL.Path)
		require.Equal(t, "client_credentials", r.URL.Query().Get("grant_type"))
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "ck", user)
		require.Equal(t, "cs", pass)
		serveToken(w)
	})

	tok, err := c.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-123", tok)
}

func TestAccessTokenUnauthorized(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.AccessToken(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindAuth, KindOf(err))
}

func TestRequestPush(t *testing.T) {
	var got pushPayload
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/v1/generate" {
			serveToken(w)
			return
		}
		require.Equal(t, pushPath, r.URL.Path)
		require.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(PushResponse{
			MerchantRequestID:   "MR-9",
			CheckoutRequestID:   "ws_CO_9",
			ResponseCode:        "0",
			ResponseDescription: "Success. Request accepted for processing",
			CustomerMessage:     "Success. Request accepted for processing",
		})
	})

	ack, err := c.RequestPush(context.Background(), PushRequest{
		PhoneNumber:      "254712345678",
		AmountCents:      136050,
		AccountReference: "ORD-001",
		Description:      "Order ORD-001",
	})
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_9", ack.CheckoutRequestID)
	assert.Equal(t, "MR-9", ack.MerchantRequestID)

	assert.Equal(t, "174379", got.BusinessShortCode)
	assert.Equal(t, "174379", got.PartyB)
	assert.Equal(t, "254712345678", got.PartyA)
	assert.Equal(t, int64(1360), got.Amount, "cents truncate to whole units")
	assert.Equal(t, transactionType, got.TransactionType)
	assert.Equal(t, "20250901143000", got.Timestamp)
	assert.Equal(t, "https://shop.example/api/payments/callback", got.CallBackURL)

	wantPassword, _ := Password("174379", "bfb279f9aa9bdbcf", c.now())
	assert.Equal(t, wantPassword, got.Password)
}

func TestRequestPushRejected(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/v1/generate" {
			serveToken(w)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(apiError{
			RequestID:    "req-1",
			ErrorCode:    "400.002.02",
			ErrorMessage: "Bad Request - Invalid PhoneNumber",
		})
	})

	_, err := c.RequestPush(context.Background(), PushRequest{
		PhoneNumber: "254712345678", AmountCents: 100000, AccountReference: "X",
	})
	require.Error(t, err)
	assert.Equal(t, KindRejected, KindOf(err))
	assert.Contains(t, err.Error(), "Invalid PhoneNumber")
}

func TestRequestPushNonZeroResponseCode(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/v1/generate" {
			serveToken(w)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(PushResponse{
			ResponseCode:        "1",
			ResponseDescription: "Unable to lock subscriber",
		})
	})

	_, err := c.RequestPush(context.Background(), PushRequest{
		PhoneNumber: "254712345678", AmountCents: 100000, AccountReference: "X",
	})
	require.Error(t, err)
	assert.Equal(t, KindRejected, KindOf(err))
}

func TestRequestPushTransportFailure(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/v1/generate" {
			serveToken(w)
			return
		}
		// drop the connection mid-request
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		_ = conn.Close()
	})

	_, err := c.RequestPush(context.Background(), PushRequest{
		PhoneNumber: "254712345678", AmountCents: 100000, AccountReference: "X",
	})
	require.Error(t, err)
	assert.Equal(t, KindNetwork, KindOf(err))
}

func TestEnvironmentBaseURL(t *testing.T) {
	assert.Equal(t, sandboxBaseURL, New(Config{}).http.BaseURL)
	assert.Equal(t, productionBaseURL, New(Config{Environment: "production"}).http.BaseURL)
	assert.Equal(t, "http://localhost:9", New(Config{BaseURL: "http://localhost:9"}).http.BaseURL)
}
