package session

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/x402-checkout/types"
)

func testRequest() *types.PaymentRequest {
	return types.NewPaymentRequest("AejHuZdNpDUiAiwuV2NKXz8K6eLzChYGpTcxptinWbar",
		types.LineItem{ID: "1", Name: "Pro Plan", UnitPrice: decimal.RequireFromString("0.5")},
		types.LineItem{ID: "2", Name: "Premium Support", UnitPrice: decimal.RequireFromString("0.2")},
	)
}

func newTestClient(url string) *Client {
	return NewClient(types.Config{
		APIURL:  url + "/",
		APIKey:  "sk_test_123",
		Network: types.NetworkSolanaDevnet,
	}, nil, nil)
}

func TestCreateSendsProductsAsGiven(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/payments", r.URL.Path)
		assert.Equal(t, "sk_test_123", r.Header.Get("X-Superlamp-KEY"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sessionId":"sess_1","amount":0.7}`))
	}))
	defer srv.Close()

	s, err := newTestClient(srv.URL).Create(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "sess_1", s.SessionID)
	assert.False(t, s.CreatedAt.IsZero())
	assert.True(t, s.Request.TotalAmount().Equal(decimal.RequireFromString("0.701")))

	products := got["products"].([]any)
	require.Len(t, products, 2)
	first := products[0].(map[string]any)
	assert.Equal(t, "1", first["id"])
	assert.Equal(t, "Pro Plan", first["name"])
	assert.Equal(t, 0.5, first["price"])
	_, hasDescription := first["description"]
	assert.False(t, hasDescription)
}

func TestCreateErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		code    string
		message string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"invalid api key"}`, types.ErrUnauthorized, "invalid api key"},
		{"forbidden", http.StatusForbidden, ``, types.ErrUnauthorized, "API error: 403 Forbidden"},
		{"bad request", http.StatusBadRequest, `{"error":"products required"}`, types.ErrSessionInvalid, "products required"},
		{"server error", http.StatusBadGateway, `upstream down`, types.ErrServerError, "API error: 502 Bad Gateway"},
		{"ok without session", http.StatusOK, `{}`, types.ErrServerError, "no session ID returned"},
		{"ok with error", http.StatusOK, `{"error":"quota exceeded"}`, types.ErrServerError, "quota exceeded"},
		{"ok not json", http.StatusOK, `<html>`, types.ErrServerError, "failed to decode payment service response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).Create(context.Background(), testRequest())
			require.Error(t, err)

			pe, ok := types.AsPaymentError(err)
			require.True(t, ok)
			assert.Equal(t, types.KindSession, pe.Kind)
			assert.Equal(t, tt.code, pe.Code)
			assert.Equal(t, tt.message, pe.Message)
			if tt.status >= 500 {
				assert.Equal(t, tt.status, pe.HTTPStatus)
				assert.Equal(t, tt.body, pe.Body)
			}
		})
	}
}

func TestCreateUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url).Create(context.Background(), testRequest())
	assert.Equal(t, types.ErrUnreachable, types.CodeOf(err))
	assert.True(t, types.IsKind(err, types.KindSession))
}

func TestCreatePriceMismatch(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"amount", `{"sessionId":"sess_2","amount":"0.9"}`},
		{"product price", `{"sessionId":"sess_2","products":[{"id":"1","price":0.5},{"id":"2","price":0.1}]}`},
		{"unknown product", `{"sessionId":"sess_2","products":[{"id":"1","price":0.5},{"id":"3","price":0.2}]}`},
		{"missing product", `{"sessionId":"sess_2","products":[{"id":"1","price":0.5}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).Create(context.Background(), testRequest())
			pe, ok := types.AsPaymentError(err)
			require.True(t, ok)
			assert.Equal(t, types.KindSession, pe.Kind)
			assert.Equal(t, types.ErrSessionInvalid, pe.Code)
			assert.Equal(t, "sess_2", pe.SessionID)
		})
	}
}

func TestCreateMatchingEcho(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sessionId":"sess_3","amount":"0.70","products":[{"id":"2","price":"0.2"},{"id":"1","price":0.5}]}`))
	}))
	defer srv.Close()

	s, err := newTestClient(srv.URL).Create(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "sess_3", s.SessionID)
}

func TestCreateEachCallIsOneRequest(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Create(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCreateMissingConfig(t *testing.T) {
	c := NewClient(types.Config{APIKey: "k", Network: types.NetworkSolanaDevnet}, nil, nil)
	_, err := c.Create(context.Background(), testRequest())
	assert.True(t, types.IsKind(err, types.KindPrecondition))

	c = NewClient(types.Config{APIURL: "http://localhost", Network: types.NetworkSolanaDevnet}, nil, nil)
	_, err = c.Create(context.Background(), testRequest())
	assert.Equal(t, types.ErrMissingConfig, types.CodeOf(err))
}
