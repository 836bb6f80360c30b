// Package session creates payment sessions against the payment service.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/vitwit/x402-checkout/logger"
	"github.com/vitwit/x402-checkout/types"
)

// maxErrorBody caps how much of an error body is kept on a PaymentError.
const maxErrorBody = 2048

// Client handles communication with the payment service. It never retries:
// the server may have committed a session even when the response was lost.
type Client struct {
	cfg    types.Config
	http   *resty.Client
	logger logger.Logger
	now    func() time.Time
}

// NewClient creates a session client. A nil httpClient gets a client with
// cfg.HTTPTimeout.
func NewClient(cfg types.Config, httpClient *http.Client, log logger.Logger) *Client {
	cfg = cfg.WithDefaults()
	if log == nil {
		log = logger.NoopLogger{}
	}

	var rc *resty.Client
	if httpClient != nil {
		rc = resty.NewWithClient(httpClient)
	} else {
		rc = resty.New().SetTimeout(cfg.HTTPTimeout)
	}
	rc.SetRetryCount(0)

	return &Client{
		cfg:    cfg,
		http:   rc,
		logger: log,
		now:    time.Now,
	}
}

type productPayload struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Price json.Number `json:"price"`
}

type createRequest struct {
	Products []productPayload `json:"products"`
}

type productEcho struct {
	ID    string          `json:"id"`
	Price decimal.Decimal `json:"price"`
}

type createResponse struct {
	SessionID string           `json:"sessionId"`
	Error     string           `json:"error,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Products  []productEcho    `json:"products,omitempty"`
}

// Create posts the request items to {apiUrl}/api/v1/payments and returns the
// new session. Any price the server echoes back must match the local one.
func (c *Client) Create(ctx context.Context, req *types.PaymentRequest) (*types.PaymentSession, error) {
	if c.cfg.APIURL == "" {
		return nil, types.PreconditionError(types.ErrMissingConfig, "payment service URL is not configured")
	}
	if c.cfg.APIKey == "" {
		return nil, types.PreconditionError(types.ErrMissingConfig, "payment service API key is not configured")
	}

	body := createRequest{Products: make([]productPayload, 0, len(req.Items))}
	for _, item := range req.Items {
		body.Products = append(body.Products, productPayload{
			ID:    item.ID,
			Name:  item.Name,
			Price: json.Number(item.UnitPrice.String()),
		})
	}

	url := c.cfg.PaymentsURL()
	c.logger.Debug("session_request", map[string]any{
		"url":            url,
		"products":       len(body.Products),
		"api_key_length": len(c.cfg.APIKey),
	})

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader(c.cfg.APIKeyHeader(), c.cfg.APIKey).
		SetBody(body).
		Post(url)
	if err != nil {
		return nil, types.SessionError(types.ErrUnreachable,
			fmt.Sprintf("cannot reach payment service at %s", url), err)
	}

	raw := resp.Body()
	var out createResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, statusError(resp.StatusCode(), raw, out.Error)
	}

	if decodeErr != nil {
		return nil, httpError(types.ErrServerError, resp.StatusCode(), raw,
			"failed to decode payment service response", decodeErr)
	}
	if out.Error != "" {
		return nil, httpError(types.ErrServerError, resp.StatusCode(), raw, out.Error, nil)
	}
	if out.SessionID == "" {
		return nil, httpError(types.ErrServerError, resp.StatusCode(), raw, "no session ID returned", nil)
	}

	if err := reconcile(req, &out); err != nil {
		c.logger.Warn("session_price_mismatch", map[string]any{
			"session_id": out.SessionID,
			"error":      err.Error(),
		})
		perr := types.SessionError(types.ErrSessionInvalid, err.Error(), nil)
		perr.SessionID = out.SessionID
		return nil, perr
	}

	session := &types.PaymentSession{
		SessionID: out.SessionID,
		Request:   req.Clone(),
		CreatedAt: c.now(),
	}

	c.logger.Info("session_created", map[string]any{"session_id": session.SessionID})
	return session, nil
}

// reconcile compares server echoed prices with the local request. The server
// only sees the products, so its amount is checked against the subtotal.
func reconcile(req *types.PaymentRequest, out *createResponse) error {
	if out.Amount != nil && !out.Amount.Equal(req.Subtotal()) {
		return fmt.Errorf("server amount %s does not match local subtotal %s",
			out.Amount.String(), req.Subtotal().String())
	}

	if len(out.Products) == 0 {
		return nil
	}

	local := make(map[string]decimal.Decimal, len(req.Items))
	for _, item := range req.Items {
		local[item.ID] = item.UnitPrice
	}
	if len(out.Products) != len(local) {
		return fmt.Errorf("server returned %d products, expected %d", len(out.Products), len(local))
	}
	for _, p := range out.Products {
		price, ok := local[p.ID]
		if !ok {
			return fmt.Errorf("server returned unknown product %q", p.ID)
		}
		if !price.Equal(p.Price) {
			return fmt.Errorf("server price %s for product %q does not match local price %s",
				p.Price.String(), p.ID, price.String())
		}
	}
	return nil
}

func statusError(status int, raw []byte, serverMsg string) *types.PaymentError {
	msg := serverMsg
	if msg == "" {
		msg = fmt.Sprintf("API error: %d %s", status, http.StatusText(status))
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return httpError(types.ErrUnauthorized, status, raw, msg, nil)
	case status >= 400 && status < 500:
		return httpError(types.ErrSessionInvalid, status, raw, msg, nil)
	default:
		return httpError(types.ErrServerError, status, raw, msg, nil)
	}
}

func httpError(code string, status int, raw []byte, msg string, cause error) *types.PaymentError {
	body := strings.TrimSpace(string(raw))
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	perr := types.SessionError(code, msg, cause)
	perr.HTTPStatus = status
	perr.Body = body
	return perr
}
