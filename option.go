package checkout

import (
	"net/http"

	"github.com/vitwit/x402-checkout/clients"
	"github.com/vitwit/x402-checkout/logger"
	"github.com/vitwit/x402-checkout/metrics"
	"github.com/vitwit/x402-checkout/orchestrator"
)

type Option func(*Checkout)

// WithLogger replaces the default zap logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Checkout) {
		c.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(c *Checkout) {
		c.metrics = r
	}
}

// WithEventHandler receives OnSuccess and OnError for every finished attempt.
func WithEventHandler(h orchestrator.EventHandler) Option {
	return func(c *Checkout) {
		c.events = h
	}
}

// WithHTTPClient sets the client used to reach the payment service.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Checkout) {
		c.httpClient = hc
	}
}

// WithRPCClient replaces the network client built from the configuration.
func WithRPCClient(rc clients.Client) Option {
	return func(c *Checkout) {
		c.rpc = rc
	}
}
