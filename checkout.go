// Package checkout pays for a list of priced items with a blockchain wallet:
// it opens a session with the payment service, builds a native transfer, has
// the wallet sign it, submits it and waits for confirmation.
package checkout

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vitwit/x402-checkout/builder"
	"github.com/vitwit/x402-checkout/clients"
	"github.com/vitwit/x402-checkout/logger"
	"github.com/vitwit/x402-checkout/metrics"
	"github.com/vitwit/x402-checkout/orchestrator"
	"github.com/vitwit/x402-checkout/session"
	"github.com/vitwit/x402-checkout/settlement"
	"github.com/vitwit/x402-checkout/signing"
	"github.com/vitwit/x402-checkout/types"
	"github.com/vitwit/x402-checkout/wallet"
)

// Checkout is the main struct wiring the payment steps for one network and
// one wallet.
type Checkout struct {
	config       types.Config
	orchestrator *orchestrator.Orchestrator
	settlement   *settlement.Service

	logger     logger.Logger
	metrics    metrics.Recorder
	events     orchestrator.EventHandler
	httpClient *http.Client
	rpc        clients.Client
}

// New creates a Checkout. A missing API URL or key is not an error here; Pay
// reports it as a precondition failure.
func New(cfg types.Config, w wallet.Wallet, opts ...Option) (*Checkout, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Checkout{config: cfg}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		zl, err := logger.NewZapLogger(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		c.logger = zl
	}

	if c.metrics == nil {
		if cfg.EnableMetrics {
			rec, err := metrics.NewPrometheusRecorder(nil)
			if err != nil {
				return nil, fmt.Errorf("failed to register metrics: %w", err)
			}
			c.metrics = rec
		} else {
			c.metrics = metrics.NoopRecorder{}
		}
	}

	if c.rpc == nil {
		client, err := clients.New(cfg)
		if err != nil {
			return nil, err
		}
		c.rpc = client
	}

	c.settlement = settlement.NewService(cfg.ConfirmationTimeout, cfg.PollInterval, c.logger, c.metrics)
	if err := c.settlement.AddClient(c.rpc); err != nil {
		return nil, err
	}
	if !c.settlement.IsNetworkSupported(cfg.Network) {
		return nil, types.PreconditionError(types.ErrUnsupportedNetwork,
			fmt.Sprintf("RPC client is for %s, checkout is configured for %s", c.rpc.Network(), cfg.Network))
	}

	steps := orchestrator.Steps{
		Sessions:  session.NewClient(cfg, c.httpClient, c.logger),
		Builder:   builder.New(cfg.Network, c.rpc, c.logger),
		Signer:    signing.NewGateway(cfg.WalletTimeout, c.logger),
		Submitter: c.settlement,
	}

	c.orchestrator = orchestrator.New(cfg, w, steps,
		orchestrator.WithLogger(c.logger),
		orchestrator.WithMetrics(c.metrics),
		orchestrator.WithEventHandler(c.events),
	)

	c.logger.Info("checkout_ready", map[string]any{
		"network":        cfg.Network.String(),
		"networks":       c.settlement.GetSupportedNetworks(),
		"rpc_url":        cfg.RPCURL,
		"api_configured": cfg.APIURL != "" && cfg.APIKey != "",
	})
	return c, nil
}

// Pay runs one payment attempt. See orchestrator.Orchestrator.Pay.
func (c *Checkout) Pay(ctx context.Context, req *types.PaymentRequest) (*types.PaymentResult, error) {
	return c.orchestrator.Pay(ctx, req)
}

// Cancel aborts an attempt that is waiting for the wallet signature.
func (c *Checkout) Cancel() error {
	return c.orchestrator.Cancel()
}

func (c *Checkout) Phase() types.Phase {
	return c.orchestrator.Phase()
}

func (c *Checkout) Snapshot() types.AttemptState {
	return c.orchestrator.Snapshot()
}

// Config returns the effective configuration with defaults applied.
func (c *Checkout) Config() types.Config {
	return c.config
}

// Close closes all client connections
func (c *Checkout) Close() {
	c.settlement.Close()
	if zl, ok := c.logger.(*logger.ZapLogger); ok {
		_ = zl.Sync()
	}
}

// Version information
const Version = "0.3.0"

// GetVersion returns version information
func GetVersion() map[string]interface{} {
	return map[string]interface{}{
		"library_version": Version,
		"supported_networks": []string{
			string(types.NetworkSolanaMainnet), string(types.NetworkSolanaDevnet), string(types.NetworkSolanaTestnet),
			string(types.NetworkPolygon), string(types.NetworkPolygonAmoy),
			string(types.NetworkBase), string(types.NetworkBaseSepolia),
		},
		"supported_standards": []string{"native"},
	}
}
