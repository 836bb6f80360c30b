package types

import (
	"strings"
	"time"
)

// Default configuration values
const (
	DefaultProductName         = "Superlamp"
	DefaultHTTPTimeout         = 30 * time.Second
	DefaultConfirmationTimeout = 60 * time.Second
	DefaultPollInterval        = 2 * time.Second
	DefaultCommitment          = "confirmed"
	DefaultLogLevel            = "info"
)

// Config is passed explicitly to the checkout at construction.
type Config struct {
	// APIURL is the base URL of the payment service. Checked at Pay time.
	APIURL string `json:"apiUrl" validate:"omitempty,url"`

	// APIKey is sent in the X-<ProductName>-KEY header. Checked at Pay time.
	APIKey string `json:"apiKey"`

	// ProductName names the API key header. Defaults to Superlamp.
	ProductName string `json:"productName,omitempty"`

	Network Network `json:"network" validate:"required"`

	// RPCURL overrides the network's public RPC endpoint.
	RPCURL string `json:"rpcUrl,omitempty" validate:"omitempty,url"`

	// Commitment is the Solana commitment level a transaction must reach:
	// processed, confirmed or finalized.
	Commitment string `json:"commitment,omitempty" validate:"omitempty,oneof=processed confirmed finalized"`

	HTTPTimeout time.Duration `json:"httpTimeout,omitempty"`

	// WalletTimeout bounds the wallet interaction. Zero waits until cancelled.
	WalletTimeout time.Duration `json:"walletTimeout,omitempty"`

	ConfirmationTimeout time.Duration `json:"confirmationTimeout,omitempty"`
	PollInterval        time.Duration `json:"pollInterval,omitempty"`

	LogLevel      string `json:"logLevel,omitempty" validate:"omitempty,oneof=debug info warn error"`
	EnableMetrics bool   `json:"enableMetrics,omitempty"`
}

// WithDefaults returns a copy of c with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.ProductName == "" {
		c.ProductName = DefaultProductName
	}
	if c.RPCURL == "" {
		c.RPCURL = c.Network.DefaultRPCURL()
	}
	if c.Commitment == "" {
		c.Commitment = DefaultCommitment
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	if c.ConfirmationTimeout <= 0 {
		c.ConfirmationTimeout = DefaultConfirmationTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	return c
}

// Validate checks the struct tags and that the network is supported.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return NewError(KindPrecondition, ErrMissingConfig, "invalid configuration", err)
	}
	if c.Network.Family() == "" {
		return PreconditionError(ErrUnsupportedNetwork, "unsupported network: "+c.Network.String())
	}
	return nil
}

// APIKeyHeader is the header carrying the API key, e.g. X-Superlamp-KEY.
func (c *Config) APIKeyHeader() string {
	name := c.ProductName
	if name == "" {
		name = DefaultProductName
	}
	return "X-" + name + "-KEY"
}

// PaymentsURL is the session endpoint with any trailing slash removed from APIURL.
func (c *Config) PaymentsURL() string {
	return strings.TrimRight(c.APIURL, "/") + "/api/v1/payments"
}
