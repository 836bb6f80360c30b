package utils

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vitwit/x402-checkout/types"
)

var validate = validator.New()

// Environment variables read by ConfigFromEnv.
const (
	EnvAPIURL           = "NEXT_PUBLIC_API_URL"
	EnvAPIKey           = "NEXT_PUBLIC_API_KEY"
	EnvRecipientAddress = "NEXT_PUBLIC_RECIPIENT_ADDRESS"
	EnvNetwork          = "NEXT_PUBLIC_SOLANA_NETWORK"
	EnvRPCURL           = "NEXT_PUBLIC_SOLANA_RPC_URL"
)

// configFile is the JSON shape of a Config; durations are strings such as "30s".
type configFile struct {
	APIURL              string `json:"apiUrl"`
	APIKey              string `json:"apiKey"`
	ProductName         string `json:"productName"`
	Network             string `json:"network"`
	RPCURL              string `json:"rpcUrl"`
	Commitment          string `json:"commitment"`
	HTTPTimeout         string `json:"httpTimeout"`
	WalletTimeout       string `json:"walletTimeout"`
	ConfirmationTimeout string `json:"confirmationTimeout"`
	PollInterval        string `json:"pollInterval"`
	LogLevel            string `json:"logLevel"`
	EnableMetrics       bool   `json:"enableMetrics"`
}

// ParseConfig parses and validates a Config from JSON. Defaults are applied.
func ParseConfig(data []byte) (*types.Config, error) {
	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, types.NewError(types.KindPrecondition, types.ErrMissingConfig,
			fmt.Sprintf("failed to parse config: %v", err), err)
	}

	cfg := types.Config{
		APIURL:        file.APIURL,
		APIKey:        file.APIKey,
		ProductName:   file.ProductName,
		Network:       types.Network(file.Network),
		RPCURL:        file.RPCURL,
		Commitment:    file.Commitment,
		LogLevel:      file.LogLevel,
		EnableMetrics: file.EnableMetrics,
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"httpTimeout", file.HTTPTimeout, &cfg.HTTPTimeout},
		{"walletTimeout", file.WalletTimeout, &cfg.WalletTimeout},
		{"confirmationTimeout", file.ConfirmationTimeout, &cfg.ConfirmationTimeout},
		{"pollInterval", file.PollInterval, &cfg.PollInterval},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil || v < 0 {
			return nil, types.PreconditionError(types.ErrMissingConfig,
				fmt.Sprintf("%s: invalid duration %q", d.name, d.value))
		}
		*d.dst = v
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// EnvSettings is what the checkout page reads from its environment.
type EnvSettings struct {
	Config           types.Config
	RecipientAddress string
}

// ConfigFromEnv builds the configuration from the widget's environment
// variables. lookup is usually os.LookupEnv. The network defaults to devnet.
func ConfigFromEnv(lookup func(string) (string, bool)) (*EnvSettings, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	network := get(EnvNetwork)
	if network == "" {
		network = string(types.NetworkSolanaDevnet)
	}

	cfg := types.Config{
		APIURL:  get(EnvAPIURL),
		APIKey:  get(EnvAPIKey),
		Network: types.Network(network),
		RPCURL:  get(EnvRPCURL),
	}.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &EnvSettings{
		Config:           cfg,
		RecipientAddress: get(EnvRecipientAddress),
	}, nil
}

// ParseLineItems parses the products list the checkout page accepts, e.g.
// [{"id":"1","name":"Pro Plan","price":0.5}], and validates it.
func ParseLineItems(data []byte) ([]types.LineItem, error) {
	var items []types.LineItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, types.NewError(types.KindPrecondition, types.ErrInvalidRequest,
			fmt.Sprintf("failed to parse products: %v", err), err)
	}
	if len(items) == 0 {
		return nil, types.PreconditionError(types.ErrInvalidRequest, "at least one product is required")
	}

	seen := make(map[string]bool, len(items))
	for i, item := range items {
		if err := validate.Struct(&item); err != nil {
			return nil, types.NewError(types.KindPrecondition, types.ErrInvalidRequest,
				fmt.Sprintf("product %d: validation failed: %v", i, err), err)
		}
		if item.UnitPrice.IsNegative() {
			return nil, types.PreconditionError(types.ErrInvalidRequest,
				fmt.Sprintf("product %s: price cannot be negative", item.ID))
		}
		if seen[item.ID] {
			return nil, types.PreconditionError(types.ErrInvalidRequest,
				fmt.Sprintf("duplicate product id %q", item.ID))
		}
		seen[item.ID] = true
	}

	return items, nil
}
