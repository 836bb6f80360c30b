package types

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recipient = "AejHuZdNpDUiAiwuV2NKXz8K6eLzChYGpTcxptinWbar"

func item(id, price string) LineItem {
	return LineItem{ID: id, Name: "item " + id, UnitPrice: decimal.RequireFromString(price)}
}

func TestTotalAmount(t *testing.T) {
	tests := []struct {
		name  string
		req   *PaymentRequest
		total string
	}{
		{"default fee", NewPaymentRequest(recipient, item("1", "0.5"), item("2", "0.2")), "0.701"},
		{"free items", NewPaymentRequest(recipient, item("1", "0")), "0.001"},
		{"no fee", &PaymentRequest{Items: []LineItem{item("1", "1.25")}, RecipientAddress: recipient}, "1.25"},
		{"many decimals", &PaymentRequest{
			Items:            []LineItem{item("1", "0.000000001"), item("2", "0.000000002")},
			NetworkFee:       decimal.RequireFromString("0.000005"),
			RecipientAddress: recipient,
		}, "0.000005003"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.req.TotalAmount().Equal(decimal.RequireFromString(tt.total)),
				"got %s", tt.req.TotalAmount())
			assert.True(t, tt.req.TotalAmount().Equal(tt.req.Subtotal().Add(tt.req.NetworkFee)))
		})
	}
}

func TestTotalAmountFollowsItems(t *testing.T) {
	req := NewPaymentRequest(recipient, item("1", "0.5"))
	before := req.TotalAmount()

	req.Items = append(req.Items, item("2", "0.2"))
	assert.True(t, req.TotalAmount().Equal(before.Add(decimal.RequireFromString("0.2"))))
}

func TestPaymentRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     *PaymentRequest
		wantErr string
	}{
		{"valid", NewPaymentRequest(recipient, item("1", "0.5")), ""},
		{"no items", NewPaymentRequest(recipient), "invalid payment request"},
		{"no recipient", NewPaymentRequest("", item("1", "0.5")), "invalid payment request"},
		{"duplicate ids", NewPaymentRequest(recipient, item("1", "0.5"), item("1", "0.2")), "invalid payment request"},
		{"missing name", NewPaymentRequest(recipient, LineItem{ID: "1", UnitPrice: decimal.NewFromInt(1)}), "invalid payment request"},
		{"negative price", NewPaymentRequest(recipient, item("1", "-0.5")), "price cannot be negative"},
		{"negative fee", &PaymentRequest{
			Items:            []LineItem{item("1", "0.5")},
			NetworkFee:       decimal.RequireFromString("-0.001"),
			RecipientAddress: recipient,
		}, "network fee cannot be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCloneDoesNotShareItems(t *testing.T) {
	req := NewPaymentRequest(recipient, item("1", "0.5"))
	clone := req.Clone()

	req.Items[0].UnitPrice = decimal.NewFromInt(9)
	assert.True(t, clone.Items[0].UnitPrice.Equal(decimal.RequireFromString("0.5")))
}

func TestPhaseAcceptsNewAttempt(t *testing.T) {
	accepting := map[Phase]bool{
		PhaseIdle:              true,
		PhaseCreatingSession:   false,
		PhaseBuilding:          false,
		PhaseAwaitingSignature: false,
		PhaseSubmitting:        false,
		PhaseConfirming:        false,
		PhaseSucceeded:         true,
		PhaseFailed:            true,
	}
	for phase, want := range accepting {
		assert.Equal(t, want, phase.AcceptsNewAttempt(), phase)
	}
}

func TestNetworkClassification(t *testing.T) {
	assert.Equal(t, ChainSolana, NetworkSolanaDevnet.Family())
	assert.Equal(t, ChainEVM, NetworkBaseSepolia.Family())
	assert.Equal(t, ChainFamily(""), Network("cosmoshub-4").Family())

	assert.Equal(t, int32(9), NetworkSolanaMainnet.Decimals())
	assert.Equal(t, int32(18), NetworkPolygon.Decimals())
	assert.True(t, NetworkSolanaDevnet.IsTestnet())
	assert.False(t, NetworkSolanaMainnet.IsTestnet())
	assert.Equal(t, "https://api.devnet.solana.com", NetworkSolanaDevnet.DefaultRPCURL())

	assert.Equal(t, "0.701 SOL", FormatAmount(decimal.RequireFromString("0.701"), NetworkSolanaDevnet))
	assert.Equal(t, "1.000 ETH", FormatAmount(decimal.NewFromInt(1), NetworkBase))
}

func TestPaymentErrorHelpers(t *testing.T) {
	cause := errors.New("connection refused")
	err := SessionError(ErrUnreachable, "cannot reach payment service", cause)
	wrapped := fmt.Errorf("pay: %w", err)

	pe, ok := AsPaymentError(wrapped)
	require.True(t, ok)
	assert.Same(t, err, pe)
	assert.True(t, IsKind(wrapped, KindSession))
	assert.False(t, IsKind(wrapped, KindBuild))
	assert.Equal(t, ErrUnreachable, CodeOf(wrapped))
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "session/UNREACHABLE: cannot reach payment service (caused by: connection refused)", err.Error())

	assert.ErrorIs(t, fmt.Errorf("x: %w", ErrAlreadyInProgress), ErrAlreadyInProgress)
	assert.ErrorIs(t, err, &PaymentError{Kind: KindSession})
	assert.NotErrorIs(t, err, &PaymentError{Kind: KindSession, Code: ErrUnauthorized})

	assert.Empty(t, CodeOf(cause))
	_, ok = AsPaymentError(nil)
	assert.False(t, ok)
}

func TestConfigDefaultsAndValidate(t *testing.T) {
	cfg := Config{Network: NetworkSolanaDevnet}.WithDefaults()
	assert.Equal(t, "https://api.devnet.solana.com", cfg.RPCURL)
	assert.Equal(t, DefaultCommitment, cfg.Commitment)
	assert.Equal(t, DefaultConfirmationTimeout, cfg.ConfirmationTimeout)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, "X-Superlamp-KEY", cfg.APIKeyHeader())
	assert.NoError(t, cfg.Validate())

	cfg.APIURL = "https://api.example.com/"
	assert.Equal(t, "https://api.example.com/api/v1/payments", cfg.PaymentsURL())

	bad := Config{Network: "cosmoshub-4"}.WithDefaults()
	assert.Equal(t, ErrUnsupportedNetwork, CodeOf(bad.Validate()))

	bad = Config{Network: NetworkSolanaDevnet, Commitment: "max"}.WithDefaults()
	assert.True(t, IsKind(bad.Validate(), KindPrecondition))
}
