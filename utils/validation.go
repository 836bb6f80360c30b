package utils

import (
	"fmt"
	"math/big"
	"regexp"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/vitwit/x402-checkout/types"
)

var base58Pattern = regexp.MustCompile("^[1-9A-HJ-NP-Za-km-z]+$")

// ValidateAmount checks if an amount string is a valid non-negative decimal
func ValidateAmount(amount string) (decimal.Decimal, error) {
	if amount == "" {
		return decimal.Zero, fmt.Errorf("amount cannot be empty")
	}

	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount format: %w", err)
	}

	if dec.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount cannot be negative")
	}

	return dec, nil
}

// ValidateAddress checks that address is a syntactically valid account
// address on the given network.
func ValidateAddress(network types.Network, address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	switch {
	case network.IsSolana():
		// Solana public keys are 32 bytes, base58 encoded in 32-44 characters
		if len(address) < 32 || len(address) > 44 || !base58Pattern.MatchString(address) {
			return fmt.Errorf("Solana address must be 32-44 base58 characters")
		}
		if _, err := solana.PublicKeyFromBase58(address); err != nil {
			return fmt.Errorf("invalid Solana address: %w", err)
		}

	case network.IsEVM():
		if !common.IsHexAddress(address) {
			return fmt.Errorf("EVM address must be 0x followed by 40 hex characters")
		}

	default:
		return fmt.Errorf("unsupported network for address validation: %s", network)
	}

	return nil
}

// ValidateSignature validates the transaction identifier format of a network
func ValidateSignature(network types.Network, sig string) error {
	if sig == "" {
		return fmt.Errorf("transaction signature cannot be empty")
	}

	switch {
	case network.IsSolana():
		if _, err := solana.SignatureFromBase58(sig); err != nil {
			return fmt.Errorf("invalid Solana transaction signature: %w", err)
		}
	case network.IsEVM():
		if len(sig) != 66 || sig[:2] != "0x" {
			return fmt.Errorf("EVM transaction hash must be 0x followed by 64 hex characters")
		}
		if _, err := hexutil.Decode(sig); err != nil {
			return fmt.Errorf("EVM transaction hash must be valid hex")
		}
	default:
		return fmt.Errorf("unsupported network for signature validation: %s", network)
	}

	return nil
}

// ToAtomic converts a display amount to the network's smallest unit. Amounts
// with more precision than the unit allows are rejected, never rounded.
func ToAtomic(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	atomic := amount.Shift(decimals)
	if !atomic.Equal(atomic.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", amount.String(), decimals)
	}
	return atomic.BigInt(), nil
}

// FromAtomic formats an atomic amount back to display units.
func FromAtomic(amount *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(amount, -decimals)
}
