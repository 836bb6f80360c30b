package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/crypto"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/vitwit/x402-checkout/types"
	"github.com/vitwit/x402-checkout/utils"
)

var _ Wallet = (*EVMKey)(nil)

// EVMKey signs with an in-memory secp256k1 key.
type EVMKey struct {
	key       *ecdsa.PrivateKey
	opts      options
	connected atomic.Bool
}

func NewEVMKey(key *ecdsa.PrivateKey, opts ...Option) *EVMKey {
	w := &EVMKey{key: key, opts: buildOptions(opts)}
	w.connected.Store(true)
	return w
}

// NewRandomEVMKey generates a new key.
func NewRandomEVMKey(opts ...Option) (*EVMKey, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return NewEVMKey(key, opts...), nil
}

// EVMKeyFromHex parses a hex private key, with or without 0x.
func EVMKeyFromHex(hexKey string, opts ...Option) (*EVMKey, error) {
	key, err := utils.PrivateKeyFromHex(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewEVMKey(key, opts...), nil
}

func (w *EVMKey) IsConnected() bool { return w.connected.Load() }

// SetConnected simulates a wallet connect or disconnect.
func (w *EVMKey) SetConnected(v bool) { w.connected.Store(v) }

func (w *EVMKey) PublicAddress() string {
	return utils.AddressFromPrivateKey(w.key).Hex()
}

// SignTransaction signs the EIP-155 hash in tx.Message and attaches the
// signature to the raw transaction.
func (w *EVMKey) SignTransaction(ctx context.Context, utx *types.UnsignedTransaction) (*types.SignedTransaction, error) {
	if !w.IsConnected() {
		return nil, ErrNotConnected
	}
	if !utx.Network.IsEVM() {
		return nil, fmt.Errorf("cannot sign %s transaction with an EVM key", utx.Network)
	}
	if utx.Checkpoint.EVM == nil || utx.Checkpoint.EVM.ChainID == nil {
		return nil, fmt.Errorf("transaction has no chain id")
	}
	if err := w.opts.check(ctx, utx); err != nil {
		return nil, err
	}

	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(utx.Raw); err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}

	sig, err := utils.SignHash(utx.Message, w.key)
	if err != nil {
		return nil, err
	}

	signer := ethtypes.LatestSignerForChainID(utx.Checkpoint.EVM.ChainID)
	signed, err := tx.WithSignature(signer, sig)
	if err != nil {
		return nil, fmt.Errorf("failed to attach signature: %w", err)
	}

	payload, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}

	return &types.SignedTransaction{
		Network:    utx.Network,
		Payload:    payload,
		Signatures: []types.SignerSignature{{Signer: w.PublicAddress(), Signature: sig}},
	}, nil
}
