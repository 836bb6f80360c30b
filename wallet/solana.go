package wallet

import (
	"context"
	"fmt"
	"sync/atomic"

	binary "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/vitwit/x402-checkout/types"
)

var _ Wallet = (*SolanaKeypair)(nil)

// SolanaKeypair signs with an in-memory ed25519 key.
type SolanaKeypair struct {
	key       solana.PrivateKey
	opts      options
	connected atomic.Bool
}

// NewSolanaKeypair wraps an existing private key.
func NewSolanaKeypair(key solana.PrivateKey, opts ...Option) *SolanaKeypair {
	w := &SolanaKeypair{key: key, opts: buildOptions(opts)}
	w.connected.Store(true)
	return w
}

// NewRandomSolanaKeypair generates a new key.
func NewRandomSolanaKeypair(opts ...Option) (*SolanaKeypair, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return NewSolanaKeypair(key, opts...), nil
}

// SolanaKeypairFromBase58 parses a base58 encoded 64 byte secret key.
func SolanaKeypairFromBase58(secret string, opts ...Option) (*SolanaKeypair, error) {
	key, err := solana.PrivateKeyFromBase58(secret)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewSolanaKeypair(key, opts...), nil
}

func (w *SolanaKeypair) IsConnected() bool { return w.connected.Load() }

// SetConnected simulates a wallet connect or disconnect.
func (w *SolanaKeypair) SetConnected(v bool) { w.connected.Store(v) }

func (w *SolanaKeypair) PublicAddress() string {
	return w.key.PublicKey().String()
}

// SignTransaction signs tx.Message and places the signature in the slot of
// this key among the required signers.
func (w *SolanaKeypair) SignTransaction(ctx context.Context, utx *types.UnsignedTransaction) (*types.SignedTransaction, error) {
	if !w.IsConnected() {
		return nil, ErrNotConnected
	}
	if !utx.Network.IsSolana() {
		return nil, fmt.Errorf("cannot sign %s transaction with a Solana key", utx.Network)
	}
	if err := w.opts.check(ctx, utx); err != nil {
		return nil, err
	}

	tx, err := solana.TransactionFromDecoder(binary.NewBinDecoder(utx.Raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}

	pub := w.key.PublicKey()
	signers := tx.Message.Signers()
	idx := -1
	for i, s := range signers {
		if s.Equals(pub) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("key %s is not a signer of this transaction", pub)
	}

	sig, err := w.key.Sign(utx.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	if len(tx.Signatures) != len(signers) {
		tx.Signatures = make([]solana.Signature, len(signers))
	}
	tx.Signatures[idx] = sig

	payload, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}

	return &types.SignedTransaction{
		Network:    utx.Network,
		Payload:    payload,
		Signatures: []types.SignerSignature{{Signer: pub.String(), Signature: sig[:]}},
	}, nil
}
