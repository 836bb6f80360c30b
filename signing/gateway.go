// Package signing obtains wallet signatures and maps wallet failures onto
// signing errors.
package signing

import (
	"context"
	"errors"
	"time"

	"github.com/vitwit/x402-checkout/logger"
	"github.com/vitwit/x402-checkout/types"
	"github.com/vitwit/x402-checkout/verification"
	"github.com/vitwit/x402-checkout/wallet"
)

// Signed is a wallet signature that passed verification.
type Signed struct {
	Transaction *types.SignedTransaction
	// TxID identifies the transaction on chain before it is broadcast.
	TxID string
}

// Gateway asks a wallet to sign one transaction at a time.
type Gateway struct {
	timeout time.Duration
	logger  logger.Logger
}

// NewGateway creates a gateway. A zero timeout waits for the wallet until
// ctx is cancelled.
func NewGateway(timeout time.Duration, log logger.Logger) *Gateway {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Gateway{timeout: timeout, logger: log}
}

// Sign requests a signature from w and verifies it against tx. When ctx is
// cancelled the returned error wraps context.Canceled and is not a
// PaymentError, so callers can tell a cancel from a failure.
func (g *Gateway) Sign(ctx context.Context, w wallet.Wallet, tx *types.UnsignedTransaction) (*Signed, error) {
	if w == nil || !w.IsConnected() {
		return nil, types.SigningError(types.ErrWalletNotConnected, "wallet is not connected", nil)
	}

	signCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		signCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	signed, err := g.await(signCtx, w, tx)
	if err != nil {
		return nil, g.mapError(ctx, signCtx, err)
	}
	if signed == nil {
		return nil, types.SigningError(types.ErrMalformedSignature, "wallet returned no transaction", nil)
	}

	out := &types.SignedTransaction{
		Network: signed.Network,
		Payload: append([]byte(nil), signed.Payload...),
	}
	if out.Network == "" {
		out.Network = tx.Network
	}

	res, err := verification.Verify(tx, out)
	if err != nil {
		g.logger.Warn("signature_rejected", map[string]any{"error": err.Error()})
		return nil, types.SigningError(types.ErrMalformedSignature, "wallet returned an invalid signature", err)
	}
	out.Signatures = res.Signatures

	g.logger.Debug("transaction_signed", map[string]any{
		"tx_id":    res.TxID,
		"duration": time.Since(start).String(),
	})

	return &Signed{Transaction: out, TxID: res.TxID}, nil
}

type signResult struct {
	signed *types.SignedTransaction
	err    error
}

// await returns as soon as the wallet answers or ctx is done, whichever comes
// first. A wallet that never answers leaks only its own goroutine.
func (g *Gateway) await(ctx context.Context, w wallet.Wallet, tx *types.UnsignedTransaction) (*types.SignedTransaction, error) {
	done := make(chan signResult, 1)
	go func() {
		signed, err := w.SignTransaction(ctx, tx)
		done <- signResult{signed: signed, err: err}
	}()

	select {
	case r := <-done:
		return r.signed, r.err
	case <-ctx.Done():
		g.logger.Warn("wallet_abandoned", map[string]any{"error": ctx.Err().Error()})
		return nil, ctx.Err()
	}
}

func (g *Gateway) mapError(parent, signCtx context.Context, err error) error {
	switch {
	case parent.Err() != nil:
		// cancelled by the caller, not a wallet failure
		return parent.Err()
	case errors.Is(err, wallet.ErrUserRejected):
		return types.SigningError(types.ErrUserRejected, "user rejected the signature request", err)
	case errors.Is(err, wallet.ErrNotConnected):
		return types.SigningError(types.ErrWalletNotConnected, "wallet is not connected", err)
	case errors.Is(signCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		return types.SigningError(types.ErrWalletTimeout, "wallet did not respond in time", err)
	default:
		// wallets report most declines as untyped errors
		return types.SigningError(types.ErrUserRejected, "wallet declined to sign: "+err.Error(), err)
	}
}
