package clients

import (
	"context"
	"fmt"

	"github.com/vitwit/x402-checkout/types"
)

// Client is the network RPC capability the builder and the settlement
// service consume.
type Client interface {
	Network() types.Network

	// LatestCheckpoint fetches a fresh checkpoint. sender is only used by
	// networks whose checkpoint is account bound (EVM nonce).
	LatestCheckpoint(ctx context.Context, sender string) (*types.Checkpoint, error)

	// Broadcast sends a signed transaction once and returns its identifier.
	Broadcast(ctx context.Context, tx *types.SignedTransaction) (string, error)

	// Status queries the current state of a broadcast transaction.
	Status(ctx context.Context, signature string) (*types.TxStatus, error)

	Close()
}

// New creates the client for the configured network.
func New(cfg types.Config) (Client, error) {
	switch cfg.Network.Family() {
	case types.ChainSolana:
		return NewSolanaClient(cfg.Network, cfg.RPCURL, cfg.Commitment)
	case types.ChainEVM:
		return NewEVMClient(cfg.Network, cfg.RPCURL)
	default:
		return nil, &types.PaymentError{
			Kind:    types.KindPrecondition,
			Code:    types.ErrUnsupportedNetwork,
			Message: fmt.Sprintf("unsupported network: %s", cfg.Network),
		}
	}
}
