// Package builder constructs unsigned native-currency transfers bound to a
// freshly fetched checkpoint.
package builder

import (
	"context"
	"fmt"

	"github.com/vitwit/x402-checkout/logger"
	"github.com/vitwit/x402-checkout/types"
	"github.com/vitwit/x402-checkout/utils"
)

// CheckpointSource fetches the latest chain checkpoint. clients.Client satisfies it.
type CheckpointSource interface {
	LatestCheckpoint(ctx context.Context, sender string) (*types.Checkpoint, error)
}

// Builder builds transfers for a single network. It keeps no checkpoint
// between calls: every Build fetches a new one.
type Builder struct {
	network types.Network
	source  CheckpointSource
	logger  logger.Logger
}

func New(network types.Network, source CheckpointSource, log logger.Logger) *Builder {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Builder{
		network: network,
		source:  source,
		logger:  log,
	}
}

// Build validates the session's recipient and amount, fetches a checkpoint
// and returns the unsigned transfer of TotalAmount from sender to the recipient.
func (b *Builder) Build(ctx context.Context, session *types.PaymentSession, sender string) (*types.UnsignedTransaction, error) {
	req := &session.Request

	if err := utils.ValidateAddress(b.network, req.RecipientAddress); err != nil {
		return nil, b.fail(session, types.ErrInvalidRecipient,
			fmt.Sprintf("invalid recipient address %q", req.RecipientAddress), err)
	}
	if err := utils.ValidateAddress(b.network, sender); err != nil {
		return nil, b.fail(session, types.ErrInvalidSender,
			fmt.Sprintf("invalid sender address %q", sender), err)
	}

	total := req.TotalAmount()
	if !total.IsPositive() {
		return nil, b.fail(session, types.ErrInvalidAmount,
			fmt.Sprintf("total amount must be greater than 0, got %s", total.String()), nil)
	}
	atomic, err := utils.ToAtomic(total, b.network.Decimals())
	if err != nil {
		return nil, b.fail(session, types.ErrInvalidAmount, err.Error(), nil)
	}

	cp, err := b.source.LatestCheckpoint(ctx, sender)
	if err != nil {
		return nil, b.fail(session, types.ErrCheckpointUnavailable, "failed to fetch a recent checkpoint", err)
	}
	if cp == nil || cp.Reference == "" {
		return nil, b.fail(session, types.ErrCheckpointUnavailable, "network returned an empty checkpoint", nil)
	}
	if b.network.IsEVM() && (cp.EVM == nil || cp.EVM.ChainID == nil || cp.EVM.GasPrice == nil) {
		return nil, b.fail(session, types.ErrCheckpointUnavailable, "checkpoint is missing nonce, gas price or chain id", nil)
	}

	ix := types.TransferInstruction{
		From:   sender,
		To:     req.RecipientAddress,
		Amount: total,
		Atomic: atomic,
	}

	var tx *types.UnsignedTransaction
	switch {
	case b.network.IsSolana():
		tx, err = buildSolanaTransfer(ix, *cp)
	case b.network.IsEVM():
		tx, err = buildEVMTransfer(ix, *cp)
	default:
		err = fmt.Errorf("unsupported network: %s", b.network)
	}
	if err != nil {
		return nil, b.fail(session, types.ErrInvalidAmount, "failed to encode transfer", err)
	}
	tx.Network = b.network

	b.logger.Info("transaction_built", map[string]any{
		"session_id": session.SessionID,
		"amount":     types.FormatAmount(utils.FromAtomic(atomic, b.network.Decimals()), b.network),
		"atomic":     atomic.String(),
		"checkpoint": cp.Reference,
		"fee_payer":  sender,
	})
	return tx, nil
}

func (b *Builder) fail(session *types.PaymentSession, code, msg string, cause error) *types.PaymentError {
	perr := types.BuildError(code, msg, cause)
	perr.SessionID = session.SessionID
	b.logger.Warn("build_failed", map[string]any{
		"session_id": session.SessionID,
		"code":       code,
		"error":      perr.Error(),
	})
	return perr
}
