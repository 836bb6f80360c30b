package builder

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/vitwit/x402-checkout/types"
)

// buildSolanaTransfer encodes a single system transfer with the sender as
// fee payer and the checkpoint blockhash as recent blockhash.
func buildSolanaTransfer(ix types.TransferInstruction, cp types.Checkpoint) (*types.UnsignedTransaction, error) {
	from, err := solana.PublicKeyFromBase58(ix.From)
	if err != nil {
		return nil, err
	}
	to, err := solana.PublicKeyFromBase58(ix.To)
	if err != nil {
		return nil, err
	}
	blockhash, err := solana.HashFromBase58(cp.Reference)
	if err != nil {
		return nil, fmt.Errorf("invalid blockhash %q: %w", cp.Reference, err)
	}
	if !ix.Atomic.IsUint64() {
		return nil, fmt.Errorf("lamports %s overflow uint64", ix.Atomic.String())
	}

	transfer := system.NewTransferInstruction(ix.Atomic.Uint64(), from, to).Build()

	tx, err := solana.NewTransaction(
		[]solana.Instruction{transfer},
		blockhash,
		solana.TransactionPayer(from),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}

	// empty signature slots, one per required signer
	tx.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}

	return &types.UnsignedTransaction{
		Instructions: []types.TransferInstruction{ix},
		FeePayer:     from.String(),
		Checkpoint:   cp,
		Message:      message,
		Raw:          raw,
	}, nil
}
