package builder

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/vitwit/x402-checkout/types"
	"github.com/vitwit/x402-checkout/utils"
)

// buildEVMTransfer encodes a legacy value transfer. Message is the EIP-155
// signing hash for the checkpoint's chain id.
func buildEVMTransfer(ix types.TransferInstruction, cp types.Checkpoint) (*types.UnsignedTransaction, error) {
	if cp.EVM == nil || cp.EVM.ChainID == nil || cp.EVM.GasPrice == nil {
		return nil, fmt.Errorf("checkpoint is missing nonce, gas price or chain id")
	}

	to := common.HexToAddress(ix.To)
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    cp.EVM.Nonce,
		GasPrice: cp.EVM.GasPrice,
		Gas:      types.NativeTransferGas,
		To:       &to,
		Value:    ix.Atomic,
	})

	signer := ethtypes.LatestSignerForChainID(cp.EVM.ChainID)
	hash := signer.Hash(tx)

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}

	return &types.UnsignedTransaction{
		Instructions: []types.TransferInstruction{ix},
		FeePayer:     utils.NormalizeAddress(ix.From),
		Checkpoint:   cp,
		Message:      hash.Bytes(),
		Raw:          raw,
	}, nil
}
