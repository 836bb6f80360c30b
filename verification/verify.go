// Package verification checks that a wallet-signed transaction is the exact
// transaction that was built for it, signed by the fee payer.
package verification

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	binary "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/vitwit/x402-checkout/types"
	"github.com/vitwit/x402-checkout/utils"
)

// Result describes a signed transaction that passed verification.
type Result struct {
	// TxID is the network transaction identifier: the fee payer signature on
	// Solana, the transaction hash on EVM networks.
	TxID       string
	Signatures []types.SignerSignature
}

// Verify decodes signed.Payload and checks it against unsigned.
func Verify(unsigned *types.UnsignedTransaction, signed *types.SignedTransaction) (*Result, error) {
	if unsigned == nil || signed == nil {
		return nil, fmt.Errorf("transaction is nil")
	}
	if len(signed.Payload) == 0 {
		return nil, fmt.Errorf("signed payload is empty")
	}
	if signed.Network != "" && signed.Network != unsigned.Network {
		return nil, fmt.Errorf("signed network %s does not match %s", signed.Network, unsigned.Network)
	}

	switch {
	case unsigned.Network.IsSolana():
		return verifySolana(unsigned, signed.Payload)
	case unsigned.Network.IsEVM():
		return verifyEVM(unsigned, signed.Payload)
	default:
		return nil, fmt.Errorf("unsupported network: %s", unsigned.Network)
	}
}

func verifySolana(unsigned *types.UnsignedTransaction, payload []byte) (*Result, error) {
	tx, err := solana.TransactionFromDecoder(binary.NewBinDecoder(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}

	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	if !bytes.Equal(message, unsigned.Message) {
		return nil, fmt.Errorf("signed message differs from the built transaction")
	}

	signers := tx.Message.Signers()
	if len(tx.Signatures) != len(signers) {
		return nil, fmt.Errorf("expected %d signatures, got %d", len(signers), len(tx.Signatures))
	}

	sigs := make([]types.SignerSignature, 0, len(signers))
	for i, signer := range signers {
		sig := tx.Signatures[i]
		if sig.IsZero() || !sig.Verify(signer, message) {
			return nil, fmt.Errorf("invalid signature for signer %s", signer)
		}
		sigs = append(sigs, types.SignerSignature{Signer: signer.String(), Signature: sig[:]})
	}

	if len(signers) == 0 || signers[0].String() != unsigned.FeePayer {
		return nil, fmt.Errorf("fee payer is not the first signer")
	}

	if err := checkSolanaTransfer(tx, unsigned); err != nil {
		return nil, err
	}

	return &Result{
		TxID:       tx.Signatures[0].String(),
		Signatures: sigs,
	}, nil
}

// checkSolanaTransfer requires exactly one system transfer matching the built instruction.
func checkSolanaTransfer(tx *solana.Transaction, unsigned *types.UnsignedTransaction) error {
	if len(unsigned.Instructions) != 1 {
		return fmt.Errorf("expected one transfer instruction, got %d", len(unsigned.Instructions))
	}
	want := unsigned.Instructions[0]

	found := 0
	for _, inst := range tx.Message.Instructions {
		if int(inst.ProgramIDIndex) >= len(tx.Message.AccountKeys) {
			return fmt.Errorf("program index %d out of range", inst.ProgramIDIndex)
		}
		prog := tx.Message.AccountKeys[inst.ProgramIDIndex]
		if !prog.Equals(solana.SystemProgramID) {
			return fmt.Errorf("unexpected program %s", prog)
		}

		accountMetas := make([]*solana.AccountMeta, len(inst.Accounts))
		for i, accIdx := range inst.Accounts {
			if int(accIdx) >= len(tx.Message.AccountKeys) {
				return fmt.Errorf("account index %d out of range", accIdx)
			}
			pub := tx.Message.AccountKeys[accIdx]
			writable, err := tx.Message.IsWritable(pub)
			if err != nil {
				return fmt.Errorf("failed to resolve accounts: %w", err)
			}
			accountMetas[i] = &solana.AccountMeta{
				PublicKey:  pub,
				IsSigner:   tx.Message.IsSigner(pub),
				IsWritable: writable,
			}
		}

		sysInst, err := system.DecodeInstruction(accountMetas, inst.Data)
		if err != nil {
			return fmt.Errorf("failed to decode system instruction: %w", err)
		}
		transfer, ok := sysInst.Impl.(*system.Transfer)
		if !ok {
			return fmt.Errorf("unexpected system instruction")
		}

		if len(accountMetas) < 2 {
			return fmt.Errorf("transfer is missing accounts")
		}
		from := accountMetas[0].PublicKey
		to := accountMetas[1].PublicKey
		if from.String() != want.From || to.String() != want.To {
			return fmt.Errorf("transfer %s -> %s does not match %s -> %s", from, to, want.From, want.To)
		}
		if transfer.Lamports == nil || !want.Atomic.IsUint64() || *transfer.Lamports != want.Atomic.Uint64() {
			return fmt.Errorf("transfer amount does not match %s lamports", want.Atomic.String())
		}
		found++
	}

	if found != 1 {
		return fmt.Errorf("expected one transfer, found %d", found)
	}
	return nil
}

func verifyEVM(unsigned *types.UnsignedTransaction, payload []byte) (*Result, error) {
	cp := unsigned.Checkpoint.EVM
	if cp == nil || cp.ChainID == nil {
		return nil, fmt.Errorf("transaction has no EVM checkpoint")
	}

	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(payload); err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}

	signer := ethtypes.LatestSignerForChainID(cp.ChainID)
	if !bytes.Equal(signer.Hash(tx).Bytes(), unsigned.Message) {
		return nil, fmt.Errorf("signed message differs from the built transaction")
	}

	from, err := ethtypes.Sender(signer, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to recover signer: %w", err)
	}
	if from != common.HexToAddress(unsigned.FeePayer) {
		return nil, fmt.Errorf("signed by %s, expected %s", from.Hex(), unsigned.FeePayer)
	}

	sig, err := evmSignature(tx, cp.ChainID)
	if err != nil {
		return nil, err
	}
	recovered, err := utils.RecoverAddress(unsigned.Message, sig)
	if err != nil {
		return nil, fmt.Errorf("failed to recover signer: %w", err)
	}
	if recovered != from {
		return nil, fmt.Errorf("signature recovers to %s, expected %s", recovered.Hex(), from.Hex())
	}

	return &Result{
		TxID:       tx.Hash().Hex(),
		Signatures: []types.SignerSignature{{Signer: from.Hex(), Signature: sig}},
	}, nil
}

// evmSignature returns the [R || S || V] form of the transaction signature,
// with V reduced to the recovery id.
func evmSignature(tx *ethtypes.Transaction, chainID *big.Int) ([]byte, error) {
	v, r, s := tx.RawSignatureValues()
	if v == nil || r == nil || s == nil {
		return nil, fmt.Errorf("transaction is not signed")
	}

	recid := new(big.Int).Set(v)
	switch {
	case tx.Type() != ethtypes.LegacyTxType:
		// typed transactions carry the recovery id directly
	case tx.Protected():
		recid.Sub(recid, new(big.Int).Mul(chainID, big.NewInt(2)))
		recid.Sub(recid, big.NewInt(35))
	default:
		recid.Sub(recid, big.NewInt(27))
	}
	if !recid.IsUint64() || recid.Uint64() > 1 {
		return nil, fmt.Errorf("invalid signature recovery value %s", v)
	}

	sig := make([]byte, 0, crypto.SignatureLength)
	sig = append(sig, common.LeftPadBytes(r.Bytes(), 32)...)
	sig = append(sig, common.LeftPadBytes(s.Bytes(), 32)...)
	sig = append(sig, byte(recid.Uint64()))
	return sig, nil
}
