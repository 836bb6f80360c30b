package clients

import (
	"context"
	"fmt"
	"time"

	binary "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	x402types "github.com/vitwit/x402-checkout/types"
)

// SolanaClient talks to a Solana JSON-RPC endpoint
type SolanaClient struct {
	network    x402types.Network
	rpcURL     string
	client     *rpc.Client
	commitment rpc.CommitmentType
}

var _ Client = (*SolanaClient)(nil)

// NewSolanaClient creates a Solana client; commitment is the level a
// transaction must reach to count as confirmed.
func NewSolanaClient(network x402types.Network, rpcURL string, commitment string) (*SolanaClient, error) {
	if !network.IsSolana() {
		return nil, fmt.Errorf("network %s is not a Solana network", network)
	}
	if rpcURL == "" {
		rpcURL = network.DefaultRPCURL()
	}

	return &SolanaClient{
		network:    network,
		rpcURL:     rpcURL,
		client:     rpc.New(rpcURL),
		commitment: parseCommitment(commitment),
	}, nil
}

// LatestCheckpoint fetches a recent blockhash and its last valid block height.
func (s *SolanaClient) LatestCheckpoint(ctx context.Context, _ string) (*x402types.Checkpoint, error) {
	commitment := s.commitment
	if commitment == rpc.CommitmentProcessed {
		// processed blockhashes may belong to a skipped slot
		commitment = rpc.CommitmentConfirmed
	}

	out, err := s.client.GetLatestBlockhash(ctx, commitment)
	if err != nil {
		return nil, fmt.Errorf("getLatestBlockhash: %w", err)
	}
	if out == nil || out.Value == nil {
		return nil, fmt.Errorf("getLatestBlockhash: empty response")
	}

	return &x402types.Checkpoint{
		Reference:       out.Value.Blockhash.String(),
		LastValidHeight: out.Value.LastValidBlockHeight,
		FetchedAt:       time.Now(),
	}, nil
}

// Broadcast sends the signed transaction with preflight enabled.
func (s *SolanaClient) Broadcast(ctx context.Context, signed *x402types.SignedTransaction) (string, error) {
	tx, err := solana.TransactionFromDecoder(binary.NewBinDecoder(signed.Payload))
	if err != nil {
		return "", fmt.Errorf("tx decode failed: %w", err)
	}

	sig, err := s.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: s.commitment,
	})
	if err != nil {
		return "", fmt.Errorf("broadcast failed: %w", err)
	}

	return sig.String(), nil
}

// Status reports the signature status, or TxNotFound together with the
// current block height when the cluster has not seen the transaction.
func (s *SolanaClient) Status(ctx context.Context, signature string) (*x402types.TxStatus, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature %q: %w", signature, err)
	}

	out, err := s.client.GetSignatureStatuses(ctx, false, sig)
	if err != nil {
		return nil, fmt.Errorf("getSignatureStatuses: %w", err)
	}

	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		height, err := s.client.GetBlockHeight(ctx, rpc.CommitmentConfirmed)
		if err != nil {
			return nil, fmt.Errorf("getBlockHeight: %w", err)
		}
		return &x402types.TxStatus{State: x402types.TxNotFound, BlockHeight: height}, nil
	}

	st := out.Value[0]
	if st.Err != nil {
		return &x402types.TxStatus{
			State:  x402types.TxFailed,
			Slot:   st.Slot,
			Reason: fmt.Sprintf("%v", st.Err),
		}, nil
	}

	if commitmentReached(st.ConfirmationStatus, s.commitment) {
		return &x402types.TxStatus{State: x402types.TxConfirmed, Slot: st.Slot}, nil
	}

	return &x402types.TxStatus{State: x402types.TxPending, Slot: st.Slot}, nil
}

func (s *SolanaClient) Network() x402types.Network { return s.network }

func (s *SolanaClient) Close() {}

func parseCommitment(c string) rpc.CommitmentType {
	switch c {
	case "processed":
		return rpc.CommitmentProcessed
	case "finalized":
		return rpc.CommitmentFinalized
	default:
		return rpc.CommitmentConfirmed
	}
}

func commitmentRank(c string) int {
	switch c {
	case "processed":
		return 1
	case "confirmed":
		return 2
	case "finalized":
		return 3
	default:
		return 0
	}
}

// commitmentReached reports whether a status at got satisfies want.
func commitmentReached(got rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	g := commitmentRank(string(got))
	return g > 0 && g >= commitmentRank(string(want))
}
