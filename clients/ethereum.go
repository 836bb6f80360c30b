package clients

import (
	"context"
	"errors"
	"fmt"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/vitwit/x402-checkout/types"
)

var _ Client = (*EVMClient)(nil)

// EVMClient talks to an EVM JSON-RPC endpoint
type EVMClient struct {
	rpcURL  string
	network types.Network
	client  *ethclient.Client
}

func NewEVMClient(network types.Network, rpcURL string) (*EVMClient, error) {
	if !network.IsEVM() {
		return nil, fmt.Errorf("network %s is not an EVM network", network)
	}
	if rpcURL == "" {
		rpcURL = network.DefaultRPCURL()
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum RPC: %w", err)
	}

	return &EVMClient{
		network: network,
		rpcURL:  rpcURL,
		client:  client,
	}, nil
}

// LatestCheckpoint returns the head block hash together with the sender's
// pending nonce, the suggested gas price and the chain id.
func (e *EVMClient) LatestCheckpoint(ctx context.Context, sender string) (*types.Checkpoint, error) {
	if !common.IsHexAddress(sender) {
		return nil, fmt.Errorf("invalid sender address %q", sender)
	}

	head, err := e.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch head header: %w", err)
	}

	chainID, err := e.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chain id: %w", err)
	}

	nonce, err := e.client.PendingNonceAt(ctx, common.HexToAddress(sender))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch nonce: %w", err)
	}

	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch gas price: %w", err)
	}

	return &types.Checkpoint{
		Reference: head.Hash().Hex(),
		EVM: &types.EVMCheckpoint{
			Nonce:    nonce,
			GasPrice: gasPrice,
			ChainID:  chainID,
		},
		FetchedAt: time.Now(),
	}, nil
}

// Broadcast sends the RLP encoded signed transaction.
func (e *EVMClient) Broadcast(ctx context.Context, signed *types.SignedTransaction) (string, error) {
	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(signed.Payload); err != nil {
		return "", fmt.Errorf("tx decode failed: %w", err)
	}

	if err := e.client.SendTransaction(ctx, tx); err != nil {
		return "", fmt.Errorf("broadcast failed: %w", err)
	}

	return tx.Hash().Hex(), nil
}

// Status maps the receipt of a transaction hash to a TxStatus.
func (e *EVMClient) Status(ctx context.Context, signature string) (*types.TxStatus, error) {
	hash := common.HexToHash(signature)

	receipt, err := e.client.TransactionReceipt(ctx, hash)
	if err != nil {
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to fetch receipt: %w", err)
		}

		_, pending, err := e.client.TransactionByHash(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			return &types.TxStatus{State: types.TxNotFound}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to fetch transaction: %w", err)
		}
		if pending {
			return &types.TxStatus{State: types.TxPending}, nil
		}
		// mined but receipt not indexed yet
		return &types.TxStatus{State: types.TxPending}, nil
	}

	status := &types.TxStatus{State: types.TxConfirmed}
	if receipt.BlockNumber != nil {
		status.Slot = receipt.BlockNumber.Uint64()
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		status.State = types.TxFailed
		status.Reason = ReasonExecutionReverted
	}
	return status, nil
}

// Network implements Client.
func (e *EVMClient) Network() types.Network {
	return e.network
}

// Close implements Client.
func (e *EVMClient) Close() {
	e.client.Close()
}
