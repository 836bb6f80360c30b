package checkout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	binary "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/x402-checkout/clients"
	"github.com/vitwit/x402-checkout/logger"
	"github.com/vitwit/x402-checkout/orchestrator"
	"github.com/vitwit/x402-checkout/types"
	"github.com/vitwit/x402-checkout/wallet"
)

// chainStub is an in-memory Solana cluster that accepts any decodable
// transaction and confirms it on the next status query.
type chainStub struct {
	mu          sync.Mutex
	checkpoints int
	sent        []*solana.Transaction
	confirm     bool
}

var _ clients.Client = (*chainStub)(nil)

func (c *chainStub) Network() types.Network { return types.NetworkSolanaDevnet }

func (c *chainStub) LatestCheckpoint(context.Context, string) (*types.Checkpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkpoints++
	return &types.Checkpoint{
		Reference:       solana.Hash(solana.NewWallet().PublicKey()).String(),
		LastValidHeight: 1_000,
		FetchedAt:       time.Now(),
	}, nil
}

func (c *chainStub) Broadcast(_ context.Context, tx *types.SignedTransaction) (string, error) {
	decoded, err := solana.TransactionFromDecoder(binary.NewBinDecoder(tx.Payload))
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, decoded)
	return decoded.Signatures[0].String(), nil
}

func (c *chainStub) Status(context.Context, string) (*types.TxStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.confirm {
		return &types.TxStatus{State: types.TxConfirmed, Slot: 42}, nil
	}
	return &types.TxStatus{State: types.TxPending}, nil
}

func (c *chainStub) Close() {}

func paymentService(t *testing.T, hits *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(hits, 1)
		assert.Equal(t, "sk_live", r.Header.Get("X-Superlamp-KEY"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"sessionId": "sess_" + string(rune('0'+n))})
	}))
}

func TestCheckoutEndToEnd(t *testing.T) {
	var hits int32
	srv := paymentService(t, &hits)
	defer srv.Close()

	payer, err := wallet.NewRandomSolanaKeypair()
	require.NoError(t, err)
	recipient := solana.NewWallet().PublicKey()

	chain := &chainStub{confirm: true}
	var events []string
	c, err := New(types.Config{
		APIURL:       srv.URL,
		APIKey:       "sk_live",
		Network:      types.NetworkSolanaDevnet,
		PollInterval: time.Millisecond,
	}, payer,
		WithRPCClient(chain),
		WithLogger(logger.NoopLogger{}),
		WithEventHandler(orchestrator.EventFuncs{
			Success: func(e orchestrator.SuccessEvent) { events = append(events, "success:"+e.SessionID) },
			Error:   func(e orchestrator.ErrorEvent) { events = append(events, "error:"+e.Message) },
		}),
	)
	require.NoError(t, err)
	defer c.Close()

	req := types.NewPaymentRequest(recipient.String(),
		types.LineItem{ID: "1", Name: "Pro Plan", UnitPrice: decimal.RequireFromString("0.5")},
		types.LineItem{ID: "2", Name: "Premium Support", UnitPrice: decimal.RequireFromString("0.2")},
	)

	res, err := c.Pay(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, types.OutcomeSucceeded, res.Outcome, "error: %v", res.Err)
	assert.Equal(t, "sess_1", res.SessionID)
	assert.Equal(t, []string{"success:sess_1"}, events)
	assert.Equal(t, types.PhaseSucceeded, c.Phase())

	require.Len(t, chain.sent, 1)
	sent := chain.sent[0]
	assert.Equal(t, res.Signature, sent.Signatures[0].String())
	assert.Equal(t, payer.PublicAddress(), sent.Message.AccountKeys[0].String())

	// the transfer carries subtotal plus the default fee
	inst := sent.Message.Instructions[0]
	metas := make([]*solana.AccountMeta, len(inst.Accounts))
	for i, idx := range inst.Accounts {
		metas[i] = &solana.AccountMeta{PublicKey: sent.Message.AccountKeys[idx]}
	}
	decoded, err := system.DecodeInstruction(metas, inst.Data)
	require.NoError(t, err)
	transfer, ok := decoded.Impl.(*system.Transfer)
	require.True(t, ok)
	assert.Equal(t, uint64(701_000_000), *transfer.Lamports)
	assert.Equal(t, recipient, metas[1].PublicKey)

	// paying again opens a new session and builds a new transaction
	res2, err := c.Pay(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "sess_2", res2.SessionID)
	assert.NotEqual(t, res.Signature, res2.Signature)
	assert.Equal(t, 2, chain.checkpoints)
}

func TestCheckoutMissingAPIURL(t *testing.T) {
	payer, err := wallet.NewRandomSolanaKeypair()
	require.NoError(t, err)

	c, err := New(types.Config{APIKey: "sk_live", Network: types.NetworkSolanaDevnet}, payer,
		WithRPCClient(&chainStub{}), WithLogger(logger.NoopLogger{}))
	require.NoError(t, err)

	res, err := c.Pay(context.Background(), types.NewPaymentRequest(solana.NewWallet().PublicKey().String(),
		types.LineItem{ID: "p1", Name: "Pro Plan", UnitPrice: decimal.RequireFromString("0.5")}))
	assert.Nil(t, res)
	assert.Equal(t, types.ErrMissingConfig, types.CodeOf(err))
	assert.Equal(t, types.PhaseIdle, c.Phase())
}

func TestCheckoutUserRejects(t *testing.T) {
	var hits int32
	srv := paymentService(t, &hits)
	defer srv.Close()

	payer, err := wallet.NewRandomSolanaKeypair(wallet.WithApproval(
		func(context.Context, *types.UnsignedTransaction) error { return wallet.ErrUserRejected }))
	require.NoError(t, err)
	chain := &chainStub{confirm: true}

	c, err := New(types.Config{APIURL: srv.URL, APIKey: "sk_live", Network: types.NetworkSolanaDevnet}, payer,
		WithRPCClient(chain), WithLogger(logger.NoopLogger{}))
	require.NoError(t, err)

	res, err := c.Pay(context.Background(), types.NewPaymentRequest(solana.NewWallet().PublicKey().String(),
		types.LineItem{ID: "p1", Name: "Pro Plan", UnitPrice: decimal.RequireFromString("0.5")}))
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeFailed, res.Outcome)
	assert.Equal(t, types.ErrUserRejected, res.Err.Code)
	assert.Empty(t, chain.sent)
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(types.Config{Network: "cosmoshub-4"}, nil, WithLogger(logger.NoopLogger{}))
	assert.True(t, types.IsKind(err, types.KindPrecondition))

	_, err = New(types.Config{Network: types.NetworkBase}, nil,
		WithRPCClient(&chainStub{}), WithLogger(logger.NoopLogger{}))
	assert.Equal(t, types.ErrUnsupportedNetwork, types.CodeOf(err))

	c, err := New(types.Config{Network: types.NetworkSolanaDevnet}, nil, WithLogger(logger.NoopLogger{}))
	require.NoError(t, err)
	assert.Equal(t, "https://api.devnet.solana.com", c.Config().RPCURL)
	assert.Equal(t, types.DefaultConfirmationTimeout, c.Config().ConfirmationTimeout)
}
