package types

import (
	"fmt"
	"math/big"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// DefaultNetworkFee is the fee added on top of the item subtotal when the
// caller does not provide one.
var DefaultNetworkFee = decimal.RequireFromString("0.001")

var validate = validator.New()

// LineItem is a single priced product in a payment request.
type LineItem struct {
	ID          string          `json:"id" validate:"required"`
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description,omitempty"`
	UnitPrice   decimal.Decimal `json:"price"`
}

// PaymentRequest is what the user is asked to pay for.
type PaymentRequest struct {
	Items            []LineItem      `json:"items" validate:"required,min=1,unique=ID,dive"`
	NetworkFee       decimal.Decimal `json:"networkFee"`
	RecipientAddress string          `json:"recipientAddress" validate:"required"`
}

// NewPaymentRequest creates a request using DefaultNetworkFee.
func NewPaymentRequest(recipient string, items ...LineItem) *PaymentRequest {
	return &PaymentRequest{
		Items:            items,
		NetworkFee:       DefaultNetworkFee,
		RecipientAddress: recipient,
	}
}

// Subtotal is the sum of the item prices.
func (r *PaymentRequest) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range r.Items {
		sum = sum.Add(item.UnitPrice)
	}
	return sum
}

// TotalAmount is always derived from the items and the fee.
func (r *PaymentRequest) TotalAmount() decimal.Decimal {
	return r.Subtotal().Add(r.NetworkFee)
}

// Validate checks struct tags and the non-negativity of prices and fee.
func (r *PaymentRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid payment request: %w", err)
	}

	for i, item := range r.Items {
		if item.UnitPrice.IsNegative() {
			return fmt.Errorf("item %d (%s): price cannot be negative", i, item.ID)
		}
	}

	if r.NetworkFee.IsNegative() {
		return fmt.Errorf("network fee cannot be negative")
	}

	return nil
}

// Clone returns a deep copy so that a session never shares its items with the caller.
func (r *PaymentRequest) Clone() PaymentRequest {
	items := make([]LineItem, len(r.Items))
	copy(items, r.Items)
	return PaymentRequest{
		Items:            items,
		NetworkFee:       r.NetworkFee,
		RecipientAddress: r.RecipientAddress,
	}
}

// PaymentSession is the server-issued record of one payment attempt.
type PaymentSession struct {
	SessionID string         `json:"sessionId"`
	Request   PaymentRequest `json:"request"`
	CreatedAt time.Time      `json:"createdAt"`
}

// TransferInstruction moves native currency between two addresses.
type TransferInstruction struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
	// Atomic is the amount in the smallest unit of the network (lamports, wei).
	Atomic *big.Int `json:"atomic"`
}

// Checkpoint is the recent chain reference a transaction is bound to.
type Checkpoint struct {
	// Reference is the recent blockhash.
	Reference string `json:"reference"`

	// LastValidHeight is the block height after which a transaction citing
	// Reference can no longer land. Zero when the network has no such bound.
	LastValidHeight uint64 `json:"lastValidHeight,omitempty"`

	// EVM holds nonce, gas price and chain id on EVM networks.
	EVM *EVMCheckpoint `json:"evm,omitempty"`

	FetchedAt time.Time `json:"fetchedAt"`
}

// UnsignedTransaction is built fresh for every attempt and never reused.
type UnsignedTransaction struct {
	Network      Network               `json:"network"`
	Instructions []TransferInstruction `json:"instructions"`
	FeePayer     string                `json:"feePayer"`
	Checkpoint   Checkpoint            `json:"checkpoint"`

	// Message is the exact byte string the fee payer has to sign.
	Message []byte `json:"message"`

	// Raw is the wire encoding with empty signature slots, for wallets that
	// sign whole transactions.
	Raw []byte `json:"raw"`
}

// SignerSignature pairs a signer address with its signature bytes.
type SignerSignature struct {
	Signer    string `json:"signer"`
	Signature []byte `json:"signature"`
}

// SignedTransaction is the wallet output; treated as write-once.
type SignedTransaction struct {
	Network    Network           `json:"network"`
	Payload    []byte            `json:"payload"`
	Signatures []SignerSignature `json:"signatures"`
}

// FinalStatus is the terminal on-chain status of a submitted transaction.
type FinalStatus string

const (
	StatusConfirmed FinalStatus = "confirmed"
	StatusFailed    FinalStatus = "failed"
	StatusDropped   FinalStatus = "dropped"
)

// SubmissionResult is what the submission service reports for a transaction.
type SubmissionResult struct {
	Signature   string      `json:"signature"`
	FinalStatus FinalStatus `json:"finalStatus"`
	Slot        uint64      `json:"slot,omitempty"`
	Reason      string      `json:"reason,omitempty"`
}

// TxState is a point-in-time status of a broadcast transaction.
type TxState int

const (
	TxPending TxState = iota
	TxConfirmed
	TxFailed
	TxNotFound
)

// TxStatus is the answer of a single status query.
type TxStatus struct {
	State  TxState
	Slot   uint64
	Reason string
	// BlockHeight is the current chain height when the network reports one.
	BlockHeight uint64
}

// Phase is the orchestrator state-machine phase.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseCreatingSession   Phase = "creating_session"
	PhaseBuilding          Phase = "building"
	PhaseAwaitingSignature Phase = "awaiting_signature"
	PhaseSubmitting        Phase = "submitting"
	PhaseConfirming        Phase = "confirming"
	PhaseSucceeded         Phase = "succeeded"
	PhaseFailed            Phase = "failed"
)

// AcceptsNewAttempt reports whether a new payment attempt may start from p.
func (p Phase) AcceptsNewAttempt() bool {
	return p == PhaseIdle || p == PhaseSucceeded || p == PhaseFailed
}

// AttemptState is the single mutable record of the current attempt.
type AttemptState struct {
	AttemptID   string               `json:"attemptId,omitempty"`
	Phase       Phase                `json:"phase"`
	Session     *PaymentSession      `json:"session,omitempty"`
	Transaction *UnsignedTransaction `json:"transaction,omitempty"`
	Signed      *SignedTransaction   `json:"signed,omitempty"`
	Signature   string               `json:"signature,omitempty"`
	Err         *PaymentError        `json:"error,omitempty"`
}

// Outcome is how a Pay call ended.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// PaymentResult is returned by every Pay call that started an attempt.
type PaymentResult struct {
	Outcome   Outcome       `json:"outcome"`
	SessionID string        `json:"sessionId,omitempty"`
	Signature string        `json:"signature,omitempty"`
	Err       *PaymentError `json:"error,omitempty"`
}

// FormatAmount renders an amount the way the checkout shows it.
func FormatAmount(d decimal.Decimal, n Network) string {
	return d.StringFixed(3) + " " + n.NativeSymbol()
}
