// Package orchestrator runs the payment state machine: create a session,
// build a transfer, get it signed, submit it and wait for confirmation.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vitwit/x402-checkout/logger"
	"github.com/vitwit/x402-checkout/metrics"
	"github.com/vitwit/x402-checkout/signing"
	"github.com/vitwit/x402-checkout/types"
	"github.com/vitwit/x402-checkout/utils"
	"github.com/vitwit/x402-checkout/wallet"
)

// SessionCreator is satisfied by *session.Client.
type SessionCreator interface {
	Create(ctx context.Context, req *types.PaymentRequest) (*types.PaymentSession, error)
}

// TransactionBuilder is satisfied by *builder.Builder.
type TransactionBuilder interface {
	Build(ctx context.Context, session *types.PaymentSession, sender string) (*types.UnsignedTransaction, error)
}

// Signer is satisfied by *signing.Gateway.
type Signer interface {
	Sign(ctx context.Context, w wallet.Wallet, tx *types.UnsignedTransaction) (*signing.Signed, error)
}

// Submitter is satisfied by *settlement.Service.
type Submitter interface {
	Broadcast(ctx context.Context, tx *types.SignedTransaction) (string, error)
	Confirm(ctx context.Context, network types.Network, signature string, cp types.Checkpoint) (*types.SubmissionResult, error)
}

// Steps are the four collaborators the orchestrator sequences.
type Steps struct {
	Sessions  SessionCreator
	Builder   TransactionBuilder
	Signer    Signer
	Submitter Submitter
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.metrics = r
		}
	}
}

func WithEventHandler(h EventHandler) Option {
	return func(o *Orchestrator) {
		if h != nil {
			o.events = h
		}
	}
}

// Orchestrator owns the single in-flight payment attempt. Pay and Cancel are
// safe to call from several goroutines.
type Orchestrator struct {
	cfg    types.Config
	wallet wallet.Wallet
	steps  Steps

	logger  logger.Logger
	metrics metrics.Recorder
	events  EventHandler
	newID   func() string

	mu         sync.Mutex
	state      types.AttemptState
	cancelSign context.CancelFunc
}

func New(cfg types.Config, w wallet.Wallet, steps Steps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg.WithDefaults(),
		wallet:  w,
		steps:   steps,
		logger:  logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
		events:  noopHandler{},
		newID:   uuid.NewString,
		state:   types.AttemptState{Phase: types.PhaseIdle},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Phase returns the current phase.
func (o *Orchestrator) Phase() types.Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Phase
}

// Snapshot returns a copy of the current attempt state.
func (o *Orchestrator) Snapshot() types.AttemptState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// attempt carries what one Pay call needs after the state lock is released.
type attempt struct {
	id      string
	sender  string
	log     logger.Logger
	labels  map[string]string
	session *types.PaymentSession
	tx      *types.UnsignedTransaction
	sig     string
}

// Pay runs one payment attempt to a terminal state and blocks until then.
// The error is non-nil only when the attempt was not started: a precondition
// failed or another attempt is in progress. Every started attempt returns a
// result and, unless cancelled, emits exactly one event.
func (o *Orchestrator) Pay(ctx context.Context, req *types.PaymentRequest) (*types.PaymentResult, error) {
	a, err := o.start(req)
	if err != nil {
		o.metrics.IncCounter(metrics.EventAttemptRejected, map[string]string{
			"network": o.cfg.Network.String(),
			"kind":    string(kindOf(err)),
		})
		o.logger.Warn("payment_rejected", map[string]any{"error": err})
		return nil, err
	}

	o.metrics.IncCounter(metrics.EventAttemptStarted, a.labels)
	a.log.Info("payment_started", map[string]any{
		"items": len(req.Items),
		"total": types.FormatAmount(req.TotalAmount(), o.cfg.Network),
	})

	// CreatingSession
	start := time.Now()
	session, err := o.steps.Sessions.Create(ctx, req)
	metrics.ObserveSince(o.metrics, metrics.StepCreateSession, start, a.labels)
	if err != nil {
		return o.fail(a, types.KindSession, types.ErrUnreachable, err)
	}
	a.session = session
	a.log = logger.With(a.log, map[string]any{"session_id": session.SessionID})
	if !o.advance(a, types.PhaseBuilding, func(s *types.AttemptState) { s.Session = session }) {
		return o.cancelled(a), nil
	}

	// Building
	start = time.Now()
	tx, err := o.steps.Builder.Build(ctx, session, a.sender)
	metrics.ObserveSince(o.metrics, metrics.StepBuild, start, a.labels)
	if err != nil {
		return o.fail(a, types.KindBuild, types.ErrCheckpointUnavailable, err)
	}
	a.tx = tx

	// AwaitingSignature
	signCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !o.advance(a, types.PhaseAwaitingSignature, func(s *types.AttemptState) {
		s.Transaction = tx
		o.cancelSign = cancel
	}) {
		return o.cancelled(a), nil
	}

	start = time.Now()
	signed, err := o.steps.Signer.Sign(signCtx, o.wallet, tx)
	metrics.ObserveSince(o.metrics, metrics.StepSign, start, a.labels)

	o.mu.Lock()
	o.cancelSign = nil
	if o.state.AttemptID != a.id {
		// Cancel already moved the state machine back to Idle.
		o.mu.Unlock()
		return o.cancelled(a), nil
	}
	if err != nil && ctx.Err() != nil {
		if _, ok := types.AsPaymentError(err); !ok {
			o.state = types.AttemptState{Phase: types.PhaseIdle}
			o.mu.Unlock()
			return o.cancelled(a), nil
		}
	}
	o.mu.Unlock()

	if err != nil {
		return o.fail(a, types.KindSigning, types.ErrUserRejected, err)
	}

	// Submitting. From here on the transaction may land, so the caller can no
	// longer cancel.
	if !o.advance(a, types.PhaseSubmitting, func(s *types.AttemptState) {
		s.Signed = signed.Transaction
		s.Signature = signed.TxID
	}) {
		return o.cancelled(a), nil
	}
	a.sig = signed.TxID
	subCtx := context.WithoutCancel(ctx)

	sig, err := o.steps.Submitter.Broadcast(subCtx, signed.Transaction)
	if err != nil {
		return o.fail(a, types.KindSubmission, types.ErrBroadcastRejected, err)
	}
	a.sig = sig
	a.log = logger.With(a.log, map[string]any{"signature": sig})

	// Confirming
	o.advance(a, types.PhaseConfirming, func(s *types.AttemptState) { s.Signature = sig })

	res, err := o.steps.Submitter.Confirm(subCtx, tx.Network, sig, tx.Checkpoint)
	if err != nil {
		return o.fail(a, types.KindSubmission, types.ErrConfirmationTimeout, err)
	}
	if res != nil && res.Signature != "" {
		a.sig = res.Signature
	}

	return o.succeed(a), nil
}

// Cancel aborts the attempt while it waits for the wallet. It returns
// NOT_CANCELLABLE in every other phase.
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.Phase != types.PhaseAwaitingSignature {
		return types.PreconditionError(types.ErrNotCancellable,
			"payment can only be cancelled while waiting for the wallet signature, current phase: "+string(o.state.Phase))
	}

	if o.cancelSign != nil {
		o.cancelSign()
		o.cancelSign = nil
	}
	o.logger.Info("payment_cancel_requested", map[string]any{"attempt_id": o.state.AttemptID})
	o.state = types.AttemptState{Phase: types.PhaseIdle}
	return nil
}

// start checks preconditions and claims the state machine for a new attempt.
func (o *Orchestrator) start(req *types.PaymentRequest) (*attempt, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.state.Phase.AcceptsNewAttempt() {
		return nil, types.ErrAlreadyInProgress
	}

	sender, err := o.checkPreconditions(req)
	if err != nil {
		return nil, err
	}

	id := o.newID()
	o.state = types.AttemptState{
		AttemptID: id,
		Phase:     types.PhaseCreatingSession,
	}
	o.cancelSign = nil

	return &attempt{
		id:     id,
		sender: sender,
		labels: map[string]string{"network": o.cfg.Network.String()},
		log: logger.With(o.logger, map[string]any{
			"attempt_id": id,
			"network":    o.cfg.Network.String(),
		}),
	}, nil
}

func (o *Orchestrator) checkPreconditions(req *types.PaymentRequest) (string, error) {
	if o.wallet == nil || !o.wallet.IsConnected() {
		return "", types.PreconditionError(types.ErrWalletUnavailable, "wallet is not connected")
	}
	sender := o.wallet.PublicAddress()
	if sender == "" {
		return "", types.PreconditionError(types.ErrWalletUnavailable, "wallet has no public address")
	}
	if err := utils.ValidateAddress(o.cfg.Network, sender); err != nil {
		return "", types.PreconditionError(types.ErrWalletUnavailable,
			"wallet address is not valid on "+o.cfg.Network.String()+": "+err.Error())
	}

	if o.cfg.APIURL == "" {
		return "", types.PreconditionError(types.ErrMissingConfig, "payment service URL is not configured")
	}
	if o.cfg.APIKey == "" {
		return "", types.PreconditionError(types.ErrMissingConfig, "payment service API key is not configured")
	}

	if req == nil {
		return "", types.PreconditionError(types.ErrInvalidRequest, "payment request is required")
	}
	if err := req.Validate(); err != nil {
		perr := types.PreconditionError(types.ErrInvalidRequest, err.Error())
		perr.Cause = err
		return "", perr
	}
	return sender, nil
}

// advance moves the attempt to phase unless it was cancelled meanwhile.
func (o *Orchestrator) advance(a *attempt, phase types.Phase, update func(*types.AttemptState)) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.AttemptID != a.id {
		return false
	}
	from := o.state.Phase
	o.state.Phase = phase
	if update != nil {
		update(&o.state)
	}
	a.log.Debug("phase_changed", map[string]any{"from": string(from), "phase": string(phase)})
	return true
}

// fail records err as the attempt's terminal error and emits OnError. Errors
// that are not PaymentErrors are normalised into kind/code.
func (o *Orchestrator) fail(a *attempt, kind types.ErrorKind, code string, err error) (*types.PaymentResult, error) {
	perr, ok := types.AsPaymentError(err)
	if !ok {
		perr = types.NewError(kind, code, err.Error(), err)
	}
	if perr.SessionID == "" && a.session != nil {
		perr.SessionID = a.session.SessionID
	}
	if perr.Signature == "" {
		perr.Signature = a.sig
	}

	if !o.finish(a, types.PhaseFailed, func(s *types.AttemptState) { s.Err = perr }) {
		return o.cancelled(a), nil
	}

	labels := map[string]string{"network": a.labels["network"], "kind": string(perr.Kind)}
	o.metrics.IncCounter(metrics.EventPaymentFailed, labels)
	a.log.Error("payment_failed", map[string]any{
		"kind":  string(perr.Kind),
		"code":  perr.Code,
		"error": perr.Message,
	})
	o.events.OnError(errorEvent(perr))

	return &types.PaymentResult{
		Outcome:   types.OutcomeFailed,
		SessionID: perr.SessionID,
		Signature: perr.Signature,
		Err:       perr,
	}, nil
}

func (o *Orchestrator) succeed(a *attempt) *types.PaymentResult {
	o.finish(a, types.PhaseSucceeded, func(s *types.AttemptState) { s.Signature = a.sig })

	o.metrics.IncCounter(metrics.EventPaymentSucceeded, a.labels)
	a.log.Info("payment_succeeded", nil)
	o.events.OnSuccess(SuccessEvent{SessionID: a.session.SessionID, Signature: a.sig})

	return &types.PaymentResult{
		Outcome:   types.OutcomeSucceeded,
		SessionID: a.session.SessionID,
		Signature: a.sig,
	}
}

func (o *Orchestrator) finish(a *attempt, phase types.Phase, update func(*types.AttemptState)) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.AttemptID != a.id {
		return false
	}
	o.state.Phase = phase
	update(&o.state)
	return true
}

func (o *Orchestrator) cancelled(a *attempt) *types.PaymentResult {
	o.metrics.IncCounter(metrics.EventPaymentCancelled, a.labels)
	a.log.Info("payment_cancelled", nil)

	res := &types.PaymentResult{Outcome: types.OutcomeCancelled}
	if a.session != nil {
		res.SessionID = a.session.SessionID
	}
	return res
}

func kindOf(err error) types.ErrorKind {
	if pe, ok := types.AsPaymentError(err); ok {
		return pe.Kind
	}
	return ""
}
