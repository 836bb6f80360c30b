package orchestrator

import "github.com/vitwit/x402-checkout/types"

// SuccessEvent is emitted once when an attempt confirms.
type SuccessEvent struct {
	SessionID string `json:"sessionId"`
	Signature string `json:"signature"`
}

// ErrorEvent is emitted once when an attempt fails.
type ErrorEvent struct {
	Kind      types.ErrorKind `json:"kind"`
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	SessionID string          `json:"sessionId,omitempty"`
	Signature string          `json:"signature,omitempty"`
}

func errorEvent(err *types.PaymentError) ErrorEvent {
	return ErrorEvent{
		Kind:      err.Kind,
		Code:      err.Code,
		Message:   err.Message,
		SessionID: err.SessionID,
		Signature: err.Signature,
	}
}

// EventHandler receives terminal outcomes. Handlers run on the goroutine
// that called Pay.
type EventHandler interface {
	OnSuccess(SuccessEvent)
	OnError(ErrorEvent)
}

// EventFuncs adapts plain functions to EventHandler. Nil fields are skipped.
type EventFuncs struct {
	Success func(SuccessEvent)
	Error   func(ErrorEvent)
}

func (f EventFuncs) OnSuccess(e SuccessEvent) {
	if f.Success != nil {
		f.Success(e)
	}
}

func (f EventFuncs) OnError(e ErrorEvent) {
	if f.Error != nil {
		f.Error(e)
	}
}

type noopHandler struct{}

func (noopHandler) OnSuccess(SuccessEvent) {}
func (noopHandler) OnError(ErrorEvent)     {}
