package types

import (
	"errors"
	"fmt"
)

// ErrorKind groups errors by the step that produced them.
type ErrorKind string

const (
	KindPrecondition      ErrorKind = "precondition"
	KindAlreadyInProgress ErrorKind = "already_in_progress"
	KindSession           ErrorKind = "session"
	KindBuild             ErrorKind = "build"
	KindSigning           ErrorKind = "signing"
	KindSubmission        ErrorKind = "submission"
)

// Error codes
const (
	// precondition
	ErrMissingConfig      = "MISSING_CONFIG"
	ErrWalletUnavailable  = "WALLET_UNAVAILABLE"
	ErrInvalidRequest     = "INVALID_REQUEST"
	ErrUnsupportedNetwork = "UNSUPPORTED_NETWORK"
	ErrNotCancellable     = "NOT_CANCELLABLE"
	ErrAttemptInProgress  = "ATTEMPT_IN_PROGRESS"

	// session
	ErrUnauthorized   = "UNAUTHORIZED"
	ErrUnreachable    = "UNREACHABLE"
	ErrSessionInvalid = "INVALID_SESSION_REQUEST"
	ErrServerError    = "SERVER_ERROR"

	// build
	ErrInvalidRecipient      = "INVALID_RECIPIENT"
	ErrInvalidSender         = "INVALID_SENDER"
	ErrInvalidAmount         = "INVALID_AMOUNT"
	ErrCheckpointUnavailable = "CHECKPOINT_UNAVAILABLE"

	// signing
	ErrWalletNotConnected = "WALLET_NOT_CONNECTED"
	ErrUserRejected       = "USER_REJECTED"
	ErrWalletTimeout      = "WALLET_TIMEOUT"
	ErrMalformedSignature = "MALFORMED_SIGNATURE"

	// submission
	ErrBroadcastRejected    = "BROADCAST_REJECTED"
	ErrConfirmationTimeout  = "CONFIRMATION_TIMEOUT"
	ErrChainExecutionFailed = "CHAIN_EXECUTION_FAILED"
)

// PaymentError is the single error type surfaced by every step.
type PaymentError struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`

	SessionID string `json:"sessionId,omitempty"`
	Signature string `json:"signature,omitempty"`

	// HTTPStatus and Body are set for payment-service server errors.
	HTTPStatus int    `json:"httpStatus,omitempty"`
	Body       string `json:"body,omitempty"`

	Cause error `json:"-"`
}

func (e *PaymentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s/%s: %s (caused by: %v)", e.Kind, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s/%s: %s", e.Kind, e.Code, e.Message)
}

func (e *PaymentError) Unwrap() error {
	return e.Cause
}

// Is matches another *PaymentError by kind and code so sentinels work with errors.Is.
func (e *PaymentError) Is(target error) bool {
	t, ok := target.(*PaymentError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

// NewError creates a new PaymentError.
func NewError(kind ErrorKind, code, message string, cause error) *PaymentError {
	return &PaymentError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func PreconditionError(code, message string) *PaymentError {
	return NewError(KindPrecondition, code, message, nil)
}

func SessionError(code, message string, cause error) *PaymentError {
	return NewError(KindSession, code, message, cause)
}

func BuildError(code, message string, cause error) *PaymentError {
	return NewError(KindBuild, code, message, cause)
}

func SigningError(code, message string, cause error) *PaymentError {
	return NewError(KindSigning, code, message, cause)
}

func SubmissionError(code, message string, cause error) *PaymentError {
	return NewError(KindSubmission, code, message, cause)
}

// ErrAlreadyInProgress is returned by Pay while an attempt is running.
var ErrAlreadyInProgress = &PaymentError{
	Kind:    KindAlreadyInProgress,
	Code:    ErrAttemptInProgress,
	Message: "a payment attempt is already in progress",
}

// AsPaymentError extracts a *PaymentError from err.
func AsPaymentError(err error) (*PaymentError, bool) {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsKind checks if err is a PaymentError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	pe, ok := AsPaymentError(err)
	return ok && pe.Kind == kind
}

// CodeOf extracts the error code from a PaymentError.
func CodeOf(err error) string {
	if pe, ok := AsPaymentError(err); ok {
		return pe.Code
	}
	return ""
}
