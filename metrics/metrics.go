package metrics

import "time"

// Event and step names recorded by the checkout.
const (
	EventAttemptStarted    = "attempt_started"
	EventAttemptRejected   = "attempt_rejected"
	EventPaymentSucceeded  = "payment_succeeded"
	EventPaymentFailed     = "payment_failed"
	EventPaymentCancelled  = "payment_cancelled"
	EventStatusQueryFailed = "status_query_failed"

	StepCreateSession = "create_session"
	StepBuild         = "build"
	StepSign          = "sign"
	StepBroadcast     = "broadcast"
	StepConfirm       = "confirm"
)

// Recorder receives counters and step latencies. Labels used: network, kind, step.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
