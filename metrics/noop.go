package metrics

import "time"

var (
	_ Recorder = NoopRecorder{}
	_ Recorder = (*PrometheusRecorder)(nil)
)

// NoopRecorder drops everything; used when metrics are disabled.
type NoopRecorder struct{}

func (NoopRecorder) IncCounter(string, map[string]string)                    {}
func (NoopRecorder) ObserveLatency(string, time.Duration, map[string]string) {}

// ObserveSince records the time elapsed since start under step.
func ObserveSince(r Recorder, step string, start time.Time, labels map[string]string) {
	if r == nil {
		return
	}
	r.ObserveLatency(step, time.Since(start), labels)
}
