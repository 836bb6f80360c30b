package logger

// Logger is the structured logger used across the checkout. Fields are
// key/value pairs attached to the entry.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

type NoopLogger struct{}

func (NoopLogger) Debug(string, map[string]any) {}
func (NoopLogger) Info(string, map[string]any)  {}
func (NoopLogger) Warn(string, map[string]any)  {}
func (NoopLogger) Error(string, map[string]any) {}

// With returns a Logger that adds base to the fields of every entry.
// Fields passed per call win over base fields with the same key.
func With(l Logger, base map[string]any) Logger {
	if l == nil {
		l = NoopLogger{}
	}
	if len(base) == 0 {
		return l
	}
	if w, ok := l.(*withLogger); ok {
		return &withLogger{next: w.next, base: merge(w.base, base)}
	}
	return &withLogger{next: l, base: base}
}

type withLogger struct {
	next Logger
	base map[string]any
}

func (w *withLogger) Debug(msg string, fields map[string]any) { w.next.Debug(msg, merge(w.base, fields)) }
func (w *withLogger) Info(msg string, fields map[string]any)  { w.next.Info(msg, merge(w.base, fields)) }
func (w *withLogger) Warn(msg string, fields map[string]any)  { w.next.Warn(msg, merge(w.base, fields)) }
func (w *withLogger) Error(msg string, fields map[string]any) { w.next.Error(msg, merge(w.base, fields)) }

func merge(base, fields map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(fields))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}
