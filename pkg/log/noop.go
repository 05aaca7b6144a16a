package log

// NoopLogger discards everything. It is the fallback the engine components
// use when the host application configures no logger, so logging call sites
// never need a nil check.
type NoopLogger struct{}

// NewNoopLogger returns a logger that drops all messages.
func NewNoopLogger() *NoopLogger { return &NoopLogger{} }

func (NoopLogger) Debug(msg string, fields ...Field) {}
func (NoopLogger) Info(msg string, fields ...Field)  {}
func (NoopLogger) Warn(msg string, fields ...Field)  {}
func (NoopLogger) Error(msg string, fields ...Field) {}
