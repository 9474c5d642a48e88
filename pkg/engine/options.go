package engine

import "time"

// Logger is the logging surface the engine needs.
type Logger interface {
	Debug(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithParams replaces the default tunables.
func WithParams(p Params) Option {
	return func(e *Engine) {
		e.params = p
	}
}

// WithClock sets the time source used for decay and timing.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLogger sets the logger for compile diagnostics.
func WithLogger(l Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}
