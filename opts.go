package nest

import "go.uber.org/zap"

// Option configures a Layer or a Scope.
type Option func(*options)

type options struct {
	name      string
	logger    *zap.Logger
	observers []Observer
}

// WithName sets the diagnostic name of the layer.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger sets the logger. Child layers inherit it unless they set their own.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithObserver appends observers. Child layers inherit the parent's observers
// and run their own after them.
func WithObserver(observers ...Observer) Option {
	return func(o *options) {
		o.observers = append(o.observers, observers...)
	}
}

// mergeOptions applies opts on top of what the parent layer carries.
func mergeOptions(parent *Layer, opts []Option) options {
	var merged options
	for _, opt := range opts {
		opt(&merged)
	}

	if merged.logger == nil {
		if parent != nil {
			merged.logger = parent.base
		} else {
			merged.logger = zap.NewNop()
		}
	}

	if parent != nil && len(parent.observers.observers) > 0 {
		inherited := make([]Observer, 0, len(parent.observers.observers)+len(merged.observers))
		inherited = append(inherited, parent.observers.observers...)
		merged.observers = append(inherited, merged.observers...)
	}

	return merged
}
