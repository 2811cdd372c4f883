package nest

import (
	"github.com/rcrowley/go-metrics"
	"go.uber.org/zap"
)

// Observer provides hooks for watching layer operations.
// Observers can be used for logging, metrics, auditing, testing, etc.
// Hooks run synchronously on the calling goroutine, outside the layer's lock.
type Observer interface {
	// OnProvide is called after a token is bound in a layer.
	OnProvide(layer *Layer, token Token)

	// OnResolve is called once per lookup, against the layer the lookup
	// started from. found is false when the walk reached the root without a binding.
	OnResolve(layer *Layer, token Token, found bool)

	// OnDispose is called after a bound value's disposal capability ran.
	// Values without the capability are not reported.
	OnDispose(layer *Layer, token Token, err error)
}

// observerChain manages multiple observers.
type observerChain struct {
	observers []Observer
}

func newObserverChain(observers []Observer) *observerChain {
	return &observerChain{observers: observers}
}

func (c *observerChain) provided(layer *Layer, token Token) {
	for _, o := range c.observers {
		o.OnProvide(layer, token)
	}
}

func (c *observerChain) resolved(layer *Layer, token Token, found bool) {
	for _, o := range c.observers {
		o.OnResolve(layer, token, found)
	}
}

func (c *observerChain) disposed(layer *Layer, token Token, err error) {
	for _, o := range c.observers {
		o.OnDispose(layer, token, err)
	}
}

// FuncObserver wraps functions as Observer. Nil fields are skipped.
type FuncObserver struct {
	OnProvideFunc func(layer *Layer, token Token)
	OnResolveFunc func(layer *Layer, token Token, found bool)
	OnDisposeFunc func(layer *Layer, token Token, err error)
}

// OnProvide implements Observer.
func (f *FuncObserver) OnProvide(layer *Layer, token Token) {
	if f.OnProvideFunc != nil {
		f.OnProvideFunc(layer, token)
	}
}

// OnResolve implements Observer.
func (f *FuncObserver) OnResolve(layer *Layer, token Token, found bool) {
	if f.OnResolveFunc != nil {
		f.OnResolveFunc(layer, token, found)
	}
}

// OnDispose implements Observer.
func (f *FuncObserver) OnDispose(layer *Layer, token Token, err error) {
	if f.OnDisposeFunc != nil {
		f.OnDisposeFunc(layer, token, err)
	}
}

// Metric names recorded by the metrics observer.
const (
	MetricProvide      = "nest.provide"
	MetricResolveHit   = "nest.resolve.hit"
	MetricResolveMiss  = "nest.resolve.miss"
	MetricDispose      = "nest.dispose"
	MetricDisposeError = "nest.dispose.error"
)

type metricsObserver struct {
	provide      metrics.Counter
	resolveHit   metrics.Counter
	resolveMiss  metrics.Counter
	dispose      metrics.Counter
	disposeError metrics.Counter
}

// NewMetricsObserver counts layer operations into registry.
// A nil registry uses metrics.DefaultRegistry.
func NewMetricsObserver(registry metrics.Registry) Observer {
	if registry == nil {
		registry = metrics.DefaultRegistry
	}

	return &metricsObserver{
		provide:      metrics.GetOrRegisterCounter(MetricProvide, registry),
		resolveHit:   metrics.GetOrRegisterCounter(MetricResolveHit, registry),
		resolveMiss:  metrics.GetOrRegisterCounter(MetricResolveMiss, registry),
		dispose:      metrics.GetOrRegisterCounter(MetricDispose, registry),
		disposeError: metrics.GetOrRegisterCounter(MetricDisposeError, registry),
	}
}

func (m *metricsObserver) OnProvide(*Layer, Token) {
	m.provide.Inc(1)
}

func (m *metricsObserver) OnResolve(_ *Layer, _ Token, found bool) {
	if found {
		m.resolveHit.Inc(1)
	} else {
		m.resolveMiss.Inc(1)
	}
}

func (m *metricsObserver) OnDispose(_ *Layer, _ Token, err error) {
	m.dispose.Inc(1)
	if err != nil {
		m.disposeError.Inc(1)
	}
}

type loggingObserver struct {
	logger *zap.Logger
}

// NewLoggingObserver logs every lookup at debug level, misses included.
// Layers already log provide and dispose on their own logger.
func NewLoggingObserver(logger *zap.Logger) Observer {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &loggingObserver{logger: logger}
}

func (l *loggingObserver) OnProvide(*Layer, Token) {}

func (l *loggingObserver) OnResolve(layer *Layer, token Token, found bool) {
	l.logger.Debug("dependency lookup",
		zap.String("layer", layer.Name()),
		zap.Stringer("token", token),
		zap.Bool("found", found),
	)
}

func (l *loggingObserver) OnDispose(layer *Layer, token Token, err error) {
	if err != nil {
		l.logger.Debug("dependency dispose failed",
			zap.String("layer", layer.Name()),
			zap.Stringer("token", token),
			zap.Error(err),
		)
	}
}
