package nest

import (
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Layer maps tokens to lazily constructed instances and delegates misses to
// an optional parent layer.
type Layer struct {
	parent    *Layer
	name      string
	depth     int
	bindings  map[Token]any
	order     []Token // Registration order
	cleared   bool
	base      *zap.Logger // Undecorated, handed down to children
	logger    *zap.Logger
	observers *observerChain
	mu        sync.RWMutex
}

// NewLayer creates a layer whose lookups fall back to parent.
// A nil parent creates a new root. Logger and observers are inherited from
// the parent unless opts override them.
func NewLayer(parent *Layer, opts ...Option) *Layer {
	merged := mergeOptions(parent, opts)

	l := &Layer{
		parent:    parent,
		name:      merged.name,
		bindings:  make(map[Token]any),
		observers: newObserverChain(merged.observers),
	}

	if parent != nil {
		l.depth = parent.depth + 1
	}

	if l.name == "" {
		l.name = "layer"
		if parent == nil {
			l.name = "root"
		}
	}

	l.base = merged.logger
	l.logger = merged.logger.With(zap.String("layer", l.name), zap.Int("depth", l.depth))

	return l
}

// NewChild creates a layer parented to l.
func (l *Layer) NewChild(opts ...Option) *Layer {
	return NewLayer(l, opts...)
}

// Provide binds token to the value returned by construct, unless token is
// already bound in this layer. construct runs immediately and only when the
// token is unbound; later calls for the same token are no-ops.
func (l *Layer) Provide(token Token, construct func() any) {
	if token.IsZero() {
		l.logger.Warn("ignoring provide for zero token")
		return
	}

	if construct == nil {
		l.logger.Warn("ignoring nil constructor", zap.Stringer("token", token))
		return
	}

	l.mu.RLock()
	_, bound := l.bindings[token]
	cleared := l.cleared
	l.mu.RUnlock()

	if cleared {
		l.logger.Warn("ignoring provide on cleared layer", zap.Stringer("token", token))
		return
	}

	if bound {
		return
	}

	// Constructors may look up other tokens on this layer, so the lock is not held here.
	instance := construct()

	l.mu.Lock()
	if _, bound := l.bindings[token]; bound || l.cleared {
		l.mu.Unlock()
		l.discard(token, instance)

		return
	}

	l.bindings[token] = instance
	l.order = append(l.order, token)
	l.mu.Unlock()

	l.logger.Debug("dependency provided", zap.Stringer("token", token))
	l.observers.provided(l, token)
}

// discard releases an instance that lost a concurrent Provide race.
func (l *Layer) discard(token Token, instance any) {
	l.logger.Debug("discarding duplicate instance", zap.Stringer("token", token))

	dispose := disposerOf(instance)
	if dispose == nil {
		return
	}

	if err := dispose(); err != nil {
		l.logger.Warn("failed to dispose duplicate instance", zap.Stringer("token", token), zap.Error(err))
	}
}

// ProvideAll provides each binding in order.
func (l *Layer) ProvideAll(bindings ...Binding) {
	for _, b := range bindings {
		l.Provide(b.Token, b.Construct)
	}
}

// lookup walks from l to the root and returns the first binding for token.
func (l *Layer) lookup(token Token) (any, bool) {
	for cur := l; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		instance, ok := cur.bindings[token]
		cur.mu.RUnlock()

		if ok {
			return instance, true
		}
	}

	return nil, false
}

// GetOr returns the nearest binding for token, searching this layer and then
// its ancestors. When nothing binds it, GetOr returns fallback() without
// caching it. A nil fallback yields nil.
func (l *Layer) GetOr(token Token, fallback func() any) any {
	instance, ok := l.lookup(token)
	l.observers.resolved(l, token, ok)

	if ok {
		return instance
	}

	if fallback == nil {
		return nil
	}

	return fallback()
}

// GetChecked returns the nearest binding for token and whether one exists.
func (l *Layer) GetChecked(token Token) (any, bool) {
	instance, ok := l.lookup(token)
	l.observers.resolved(l, token, ok)

	return instance, ok
}

// Get returns the nearest binding for token. It fails with
// ErrDependencyNotFound when no layer up to the root binds token, and with
// ErrInvalidDependency when the bound value is not an instance of token.
func (l *Layer) Get(token Token) (any, error) {
	instance, ok := l.GetChecked(token)
	if !ok {
		return nil, ErrDependencyNotFound(token)
	}

	if !token.Accepts(instance) {
		return nil, ErrInvalidDependency(token, instance)
	}

	return instance, nil
}

// Clear disposes every value bound in this layer that has a disposal
// capability, most recently provided first. Parent and child layers are
// untouched. Every disposer runs even if an earlier one fails; failures are
// combined into the returned error. Panics from a disposer are not recovered.
func (l *Layer) Clear() error {
	l.mu.Lock()
	if l.cleared {
		l.mu.Unlock()
		return ErrLayerCleared
	}

	l.cleared = true
	order := l.order
	bindings := l.bindings
	l.mu.Unlock()

	var result error

	for i := len(order) - 1; i >= 0; i-- {
		token := order[i]

		dispose := disposerOf(bindings[token])
		if dispose == nil {
			continue
		}

		err := dispose()
		if err != nil {
			err = NewDisposeError(token, err)
			l.logger.Warn("dependency dispose failed", zap.Stringer("token", token), zap.Error(err))
			result = multierr.Append(result, err)
		} else {
			l.logger.Debug("dependency disposed", zap.Stringer("token", token))
		}

		l.observers.disposed(l, token, err)
	}

	l.logger.Debug("layer cleared", zap.Int("bindings", len(order)))

	return result
}

// Name returns the diagnostic name of the layer.
func (l *Layer) Name() string {
	return l.name
}

// Parent returns the parent layer, nil for a root.
func (l *Layer) Parent() *Layer {
	return l.parent
}

// Depth returns the number of ancestors; a root has depth 0.
func (l *Layer) Depth() int {
	return l.depth
}

// Cleared reports whether Clear has run.
func (l *Layer) Cleared() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.cleared
}

// Has reports whether token is bound in this layer itself, ignoring ancestors.
func (l *Layer) Has(token Token) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.bindings[token]

	return ok
}

// Tokens returns the tokens bound in this layer in registration order.
func (l *Layer) Tokens() []Token {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tokens := make([]Token, len(l.order))
	copy(tokens, l.order)

	return tokens
}
