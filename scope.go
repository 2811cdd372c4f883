package nest

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ScopeState is the lifecycle state of a Scope.
type ScopeState int

const (
	// ScopeUninitialized is a scope that has never been entered.
	ScopeUninitialized ScopeState = iota
	// ScopeActive is a scope whose layer exists and serves lookups.
	ScopeActive
	// ScopeDestroyed is a scope whose layer has been cleared. It is never reused.
	ScopeDestroyed
)

// String returns the state name.
func (s ScopeState) String() string {
	switch s {
	case ScopeUninitialized:
		return "uninitialized"
	case ScopeActive:
		return "active"
	case ScopeDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// SetupFunc registers a scope's services. It runs once, when the scope is
// first entered, against the scope's new layer.
type SetupFunc func(b Binder) error

// Scope ties a Layer to the lifetime of a region of the call tree.
//
// The layer is allocated on the first Enter, parented to the layer active in
// the entering context, and cleared by Exit. Re-entering an active scope reuses
// the same layer and does not run setup again, even if a different setup is
// passed.
type Scope struct {
	opts     []Option
	state    ScopeState
	layer    *Layer
	parent   *Scope
	children []*Scope
	mu       sync.Mutex
	enterMu  sync.Mutex
}

// NewScope creates an uninitialized scope. opts configure its layer.
func NewScope(opts ...Option) *Scope {
	return &Scope{opts: opts}
}

// Enter activates the scope and returns a context in which its layer is the
// active one. Only the first call creates the layer and runs setup; later
// calls return a context carrying the same layer. Entering a destroyed scope,
// or entering from the context of a scope that has already exited, returns
// ErrScopeEnded.
//
// If setup fails the new layer is cleared, the scope is destroyed and the
// setup error is returned. If setup panics the same cleanup runs before the
// panic continues.
func (s *Scope) Enter(ctx context.Context, setup SetupFunc) (context.Context, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if scoped, done, err := s.reenter(ctx); done {
		return scoped, err
	}

	// Serializes first entries; s.mu stays free so setup may inspect the scope.
	s.enterMu.Lock()
	defer s.enterMu.Unlock()

	if scoped, done, err := s.reenter(ctx); done {
		return scoped, err
	}

	parent := scopeFromContext(ctx)
	parentLayer := FromContext(ctx)

	if (parent != nil && parent.State() == ScopeDestroyed) || parentLayer.Cleared() {
		return ctx, ErrScopeEnded
	}

	layer := NewLayer(parentLayer, s.opts...)

	s.mu.Lock()
	s.layer = layer
	s.mu.Unlock()

	if err := s.runSetup(layer, setup); err != nil {
		layer.logger.Debug("scope setup failed", zap.Error(err))

		return ctx, multierr.Append(NewSetupError(layer.Name(), err), s.abort(layer))
	}

	s.mu.Lock()
	if s.state == ScopeDestroyed {
		// Exited while setup was running.
		s.mu.Unlock()

		return ctx, multierr.Append(ErrScopeEnded, layer.Clear())
	}

	s.state = ScopeActive
	s.parent = parent
	s.mu.Unlock()

	if parent != nil && !parent.adopt(s) {
		s.mu.Lock()
		s.parent = nil
		s.mu.Unlock()

		return ctx, multierr.Append(ErrScopeEnded, s.abort(layer))
	}

	layer.logger.Debug("scope entered")

	return withScope(ctx, s), nil
}

// reenter handles entries that do not create the layer. done is false when
// the scope is still uninitialized.
func (s *Scope) reenter(ctx context.Context) (scoped context.Context, done bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case ScopeDestroyed:
		return ctx, true, ErrScopeEnded
	case ScopeActive:
		return withScope(ctx, s), true, nil
	default:
		return nil, false, nil
	}
}

// runSetup calls setup against layer. A panic destroys the scope and clears
// the layer, then propagates.
func (s *Scope) runSetup(layer *Layer, setup SetupFunc) error {
	if setup == nil {
		return nil
	}

	completed := false

	defer func() {
		if completed {
			return
		}

		r := recover()

		if err := s.abort(layer); err != nil {
			layer.logger.Warn("scope cleanup after setup panic failed", zap.Error(err))
		}

		if r != nil {
			panic(r)
		}
	}()

	err := setup(layer)
	completed = true

	return err
}

// abort destroys a scope whose entry did not complete and clears its layer.
func (s *Scope) abort(layer *Layer) error {
	s.mu.Lock()
	s.state = ScopeDestroyed
	s.mu.Unlock()

	return layer.Clear()
}

// Exit destroys the scope. Nested scopes still active are exited first,
// most recently entered first, then the scope's own layer is cleared. Exiting
// a scope that was never entered only marks it destroyed. A second Exit
// returns ErrScopeEnded.
func (s *Scope) Exit() error {
	s.mu.Lock()
	if s.state == ScopeDestroyed {
		s.mu.Unlock()
		return ErrScopeEnded
	}

	wasActive := s.state == ScopeActive
	s.state = ScopeDestroyed
	children := s.children
	s.children = nil
	layer := s.layer
	parent := s.parent
	s.mu.Unlock()

	var result error

	for i := len(children) - 1; i >= 0; i-- {
		if err := children[i].Exit(); err != nil && !errors.Is(err, ErrScopeEnded) {
			result = multierr.Append(result, err)
		}
	}

	if wasActive {
		result = multierr.Append(result, layer.Clear())
		layer.logger.Debug("scope exited", zap.Int("children", len(children)))
	}

	if parent != nil {
		parent.release(s)
	}

	return result
}

// ExitOnDone exits the scope once ctx is done. The returned stop function
// cancels that and reports whether it did so before the exit started.
func (s *Scope) ExitOnDone(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		if err := s.Exit(); err != nil && !errors.Is(err, ErrScopeEnded) {
			if layer := s.Layer(); layer != nil {
				layer.logger.Warn("scope exit failed", zap.Error(err))
			}
		}
	})
}

// State returns the current lifecycle state.
func (s *Scope) State() ScopeState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Layer returns the scope's layer, nil before the first Enter.
func (s *Scope) Layer() *Layer {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.layer
}

// adopt records child for depth-first teardown. It refuses once s has exited.
func (s *Scope) adopt(child *Scope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == ScopeDestroyed {
		return false
	}

	s.children = append(s.children, child)

	return true
}

func (s *Scope) release(child *Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range s.children {
		if c == child {
			s.children = append(s.children[:i], s.children[i+1:]...)
			return
		}
	}
}

// Run enters a new scope built by setup, calls fn with the scoped context and
// exits the scope when fn returns. Errors from fn and from teardown are combined.
func Run(ctx context.Context, setup SetupFunc, fn func(ctx context.Context) error, opts ...Option) (err error) {
	s := NewScope(opts...)

	scoped, err := s.Enter(ctx, setup)
	if err != nil {
		return err
	}

	defer func() {
		err = multierr.Append(err, s.Exit())
	}()

	return fn(scoped)
}
