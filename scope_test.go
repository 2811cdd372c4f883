package nest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// defaultSetup mirrors a typical provider: a service and a dependent built from it.
func defaultSetup(b Binder) error {
	Provide(b, func() *serviceA { return &serviceA{name: "test"} })
	Provide(b, func() *serviceB { return &serviceB{a: Must[*serviceA](b)} })

	return nil
}

func TestScope_NewScope(t *testing.T) {
	s := NewScope()

	assert.Equal(t, ScopeUninitialized, s.State())
	assert.Nil(t, s.Layer())
}

func TestScope_Enter(t *testing.T) {
	s := NewScope()

	ctx, err := s.Enter(context.Background(), defaultSetup)
	require.NoError(t, err)
	defer func() { _ = s.Exit() }()

	assert.Equal(t, ScopeActive, s.State())
	assert.Same(t, s.Layer(), FromContext(ctx))
	assert.Same(t, Root(), s.Layer().Parent())

	b, err := UseDep[*serviceB](ctx)
	require.NoError(t, err)
	assert.Equal(t, "test", b.a.name)
}

func TestScope_EmptySetup(t *testing.T) {
	s := NewScope()

	ctx, err := s.Enter(context.Background(), func(Binder) error { return nil })
	require.NoError(t, err)
	defer func() { _ = s.Exit() }()

	_, err = UseDep[*serviceB](ctx)
	assert.ErrorIs(t, err, ErrDependencyNotFoundSentinel)

	_, ok := UseDepChecked[*serviceB](ctx)
	assert.False(t, ok)

	assert.Equal(t, "dep default", UseDepOr(ctx, func() string { return "dep default" }))
}

func TestScope_NilSetup(t *testing.T) {
	s := NewScope()

	ctx, err := s.Enter(context.Background(), nil)
	require.NoError(t, err)
	defer func() { _ = s.Exit() }()

	assert.Equal(t, ScopeActive, s.State())
	assert.Empty(t, FromContext(ctx).Tokens())
}

func TestScope_ReEnter_Memoized(t *testing.T) {
	s := NewScope()
	setupCalls := 0

	setup := func(b Binder) error {
		setupCalls++
		Provide(b, func() *serviceA { return &serviceA{} })

		return nil
	}

	ctx1, err := s.Enter(context.Background(), setup)
	require.NoError(t, err)
	defer func() { _ = s.Exit() }()

	layer := s.Layer()

	ctx2, err := s.Enter(context.Background(), setup)
	require.NoError(t, err)

	assert.Equal(t, 1, setupCalls)
	assert.Same(t, layer, s.Layer())
	assert.Same(t, FromContext(ctx1), FromContext(ctx2))
	assert.Same(t, MustUseDep[*serviceA](ctx1), MustUseDep[*serviceA](ctx2))
}

func TestScope_ReEnter_DifferentSetupIgnored(t *testing.T) {
	s := NewScope()

	_, err := s.Enter(context.Background(), func(b Binder) error {
		Provide(b, func() *serviceA { return &serviceA{name: "first"} })
		return nil
	})
	require.NoError(t, err)
	defer func() { _ = s.Exit() }()

	secondRan := false
	ctx, err := s.Enter(context.Background(), func(b Binder) error {
		secondRan = true
		Provide(b, func() *serviceB { return &serviceB{} })

		return nil
	})
	require.NoError(t, err)

	assert.False(t, secondRan)
	assert.Equal(t, "first", MustUseDep[*serviceA](ctx).name)

	_, ok := UseDepChecked[*serviceB](ctx)
	assert.False(t, ok)
}

func TestScope_Nested(t *testing.T) {
	outer := NewScope(WithName("outer"))
	inner := NewScope(WithName("inner"))

	outerCtx, err := outer.Enter(context.Background(), func(b Binder) error {
		Provide(b, func() *serviceA { return &serviceA{name: "outer"} })
		return nil
	})
	require.NoError(t, err)
	defer func() { _ = outer.Exit() }()

	innerCtx, err := inner.Enter(outerCtx, func(b Binder) error {
		// Pull from the enclosing scope to build a dependent.
		Provide(b, func() *serviceB { return &serviceB{a: Must[*serviceA](b)} })
		return nil
	})
	require.NoError(t, err)

	assert.Same(t, outer.Layer(), inner.Layer().Parent())

	b := MustUseDep[*serviceB](innerCtx)
	assert.Equal(t, "outer", b.a.name)
	assert.Same(t, MustUseDep[*serviceA](outerCtx), MustUseDep[*serviceA](innerCtx))

	// Inner bindings are invisible to the outer region.
	_, ok := UseDepChecked[*serviceB](outerCtx)
	assert.False(t, ok)

	require.NoError(t, inner.Exit())
	assert.Equal(t, ScopeActive, outer.State())
	assert.Equal(t, "outer", MustUseDep[*serviceA](outerCtx).name)
}

func TestScope_Nested_Shadowing(t *testing.T) {
	err := Run(context.Background(), func(b Binder) error {
		Provide(b, func() *serviceA { return &serviceA{name: "outer"} })
		return nil
	}, func(ctx context.Context) error {
		return Run(ctx, func(b Binder) error {
			Provide(b, func() *serviceA { return &serviceA{name: "inner"} })
			return nil
		}, func(ctx context.Context) error {
			assert.Equal(t, "inner", MustUseDep[*serviceA](ctx).name)
			return nil
		})
	})

	assert.NoError(t, err)
}

func TestScope_Exit_Disposes(t *testing.T) {
	s := NewScope()
	svc := &disposableService{name: "svc"}

	_, err := s.Enter(context.Background(), func(b Binder) error {
		Provide(b, func() *disposableService { return svc })
		Provide(b, func() *serviceA { return &serviceA{} })

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.Exit())
	assert.Equal(t, ScopeDestroyed, s.State())
	assert.Equal(t, 1, svc.disposed)
	assert.True(t, s.Layer().Cleared())
}

func TestScope_Exit_Twice(t *testing.T) {
	s := NewScope()
	svc := &disposableService{}

	_, err := s.Enter(context.Background(), func(b Binder) error {
		Provide(b, func() *disposableService { return svc })
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.Exit())

	err = s.Exit()
	assert.ErrorIs(t, err, ErrScopeEnded)
	assert.Equal(t, 1, svc.disposed)
}

func TestScope_Exit_Uninitialized(t *testing.T) {
	s := NewScope()

	require.NoError(t, s.Exit())
	assert.Equal(t, ScopeDestroyed, s.State())
	assert.Nil(t, s.Layer())
}

func TestScope_EnterAfterExit(t *testing.T) {
	s := NewScope()

	_, err := s.Enter(context.Background(), defaultSetup)
	require.NoError(t, err)
	require.NoError(t, s.Exit())

	_, err = s.Enter(context.Background(), defaultSetup)
	assert.ErrorIs(t, err, ErrScopeEnded)
	assert.Equal(t, ScopeDestroyed, s.State())
}

func TestScope_Exit_DepthFirst(t *testing.T) {
	var order []string

	record := func(name string) { order = append(order, name) }

	provideNamed := func(name string) SetupFunc {
		return func(b Binder) error {
			Provide(b, func() *disposableService {
				return &disposableService{name: name, onDispose: record}
			})

			return nil
		}
	}

	parent := NewScope()
	parentCtx, err := parent.Enter(context.Background(), provideNamed("parent"))
	require.NoError(t, err)

	first := NewScope()
	firstCtx, err := first.Enter(parentCtx, provideNamed("first"))
	require.NoError(t, err)

	grandchild := NewScope()
	_, err = grandchild.Enter(firstCtx, provideNamed("grandchild"))
	require.NoError(t, err)

	second := NewScope()
	_, err = second.Enter(parentCtx, provideNamed("second"))
	require.NoError(t, err)

	require.NoError(t, parent.Exit())

	assert.Equal(t, []string{"second", "grandchild", "first", "parent"}, order)
	assert.Equal(t, ScopeDestroyed, first.State())
	assert.Equal(t, ScopeDestroyed, second.State())
	assert.Equal(t, ScopeDestroyed, grandchild.State())

	// Children already torn down by the parent report the scope as ended.
	assert.ErrorIs(t, first.Exit(), ErrScopeEnded)
}

func TestScope_Exit_ChildExitedFirst(t *testing.T) {
	parent := NewScope()
	parentCtx, err := parent.Enter(context.Background(), nil)
	require.NoError(t, err)

	svc := &disposableService{}
	child := NewScope()
	_, err = child.Enter(parentCtx, func(b Binder) error {
		Provide(b, func() *disposableService { return svc })
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, child.Exit())
	require.NoError(t, parent.Exit())

	assert.Equal(t, 1, svc.disposed)
}

func TestScope_Exit_DisposeError(t *testing.T) {
	s := NewScope()
	disposeErr := errors.New("dispose failed")

	_, err := s.Enter(context.Background(), func(b Binder) error {
		Provide(b, func() *disposableService {
			return &disposableService{disposeErr: disposeErr}
		})

		return nil
	})
	require.NoError(t, err)

	err = s.Exit()
	assert.ErrorIs(t, err, disposeErr)
	assert.ErrorIs(t, err, ErrDisposeFailedSentinel)
	assert.Equal(t, ScopeDestroyed, s.State())
}

func TestScope_SetupFailure(t *testing.T) {
	s := NewScope(WithName("broken"))
	setupErr := errors.New("missing config")
	svc := &disposableService{}

	_, err := s.Enter(context.Background(), func(b Binder) error {
		Provide(b, func() *disposableService { return svc })
		return setupErr
	})

	assert.ErrorIs(t, err, setupErr)
	assert.ErrorIs(t, err, ErrSetupFailedSentinel)
	assert.Equal(t, ScopeDestroyed, s.State())
	assert.Equal(t, 1, svc.disposed)

	_, err = s.Enter(context.Background(), defaultSetup)
	assert.ErrorIs(t, err, ErrScopeEnded)
}

func TestScope_ConcurrentEnter(t *testing.T) {
	s := NewScope()
	defer func() { _ = s.Exit() }()

	var (
		mu         sync.Mutex
		setupCalls int
		wg         sync.WaitGroup
	)

	setup := func(b Binder) error {
		mu.Lock()
		setupCalls++
		mu.Unlock()

		Provide(b, func() *serviceA { return &serviceA{} })

		return nil
	}

	const goroutines = 10

	results := make([]*serviceA, goroutines)

	for i := range goroutines {
		wg.Add(1)

		go func() {
			defer wg.Done()

			ctx, err := s.Enter(context.Background(), setup)
			if assert.NoError(t, err) {
				results[i], _ = UseDep[*serviceA](ctx)
			}
		}()
	}

	wg.Wait()

	mu.Lock()
	assert.Equal(t, 1, setupCalls)
	mu.Unlock()

	for _, r := range results {
		assert.NotNil(t, r)
		assert.Same(t, results[0], r)
	}
}

func TestScope_ExitOnDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewScope()
	svc := &disposableService{}

	done := make(chan struct{})

	_, err := s.Enter(ctx, func(b Binder) error {
		Provide(b, func() *disposableService {
			svc.onDispose = func(string) { close(done) }
			return svc
		})

		return nil
	})
	require.NoError(t, err)

	s.ExitOnDone(ctx)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scope was not exited after context cancellation")
	}

	assert.Eventually(t, func() bool {
		return s.State() == ScopeDestroyed
	}, time.Second, 10*time.Millisecond)
}

func TestScope_ExitOnDone_Stop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewScope()
	_, err := s.Enter(ctx, nil)
	require.NoError(t, err)

	stop := s.ExitOnDone(ctx)
	assert.True(t, stop())

	cancel()
	assert.Equal(t, ScopeActive, s.State())
	require.NoError(t, s.Exit())
}

func TestRun(t *testing.T) {
	svc := &disposableService{}
	ran := false

	err := Run(context.Background(), func(b Binder) error {
		Provide(b, func() *disposableService { return svc })
		return nil
	}, func(ctx context.Context) error {
		ran = true

		got, err := UseDep[*disposableService](ctx)
		require.NoError(t, err)
		assert.Same(t, svc, got)
		assert.Equal(t, 0, svc.disposed)

		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 1, svc.disposed)
}

func TestRun_FnErrorStillExits(t *testing.T) {
	svc := &disposableService{}
	fnErr := errors.New("handler failed")

	err := Run(context.Background(), func(b Binder) error {
		Provide(b, func() *disposableService { return svc })
		return nil
	}, func(ctx context.Context) error {
		return fnErr
	})

	assert.ErrorIs(t, err, fnErr)
	assert.Equal(t, 1, svc.disposed)
}

func TestRun_SetupError(t *testing.T) {
	setupErr := errors.New("bad setup")
	ran := false

	err := Run(context.Background(), func(b Binder) error {
		return setupErr
	}, func(ctx context.Context) error {
		ran = true
		return nil
	})

	assert.ErrorIs(t, err, setupErr)
	assert.False(t, ran)
}

func TestScopeState_String(t *testing.T) {
	assert.Equal(t, "uninitialized", ScopeUninitialized.String())
	assert.Equal(t, "active", ScopeActive.String())
	assert.Equal(t, "destroyed", ScopeDestroyed.String())
	assert.Equal(t, "unknown", ScopeState(42).String())
}

func TestScope_SetupPanic(t *testing.T) {
	s := NewScope()
	closer := &closerService{}

	assert.Panics(t, func() {
		_, _ = s.Enter(context.Background(), func(b Binder) error {
			Provide(b, func() *closerService { return closer })
			Provide(b, func() *serviceB { return &serviceB{a: Must[*serviceA](b)} })

			return nil
		})
	})

	// The scope is usable again: not locked, destroyed, and its layer cleared.
	assert.Equal(t, ScopeDestroyed, s.State())
	require.NotNil(t, s.Layer())
	assert.True(t, s.Layer().Cleared())
	assert.True(t, closer.closed)

	assert.ErrorIs(t, s.Exit(), ErrScopeEnded)

	_, err := s.Enter(context.Background(), defaultSetup)
	assert.ErrorIs(t, err, ErrScopeEnded)
}

func TestScope_SetupMayInspectScope(t *testing.T) {
	s := NewScope()

	var (
		seenState ScopeState
		seenLayer *Layer
	)

	_, err := s.Enter(context.Background(), func(b Binder) error {
		seenState = s.State()
		seenLayer = s.Layer()

		return nil
	})
	require.NoError(t, err)
	defer func() { _ = s.Exit() }()

	assert.Equal(t, ScopeUninitialized, seenState)
	assert.Same(t, s.Layer(), seenLayer)
	assert.Equal(t, ScopeActive, s.State())
}

func TestScope_ExitDuringSetup(t *testing.T) {
	s := NewScope()
	svc := &disposableService{}

	_, err := s.Enter(context.Background(), func(b Binder) error {
		Provide(b, func() *disposableService { return svc })
		require.NoError(t, s.Exit())

		return nil
	})

	assert.ErrorIs(t, err, ErrScopeEnded)
	assert.Equal(t, ScopeDestroyed, s.State())
	assert.Equal(t, 1, svc.disposed)
}

func TestScope_EnterFromExitedParent(t *testing.T) {
	parent := NewScope()
	parentCtx, err := parent.Enter(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, parent.Exit())

	child := NewScope()
	ran := false

	_, err = child.Enter(parentCtx, func(Binder) error {
		ran = true
		return nil
	})

	assert.ErrorIs(t, err, ErrScopeEnded)
	assert.False(t, ran)
	assert.Equal(t, ScopeUninitialized, child.State())
	assert.Nil(t, child.Layer())
	assert.Empty(t, parent.children)
}

func TestScope_EnterFromClearedLayer(t *testing.T) {
	l := NewLayer(nil)
	require.NoError(t, l.Clear())

	s := NewScope()
	_, err := s.Enter(WithLayer(context.Background(), l), defaultSetup)

	assert.ErrorIs(t, err, ErrScopeEnded)
	assert.Nil(t, s.Layer())
}
