package nest

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Lazy wraps a dependency that is resolved on first access.
// This is useful when a service is constructed before the dependency is
// provided, for example by a setup callback that runs in an outer scope.
type Lazy[T any] struct {
	resolver Resolver
	once     sync.Once
	value    T
	err      error
	resolved atomic.Bool
}

// NewLazy creates a new lazy dependency wrapper resolving against r.
func NewLazy[T any](r Resolver) *Lazy[T] {
	return &Lazy[T]{resolver: r}
}

// Get resolves the dependency and returns it.
// The resolution happens only once; subsequent calls return the cached value or error.
func (l *Lazy[T]) Get() (T, error) {
	l.once.Do(func() {
		l.value, l.err = Get[T](l.resolver)
		l.resolved.Store(l.err == nil)
	})

	return l.value, l.err
}

// MustGet resolves the dependency and returns it, panicking on error.
func (l *Lazy[T]) MustGet() T {
	value, err := l.Get()
	if err != nil {
		panic(fmt.Sprintf("lazy dependency %s failed: %v", l.Token(), err))
	}

	return value
}

// IsResolved returns true if the dependency has been resolved successfully.
func (l *Lazy[T]) IsResolved() bool {
	return l.resolved.Load()
}

// Token returns the token of the dependency.
func (l *Lazy[T]) Token() Token {
	return TokenOf[T]()
}
