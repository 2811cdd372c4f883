// Package nest provides a hierarchical dependency container whose layers are
// scoped to regions of a call tree.
//
// A Layer maps type tokens to instances and delegates misses to its parent.
// A Scope creates one child layer when its region is first entered, runs a
// setup callback that provides the region's services, and clears the layer
// when the region exits. The active layer travels in a context.Context, so
// nested code resolves against the nearest enclosing scope:
//
//	err := nest.Run(ctx, func(b nest.Binder) error {
//	    nest.Provide(b, func() *Config { return loadConfig() })
//	    nest.Provide(b, func() *Store { return NewStore(nest.Must[*Config](b)) })
//	    return nil
//	}, func(ctx context.Context) error {
//	    store, err := nest.UseDep[*Store](ctx)
//	    ...
//	})
package nest

import "sync"

// Resolver looks up bound values by token.
type Resolver interface {
	Get(token Token) (any, error)
	GetOr(token Token, fallback func() any) any
	GetChecked(token Token) (any, bool)
}

// Binder is what a scope's setup callback receives: the lookup operations
// plus Provide, all bound to the scope's new layer.
type Binder interface {
	Resolver
	Provide(token Token, construct func() any)
}

var (
	_ Binder = (*Layer)(nil)

	rootOnce  sync.Once
	rootLayer *Layer
)

// Root returns the process-wide default layer. It has no parent and is never cleared.
func Root() *Layer {
	rootOnce.Do(func() {
		rootLayer = NewLayer(nil, WithName("root"))
	})

	return rootLayer
}
