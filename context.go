package nest

import "context"

type layerKey struct{}

type scopeKey struct{}

// WithLayer returns a copy of ctx in which l is the active layer.
func WithLayer(ctx context.Context, l *Layer) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithValue(ctx, layerKey{}, l)
}

// FromContext returns the active layer of ctx, or Root() when none is bound.
func FromContext(ctx context.Context) *Layer {
	if ctx != nil {
		if l, ok := ctx.Value(layerKey{}).(*Layer); ok && l != nil {
			return l
		}
	}

	return Root()
}

// withScope binds both the scope and its layer.
func withScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(WithLayer(ctx, s.layer), scopeKey{}, s)
}

// scopeFromContext returns the nearest enclosing scope, nil if none.
func scopeFromContext(ctx context.Context) *Scope {
	if ctx == nil {
		return nil
	}

	s, _ := ctx.Value(scopeKey{}).(*Scope)

	return s
}
