package nest

// LayerInfo contains diagnostic information about a layer.
type LayerInfo struct {
	Name      string
	Depth     int
	Tokens    []string // Local bindings in registration order
	Cleared   bool
	Ancestors []string // Nearest first, ending at the root
}

// Inspect returns diagnostic information about the layer.
func (l *Layer) Inspect() LayerInfo {
	tokens := l.Tokens()
	names := make([]string, len(tokens))
	for i, t := range tokens {
		names[i] = t.String()
	}

	var ancestors []string
	for p := l.parent; p != nil; p = p.parent {
		ancestors = append(ancestors, p.name)
	}

	return LayerInfo{
		Name:      l.name,
		Depth:     l.depth,
		Tokens:    names,
		Cleared:   l.Cleared(),
		Ancestors: ancestors,
	}
}

// Chain returns l followed by its ancestors up to the root.
func (l *Layer) Chain() []*Layer {
	chain := make([]*Layer, 0, l.depth+1)
	for cur := l; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}

	return chain
}

// Owner returns the layer a lookup of token from l would be answered by,
// or nil when no layer in the chain binds it.
func (l *Layer) Owner(token Token) *Layer {
	for cur := l; cur != nil; cur = cur.parent {
		if cur.Has(token) {
			return cur
		}
	}

	return nil
}

// OwnerOf is Owner keyed by the static type T.
func OwnerOf[T any](l *Layer) *Layer {
	return l.Owner(TokenOf[T]())
}
