package nest

// Binding pairs a token with its constructor for batch registration.
type Binding struct {
	Token     Token
	Construct func() any
}

// Bind creates a Binding keyed by the static type T.
//
// Example:
//
//	layer.ProvideAll(
//	    nest.Bind(func() *Database { return NewDatabase() }),
//	    nest.Bind(func() Clock { return systemClock{} }),
//	)
func Bind[T any](construct func() T) Binding {
	b := Binding{Token: TokenOf[T]()}
	if construct != nil {
		b.Construct = func() any { return construct() }
	}

	return b
}
