package nest

import "io"

// Disposer is the optional disposal capability of a bound value.
// Layer.Clear calls Dispose once on every bound value that implements it.
type Disposer interface {
	Dispose() error
}

// DisposerFunc adapts a function to Disposer.
type DisposerFunc func() error

// Dispose implements Disposer.
func (f DisposerFunc) Dispose() error {
	return f()
}

// disposerOf probes v for a disposal capability. Disposer wins over io.Closer
// when a value implements both. Returns nil for values with neither.
func disposerOf(v any) func() error {
	switch d := v.(type) {
	case Disposer:
		return d.Dispose
	case io.Closer:
		return d.Close
	default:
		return nil
	}
}
