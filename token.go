package nest

import (
	"reflect"
)

// Token identifies a service by its Go type.
// Two tokens are equal iff they denote the same type, so Token is usable as a map key.
type Token struct {
	typ reflect.Type
}

// TokenOf returns the token for the static type T.
// Interface types are allowed: TokenOf[io.Reader]() names the interface itself.
func TokenOf[T any]() Token {
	return Token{typ: reflect.TypeFor[T]()}
}

// TokenFor returns the token for a reflect.Type.
func TokenFor(typ reflect.Type) Token {
	return Token{typ: typ}
}

// Type returns the underlying reflect.Type, nil for the zero token.
func (t Token) Type() reflect.Type {
	return t.typ
}

// IsZero reports whether t identifies no type.
func (t Token) IsZero() bool {
	return t.typ == nil
}

// String returns a human-readable representation of the token
func (t Token) String() string {
	if t.typ == nil {
		return "<nil>"
	}

	return t.typ.String()
}

// Accepts reports whether v is an instance of the token's type.
// A nil value is accepted only by nillable kinds.
func (t Token) Accepts(v any) bool {
	if t.typ == nil {
		return false
	}

	if v == nil {
		switch t.typ.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return true
		default:
			return false
		}
	}

	return reflect.TypeOf(v).AssignableTo(t.typ)
}
