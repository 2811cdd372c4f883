package nest

import (
	"context"
	"fmt"
)

// Provide binds T to the value returned by construct, unless T is already bound in b.
func Provide[T any](b Binder, construct func() T) {
	bind := Bind(construct)
	b.Provide(bind.Token, bind.Construct)
}

// Get resolves T with type safety.
func Get[T any](r Resolver) (T, error) {
	var zero T

	instance, err := r.Get(TokenOf[T]())
	if err != nil {
		return zero, err
	}

	if instance == nil {
		return zero, nil
	}

	typed, ok := instance.(T)
	if !ok {
		return zero, ErrInvalidDependency(TokenOf[T](), instance)
	}

	return typed, nil
}

// Must resolves T or panics. Meant for setup callbacks that build a service
// from dependencies provided earlier.
func Must[T any](r Resolver) T {
	instance, err := Get[T](r)
	if err != nil {
		panic(fmt.Sprintf("failed to resolve %s: %v", TokenOf[T](), err))
	}

	return instance
}

// GetOr resolves T, or returns fallback() when nothing binds it or the bound
// value is not a T. The fallback result is not cached.
func GetOr[T any](r Resolver, fallback func() T) T {
	if instance, ok := GetChecked[T](r); ok {
		return instance
	}

	if fallback == nil {
		var zero T
		return zero
	}

	return fallback()
}

// GetChecked resolves T and reports whether it was found.
// A bound value that is not a T counts as not found.
func GetChecked[T any](r Resolver) (T, bool) {
	var zero T

	instance, ok := r.GetChecked(TokenOf[T]())
	if !ok {
		return zero, false
	}

	if instance == nil {
		return zero, TokenOf[T]().Accepts(nil)
	}

	typed, ok := instance.(T)
	if !ok {
		return zero, false
	}

	return typed, true
}

// UseDep resolves T against the active layer of ctx.
func UseDep[T any](ctx context.Context) (T, error) {
	return Get[T](FromContext(ctx))
}

// MustUseDep resolves T against the active layer of ctx or panics.
func MustUseDep[T any](ctx context.Context) T {
	return Must[T](FromContext(ctx))
}

// UseDepOr resolves T against the active layer of ctx, falling back to fallback().
func UseDepOr[T any](ctx context.Context, fallback func() T) T {
	return GetOr(FromContext(ctx), fallback)
}

// UseDepChecked resolves T against the active layer of ctx and reports whether it was found.
func UseDepChecked[T any](ctx context.Context) (T, bool) {
	return GetChecked[T](FromContext(ctx))
}
