package nest

import (
	"fmt"

	"github.com/xraph/go-utils/errs"
)

// =============================================================================
// ERROR CODES
// =============================================================================

const (
	// CodeDependencyNotFound indicates no layer in the chain binds a token
	CodeDependencyNotFound = "DEPENDENCY_NOT_FOUND"

	// CodeInvalidDependency indicates a bound value does not conform to its token
	CodeInvalidDependency = "INVALID_DEPENDENCY"

	// CodeScopeEnded indicates operation on an exited scope
	CodeScopeEnded = "SCOPE_ENDED"

	// CodeLayerCleared indicates a layer was cleared more than once
	CodeLayerCleared = "LAYER_CLEARED"

	// CodeDisposeFailed indicates a bound value failed to dispose
	CodeDisposeFailed = "DISPOSE_FAILED"

	// CodeSetupFailed indicates a scope setup callback returned an error
	CodeSetupFailed = "SETUP_FAILED"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

// ErrDependencyNotFoundSentinel is a sentinel error for missing dependencies (for error checking).
var ErrDependencyNotFoundSentinel = errs.NewError(CodeDependencyNotFound, "dependency not found", nil)

// ErrInvalidDependencySentinel is a sentinel error for non-conforming dependencies (for error checking).
var ErrInvalidDependencySentinel = errs.NewError(CodeInvalidDependency, "invalid dependency", nil)

// ErrScopeEnded is returned when a scope is entered or exited after it has ended.
var ErrScopeEnded = errs.NewError(CodeScopeEnded, "scope has ended", nil)

// ErrLayerCleared is returned when Clear is called on an already cleared layer.
var ErrLayerCleared = errs.NewError(CodeLayerCleared, "layer already cleared", nil)

// ErrDisposeFailedSentinel is a sentinel error for disposal failures (for error checking).
var ErrDisposeFailedSentinel = errs.NewError(CodeDisposeFailed, "dispose failed", nil)

// ErrSetupFailedSentinel is a sentinel error for setup failures (for error checking).
var ErrSetupFailedSentinel = errs.NewError(CodeSetupFailed, "setup failed", nil)

// =============================================================================
// ERROR CONSTRUCTORS
// =============================================================================

// ErrDependencyNotFound creates an error for a token no layer has bound
func ErrDependencyNotFound(token Token) *errs.Error {
	return errs.NewError(
		CodeDependencyNotFound,
		fmt.Sprintf("no dependency provided for token %s", token),
		nil,
	).WithContext("token", token.String()).(*errs.Error)
}

// ErrInvalidDependency creates an error for a bound value that is not an instance of its token
func ErrInvalidDependency(token Token, actual any) *errs.Error {
	return errs.NewError(
		CodeInvalidDependency,
		fmt.Sprintf("dependency was not instance of token %s: got %T", token, actual),
		nil,
	).WithContext("token", token.String()).
		WithContext("actual_type", fmt.Sprintf("%T", actual)).(*errs.Error)
}

// NewDisposeError creates an error for a failed Dispose call
func NewDisposeError(token Token, cause error) *errs.Error {
	return errs.NewError(
		CodeDisposeFailed,
		fmt.Sprintf("failed to dispose %s", token),
		cause,
	).WithContext("token", token.String()).(*errs.Error)
}

// NewSetupError creates an error for a scope whose setup callback failed
func NewSetupError(scope string, cause error) *errs.Error {
	return errs.NewError(
		CodeSetupFailed,
		fmt.Sprintf("scope '%s' setup failed", scope),
		cause,
	).WithContext("scope", scope).(*errs.Error)
}
