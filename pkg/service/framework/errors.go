package framework

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies a service failure so the transport layer can map it to
// a response without inspecting error text. Kinds are part of the public API.
type ErrorKind string

const (
	// ValidationError marks a missing or invalid required field, detected
	// before any store or agent call is made.
	ValidationError ErrorKind = "validation_error"

	// UnsupportedCredentialType marks a credential type outside the configured
	// set of offerable definitions.
	UnsupportedCredentialType ErrorKind = "unsupported_credential_type"

	// OfferCreationFailed marks an agent failure while constructing an offer.
	// Nothing has been persisted when this is returned.
	OfferCreationFailed ErrorKind = "offer_creation_failed"

	// NotFoundOrAlreadyUsed marks a claim on a proof request record that is
	// unknown, expired, or already claimed by a concurrent caller.
	NotFoundOrAlreadyUsed ErrorKind = "not_found_or_already_used"

	// UpstreamAgentError wraps any credential agent failure.
	UpstreamAgentError ErrorKind = "upstream_agent_error"

	// StoreUnavailable marks a storage failure, fatal for the current request.
	StoreUnavailable ErrorKind = "store_unavailable"
)

// Error carries an ErrorKind alongside the underlying cause. Services return
// these for every failure that callers are expected to discriminate on.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a kinded error from a message.
func NewError(kind ErrorKind, msg string) error {
	return &Error{Kind: kind, Err: errors.New(msg)}
}

// NewErrorf creates a kinded error from a formatted message.
func NewErrorf(kind ErrorKind, msg string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(msg, args...)}
}

// WrapError wraps an existing error with a kind and message, preserving the cause.
func WrapError(kind ErrorKind, err error, msg string) error {
	return &Error{Kind: kind, Err: errors.Wrap(err, msg)}
}

// WrapErrorf wraps an existing error with a kind and formatted message.
func WrapErrorf(kind ErrorKind, err error, msg string, args ...any) error {
	return &Error{Kind: kind, Err: errors.Wrapf(err, msg, args...)}
}

// KindOf extracts the ErrorKind from anywhere in an error chain, or "" if the
// error carries no kind.
func KindOf(err error) ErrorKind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return ""
}

// IsKind reports whether an error chain carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
