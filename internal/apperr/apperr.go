// Package apperr defines the stable error vocabulary shared by every service
// layer. Handlers translate a Kind to an HTTP status; services never leak raw
// provider errors across their boundary.
package apperr

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Kind is a stable string code attached to every error that crosses a
// component boundary.
type Kind string

const (
	KindInvalidInput         Kind = "invalid_input"
	KindUpstreamNotFound     Kind = "upstream_not_found"
	KindUpstreamUnauthorized Kind = "upstream_unauthorized"
	KindUpstreamRateLimited  Kind = "upstream_rate_limited"
	KindUpstreamNetwork      Kind = "upstream_network"
	KindProviderRateLimited  Kind = "provider_rate_limited"
	KindProviderTimeout      Kind = "provider_timeout"
	KindProviderFiltered     Kind = "provider_content_filtered"
	KindProviderOther        Kind = "provider_other"
	KindValidationFailed     Kind = "validation_failed"
	KindAssemblyFailed       Kind = "assembly_failed"
	KindStorageFailed        Kind = "storage_failed"
	KindNotFound             Kind = "not_found"
	KindInternal             Kind = "internal"
)

// Error carries a kind, a user-facing message and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an error with a kind and a formatted message.
func E(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from err, or KindInternal if it carries none.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool { return KindOf(err) == kind }

// Message returns the user-facing message for err without the wrapped cause.
func Message(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "internal error"
}

// HTTPStatus maps a kind to the response status the handlers use.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidInput:
		return fiber.StatusBadRequest
	case KindUpstreamNotFound, KindNotFound:
		return fiber.StatusNotFound
	case KindUpstreamUnauthorized:
		return fiber.StatusUnauthorized
	case KindUpstreamRateLimited, KindProviderRateLimited:
		return fiber.StatusTooManyRequests
	case KindProviderTimeout:
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

// ToFiber converts any error into a fiber error carrying the mapped status
// and the kind-prefixed message body.
func ToFiber(err error) error {
	kind := KindOf(err)
	return fiber.NewError(HTTPStatus(kind), fmt.Sprintf("%s: %s", kind, Message(err)))
}
