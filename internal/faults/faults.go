package faults

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a failure for retry and HTTP mapping decisions.
type Kind string

const (
	KindNetwork        Kind = "network"
	KindProvider       Kind = "provider"
	KindValidation     Kind = "validation"
	KindAuth           Kind = "auth"
	KindInfrastructure Kind = "infrastructure"
	KindUnknown        Kind = "unknown"
)

// Error carries a classified failure across component boundaries.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a classified error wrapping an optional cause.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// KindOf extracts the classification from an error chain, defaulting
// to unknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	return KindUnknown
}

// Retryable reports whether an operation failing with this kind is worth
// retrying. Validation and auth failures never are; provider failures are
// recovered locally as degraded results, never retried.
func Retryable(kind Kind) bool {
	switch kind {
	case KindNetwork, KindInfrastructure, KindUnknown:
		return true
	default:
		return false
	}
}

// HTTPStatus maps a kind to the response status for non-streaming calls.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindNetwork, KindProvider:
		return http.StatusBadGateway
	case KindInfrastructure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
