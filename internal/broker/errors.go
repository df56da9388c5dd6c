package broker

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies broker failures for retry and containment decisions
type ErrorKind string

const (
	KindTimeout      ErrorKind = "timeout"
	KindUnauthorized ErrorKind = "unauthorized"
	KindRateLimited  ErrorKind = "rate_limited"
	KindTransient    ErrorKind = "transient"
	KindNotFound     ErrorKind = "not_found"
	KindPermanent    ErrorKind = "permanent"
)

// Error is a classified broker failure. RetryAfter is set when the broker
// provided an explicit delay hint on rate limiting.
type Error struct {
	Kind       ErrorKind
	Symbol     string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("broker %s (%s): %v", e.Kind, e.Symbol, e.Err)
	}
	return fmt.Sprintf("broker %s (%s)", e.Kind, e.Symbol)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a classified broker error
func NewError(kind ErrorKind, symbol string, err error) *Error {
	return &Error{Kind: kind, Symbol: symbol, Err: err}
}

// KindOf extracts the error kind; context deadline errors map to timeout,
// anything unclassified is treated as transient.
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindTransient
}

// Retryable reports whether the fetcher may retry after this error
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindTransient:
		return true
	default:
		return false
	}
}
