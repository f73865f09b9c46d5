package upstream

import (
	"context"
	"errors"
	"fmt"
)

// ErrKind categorizes upstream failures so callers can pick a recovery
// strategy without string matching.
type ErrKind int

const (
	KindInternal ErrKind = iota
	KindRateLimited
	KindUnavailable
	KindNotFound
	KindBadResponse
	KindAuth
	KindCancelled
)

func (k ErrKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindUnavailable:
		return "upstream_unavailable"
	case KindNotFound:
		return "not_found"
	case KindBadResponse:
		return "bad_response"
	case KindAuth:
		return "auth"
	case KindCancelled:
		return "cancelled"
	default:
		return "internal"
	}
}

// Error wraps an upstream failure with its feed, operation and kind
type Error struct {
	Kind ErrKind
	Feed string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Feed, e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Feed, e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(feed, op string, kind ErrKind, err error) *Error {
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		kind = KindCancelled
	}
	return &Error{Kind: kind, Feed: feed, Op: op, Err: err}
}

// KindOf extracts the error kind, defaulting to internal
func KindOf(err error) ErrKind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindInternal
}

// IsNotFound reports whether err categorizes as a missing upstream resource
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsRateLimited reports whether err categorizes as an exhausted rate budget
func IsRateLimited(err error) bool { return KindOf(err) == KindRateLimited }

// IsUnavailable reports whether err categorizes as upstream being down
func IsUnavailable(err error) bool { return KindOf(err) == KindUnavailable }

// Retriable reports whether a fallback feed is worth trying
func Retriable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindUnavailable:
		return true
	default:
		return false
	}
}
