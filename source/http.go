package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sweetpotato0/queryweave/evidence"
)

// StatusError converts a non-2xx HTTP status into a typed adapter error, or
// nil when the status indicates success. Rate-limit and payment statuses map
// to quota_exceeded so the orchestrator can report them distinctly.
func StatusError(src evidence.SourceKind, status int) error {
	switch {
	case status < 300:
		return nil
	case status == http.StatusNotFound:
		return NewError(src, ErrNotFound, fmt.Errorf("upstream returned status %d", status))
	case status == http.StatusTooManyRequests || status == http.StatusPaymentRequired:
		return NewError(src, ErrQuotaExceeded, fmt.Errorf("upstream returned status %d", status))
	default:
		return NewError(src, ErrUpstream, fmt.Errorf("upstream returned status %d", status))
	}
}

// TransportError types a transport-level failure: context expiry becomes a
// timeout, everything else an upstream error.
func TransportError(src evidence.SourceKind, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewError(src, ErrTimeout, err)
	}
	return NewError(src, ErrUpstream, err)
}
