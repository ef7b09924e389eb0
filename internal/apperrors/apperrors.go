// Package apperrors declares the closed set of error kinds the sync
// and classifies them using containerd/errdefs so callers elsewhere in
// the stack (logging, metrics, the CLI's exit-code mapping) can use
// errdefs.Is* instead of re-deriving the mapping.
package apperrors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/containerd/errdefs"
)

// Sentinel errors for the nine dispositions. Wrap with fmt.Errorf's
// %w and match with errors.Is.
var (
	ErrEnvelopeInvalid    = errdefs.ErrInvalidArgument
	ErrDuplicateInbound    = errors.New("duplicate inbound")
	ErrApplyMissingField   = errdefs.ErrInvalidArgument
	ErrApplyStoreFailure   = errdefs.ErrUnavailable
	ErrUnsupportedOp       = errdefs.ErrNotImplemented
	ErrTransportFailure    = errdefs.ErrUnavailable
	ErrAckUnknownStatus    = errdefs.ErrUnknown
	ErrHandshakeTimeout    = context.DeadlineExceeded // matched by errdefs.IsDeadlineExceeded
	ErrProfileDisabled     = errdefs.ErrFailedPrecondition
)

// Kind names the nine dispositions, used for log fields and
// metric labels where a stable string is clearer than an error value.
type Kind string

const (
	KindEnvelopeInvalid  Kind = "envelope_invalid"
	KindDuplicateInbound Kind = "duplicate_inbound"
	KindApplyMissingField Kind = "apply_missing_field"
	KindApplyStoreFailure Kind = "apply_store_failure"
	KindUnsupportedOp     Kind = "unsupported_op"
	KindTransportFailure  Kind = "transport_failure"
	KindAckUnknownStatus  Kind = "ack_unknown_status"
	KindHandshakeTimeout  Kind = "handshake_timeout"
	KindProfileDisabled   Kind = "profile_disabled"
)

// MissingField builds an ApplyMissingField error carrying the
// `missing_<field>` reason string required on a rejected_invalid ack.
func MissingField(field string) error {
	return fmt.Errorf("%w: missing_%s", ErrApplyMissingField, field)
}

// StoreFailure wraps a bookmark-store error as ApplyStoreFailure,
// preserving the underlying message for the skipped_ambiguous reason.
func StoreFailure(cause error) error {
	return fmt.Errorf("%w: %v", ErrApplyStoreFailure, cause)
}

// UnsupportedAction builds an UnsupportedOp error for an unknown `op`.
func UnsupportedAction(op string) error {
	return fmt.Errorf("%w: unsupported_action: %s", ErrUnsupportedOp, op)
}

// Reason extracts the human-readable reason suffix from an error built
// by this package, for embedding in an ack's `reason` field.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if sentinel := errors.Unwrap(err); sentinel != nil {
		msg = strings.TrimPrefix(msg, sentinel.Error()+": ")
	}
	return msg
}
