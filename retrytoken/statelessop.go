package retrytoken

import "github.com/rs/xid"

// OperationKind identifies why a binding queued a stateless operation,
// mirroring original_source/src/core/binding.h's QUIC_OPERATION_TYPE
// values that apply before a connection exists to own the operation.
type OperationKind int

const (
	OperationRetry OperationKind = iota
	OperationVersionNegotiation
	OperationStatelessReset
)

func (k OperationKind) String() string {
	switch k {
	case OperationRetry:
		return "retry"
	case OperationVersionNegotiation:
		return "version-negotiation"
	case OperationStatelessReset:
		return "stateless-reset"
	default:
		return "unknown"
	}
}

// OperationLabel is a compact, time-sortable identifier for one stateless
// operation context, distinct from any wire connection ID: it exists only
// to correlate a binding's log lines and metrics for one Retry /
// Version Negotiation / stateless reset with the datagram that triggered
// it, the way original_source's QUIC_STATELESS_CONTEXT is referenced by
// pointer identity in its own logs.
type OperationLabel struct {
	ID   xid.ID
	Kind OperationKind
}

// NewOperationLabel mints a fresh label for a stateless operation of the
// given kind.
func NewOperationLabel(kind OperationKind) OperationLabel {
	return OperationLabel{ID: xid.New(), Kind: kind}
}

// String renders the label as "<kind>:<id>" for log lines.
func (l OperationLabel) String() string {
	return l.Kind.String() + ":" + l.ID.String()
}
