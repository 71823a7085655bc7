// Package sendsched decides what a connection should send next: which
// connection-level control frames are pending, which streams have data or
// control frames queued, and in what order a drain pass should visit them.
// It does not itself touch the network; packetbuilder and connection wire
// its output into wire bytes. Grounded on
// original_source/src/core/send.h (QUIC_SEND, QUIC_CONN_SEND_FLAG_*).
package sendsched

import "github.com/m-lab/quic-core/stream"

// Flag enumerates connection-level control frames awaiting transmission,
// in the order original_source/src/core/send.h's comment says they are
// framed into a packet.
type Flag uint32

const (
	FlagACK Flag = 1 << iota
	FlagCrypto
	FlagConnectionClose
	FlagApplicationClose
	FlagDataBlocked
	FlagMaxData
	FlagMaxStreamsBidi
	FlagMaxStreamsUnidi
	FlagNewConnectionID
	FlagRetireConnectionID
	FlagPathChallenge
	FlagPathResponse
	FlagPing
	FlagHandshakeDone
	FlagDatagram
	FlagAckFrequency
	FlagPathMTUDiscovery
)

// BypassCC is the subset of flags allowed through even when the
// congestion window is full: ACKs must always go out, and so must the
// frames that tear a connection down.
const BypassCC = FlagACK | FlagConnectionClose | FlagApplicationClose

// ConnClosedMask is cleared by OnConnectionClosing once the connection
// has begun closing; none of these frames make sense to send to a peer
// that's already being told the connection is over. SetFlag does not
// check it, so a later SetFlag call can set these flags again.
const ConnClosedMask = FlagDataBlocked | FlagMaxData | FlagMaxStreamsBidi |
	FlagMaxStreamsUnidi | FlagNewConnectionID | FlagRetireConnectionID |
	FlagPathChallenge | FlagPathResponse | FlagPing | FlagDatagram |
	FlagAckFrequency | FlagPathMTUDiscovery

// AllowedDuringHandshake is the subset of flags that may be sent before
// the handshake completes.
const AllowedDuringHandshake = FlagACK | FlagCrypto | FlagConnectionClose | FlagPing

// Reason records why a flush was requested, for logging/metrics, mirroring
// QUIC_SEND_FLUSH_REASON.
type Reason int

const (
	ReasonConnectionFlags Reason = iota
	ReasonStreamFlags
	ReasonProbe
	ReasonLoss
	ReasonAck
	ReasonTransportParameters
	ReasonCongestionControl
	ReasonConnectionFlowControl
	ReasonNewKey
	ReasonStreamFlowControl
	ReasonStreamIDFlowControl
	ReasonAmplificationProtection
	ReasonScheduling
	ReasonRouteCompletion
)

// Scheduler tracks connection-level send flags and delegates per-stream
// scheduling to a stream.Set, producing the ordered work list a drain
// pass should consume.
type Scheduler struct {
	flags Flag

	flushPending       bool
	delayedAckActive   bool
	tailLossProbeNeeded bool

	maxData     uint64
	peerMaxData uint64

	streams *stream.Set
}

// New creates a Scheduler backed by the given stream set.
func New(streams *stream.Set) *Scheduler {
	return &Scheduler{streams: streams}
}

// SetFlag marks a connection-level flag as pending. It reports whether the
// flag was newly set; a caller that wants "is this flag queued at all"
// should check HasFlag instead.
func (s *Scheduler) SetFlag(flag Flag) bool {
	if s.flags&flag != 0 {
		return false
	}
	s.flags |= flag
	return true
}

// ClearFlag removes a connection-level flag.
func (s *Scheduler) ClearFlag(flag Flag) {
	s.flags &^= flag
}

// HasFlag reports whether flag is currently pending.
func (s *Scheduler) HasFlag(flag Flag) bool {
	return s.flags&flag != 0
}

// OnConnectionClosing clears every flag that no longer makes sense once
// the connection has begun its close sequence. It records no closing
// state: SetFlag still accepts those flags afterwards.
func (s *Scheduler) OnConnectionClosing() {
	s.flags &^= ConnClosedMask
}

// PendingFlags returns every connection-level flag still awaiting
// transmission, restricted to the handshake-allowed subset if
// handshakeComplete is false.
func (s *Scheduler) PendingFlags(handshakeComplete bool) Flag {
	if handshakeComplete {
		return s.flags
	}
	return s.flags & AllowedDuringHandshake
}

// RequestFlush marks a flush as pending for reason. The caller (typically
// the connection's operation queue) is responsible for actually queuing a
// FLUSH_SEND operation; Scheduler only tracks whether one is outstanding
// so duplicate requests collapse into one drain pass.
func (s *Scheduler) RequestFlush(reason Reason) (alreadyPending bool) {
	alreadyPending = s.flushPending
	s.flushPending = true
	return alreadyPending
}

// FlushHandled clears the pending-flush marker once a drain pass has run.
func (s *Scheduler) FlushHandled() {
	s.flushPending = false
}

// RequestTailLossProbe marks that a PTO fired and at least one probe
// packet must be sent even if there is otherwise nothing new to say.
func (s *Scheduler) RequestTailLossProbe() {
	s.tailLossProbeNeeded = true
}

// TailLossProbeNeeded reports and clears the tail-loss-probe marker.
func (s *Scheduler) TailLossProbeNeeded() bool {
	needed := s.tailLossProbeNeeded
	s.tailLossProbeNeeded = false
	return needed
}

// StreamsReadyToSend returns every stream with data or control frames
// queued, in the order the drain pass should visit them.
func (s *Scheduler) StreamsReadyToSend() []*stream.Stream {
	return s.streams.WithPendingSend()
}

// CanSendAnything reports whether there is connection-level or per-stream
// work pending at all, i.e. whether a drain pass would have anything to
// do. congestionAllows should be the congestion controller's CanSend()
// result; flags in BypassCC are offered regardless.
func (s *Scheduler) CanSendAnything(handshakeComplete, congestionAllows bool) bool {
	if s.PendingFlags(handshakeComplete)&BypassCC != 0 {
		return true
	}
	if !congestionAllows {
		return false
	}
	if s.PendingFlags(handshakeComplete) != 0 {
		return true
	}
	return len(s.streams.WithPendingSend()) > 0
}

// SetMaxData updates the value this endpoint will advertise in its next
// MAX_DATA frame and marks the frame pending if it grew.
func (s *Scheduler) SetMaxData(newMaxData uint64) {
	if newMaxData > s.maxData {
		s.maxData = newMaxData
		s.SetFlag(FlagMaxData)
	}
}

// MaxData returns the value to send in the next MAX_DATA frame.
func (s *Scheduler) MaxData() uint64 { return s.maxData }

// SetPeerMaxData records the connection-level flow control limit the peer
// has granted via its own MAX_DATA frame.
func (s *Scheduler) SetPeerMaxData(limit uint64) {
	if limit > s.peerMaxData {
		s.peerMaxData = limit
		s.ClearFlag(FlagDataBlocked)
	}
}

// PeerMaxData returns the connection-level send limit the peer has
// granted.
func (s *Scheduler) PeerMaxData() uint64 { return s.peerMaxData }

// Reset clears all pending flags and probe/flush state, e.g. when a
// connection is reused from a pool.
func (s *Scheduler) Reset() {
	s.flags = 0
	s.flushPending = false
	s.delayedAckActive = false
	s.tailLossProbeNeeded = false
	s.maxData = 0
	s.peerMaxData = 0
}
