package stream

import (
	"errors"
	"sort"
)

// ErrStreamLimitExceeded is returned when opening a stream would exceed
// the peer-negotiated count limit for its type.
var ErrStreamLimitExceeded = errors.New("stream: peer stream count limit exceeded")

// ErrUnknownStream is returned when looking up a stream ID this Set has
// never seen.
var ErrUnknownStream = errors.New("stream: unknown stream id")

// typeLimits tracks the per-type bookkeeping QUIC_STREAM_SET keeps: how
// many streams of this type have been opened, and the current
// MAX_STREAMS limit the peer has granted.
type typeLimits struct {
	maxCount     uint64
	openCount    uint64
	nextUnopened uint64
}

// Set owns every Stream on a connection, grouped by the four ID types,
// enforcing MAX_STREAMS limits and giving the send scheduler an ordering
// over streams with pending work.
type Set struct {
	streams map[ID]*Stream
	limits  [4]typeLimits

	// recvWindow is applied to every newly created stream's receive side.
	recvWindow uint64
}

// NewSet creates an empty Set. bidiLimit/unidiLimit bound how many
// peer-initiated streams of each directionality this endpoint will
// accept; recvWindow is the default per-stream flow-control window.
func NewSet(bidiLimit, unidiLimit, recvWindow uint64) *Set {
	s := &Set{
		streams:    make(map[ID]*Stream),
		recvWindow: recvWindow,
	}
	s.limits[TypeClientBidi] = typeLimits{maxCount: bidiLimit}
	s.limits[TypeServerBidi] = typeLimits{maxCount: bidiLimit}
	s.limits[TypeClientUnidi] = typeLimits{maxCount: unidiLimit}
	s.limits[TypeServerUnidi] = typeLimits{maxCount: unidiLimit}
	return s
}

// SetMaxCount updates the MAX_STREAMS limit granted for a stream type,
// e.g. on receipt of a MAX_STREAMS frame from the peer.
func (s *Set) SetMaxCount(t Type, maxCount uint64) {
	l := &s.limits[t]
	if maxCount > l.maxCount {
		l.maxCount = maxCount
	}
}

// Get returns the stream with the given ID, if it has been created.
func (s *Set) Get(id ID) (*Stream, bool) {
	st, ok := s.streams[id]
	return st, ok
}

// OpenLocal creates the next unopened stream of type t initiated by this
// endpoint, failing if doing so would exceed the peer-granted count.
func (s *Set) OpenLocal(t Type) (*Stream, error) {
	l := &s.limits[t]
	if l.nextUnopened >= l.maxCount {
		return nil, ErrStreamLimitExceeded
	}
	id := New(t, l.nextUnopened)
	l.nextUnopened++
	l.openCount++
	st := NewStream(id, s.recvWindow)
	s.streams[id] = st
	return st, nil
}

// OpenRemote returns the stream for a peer-initiated ID, implicitly
// creating it (and any lower-numbered streams of the same type that
// haven't been seen yet, per RFC 9000 section 2.1) if it does not
// already exist.
func (s *Set) OpenRemote(id ID) (*Stream, error) {
	if st, ok := s.streams[id]; ok {
		return st, nil
	}
	t := id.Type()
	count := id.Count()
	l := &s.limits[t]
	if count >= l.maxCount {
		return nil, ErrStreamLimitExceeded
	}
	for c := l.nextUnopened; c <= count; c++ {
		implicitID := New(t, c)
		if _, exists := s.streams[implicitID]; !exists {
			s.streams[implicitID] = NewStream(implicitID, s.recvWindow)
			l.openCount++
		}
	}
	l.nextUnopened = count + 1
	return s.streams[id], nil
}

// Remove deletes a stream that has reached a fully terminal state on
// both send and receive sides, freeing its memory.
func (s *Set) Remove(id ID) {
	delete(s.streams, id)
}

// Len returns how many streams this Set currently holds.
func (s *Set) Len() int { return len(s.streams) }

// WithPendingSend returns every stream that has unsent bytes, a queued
// FIN not yet sent, or a pending control frame, ordered by descending
// Priority then ascending ID for a deterministic, fair schedule.
func (s *Set) WithPendingSend() []*Stream {
	var pending []*Stream
	for _, st := range s.streams {
		if st.PendingSendBytes() > 0 || (st.finQueued && !st.HasFin()) || st.ControlFlags != 0 {
			pending = append(pending, st)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority > pending[j].Priority
		}
		return pending[i].ID < pending[j].ID
	})
	return pending
}
