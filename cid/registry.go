package cid

import "errors"

// ErrUnknownSequenceNumber is returned when a caller references a CID
// sequence number the registry has never issued or received.
var ErrUnknownSequenceNumber = errors.New("cid: unknown sequence number")

// ErrActivePathUsesCID is returned by Retire when asked to retire the CID
// currently bound to the active path.
var ErrActivePathUsesCID = errors.New("cid: cannot retire the CID in active use")

// Registry tracks the set of connection IDs of one kind (source or
// destination) associated with a connection, keyed by sequence number, per
// the NEW_CONNECTION_ID/RETIRE_CONNECTION_ID bookkeeping described in
// spec.md section 7.
type Registry struct {
	bySequence map[uint64]*CID
	nextSeq    uint64
	// activeSeq is the sequence number of the CID currently bound to the
	// active path, for destination registries.
	activeSeq uint64
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{bySequence: make(map[uint64]*CID)}
}

// Add inserts a CID the caller has already constructed, keyed by its
// SequenceNumber.
func (r *Registry) Add(c *CID) {
	r.bySequence[c.SequenceNumber] = c
	if c.SequenceNumber >= r.nextSeq {
		r.nextSeq = c.SequenceNumber + 1
	}
}

// NextSequenceNumber returns the next unused sequence number, for issuing a
// new source CID.
func (r *Registry) NextSequenceNumber() uint64 {
	return r.nextSeq
}

// Get returns the CID with the given sequence number, if known.
func (r *Registry) Get(seq uint64) (*CID, bool) {
	c, ok := r.bySequence[seq]
	return c, ok
}

// Active returns the CID currently bound to the active path, if set.
func (r *Registry) Active() (*CID, bool) {
	return r.Get(r.activeSeq)
}

// SetActive marks the CID with the given sequence number as bound to the
// active path.
func (r *Registry) SetActive(seq uint64) error {
	c, ok := r.bySequence[seq]
	if !ok {
		return ErrUnknownSequenceNumber
	}
	c.UsedLocally = true
	r.activeSeq = seq
	return nil
}

// RetirePriorTo retires every CID with a sequence number below upTo, as
// directed by a peer's "Retire Prior To" field on a NEW_CONNECTION_ID frame
// (RFC 9000 section 19.15). It refuses to retire the active CID; the
// caller must first migrate to a newer one.
func (r *Registry) RetirePriorTo(upTo uint64) ([]*CID, error) {
	if upTo > r.activeSeq {
		if _, ok := r.bySequence[r.activeSeq]; ok {
			return nil, ErrActivePathUsesCID
		}
	}
	var retired []*CID
	for seq, c := range r.bySequence {
		if seq < upTo && !c.Retired {
			c.Retire()
			retired = append(retired, c)
		}
	}
	return retired, nil
}

// Remove deletes a CID once its retirement has been fully acknowledged by
// the peer (for destination CIDs) or the peer has confirmed retirement (for
// source CIDs).
func (r *Registry) Remove(seq uint64) {
	delete(r.bySequence, seq)
}

// PendingFrames returns every CID that still needs a NEW_CONNECTION_ID or
// RETIRE_CONNECTION_ID frame sent (or resent after loss), per each CID's
// NeedsToSend flag.
func (r *Registry) PendingFrames() []*CID {
	var out []*CID
	for _, c := range r.bySequence {
		if c.NeedsToSend {
			out = append(out, c)
		}
	}
	return out
}

// Len returns the number of CIDs tracked.
func (r *Registry) Len() int {
	return len(r.bySequence)
}
