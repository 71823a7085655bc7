// Package datagram implements the unreliable, unordered QUIC DATAGRAM
// extension for a single connection: an application-facing send queue
// (priority and best-effort), draining into outgoing packets through
// WriteFrame, and a receive path that decodes inbound frames and hands
// the payload to the application. Grounded on
// original_source/src/core/datagram.c/datagram.h's QUIC_DATAGRAM.
package datagram

import (
	"errors"
	"sync"

	"github.com/m-lab/quic-core/frame"
	"github.com/m-lab/quic-core/packetbuilder"
	"github.com/m-lab/quic-core/sentpacket"
)

// ErrDisabled is returned by QueueSend when datagram support is not
// currently enabled, mirroring QuicDatagramQueueSend's
// QUIC_STATUS_INVALID_STATE path.
var ErrDisabled = errors.New("datagram: not enabled")

// frameTypeDatagram matches frame.TypeDatagramWithLen's wire value, kept
// local so sentpacket's loss-detection bookkeeping doesn't need to
// import the frame package.
const frameTypeDatagram sentpacket.Type = sentpacket.Type(frame.TypeDatagramWithLen)

// SendState mirrors QUIC_DATAGRAM_SEND_STATE: how a queued send request
// was ultimately resolved.
type SendState int

const (
	SendStateSent SendState = iota
	SendStateCanceled
)

func (s SendState) String() string {
	if s == SendStateSent {
		return "sent"
	}
	return "canceled"
}

// SendRequest is one application-queued outgoing datagram.
type SendRequest struct {
	Data []byte
	// Priority requests are written ahead of best-effort ones.
	Priority bool
	// Allow0RTT permits this datagram to go out in a 0-RTT packet.
	Allow0RTT bool
	Context   interface{}
}

// Queue manages one connection's unreliable datagram traffic. Requests
// land on an application-facing API queue; Flush moves them onto the
// priority/best-effort send queues WriteFrame drains into packets. Two
// separate send-queue slices stand in for the original's single
// linked-list-with-a-splice-point representation — equivalent ordering
// (priority before best-effort, FIFO within each), simpler in Go.
type Queue struct {
	mu        sync.Mutex
	enabled   bool
	maxLength uint16

	apiQueue          []*SendRequest
	prioritySendQueue []*SendRequest
	sendQueue         []*SendRequest

	// OnSendStateChanged reports, best-effort, that a previously queued
	// send either went out (SendStateSent) or was discarded before it
	// could (SendStateCanceled), mirroring
	// QUIC_CONNECTION_EVENT_DATAGRAM_SEND_STATE_CHANGED.
	OnSendStateChanged func(ctx interface{}, state SendState)

	// OnReceived delivers one decoded, unreliable payload to the
	// application, mirroring QUIC_CONNECTION_EVENT_DATAGRAM_RECEIVED.
	OnReceived func(data []byte)
}

// New returns a Queue with datagram support disabled.
func New() *Queue {
	return &Queue{}
}

// SetEnabled turns datagram support on or off. Disabling cancels every
// request still outstanding, mirroring QuicDatagramShutdown.
func (q *Queue) SetEnabled(enabled bool) {
	q.mu.Lock()
	if q.enabled == enabled {
		q.mu.Unlock()
		return
	}
	q.enabled = enabled
	var pending []*SendRequest
	if !enabled {
		pending = q.clearLocked()
	}
	q.mu.Unlock()
	q.cancelAll(pending)
}

// Enabled reports whether datagram support is currently on.
func (q *Queue) Enabled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enabled
}

// SetMaxLength updates the largest outgoing DATAGRAM frame payload the
// current path can carry. The caller computes length from path MTU,
// destination CID length, and the peer's advertised
// max_datagram_frame_size (CalculateMaxLength helps with the first part);
// a length of 0 disables and cancels outstanding sends, mirroring
// QuicDatagramUpdateMaxLength.
func (q *Queue) SetMaxLength(length uint16) {
	q.mu.Lock()
	q.maxLength = length
	var pending []*SendRequest
	if length == 0 {
		pending = q.clearLocked()
	}
	q.mu.Unlock()
	q.cancelAll(pending)
}

// MaxLength returns the current outgoing DATAGRAM frame payload limit.
func (q *Queue) MaxLength() uint16 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.maxLength
}

// QueueSend accepts data for eventual transmission, returning
// ErrDisabled if datagram support is not currently enabled, mirroring
// QuicDatagramQueueSend.
func (q *Queue) QueueSend(data []byte, priority, allow0RTT bool, ctx interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.enabled {
		return ErrDisabled
	}
	q.apiQueue = append(q.apiQueue, &SendRequest{
		Data:      data,
		Priority:  priority,
		Allow0RTT: allow0RTT,
		Context:   ctx,
	})
	return nil
}

// Flush moves every request queued by QueueSend onto the priority or
// best-effort send queue, mirroring QuicDatagramSendFlush. It reports
// whether the connection now has datagram data ready to send, so the
// caller can raise its DATAGRAM send flag.
func (q *Queue) Flush() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, req := range q.apiQueue {
		if req.Priority {
			q.prioritySendQueue = append(q.prioritySendQueue, req)
		} else {
			q.sendQueue = append(q.sendQueue, req)
		}
	}
	q.apiQueue = nil
	return len(q.prioritySendQueue) > 0 || len(q.sendQueue) > 0
}

// HasPendingSend reports whether any flushed request is still waiting to
// be written into a packet.
func (q *Queue) HasPendingSend() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.prioritySendQueue) > 0 || len(q.sendQueue) > 0
}

func (q *Queue) peekLocked() *SendRequest {
	if len(q.prioritySendQueue) > 0 {
		return q.prioritySendQueue[0]
	}
	if len(q.sendQueue) > 0 {
		return q.sendQueue[0]
	}
	return nil
}

func (q *Queue) popLocked() {
	if len(q.prioritySendQueue) > 0 {
		q.prioritySendQueue = q.prioritySendQueue[1:]
		return
	}
	q.sendQueue = q.sendQueue[1:]
}

// WriteFrame drains the send queue into b, one DATAGRAM frame per
// request, until the queue empties, the current packet has no more
// room, or (when is0RTT) it reaches a request that does not permit
// 0-RTT. It reports whether every queued request was resolved,
// mirroring QuicDatagramWriteFrame's return value — false tells the
// caller to retry the remainder in a fresh packet.
func (q *Queue) WriteFrame(b *packetbuilder.Builder, is0RTT bool) bool {
	for {
		q.mu.Lock()
		req := q.peekLocked()
		if req == nil {
			q.mu.Unlock()
			return true
		}
		if is0RTT && !req.Allow0RTT {
			q.mu.Unlock()
			return false
		}
		encoded := frame.EncodeDatagram(nil, frame.Datagram{Data: req.Data})
		err := b.AddFrame(encoded, true, sentpacket.FrameRef{Type: frameTypeDatagram})
		if err != nil {
			q.mu.Unlock()
			return false
		}
		q.popLocked()
		q.mu.Unlock()
		q.resolve(req, SendStateSent)
	}
}

// ProcessFrame decodes a received DATAGRAM frame and delivers its
// payload via OnReceived, mirroring QuicDatagramProcessFrame. Like
// frame.DecodeDatagram, data is everything after the frame's type
// varint (already consumed by the caller's frame-dispatch loop); it
// returns the number of bytes of data consumed.
func (q *Queue) ProcessFrame(typ frame.Type, data []byte) (int, error) {
	f, n, err := frame.DecodeDatagram(typ, data)
	if err != nil {
		return 0, err
	}
	q.mu.Lock()
	cb := q.OnReceived
	q.mu.Unlock()
	if cb != nil {
		cb(f.Data)
	}
	return n, nil
}

func (q *Queue) clearLocked() []*SendRequest {
	pending := make([]*SendRequest, 0, len(q.apiQueue)+len(q.prioritySendQueue)+len(q.sendQueue))
	pending = append(pending, q.apiQueue...)
	pending = append(pending, q.prioritySendQueue...)
	pending = append(pending, q.sendQueue...)
	q.apiQueue = nil
	q.prioritySendQueue = nil
	q.sendQueue = nil
	return pending
}

func (q *Queue) cancelAll(pending []*SendRequest) {
	if len(pending) == 0 {
		return
	}
	q.mu.Lock()
	cb := q.OnSendStateChanged
	q.mu.Unlock()
	for _, req := range pending {
		if cb != nil {
			cb(req.Context, SendStateCanceled)
		}
	}
}

func (q *Queue) resolve(req *SendRequest, state SendState) {
	q.mu.Lock()
	cb := q.OnSendStateChanged
	q.mu.Unlock()
	if cb != nil {
		cb(req.Context, state)
	}
}

// CalculateMaxLength computes the largest payload a DATAGRAM frame can
// carry given the current path's MTU, destination connection ID length,
// and AEAD overhead, mirroring QuicCalculateDatagramLength.
func CalculateMaxLength(mtu, destCIDLength, aeadOverhead int) uint16 {
	const minShortHeaderLength = 1
	const datagramFrameHeaderLength = 3
	length := mtu - minShortHeaderLength - destCIDLength - datagramFrameHeaderLength - aeadOverhead
	if length < 0 {
		return 0
	}
	return uint16(length)
}
