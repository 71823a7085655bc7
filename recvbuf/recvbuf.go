// Package recvbuf implements stream-receive reassembly: buffering
// possibly out-of-order or duplicate byte ranges and exposing the
// contiguous in-order prefix to the application, per
// original_source/src/core/recv_buffer.h.
package recvbuf

import (
	"errors"

	"github.com/m-lab/quic-core/rangeset"
)

// ErrFlowControl is returned by Write when buffer-offset+length would
// exceed the virtual (flow-control-advertised) buffer length.
var ErrFlowControl = errors.New("recvbuf: write exceeds virtual buffer length")

// Buffer reassembles a stream's byte sequence from arbitrarily ordered,
// possibly overlapping writes. Unlike the circular allocation in
// original_source/src/core/recv_buffer.c, this implementation grows a
// single flat byte slice as needed; the reassembly semantics (out-of-order
// buffering, duplicate suppression via WrittenRanges, draining the
// delivered prefix) are the same.
type Buffer struct {
	// data holds bytes at stream offsets [baseOffset, baseOffset+len(data)).
	data []byte
	// baseOffset is the stream offset of data[0].
	baseOffset uint64
	// virtualLength is the flow-control limit advertised to the peer: the
	// highest stream offset (exclusive) the peer may write to.
	virtualLength uint64

	// written tracks which stream-offset bytes have actually been
	// received, for duplicate/overlap detection and to find the
	// contiguous in-order prefix.
	written *rangeset.Set

	// readOffset is how far the application has drained, in absolute
	// stream-offset terms.
	readOffset uint64
}

// New creates a Buffer with the given initial virtual (flow-control)
// length.
func New(virtualLength uint64) *Buffer {
	return &Buffer{
		virtualLength: virtualLength,
		written:       rangeset.New(0),
	}
}

// SetVirtualLength updates the flow-control limit advertised to the peer.
// It is a protocol violation for the new length to be smaller than one
// already advertised; callers are responsible for enforcing that at the
// flow-control layer.
func (b *Buffer) SetVirtualLength(newLength uint64) {
	b.virtualLength = newLength
}

// TotalLength returns the virtual buffer length currently advertised to
// the peer.
func (b *Buffer) TotalLength() uint64 {
	return b.virtualLength
}

// HasUnreadData reports whether there is a contiguous run of bytes,
// starting at readOffset, ready to be delivered to the application.
func (b *Buffer) HasUnreadData() bool {
	count, _, ok := b.written.GetRange(b.readOffset)
	return ok && count > 0
}

// Write buffers length bytes of buf at the given stream offset. It returns
// the number of new (previously unwritten) bytes accepted, and whether
// in-order data is now ready to be read. Duplicate bytes are silently
// accepted and do not count toward writeLength.
func (b *Buffer) Write(offset uint64, buf []byte) (writeLength uint64, readyToRead bool, err error) {
	length := uint64(len(buf))
	if offset+length > b.virtualLength {
		return 0, false, ErrFlowControl
	}
	if length == 0 {
		return 0, b.HasUnreadData(), nil
	}

	if len(b.data) == 0 {
		b.baseOffset = b.readOffset
	}

	end := offset + length
	if end > b.baseOffset+uint64(len(b.data)) {
		grown := make([]byte, end-b.baseOffset)
		copy(grown, b.data)
		b.data = grown
	}
	if offset < b.baseOffset {
		// Bytes before baseOffset have already been delivered (or
		// drained); clip the write to the tail that is still within the
		// current window, dropping the rest.
		if b.baseOffset >= offset+length {
			return 0, b.HasUnreadData(), nil
		}
		clipped := b.baseOffset - offset
		buf = buf[clipped:]
		offset = b.baseOffset
		length = uint64(len(buf))
	}

	var newBytes uint64
	for i := uint64(0); i < length; i++ {
		pos := offset + i
		if !b.written.Contains(pos) {
			newBytes++
		}
	}
	copy(b.data[offset-b.baseOffset:], buf)
	b.written.AddRange(offset, length)

	return newBytes, b.HasUnreadData(), nil
}

// Read returns the contiguous in-order bytes available starting at the
// current read offset, without draining them. The caller must call Drain
// with however many of the returned bytes it has consumed.
func (b *Buffer) Read() (offset uint64, data []byte, ok bool) {
	count, _, exists := b.written.GetRange(b.readOffset)
	if !exists || count == 0 {
		return 0, nil, false
	}
	start := b.readOffset - b.baseOffset
	return b.readOffset, b.data[start : start+count], true
}

// Drain marks length bytes, starting at the current read offset, as
// delivered to the application, freeing that span of the buffer. It
// reports whether there is no more data immediately available to read.
func (b *Buffer) Drain(length uint64) bool {
	b.readOffset += length
	b.written.SetMin(b.readOffset)
	if b.readOffset > b.baseOffset {
		trim := b.readOffset - b.baseOffset
		if trim > uint64(len(b.data)) {
			trim = uint64(len(b.data))
		}
		b.data = b.data[trim:]
		b.baseOffset += trim
	}
	return !b.HasUnreadData()
}
