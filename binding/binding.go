// Package binding implements the UDP socket binding layer a server or
// client shares across its connections: the connection-ID lookup table
// that demultiplexes inbound datagrams, stateless-operation bookkeeping
// (Retry, Version Negotiation, stateless reset), and platform datapath
// helpers (ECN marking, path MTU), grounded on
// original_source/src/core/binding.h and lookup.h.
package binding

import (
	"errors"
	"log"
	"net"
	"sync"
	"time"

	"github.com/m-lab/go/logx"

	"github.com/m-lab/quic-core/connection"
	"github.com/m-lab/quic-core/metrics"
	"github.com/m-lab/quic-core/retrytoken"
)

// DropReason labels why a received datagram was discarded before reaching
// any connection, for metrics.PacketsDroppedTotal.
type DropReason string

const (
	DropShortDatagram    DropReason = "short_datagram"
	DropUnknownCID       DropReason = "unknown_cid"
	DropAmplificationCap DropReason = "amplification_cap"
	DropDecryptFailed    DropReason = "decrypt_failed"
)

// ErrAlreadyQueued is returned by QueueStatelessOperation when an
// operation of any kind is already outstanding for the given remote
// address, or when the binding already holds
// MaxStatelessOperationsPerBinding operations, mirroring the original's StatelessOperTable de-duplication
// that bounds how many Retry/Version-Negotiation responses a single
// remote address can have in flight (an amplification-attack defense).
var ErrAlreadyQueued = errors.New("binding: stateless operation already queued for this remote")

// MaxStatelessOperationsPerBinding caps how many stateless contexts a
// Binding holds concurrently, matching the original's QUIC_MAX_STATELESS
// fixed pool size rather than letting the table grow unbounded under
// attack.
const MaxStatelessOperationsPerBinding = 256

// StatelessOperation is one in-flight Retry, Version Negotiation, or
// stateless reset response a Binding is composing, before any Connection
// exists to own it.
type StatelessOperation struct {
	Label      retrytoken.OperationLabel
	RemoteAddr *net.UDPAddr
	QueuedAt   time.Time
}

// Binding is a UDP local-address (and, once Connected, remote-address)
// binding shared by every connection multiplexed onto the same socket.
type Binding struct {
	LocalAddr   *net.UDPAddr
	RemoteAddr  *net.UDPAddr // non-nil once Connected
	ServerOwned bool

	Lookup     *Lookup
	RemoteHash *RemoteHashTable

	conn *net.UDPConn

	statelessMu    sync.Mutex
	statelessByKey map[string]*StatelessOperation
	droppedPackets uint64
}

// Config supplies a Binding's construction-time parameters.
type Config struct {
	LocalAddr   *net.UDPAddr
	ServerOwned bool
	// Conn is the already-bound datapath socket. Tests may leave this nil
	// and exercise the lookup/stateless-operation logic without a real
	// socket.
	Conn *net.UDPConn
}

// New constructs a Binding around an already-bound UDP socket.
func New(cfg Config) *Binding {
	b := &Binding{
		LocalAddr:      cfg.LocalAddr,
		ServerOwned:    cfg.ServerOwned,
		Lookup:         NewLookup(),
		RemoteHash:     NewRemoteHashTable(),
		conn:           cfg.Conn,
		statelessByKey: make(map[string]*StatelessOperation),
	}
	return b
}

// AddSourceConnectionID registers a connection's newly issued source CID
// with the binding's lookup table, mirroring QuicBindingAddSourceConnectionID.
func (b *Binding) AddSourceConnectionID(cidBytes []byte, conn *connection.Connection) (*connection.Connection, error) {
	collision, err := b.Lookup.AddLocalCID(cidBytes, conn)
	if err == nil {
		metrics.ActiveConnectionsGauge.Set(float64(b.Lookup.Len()))
	}
	return collision, err
}

// RemoveSourceConnectionID unregisters a single CID, mirroring
// QuicBindingRemoveSourceConnectionID.
func (b *Binding) RemoveSourceConnectionID(cidBytes []byte) {
	b.Lookup.RemoveLocalCID(cidBytes)
}

// RemoveConnection unregisters every CID owned by conn, mirroring
// QuicBindingRemoveConnection.
func (b *Binding) RemoveConnection(conn *connection.Connection) {
	b.Lookup.RemoveConnection(conn)
	metrics.ActiveConnectionsGauge.Set(float64(b.Lookup.Len()))
}

// MoveSourceConnectionIDs transfers every CID owned by conn from b to
// dest, mirroring QuicBindingMoveSourceConnectionIDs (connection
// migration between bindings).
func (b *Binding) MoveSourceConnectionIDs(dest *Binding, conn *connection.Connection) {
	b.Lookup.MoveTo(dest.Lookup, conn)
}

// OnConnectionHandshakeConfirmed records that a connection no longer needs
// the binding to route long-header/handshake-only packets to it,
// mirroring QuicBindingOnConnectionHandshakeConfirmed. Logged at debug
// level only; the lookup table itself is keyed by CID regardless of
// header type; so there is no separate table to update here.
func (b *Binding) OnConnectionHandshakeConfirmed(conn *connection.Connection) {
	logx.Debug.Printf("binding: handshake confirmed, %d CIDs still routed by local CID", b.Lookup.Len())
}

// QueueStatelessOperation reserves a stateless-operation slot for
// remoteAddr, refusing a second concurrent operation for the same remote
// address (ErrAlreadyQueued) and refusing any new operation once the
// binding already holds MaxStatelessOperationsPerBinding, both bounding
// the amplification an attacker can trigger by spoofing a source address,
// per the original's StatelessOperTable/StatelessOperCount bookkeeping.
func (b *Binding) QueueStatelessOperation(kind retrytoken.OperationKind, remoteAddr *net.UDPAddr) (*StatelessOperation, error) {
	b.statelessMu.Lock()
	defer b.statelessMu.Unlock()

	key := remoteAddr.String()
	if _, exists := b.statelessByKey[key]; exists {
		metrics.PacketsDroppedTotal.WithLabelValues(string(DropAmplificationCap)).Inc()
		return nil, ErrAlreadyQueued
	}
	if len(b.statelessByKey) >= MaxStatelessOperationsPerBinding {
		metrics.PacketsDroppedTotal.WithLabelValues(string(DropAmplificationCap)).Inc()
		return nil, ErrAlreadyQueued
	}

	op := &StatelessOperation{
		Label:      retrytoken.NewOperationLabel(kind),
		RemoteAddr: remoteAddr,
		QueuedAt:   time.Now(),
	}
	b.statelessByKey[key] = op
	return op, nil
}

// ReleaseStatelessOperation frees the slot reserved by QueueStatelessOperation,
// mirroring QuicBindingReleaseStatelessOperation.
func (b *Binding) ReleaseStatelessOperation(op *StatelessOperation) {
	b.statelessMu.Lock()
	defer b.statelessMu.Unlock()
	delete(b.statelessByKey, op.RemoteAddr.String())
}

// RecordDroppedPacket increments the drop counter for reason, mirroring
// QUIC_BINDING.Stats.Recv.DroppedPackets.
func (b *Binding) RecordDroppedPacket(reason DropReason) {
	b.statelessMu.Lock()
	b.droppedPackets++
	b.statelessMu.Unlock()
	metrics.PacketsDroppedTotal.WithLabelValues(string(reason)).Inc()
}

// DroppedPackets returns the total number of packets RecordDroppedPacket
// has recorded.
func (b *Binding) DroppedPackets() uint64 {
	b.statelessMu.Lock()
	defer b.statelessMu.Unlock()
	return b.droppedPackets
}

// Send writes data to remoteAddr on the binding's socket, mirroring
// QuicBindingSend. Returns an error if the binding was constructed without
// a live socket (e.g. in a unit test exercising only the lookup/stateless
// logic).
func (b *Binding) Send(data []byte, remoteAddr *net.UDPAddr) error {
	if b.conn == nil {
		return errors.New("binding: no datapath socket bound")
	}
	n, err := b.conn.WriteToUDP(data, remoteAddr)
	if err != nil {
		log.Printf("binding: send to %v failed: %v", remoteAddr, err)
		return err
	}
	if n != len(data) {
		return errors.New("binding: short write")
	}
	return nil
}
