// Package connection aggregates every per-connection subsystem into the
// single-threaded QUIC connection engine: packet-number spaces, loss
// detection, congestion control, the crypto and application stream sets,
// connection ID registries, and the send scheduler. It is modeled after
// saver.Saver's role in the teacher repo — one top-level struct owning
// every subordinate cache/queue/stat a connection needs — adapted from a
// fan-in collector of kernel snapshots to a single QUIC connection's state
// machine, grounded on spec.md section 3 and
// original_source/src/core/connection.h.
package connection

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/m-lab/quic-core/cid"
	"github.com/m-lab/quic-core/congestion"
	"github.com/m-lab/quic-core/congestion/cubic"
	"github.com/m-lab/quic-core/cryptostream"
	"github.com/m-lab/quic-core/lossdetect"
	"github.com/m-lab/quic-core/pnspace"
	"github.com/m-lab/quic-core/qsettings"
	"github.com/m-lab/quic-core/sendsched"
	"github.com/m-lab/quic-core/sentpacket"
	"github.com/m-lab/quic-core/stream"
	"github.com/m-lab/quic-core/tlsengine"
	"github.com/m-lab/quic-core/transportparams"
	"github.com/m-lab/uuid"
)

// connectionCounter hands out the per-process-boot cookie New uses in
// place of a TCP socket's SO_COOKIE: a QUIC connection multiplexes over a
// shared UDP socket, so there is no per-connection socket cookie to read,
// but the same host+boottime-prefixed trace ID scheme still applies.
var connectionCounter uint64

// State is the connection's coarse lifecycle stage, mirroring
// QUIC_CONNECTION's State bitfield at a level of granularity this package
// actually acts on.
type State int

const (
	StateHandshaking State = iota
	StateConnected
	StateClosing
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrClosed is returned by operations attempted on a closed connection.
var ErrClosed = errors.New("connection: connection is closed")

// level bundles the per-encryption-level subsystems a Connection keeps
// three (sometimes four) independent copies of.
type level struct {
	Space  *pnspace.PacketNumberSpace
	Loss   *lossdetect.Detector
	Crypto *cryptostream.Stream
	Key    tlsengine.Key

	Discarded bool
}

// Connection is one QUIC connection's full protocol state, exclusive of
// the TLS handshake implementation, datapath I/O, and wire encryption,
// which are supplied by collaborators (tlsengine.Engine, packetbuilder,
// the binding layer).
type Connection struct {
	IsServer bool
	State    State

	// TraceID is a process-unique identifier assigned at creation, used
	// to correlate this connection's log lines and diagnostic CSV rows,
	// the role uuid.FromTCPConn plays for a TCP flow.
	TraceID string

	Settings *qsettings.Settings
	Peer     *transportparams.Params
	Local    *transportparams.Params

	SourceCIDs *cid.Registry
	DestCIDs   *cid.Registry

	Initial   *level
	Handshake *level
	AppData   *level

	Congestion congestion.Controller
	Streams    *stream.Set
	Scheduler  *sendsched.Scheduler

	IdleTimeoutDeadline time.Time
	CreatedAt           time.Time

	closeErrorCode uint64
	closeReason    string
	closeIsApp     bool
}

// Config bundles the construction-time parameters a Connection needs that
// aren't owned by any one subsystem.
type Config struct {
	IsServer        bool
	Settings        *qsettings.Settings
	MaxDatagramSize uint64
	Engine          tlsengine.Engine
	Now             time.Time
}

// New builds a Connection with fresh per-level state and a CUBIC
// congestion controller (the default algorithm, matching
// original_source's QuicCongestionControlInitialize default), ready to
// begin the handshake.
func New(cfg Config) (*Connection, error) {
	settings := cfg.Settings
	if settings == nil {
		settings = qsettings.WithDefaults()
	}

	cookie := atomic.AddUint64(&connectionCounter, 1)
	traceID, err := uuid.FromCookie(cookie)
	if err != nil {
		traceID = fmt.Sprintf("quic-core_%X", cookie)
	}

	c := &Connection{
		IsServer:   cfg.IsServer,
		State:      StateHandshaking,
		TraceID:    traceID,
		Settings:   settings,
		SourceCIDs: cid.NewRegistry(),
		DestCIDs:   cid.NewRegistry(),
		Congestion: cubic.New(cfg.MaxDatagramSize),
		Streams: stream.NewSet(
			uint64(settings.BidiStreamCount),
			uint64(settings.UnidiStreamCount),
			uint64(settings.StreamRecvWindow),
		),
		CreatedAt: cfg.Now,
	}
	c.Scheduler = sendsched.New(c.Streams)
	c.Scheduler.SetMaxData(uint64(settings.ConnFlowControlWindow))

	c.Initial = newLevel(pnspace.Initial)
	c.Handshake = newLevel(pnspace.Handshake)
	c.AppData = newLevel(pnspace.AppData)

	c.IdleTimeoutDeadline = cfg.Now.Add(settings.HandshakeIdleTimeout)

	if cfg.Engine != nil {
		for _, lvl := range []struct {
			l *level
			t tlsengine.Level
		}{
			{c.Initial, tlsengine.LevelInitial},
			{c.Handshake, tlsengine.LevelHandshake},
			{c.AppData, tlsengine.LevelOneRTT},
		} {
			key, err := cfg.Engine.WriteKey(lvl.t)
			if err != nil {
				continue
			}
			lvl.l.Key = key
		}
	}

	return c, nil
}

func newLevel(sp pnspace.Space) *level {
	return &level{
		Space:  pnspace.NewPacketNumberSpace(sp),
		Loss:   lossdetect.NewDetector(0),
		Crypto: cryptostream.New(),
	}
}

// LevelFor returns the per-encryption-level bundle for the given TLS
// level, collapsing 0-RTT onto the AppData packet-number space per RFC
// 9000 section 12.3.
func (c *Connection) LevelFor(t tlsengine.Level) *level {
	switch t {
	case tlsengine.LevelInitial:
		return c.Initial
	case tlsengine.LevelHandshake:
		return c.Handshake
	default:
		return c.AppData
	}
}

// OnHandshakeConfirmed transitions the connection to Connected and widens
// the idle timeout from the handshake-specific bound to the steady-state
// one, per RFC 9000 section 10.1.
func (c *Connection) OnHandshakeConfirmed(now time.Time) {
	c.State = StateConnected
	c.DiscardKeys(tlsengine.LevelInitial)
	c.IdleTimeoutDeadline = now.Add(c.idleTimeout())
}

// idleTimeout is the smaller of the locally configured and peer-advertised
// max_idle_timeout, per RFC 9000 section 10.1; a zero value from either
// side means "no timeout from that side".
func (c *Connection) idleTimeout() time.Duration {
	t := c.Settings.IdleTimeout
	if c.Peer != nil && c.Peer.MaxIdleTimeout > 0 {
		peerTimeout := time.Duration(c.Peer.MaxIdleTimeout) * time.Millisecond
		if t == 0 || peerTimeout < t {
			t = peerTimeout
		}
	}
	return t
}

// OnActivity resets the idle timeout deadline, called whenever any
// ack-eliciting packet is sent or received.
func (c *Connection) OnActivity(now time.Time) {
	if c.State == StateConnected {
		c.IdleTimeoutDeadline = now.Add(c.idleTimeout())
	} else {
		c.IdleTimeoutDeadline = now.Add(c.Settings.HandshakeIdleTimeout)
	}
}

// IsIdle reports whether the connection's idle timeout has elapsed as of
// now.
func (c *Connection) IsIdle(now time.Time) bool {
	return !c.IdleTimeoutDeadline.IsZero() && !now.Before(c.IdleTimeoutDeadline)
}

// DiscardKeys drops the keys and packet-number space bookkeeping for a
// level once it can never be used again, per RFC 9001 section 4.9 (e.g.
// Initial keys are discarded once the Handshake flight is sent).
func (c *Connection) DiscardKeys(t tlsengine.Level) {
	lvl := c.LevelFor(t)
	if lvl.Discarded {
		return
	}
	lvl.Discarded = true
	lvl.Key = nil
}

// OnPacketSent records a newly sent packet with the appropriate level's
// loss detector and congestion controller.
func (c *Connection) OnPacketSent(t tlsengine.Level, m sentpacket.Metadata, now time.Time) {
	lvl := c.LevelFor(t)
	lvl.Loss.OnPacketSent(m)
	if m.IsAckEliciting {
		c.Congestion.OnDataSent(uint64(m.PacketLength))
		c.OnActivity(now)
	}
}

// AckResult summarizes the effect of processing one level's ACK frame.
type AckResult = lossdetect.AckResult

// OnAckReceived processes an incoming ACK frame's covered packet numbers
// for one level, updating loss detection and congestion control.
func (c *Connection) OnAckReceived(t tlsengine.Level, ackedPacketNumbers []uint64, ackDelay time.Duration, now time.Time) AckResult {
	lvl := c.LevelFor(t)
	result := lvl.Loss.OnAckReceived(ackedPacketNumbers, ackDelay, now)

	for _, acked := range result.NewlyAcked {
		if acked.IsAckEliciting {
			c.Congestion.OnDataAcknowledged(now, acked.PacketNumber, uint64(acked.PacketLength), lvl.Loss.RTT.SmoothedRTT)
		}
	}
	if len(result.NewlyLost) > 0 {
		c.onPacketsLost(result.NewlyLost, now)
	}
	if len(result.NewlyAcked) > 0 {
		c.OnActivity(now)
	}
	return result
}

func (c *Connection) onPacketsLost(lost []sentpacket.Metadata, now time.Time) {
	var largestLost uint64
	var bytesLost uint64
	for _, m := range lost {
		if m.PacketNumber > largestLost {
			largestLost = m.PacketNumber
		}
		bytesLost += uint64(m.PacketLength)
	}
	persistentCongestion := c.detectPersistentCongestion(lost)
	largestSent := c.Initial.Space.NextSendPacketNumber
	if c.Handshake.Space.NextSendPacketNumber > largestSent {
		largestSent = c.Handshake.Space.NextSendPacketNumber
	}
	if c.AppData.Space.NextSendPacketNumber > largestSent {
		largestSent = c.AppData.Space.NextSendPacketNumber
	}
	c.Congestion.OnDataLost(largestLost, largestSent, bytesLost, persistentCongestion)
}

// detectPersistentCongestion reports whether every packet sent within the
// persistent-congestion duration (RFC 9002 section 7.6.2,
// (smoothed_rtt + max(4*rttvar, granularity) + max_ack_delay) * 3) was
// declared lost, by checking whether the lost set's sent-time span covers
// at least that duration.
func (c *Connection) detectPersistentCongestion(lost []sentpacket.Metadata) bool {
	if len(lost) < 2 {
		return false
	}
	first, last := lost[0].SentTime, lost[0].SentTime
	for _, m := range lost {
		if m.SentTime.Before(first) {
			first = m.SentTime
		}
		if m.SentTime.After(last) {
			last = m.SentTime
		}
	}
	rtt := c.AppData.Loss.RTT
	variance := 4 * rtt.RTTVar
	if variance < lossdetect.Granularity {
		variance = lossdetect.Granularity
	}
	pcDuration := rtt.SmoothedRTT + variance + c.AppData.Loss.MaxAckDelay
	pcDuration *= 3
	return last.Sub(first) >= pcDuration
}

// BeginClose transitions the connection into its closing state, recording
// the error to send in CONNECTION_CLOSE frames and clearing send flags
// that no longer make sense once the connection is going away.
func (c *Connection) BeginClose(errorCode uint64, reason string, isApp bool) {
	if c.State == StateClosing || c.State == StateDraining || c.State == StateClosed {
		return
	}
	c.State = StateClosing
	c.closeErrorCode = errorCode
	c.closeReason = reason
	c.closeIsApp = isApp
	c.Scheduler.OnConnectionClosing()
	if isApp {
		c.Scheduler.SetFlag(sendsched.FlagApplicationClose)
	} else {
		c.Scheduler.SetFlag(sendsched.FlagConnectionClose)
	}
}

// CloseError returns the error code, human-readable reason, and whether it
// is an application-level (rather than transport-level) close, as recorded
// by BeginClose.
func (c *Connection) CloseError() (code uint64, reason string, isApp bool) {
	return c.closeErrorCode, c.closeReason, c.closeIsApp
}

// EnterDraining moves a closing connection into the draining state once
// its own CONNECTION_CLOSE has been sent and it is only waiting out the
// draining period before discarding all state, per RFC 9000 section 10.2.
func (c *Connection) EnterDraining() {
	if c.State == StateClosing {
		c.State = StateDraining
	}
}
