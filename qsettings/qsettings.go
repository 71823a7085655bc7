// Package qsettings holds the connection engine's tunable knobs: idle
// timeouts, initial RTT, ack delay bounds, initial congestion window,
// stream flow-control defaults, and PMTU bounds. Loading these from a
// file, environment, or command-line flag is a cmd/ concern; this package
// only defines the struct, its defaults, and the merge-with-parent rule
// the original settings.c calls QuicSettingsCopy.
package qsettings

import "time"

// Defaults match RFC 9002's recommendations and original_source's
// settings.c defaults, expressed as Go durations/ints rather than raw
// millisecond integers.
const (
	DefaultInitialRTT             = 333 * time.Millisecond
	DefaultMaxAckDelay            = 25 * time.Millisecond
	DefaultHandshakeIdleTimeout   = 10 * time.Second
	DefaultIdleTimeout            = 30 * time.Second
	DefaultDisconnectTimeout      = 16 * time.Second
	DefaultKeepAliveInterval      = time.Duration(0) // disabled
	DefaultInitialWindowPackets   = 10
	DefaultBidiStreamCount        = 100
	DefaultUnidiStreamCount       = 3
	DefaultStreamRecvWindow       = 64 * 1024
	DefaultStreamRecvBuffer       = 4096
	DefaultConnFlowControlWindow  = 16 * 1024 * 1024
	DefaultMaxOperationsPerDrain  = 16
	DefaultMaxWorkerQueueDelay    = 100 * time.Millisecond
	DefaultMaxStatelessOperations = 16
	DefaultMaxBytesPerKey         = 1 << 36
)

// Settings is the full tunable set a Connection consults. An explicit
// field set by the application (recorded in appSet) survives a Copy from
// a parent/listener-level Settings; an unset field inherits the parent's
// value.
type Settings struct {
	PacingEnabled          bool
	MigrationEnabled       bool
	MaxOperationsPerDrain  uint8
	MaxWorkerQueueDelay    time.Duration
	MaxStatelessOperations uint32

	InitialWindowPackets uint32
	InitialRTT           time.Duration
	MaxAckDelay          time.Duration
	HandshakeIdleTimeout time.Duration
	IdleTimeout          time.Duration
	DisconnectTimeout    time.Duration
	KeepAliveInterval    time.Duration

	BidiStreamCount  uint16
	UnidiStreamCount uint16

	StreamRecvWindow      uint32
	StreamRecvBuffer      uint32
	ConnFlowControlWindow uint32

	MaxBytesPerKey uint64

	appSet map[string]bool
}

// WithDefaults returns a Settings populated entirely with defaults, with
// nothing marked as explicitly set.
func WithDefaults() *Settings {
	return &Settings{
		PacingEnabled:          true,
		MigrationEnabled:       true,
		MaxOperationsPerDrain:  DefaultMaxOperationsPerDrain,
		MaxWorkerQueueDelay:    DefaultMaxWorkerQueueDelay,
		MaxStatelessOperations: DefaultMaxStatelessOperations,
		InitialWindowPackets:   DefaultInitialWindowPackets,
		InitialRTT:             DefaultInitialRTT,
		MaxAckDelay:            DefaultMaxAckDelay,
		HandshakeIdleTimeout:   DefaultHandshakeIdleTimeout,
		IdleTimeout:            DefaultIdleTimeout,
		DisconnectTimeout:      DefaultDisconnectTimeout,
		KeepAliveInterval:      DefaultKeepAliveInterval,
		BidiStreamCount:        DefaultBidiStreamCount,
		UnidiStreamCount:       DefaultUnidiStreamCount,
		StreamRecvWindow:       DefaultStreamRecvWindow,
		StreamRecvBuffer:       DefaultStreamRecvBuffer,
		ConnFlowControlWindow:  DefaultConnFlowControlWindow,
		MaxBytesPerKey:         DefaultMaxBytesPerKey,
		appSet:                 map[string]bool{},
	}
}

// Set marks a field as explicitly configured by the application, so a
// later Copy from a parent won't overwrite it.
func (s *Settings) Set(field string) {
	if s.appSet == nil {
		s.appSet = map[string]bool{}
	}
	s.appSet[field] = true
}

// IsSet reports whether field was explicitly configured.
func (s *Settings) IsSet(field string) bool {
	return s.appSet[field]
}

// Copy applies parent's values to any field in s that was not explicitly
// set by the application, mirroring QuicSettingsCopy's inheritance rule
// (listener settings flow down to new connections unless overridden).
func (s *Settings) Copy(parent *Settings) {
	if parent == nil {
		return
	}
	if !s.IsSet("PacingEnabled") {
		s.PacingEnabled = parent.PacingEnabled
	}
	if !s.IsSet("MigrationEnabled") {
		s.MigrationEnabled = parent.MigrationEnabled
	}
	if !s.IsSet("MaxOperationsPerDrain") {
		s.MaxOperationsPerDrain = parent.MaxOperationsPerDrain
	}
	if !s.IsSet("MaxWorkerQueueDelay") {
		s.MaxWorkerQueueDelay = parent.MaxWorkerQueueDelay
	}
	if !s.IsSet("MaxStatelessOperations") {
		s.MaxStatelessOperations = parent.MaxStatelessOperations
	}
	if !s.IsSet("InitialWindowPackets") {
		s.InitialWindowPackets = parent.InitialWindowPackets
	}
	if !s.IsSet("InitialRTT") {
		s.InitialRTT = parent.InitialRTT
	}
	if !s.IsSet("MaxAckDelay") {
		s.MaxAckDelay = parent.MaxAckDelay
	}
	if !s.IsSet("HandshakeIdleTimeout") {
		s.HandshakeIdleTimeout = parent.HandshakeIdleTimeout
	}
	if !s.IsSet("IdleTimeout") {
		s.IdleTimeout = parent.IdleTimeout
	}
	if !s.IsSet("DisconnectTimeout") {
		s.DisconnectTimeout = parent.DisconnectTimeout
	}
	if !s.IsSet("KeepAliveInterval") {
		s.KeepAliveInterval = parent.KeepAliveInterval
	}
	if !s.IsSet("BidiStreamCount") {
		s.BidiStreamCount = parent.BidiStreamCount
	}
	if !s.IsSet("UnidiStreamCount") {
		s.UnidiStreamCount = parent.UnidiStreamCount
	}
	if !s.IsSet("StreamRecvWindow") {
		s.StreamRecvWindow = parent.StreamRecvWindow
	}
	if !s.IsSet("StreamRecvBuffer") {
		s.StreamRecvBuffer = parent.StreamRecvBuffer
	}
	if !s.IsSet("ConnFlowControlWindow") {
		s.ConnFlowControlWindow = parent.ConnFlowControlWindow
	}
	if !s.IsSet("MaxBytesPerKey") {
		s.MaxBytesPerKey = parent.MaxBytesPerKey
	}
}
