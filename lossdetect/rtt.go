// Package lossdetect implements RTT estimation, packet-number-space loss
// detection, and probe timeout scheduling, per RFC 9002 and
// original_source/src/core/loss_detection.h.
package lossdetect

import "time"

// Granularity is the system timer granularity assumed throughout loss
// recovery (RFC 9002 section 6.1.2's kGranularity).
const Granularity = time.Millisecond

// InitialRTT is the RTT assumed before any sample has been taken (RFC 9002
// section 6.2.2's kInitialRtt).
const InitialRTT = 333 * time.Millisecond

// Estimator tracks the smoothed RTT, RTT variance, and minimum RTT for one
// connection, per RFC 9002 section 5.
type Estimator struct {
	LatestRTT   time.Duration
	MinRTT      time.Duration
	SmoothedRTT time.Duration
	RTTVar      time.Duration

	hasSample bool
}

// NewEstimator returns an Estimator initialized to the RFC 9002 startup
// state (SmoothedRTT = InitialRTT, RTTVar = InitialRTT/2).
func NewEstimator() *Estimator {
	return &Estimator{
		SmoothedRTT: InitialRTT,
		RTTVar:      InitialRTT / 2,
	}
}

// UpdateRTT folds a new RTT sample into the estimator, per RFC 9002
// section 5.3. ackDelay is the peer-reported ACK delay (already decoded
// using the peer's ack_delay_exponent) and maxAckDelay is the negotiated
// transport parameter; ackDelay is only applied when it would not pull the
// sample below MinRTT.
func (e *Estimator) UpdateRTT(latestRTT, ackDelay, maxAckDelay time.Duration) {
	e.LatestRTT = latestRTT

	if !e.hasSample {
		e.MinRTT = latestRTT
		e.SmoothedRTT = latestRTT
		e.RTTVar = latestRTT / 2
		e.hasSample = true
		return
	}

	if latestRTT < e.MinRTT {
		e.MinRTT = latestRTT
	}

	adjusted := latestRTT
	if ackDelay > maxAckDelay {
		ackDelay = maxAckDelay
	}
	if adjusted > e.MinRTT+ackDelay {
		adjusted -= ackDelay
	}

	rttVarSample := absDuration(e.SmoothedRTT - adjusted)
	e.RTTVar = (3*e.RTTVar + rttVarSample) / 4
	e.SmoothedRTT = (7*e.SmoothedRTT + adjusted) / 8
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// PTO returns the current probe timeout duration for a single packet
// number space, per RFC 9002 section 6.2.1:
//
//	PTO = smoothed_rtt + max(4*rttvar, kGranularity) + max_ack_delay
//
// maxAckDelay should be passed as 0 for the Initial and Handshake packet
// number spaces, which don't delay acknowledgments.
func (e *Estimator) PTO(maxAckDelay time.Duration) time.Duration {
	variance := 4 * e.RTTVar
	if variance < Granularity {
		variance = Granularity
	}
	return e.SmoothedRTT + variance + maxAckDelay
}
