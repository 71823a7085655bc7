// Package bbr implements a simplified BBRv1 congestion controller, the
// bandwidth-and-RTT-probing alternative to cubic offered behind the
// congestion.Controller interface, per the pluggable-algorithm design in
// original_source/src/core/congestion_control.h.
package bbr

import (
	"time"

	"github.com/m-lab/quic-core/congestion"
)

// Mode is one of BBR's four operating phases.
type Mode int

const (
	Startup Mode = iota
	Drain
	ProbeBW
	ProbeRTT
)

// Gains, per the BBR draft's recommended constants.
const (
	startupGain = 2.885 // 2/ln(2), the pacing/cwnd gain used during Startup
	drainGain   = 1 / startupGain
)

// probeBWGainCycle is the 8-phase pacing-gain cycle ProbeBW rotates
// through, one RTT per phase: one probing-up phase, one draining phase,
// and six phases at unity gain.
var probeBWGainCycle = [8]float64{1.25, 0.75, 1, 1, 1, 1, 1, 1}

// minRTTFilterWindow is how long a minimum RTT sample remains valid before
// BBR re-probes via ProbeRTT.
const minRTTFilterWindow = 10 * time.Second

// probeRTTDuration is how long BBR holds its window down during ProbeRTT.
const probeRTTDuration = 200 * time.Millisecond

// bandwidthWindowRTTs is how many round trips the max-bandwidth filter
// remembers.
const bandwidthWindowRTTs = 10

// bandwidthFilterCapacity bounds the max-bandwidth monotone deque; RFC
// draft implementations size this at roughly 2x the window length in
// round trips since a single round trip can yield more than one sample.
const bandwidthFilterCapacity = 2 * bandwidthWindowRTTs

// defaultRTT seeds the bandwidth window's lifetime before the first RTT
// sample arrives.
const defaultRTT = 333 * time.Millisecond

// Controller implements congestion.Controller using a simplified BBRv1.
type Controller struct {
	maxDatagramSize uint64

	mode Mode

	bytesInFlight    uint64
	bytesInFlightMax uint64
	exemptions       uint8

	// bandwidth, in bytes/sec, windowed over the last bandwidthWindowRTTs
	// round trips via a sliding-window maximum filter.
	bandwidthFilter *windowFilter
	maxBandwidth    float64

	// minRTT is tracked the same way, as a sliding-window minimum over
	// minRTTFilterWindow, so a transient RTT reduction doesn't get stuck
	// forever once conditions change back.
	minRTTFilter *windowFilter
	minRTT       time.Duration
	probeRTTDone time.Time
	inProbeRTT   bool

	cycleIndex int
	cycleStart time.Time

	roundCount        int
	roundStartPacket  uint64
	largestSentPacket uint64

	startupFullBwCount   int
	fullBandwidthReached bool
}

var _ congestion.Controller = (*Controller)(nil)

// New creates a Controller starting in Startup mode.
func New(maxDatagramSize uint64) *Controller {
	return &Controller{
		maxDatagramSize: maxDatagramSize,
		mode:            Startup,
		bandwidthFilter: newMaxWindowFilter(bandwidthWindowRTTs*defaultRTT, bandwidthFilterCapacity),
		minRTTFilter:    newMinWindowFilter(minRTTFilterWindow, bandwidthFilterCapacity),
	}
}

func (b *Controller) Name() string { return "bbr" }

// pacingGain returns the gain currently applied to the bandwidth-delay
// product to compute the send allowance.
func (b *Controller) pacingGain() float64 {
	switch b.mode {
	case Startup:
		return startupGain
	case Drain:
		return drainGain
	case ProbeBW:
		return probeBWGainCycle[b.cycleIndex%len(probeBWGainCycle)]
	default: // ProbeRTT
		return 1
	}
}

// cwndGain returns the gain applied to the bandwidth-delay product to
// compute the congestion window.
func (b *Controller) cwndGain() float64 {
	if b.mode == Startup {
		return startupGain
	}
	return 2
}

// bdp returns the current bandwidth-delay product estimate in bytes.
func (b *Controller) bdp() uint64 {
	if b.maxBandwidth <= 0 || b.minRTT <= 0 {
		return congestion.DefaultInitialWindowPackets * b.maxDatagramSize
	}
	return uint64(b.maxBandwidth * b.minRTT.Seconds())
}

func (b *Controller) CongestionWindow() uint64 {
	if b.maxBandwidth <= 0 || b.minRTT <= 0 {
		// No estimate yet: the window is the initial window, ungained.
		return b.bdp()
	}
	if b.mode == ProbeRTT {
		min := congestion.MinimumWindowPackets * b.maxDatagramSize
		bdp := uint64(float64(b.bdp()) * b.cwndGain())
		if bdp < min {
			return min
		}
		return bdp
	}
	cw := uint64(float64(b.bdp()) * b.cwndGain())
	min := congestion.MinimumWindowPackets * b.maxDatagramSize
	if cw < min {
		return min
	}
	return cw
}

func (b *Controller) CanSend() bool {
	return b.exemptions > 0 || b.bytesInFlight < b.CongestionWindow()
}

func (b *Controller) SetExemption(numPackets uint8) { b.exemptions = numPackets }
func (b *Controller) Exemptions() uint8             { return b.exemptions }

// GetSendAllowance returns the unused part of the congestion window
// (CongestionWindow minus bytes in flight). No pacing gain is applied and
// timeSinceLastSend is ignored: this package does not own a pacing timer,
// so it exposes the instantaneous budget and leaves scheduling to the
// caller (the packetbuilder/sendsched layer).
func (b *Controller) GetSendAllowance(timeSinceLastSend time.Duration, valid bool) uint64 {
	cw := b.CongestionWindow()
	if b.bytesInFlight >= cw {
		return 0
	}
	return cw - b.bytesInFlight
}

func (b *Controller) OnDataSent(numBytes uint64) {
	b.bytesInFlight += numBytes
	if b.bytesInFlight > b.bytesInFlightMax {
		b.bytesInFlightMax = b.bytesInFlight
	}
	if b.exemptions > 0 {
		b.exemptions--
	}
}

func (b *Controller) OnDataInvalidated(numBytes uint64) bool {
	wasBlocked := !b.CanSend()
	if numBytes > b.bytesInFlight {
		numBytes = b.bytesInFlight
	}
	b.bytesInFlight -= numBytes
	return wasBlocked && b.CanSend()
}

// sampleBandwidth records a delivery-rate sample (numBytes delivered over
// the elapsed interval since the round began) and updates the windowed
// maximum, detecting the Startup-exit condition (bandwidth growth has
// plateaued for three rounds running).
func (b *Controller) sampleBandwidth(now time.Time, numBytes uint64, elapsed time.Duration) {
	if elapsed <= 0 {
		return
	}
	sample := float64(numBytes) / elapsed.Seconds()
	previousMax := b.maxBandwidth
	b.bandwidthFilter.Update(sample, now)
	max, ok := b.bandwidthFilter.Get()
	if !ok {
		return
	}
	if b.mode == Startup {
		if previousMax > 0 && max < previousMax*1.25 {
			b.startupFullBwCount++
			if b.startupFullBwCount >= 3 {
				b.fullBandwidthReached = true
			}
		} else {
			b.startupFullBwCount = 0
		}
	}
	b.maxBandwidth = max
}

func (b *Controller) OnDataAcknowledged(now time.Time, largestPacketNumberAcked uint64, numBytes uint64, smoothedRTT time.Duration) bool {
	wasBlocked := !b.CanSend()
	if numBytes > b.bytesInFlight {
		numBytes = b.bytesInFlight
	}
	b.bytesInFlight -= numBytes

	previousMinRTT := b.minRTT
	b.minRTTFilter.Update(float64(smoothedRTT), now)
	if rtt, ok := b.minRTTFilter.Get(); ok {
		b.minRTT = time.Duration(rtt)
	}
	// The windowed minimum only grows when its previous holder has expired
	// out of the window with nothing lower behind it - exactly the signal
	// that a fresh ProbeRTT round trip is needed to re-establish a true
	// minimum, since BBR otherwise never lets the window shrink on its own.
	minRTTGrew := previousMinRTT != 0 && b.minRTT > previousMinRTT

	if largestPacketNumberAcked > b.roundStartPacket {
		b.roundCount++
		b.roundStartPacket = b.largestSentPacket
		b.onRoundTripStart(now)
	}
	b.sampleBandwidth(now, numBytes, smoothedRTT)

	if b.mode == Startup && b.fullBandwidthReached {
		b.mode = Drain
	}
	if b.mode == Drain && b.bytesInFlight <= b.bdp() {
		b.mode = ProbeBW
		b.cycleStart = now
	}

	if minRTTGrew && !b.inProbeRTT && b.mode != Startup {
		b.inProbeRTT = true
		b.mode = ProbeRTT
		b.probeRTTDone = now.Add(probeRTTDuration)
	}
	if b.inProbeRTT && now.After(b.probeRTTDone) && b.bytesInFlight <= b.CongestionWindow() {
		b.inProbeRTT = false
		b.mode = ProbeBW
		b.cycleStart = now
	}

	return wasBlocked && b.CanSend()
}

func (b *Controller) onRoundTripStart(now time.Time) {
	if b.mode != ProbeBW {
		return
	}
	if now.Sub(b.cycleStart) >= b.minRTT {
		b.cycleIndex = (b.cycleIndex + 1) % len(probeBWGainCycle)
		b.cycleStart = now
	}
}

func (b *Controller) OnDataLost(largestPacketNumberLost, largestPacketNumberSent uint64, numBytes uint64, persistentCongestion bool) {
	if persistentCongestion {
		b.maxBandwidth = 0
		b.bandwidthFilter.Reset()
		b.mode = Startup
		b.fullBandwidthReached = false
		b.startupFullBwCount = 0
	}
}

func (b *Controller) OnSpuriousCongestionEvent() {
	// BBR paces off bandwidth/RTT estimates rather than a window that
	// shrinks on loss, so there is nothing to undo here.
}

func (b *Controller) BytesInFlight() uint64    { return b.bytesInFlight }
func (b *Controller) BytesInFlightMax() uint64 { return b.bytesInFlightMax }

func (b *Controller) Reset() {
	*b = *New(b.maxDatagramSize)
}
