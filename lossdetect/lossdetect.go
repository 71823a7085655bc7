package lossdetect

import (
	"time"

	"github.com/m-lab/quic-core/sentpacket"
)

// PacketThreshold is the number of packets beyond the largest acknowledged
// at which an unacknowledged packet is declared lost (RFC 9002 section
// 6.1.1's kPacketThreshold).
const PacketThreshold = 3

// TimeThresholdNumerator and TimeThresholdDenominator together express the
// time-threshold multiplier 9/8 (RFC 9002 section 6.1.2's kTimeThreshold).
const (
	TimeThresholdNumerator   = 9
	TimeThresholdDenominator = 8
)

// DefaultMaxProbeCount is a default limit on the probe count used in
// exponential PTO backoff; original_source leaves this to QUIC_SETTINGS,
// so it's exposed here as a tunable rather than hardcoded. Detector does
// not enforce it: ProbeCount and ProbeTimeoutDuration grow without bound.
const DefaultMaxProbeCount = 8

// Detector runs RFC 9002 loss detection for one packet-number space: it
// tracks sent/outstanding packets via a sentpacket.Tracker, an RTT
// Estimator, and evaluates which outstanding packets should be declared
// lost on each incoming ACK or loss-timer firing.
type Detector struct {
	Sent *sentpacket.Tracker
	RTT  *Estimator

	LargestAcked        uint64
	HasLargestAcked     bool
	TimeOfLastAckedSent time.Time
	ProbeCount          int

	// MaxAckDelay is the peer's negotiated max_ack_delay transport
	// parameter (0 for Initial/Handshake spaces).
	MaxAckDelay time.Duration
}

// NewDetector returns a Detector with a fresh sent-packet tracker and RTT
// estimator.
func NewDetector(maxAckDelay time.Duration) *Detector {
	return &Detector{
		Sent:        sentpacket.NewTracker(),
		RTT:         NewEstimator(),
		MaxAckDelay: maxAckDelay,
	}
}

// OnPacketSent records a newly sent packet.
func (d *Detector) OnPacketSent(m sentpacket.Metadata) {
	d.Sent.OnPacketSent(m)
}

// AckResult summarizes the effect of processing a received ACK frame.
type AckResult struct {
	NewlyAcked []sentpacket.Metadata
	NewlyLost  []sentpacket.Metadata
}

// OnAckReceived processes the set of packet numbers a peer's ACK frame
// covers (ackedPacketNumbers, in any order), updates the RTT estimate from
// the newly-acked packet with the largest packet number (if it was
// ack-eliciting), and runs loss detection against the new largest
// acknowledged value, per RFC 9002 sections 5.1 and 6.1.
func (d *Detector) OnAckReceived(ackedPacketNumbers []uint64, ackDelay time.Duration, now time.Time) AckResult {
	var result AckResult
	var largestNewlyAcked *sentpacket.Metadata

	for _, pn := range ackedPacketNumbers {
		m, ok := d.Sent.Ack(pn)
		if !ok {
			continue
		}
		result.NewlyAcked = append(result.NewlyAcked, m)
		if largestNewlyAcked == nil || m.PacketNumber > largestNewlyAcked.PacketNumber {
			mCopy := m
			largestNewlyAcked = &mCopy
		}
		if !d.HasLargestAcked || m.PacketNumber > d.LargestAcked {
			d.LargestAcked = m.PacketNumber
			d.HasLargestAcked = true
		}
	}

	if largestNewlyAcked != nil && largestNewlyAcked.PacketNumber == d.LargestAcked && largestNewlyAcked.IsAckEliciting {
		latestRTT := now.Sub(largestNewlyAcked.SentTime)
		if latestRTT > 0 {
			d.RTT.UpdateRTT(latestRTT, ackDelay, d.MaxAckDelay)
		}
	}

	if len(result.NewlyAcked) > 0 {
		d.ProbeCount = 0
		result.NewlyLost = d.detectLostPackets(now)
	}
	return result
}

// lossDelay returns the time-threshold loss window, per RFC 9002 section
// 6.1.2: max(kTimeThreshold * max(smoothed_rtt, latest_rtt), kGranularity).
func (d *Detector) lossDelay() time.Duration {
	rtt := d.RTT.SmoothedRTT
	if d.RTT.LatestRTT > rtt {
		rtt = d.RTT.LatestRTT
	}
	delay := rtt * TimeThresholdNumerator / TimeThresholdDenominator
	if delay < Granularity {
		delay = Granularity
	}
	return delay
}

// detectLostPackets walks every outstanding packet and declares lost any
// packet that is sufficiently old (packet-number threshold) or has waited
// long enough since it was sent (time threshold), per RFC 9002 section
// 6.1.
func (d *Detector) detectLostPackets(now time.Time) []sentpacket.Metadata {
	if !d.HasLargestAcked {
		return nil
	}
	delay := d.lossDelay()
	var lost []sentpacket.Metadata
	for _, m := range d.Sent.Outstanding() {
		if m.PacketNumber > d.LargestAcked {
			continue
		}
		byCount := d.LargestAcked-m.PacketNumber >= PacketThreshold
		byTime := !m.SentTime.IsZero() && now.Sub(m.SentTime) >= delay
		if byCount || byTime {
			if lostMeta, ok := d.Sent.DeclareLost(m.PacketNumber); ok {
				lost = append(lost, lostMeta)
			}
		}
	}
	return lost
}

// ProbeTimeoutDuration returns this space's probe timeout: the RTT
// estimator's PTO doubled once per ProbeCount, per RFC 9002 section
// 6.2.1's exponential backoff. It returns a duration, not a deadline;
// when to arm the timer, and the amplification-limited client policy of
// that section, are left to the caller.
func (d *Detector) ProbeTimeoutDuration() time.Duration {
	pto := d.RTT.PTO(d.MaxAckDelay)
	for i := 0; i < d.ProbeCount; i++ {
		pto *= 2
	}
	return pto
}

// OnProbeTimeout increments the probe counter, per RFC 9002 section 6.2.1;
// the caller is responsible for actually sending the probe packet(s).
func (d *Detector) OnProbeTimeout() {
	d.ProbeCount++
}

// HasInFlightPackets reports whether there are any ack-eliciting packets
// awaiting acknowledgment, i.e. whether a loss/PTO timer needs to be
// running at all for this space.
func (d *Detector) HasInFlightPackets() bool {
	return d.Sent.PacketsInFlight() > 0
}
