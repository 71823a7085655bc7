// Package rangeset implements an ordered set of disjoint, non-adjacent
// integer intervals, used to track received packet numbers, packet numbers
// pending acknowledgment, and received stream byte ranges.
//
// Intervals are stored as a sorted, growable slice of {Low, Count} pairs.
// Adjacent or overlapping intervals are always coalesced, so for any two
// neighboring stored intervals [a.Low, a.High()] and [b.Low, b.High()],
// b.Low > a.High()+1.
package rangeset

// Interval is a closed range [Low, Low+Count-1] of integers, all present in
// the set.
type Interval struct {
	Low   uint64
	Count uint64
}

// High returns the largest value covered by the interval.
func (iv Interval) High() uint64 {
	return iv.Low + iv.Count - 1
}

// Set is a sorted set of disjoint, non-adjacent Intervals.
//
// Set is not safe for concurrent use; callers that need that (e.g. the ack
// tracker shared across the connection's single worker) rely on the
// single-writer discipline described in spec.md section 5 instead of
// internal locking.
type Set struct {
	intervals []Interval

	// maxIntervals bounds how many disjoint intervals the set will track
	// at once. 0 means unbounded. When an insertion would exceed the
	// cap, the lowest (oldest) interval is evicted, matching the
	// "duplicate suppression degrades gracefully" invariant in spec.md
	// section 3.
	maxIntervals int
}

// New creates an empty Set. maxIntervals bounds the number of disjoint
// intervals retained; pass 0 for no bound.
func New(maxIntervals int) *Set {
	return &Set{maxIntervals: maxIntervals}
}

// Len returns the number of disjoint intervals currently stored.
func (s *Set) Len() int {
	return len(s.intervals)
}

// At returns the interval at index i, where 0 <= i < Len().
func (s *Set) At(i int) Interval {
	return s.intervals[i]
}

// IsEmpty reports whether the set contains no values.
func (s *Set) IsEmpty() bool {
	return len(s.intervals) == 0
}

// search performs a binary search for an interval overlapping
// [low, high]. It returns a non-negative index of a matching interval if
// one is found, or a negative value encoding the insertion point otherwise:
// the insertion index is -(result) - 1.
func (s *Set) search(low, high uint64) int {
	lo, hi := 0, len(s.intervals)-1
	for lo <= hi {
		mid := lo + (hi-lo)/2
		iv := s.intervals[mid]
		switch {
		case high < iv.Low:
			hi = mid - 1
		case iv.High() < low:
			lo = mid + 1
		default:
			return mid
		}
	}
	return -(lo) - 1
}

// Contains reports whether v is present in the set.
func (s *Set) Contains(v uint64) bool {
	return s.search(v, v) >= 0
}

// evictIfNeeded drops the lowest interval(s) until the set is within
// maxIntervals.
func (s *Set) evictIfNeeded() {
	if s.maxIntervals <= 0 {
		return
	}
	for len(s.intervals) > s.maxIntervals {
		s.intervals = s.intervals[1:]
	}
}

// AddValue inserts the single value v, merging with adjacent or overlapping
// intervals as needed.
func (s *Set) AddValue(v uint64) {
	s.AddRange(v, 1)
}

// AddRange inserts the contiguous range [low, low+count-1], merging with
// any adjacent or overlapping intervals. It returns the (possibly merged)
// interval that now contains the inserted range.
func (s *Set) AddRange(low, count uint64) Interval {
	if count == 0 {
		return Interval{}
	}
	high := low + count - 1

	// Find the span of existing intervals that touch or overlap
	// [low-1, high+1] (the -1/+1 lets us merge adjacency, not just overlap).
	start := s.search(saturatingSub(low, 1), low)
	if start < 0 {
		start = -(start) - 1
	}
	end := start
	for end < len(s.intervals) && s.intervals[end].Low <= high+1 {
		end++
	}
	// Re-scan from start to capture any intervals whose High reaches
	// into [low-1, high+1] even if their Low is before start's search hit.
	for start > 0 && s.intervals[start-1].High() >= saturatingSub(low, 1) {
		start--
	}

	merged := Interval{Low: low, Count: count}
	if end > start {
		lo := merged.Low
		hi := merged.High()
		if s.intervals[start].Low < lo {
			lo = s.intervals[start].Low
		}
		if s.intervals[end-1].High() > hi {
			hi = s.intervals[end-1].High()
		}
		merged = Interval{Low: lo, Count: hi - lo + 1}
	}

	tail := append([]Interval{}, s.intervals[end:]...)
	s.intervals = append(s.intervals[:start], merged)
	s.intervals = append(s.intervals, tail...)

	s.evictIfNeeded()
	return merged
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// RemoveRange deletes the values in [low, low+count-1] from the set,
// splitting, shrinking, or dropping intervals as needed.
func (s *Set) RemoveRange(low, count uint64) {
	if count == 0 {
		return
	}
	high := low + count - 1

	var out []Interval
	for _, iv := range s.intervals {
		switch {
		case iv.High() < low || iv.Low > high:
			// No overlap; keep unchanged.
			out = append(out, iv)
		case iv.Low >= low && iv.High() <= high:
			// Fully removed.
		case iv.Low < low && iv.High() > high:
			// Split into two.
			out = append(out, Interval{Low: iv.Low, Count: low - iv.Low})
			out = append(out, Interval{Low: high + 1, Count: iv.High() - high})
		case iv.Low < low:
			// Shrink from the right.
			out = append(out, Interval{Low: iv.Low, Count: low - iv.Low})
		default:
			// Shrink from the left.
			out = append(out, Interval{Low: high + 1, Count: iv.High() - high})
		}
	}
	s.intervals = out
}

// SetMin drops all values below low. If low falls inside an interval, that
// interval is truncated to start at low.
func (s *Set) SetMin(low uint64) {
	idx := 0
	for idx < len(s.intervals) && s.intervals[idx].High() < low {
		idx++
	}
	s.intervals = s.intervals[idx:]
	if len(s.intervals) > 0 && s.intervals[0].Low < low {
		s.intervals[0] = Interval{Low: low, Count: s.intervals[0].High() - low + 1}
	}
}

// GetMin returns the smallest value in the set and true, or (0, false) if
// the set is empty.
func (s *Set) GetMin() (uint64, bool) {
	if len(s.intervals) == 0 {
		return 0, false
	}
	return s.intervals[0].Low, true
}

// GetMax returns the largest value in the set and true, or (0, false) if
// the set is empty.
func (s *Set) GetMax() (uint64, bool) {
	if len(s.intervals) == 0 {
		return 0, false
	}
	last := s.intervals[len(s.intervals)-1]
	return last.High(), true
}

// GetRange returns the length of the contiguous interval starting at low
// (low must be the exact start of a stored interval) and whether it is the
// last (highest) interval in the set.
func (s *Set) GetRange(low uint64) (count uint64, isLast bool, ok bool) {
	idx := s.search(low, low)
	if idx < 0 || s.intervals[idx].Low != low {
		return 0, false, false
	}
	return s.intervals[idx].Count, idx == len(s.intervals)-1, true
}

// Intervals returns a copy of the stored intervals, for iteration by
// callers that must not mutate the set's internal storage.
func (s *Set) Intervals() []Interval {
	out := make([]Interval, len(s.intervals))
	copy(out, s.intervals)
	return out
}

// Reset empties the set.
func (s *Set) Reset() {
	s.intervals = nil
}
