package input

import "github.com/stbohne/pico-iox16/nvm"

// ThresholdState is the per-channel debounced two-sided threshold detector
// state: hysteresis counters and the four crossing timestamps (raw and
// debounced, above and below).
type ThresholdState struct {
	LastAboveThreshold          uint64
	LastBelowThreshold          uint64
	AboveCount                  uint16
	BelowCount                  uint16
	LastAboveThresholdDebounced uint64
	LastBelowThresholdDebounced uint64
}

// NewThresholdState returns a state with every timestamp pinned to now,
// so "currently above" and "currently below" both read true until the
// first sample arrives.
func NewThresholdState(now uint64) ThresholdState {
	return ThresholdState{
		LastAboveThreshold:          now,
		LastBelowThreshold:          now,
		LastAboveThresholdDebounced: now,
		LastBelowThresholdDebounced: now,
	}
}

// Update folds one calibrated sample at timestamp now into the threshold
// state, given the channel's configured thresholds. A saturating counter
// tracks consecutive samples past each threshold; once both the sample
// count and the dwell time (measured from the first raw crossing of the
// current run) satisfy the debounce configuration, the debounced timestamp
// is set to that first raw crossing instant — not to now.
func (s ThresholdState) Update(value int16, now uint64, cfg nvm.Threshold) ThresholdState {
	above := value > cfg.ThresholdHigh
	below := value < cfg.ThresholdLow

	if above {
		if s.AboveCount == 0 {
			s.LastAboveThreshold = now
		}
		if s.AboveCount >= cfg.DebounceCount && now-s.LastAboveThreshold >= uint64(cfg.DebounceTimeUS) {
			s.LastAboveThresholdDebounced = s.LastAboveThreshold
		}
		s.AboveCount = saturatingInc(s.AboveCount)
	} else {
		s.AboveCount = 0
	}

	if below {
		if s.BelowCount == 0 {
			s.LastBelowThreshold = now
		}
		if s.BelowCount >= cfg.DebounceCount && now-s.LastBelowThreshold >= uint64(cfg.DebounceTimeUS) {
			s.LastBelowThresholdDebounced = s.LastBelowThreshold
		}
		s.BelowCount = saturatingInc(s.BelowCount)
	} else {
		s.BelowCount = 0
	}

	return s
}

// CurrentlyAbove reports whether the most recently debounced crossing was
// an above-threshold crossing (or the channel is still in its initial
// state, where both predicates hold).
func (s ThresholdState) CurrentlyAbove() bool {
	return s.LastAboveThresholdDebounced >= s.LastBelowThresholdDebounced
}

// CurrentlyBelow is the symmetric counterpart of CurrentlyAbove.
func (s ThresholdState) CurrentlyBelow() bool {
	return s.LastBelowThresholdDebounced >= s.LastAboveThresholdDebounced
}

func saturatingInc(v uint16) uint16 {
	if v == 0xFFFF {
		return v
	}
	return v + 1
}
