package input

import (
	"testing"

	"github.com/stbohne/pico-iox16/nvm"
	"github.com/stretchr/testify/assert"
)

func TestThresholdStateInitiallyBothCurrent(t *testing.T) {
	s := NewThresholdState(1000)
	assert.True(t, s.CurrentlyAbove())
	assert.True(t, s.CurrentlyBelow())
}

// TestThresholdDebounceLiteralExample reproduces the worked example:
// threshold_high=100, debounce_count=3, debounce_time_us=500, with samples
// (t, value) of (0,50) (100,150) (200,150) (300,150) (400,150) (700,150).
// The above-run starts at t=100 (first sample exceeding 100); it needs 3
// earlier above samples in the run (satisfied from t=400, the fourth) and 500us of
// dwell since the first crossing (satisfied once now-100 >= 500, i.e.
// t=700). Both conditions must hold simultaneously for the debounced
// timestamp to latch, and it latches to the first crossing instant (100),
// not to now.
func TestThresholdDebounceLiteralExample(t *testing.T) {
	cfg := nvm.Threshold{
		ThresholdHigh:  100,
		ThresholdLow:   -0x8000 + 1, // effectively disabled for this example
		DebounceCount:  3,
		DebounceTimeUS: 500,
	}
	s := NewThresholdState(0)

	samples := []struct {
		t     uint64
		value int16
	}{
		{0, 50},
		{100, 150},
		{200, 150},
		{300, 150},
		{400, 150},
		{700, 150},
	}

	for _, sample := range samples {
		s = s.Update(sample.value, sample.t, cfg)
	}

	assert.Equal(t, uint64(100), s.LastAboveThreshold)
	assert.Equal(t, uint64(100), s.LastAboveThresholdDebounced)
}

func TestThresholdResetsRunOnDrop(t *testing.T) {
	cfg := nvm.Threshold{ThresholdHigh: 100, ThresholdLow: -100, DebounceCount: 2, DebounceTimeUS: 0}
	s := NewThresholdState(0)
	s = s.Update(200, 10, cfg)
	s = s.Update(50, 20, cfg) // drops back below threshold_high, resets the run
	s = s.Update(200, 30, cfg)
	assert.Equal(t, uint16(1), s.AboveCount)
	assert.Equal(t, uint64(30), s.LastAboveThreshold)
}

func TestSaturatingIncDoesNotWrap(t *testing.T) {
	assert.Equal(t, uint16(0xFFFF), saturatingInc(0xFFFF))
	assert.Equal(t, uint16(1), saturatingInc(0))
}
