package output

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// fakeSlice is a Slice with a fixed native resolution, recording the last
// frequency and duty ticks programmed.
type fakeSlice struct {
	maxDuty   uint32
	frequency uint32
	ticks     uint32
}

func (s *fakeSlice) SetFrequency(hz uint32) error { s.frequency = hz; return nil }
func (s *fakeSlice) SetDuty(ticks uint32) error    { s.ticks = ticks; return nil }
func (s *fakeSlice) GetDuty() uint32              { return s.ticks }
func (s *fakeSlice) MaxDuty() uint32              { return s.maxDuty }

func TestSetGroupRescalesDutyToHardwareResolution(t *testing.T) {
	a := &fakeSlice{maxDuty: 1000}
	b := &fakeSlice{maxDuty: 1000}
	p := NewPair(a, b)

	require.NoError(t, p.SetGroup(1000, MaxDutyCycle/2, MaxDutyCycle))

	assert.Equal(t, uint32(1000), a.frequency)
	assert.Equal(t, uint32(500), a.ticks)
	assert.Equal(t, uint32(1000), b.ticks)
}

func TestSetGroupClampsFrequencyAndDuty(t *testing.T) {
	a := &fakeSlice{maxDuty: 100}
	b := &fakeSlice{maxDuty: 100}
	p := NewPair(a, b)

	require.NoError(t, p.SetGroup(5, 0xFFFF, 0xFFFF))
	freq, dutyA, dutyB := p.GetGroup()
	assert.Equal(t, uint32(MinFrequencyHz), freq)
	assert.Equal(t, uint32(100), dutyA)
	assert.Equal(t, uint32(100), dutyB)
	assert.Equal(t, uint32(100), a.ticks)
	assert.Equal(t, uint32(100), b.ticks)

	require.NoError(t, p.SetGroup(1_000_000, 0, 0))
	freq, _, _ = p.GetGroup()
	assert.Equal(t, uint32(MaxFrequencyHz), freq)
}

func TestSetGroupRescaleNeverExceedsHardwareMax(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxDuty := uint32(rapid.IntRange(1, 1<<20).Draw(t, "max_duty"))
		duty := uint16(rapid.IntRange(0, 0xFFFF).Draw(t, "duty"))
		a := &fakeSlice{maxDuty: maxDuty}
		b := &fakeSlice{maxDuty: maxDuty}
		p := NewPair(a, b)

		require.NoError(t, p.SetGroup(1000, duty, duty))
		assert.LessOrEqual(t, a.ticks, maxDuty)
	})
}

func TestBankDispatchesToCorrectPair(t *testing.T) {
	var slices [16]Slice
	for i := range slices {
		slices[i] = &fakeSlice{maxDuty: 256}
	}
	bank := NewBank(slices)

	require.NoError(t, bank.SetGroup(3, 500, 100, 200))
	freq, dutyA, dutyB := bank.GetGroup(3)
	assert.Equal(t, uint32(500), freq)
	assert.Equal(t, uint32(1), dutyA)
	assert.Equal(t, uint32(2), dutyB)

	// Other pairs remain untouched.
	freq0, _, _ := bank.GetGroup(0)
	assert.Equal(t, uint32(MinFrequencyHz), freq0)
}
