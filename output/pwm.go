// Package output implements the PWM driver: eight slice-pairs covering the
// sixteen outputs, each pair sharing one frequency and carrying two
// independently-set duty cycles.
package output

const (
	numPairs = 8

	// MinFrequencyHz and MaxFrequencyHz bound the configurable PWM
	// frequency. Values outside this range are clamped, never rejected.
	MinFrequencyHz = 10
	MaxFrequencyHz = 50000

	// MaxDutyCycle is the input duty-cycle scale: callers pass duty
	// values in [0, MaxDutyCycle], which SetGroup rescales to whatever
	// resolution the underlying hardware slice actually runs at.
	MaxDutyCycle = 0x8000
)

func clampFrequency(hz uint32) uint32 {
	if hz < MinFrequencyHz {
		return MinFrequencyHz
	}
	if hz > MaxFrequencyHz {
		return MaxFrequencyHz
	}
	return hz
}

func clampDuty(duty uint16) uint16 {
	if duty > MaxDutyCycle {
		return MaxDutyCycle
	}
	return duty
}

// roundedDiv computes round(n/d) using round-half-away-from-zero, for
// non-negative n and positive d. No example repo in the retrieval pack
// imports a rounding-division helper, and the computation is a single
// integer expression, so it is hand-rolled here rather than reaching for a
// math library.
func roundedDiv(n, d uint64) uint64 {
	return (n + d/2) / d
}

// Slice is one hardware PWM channel: a single frequency generator with an
// independently settable duty cycle, expressed in the slice's own native
// duty resolution (MaxDuty ticks per period).
type Slice interface {
	SetFrequency(hz uint32) error
	SetDuty(ticks uint32) error
	GetDuty() uint32
	MaxDuty() uint32
}

// Pair is one slice-pair: two outputs (A and B) sharing a frequency.
type Pair struct {
	A, B Slice

	frequency uint32
}

// NewPair wraps two hardware slices as one frequency-sharing pair.
func NewPair(a, b Slice) *Pair {
	return &Pair{A: a, B: b, frequency: MinFrequencyHz}
}

// SetGroup sets this pair's frequency and both duty cycles in one call,
// clamping frequency to [MinFrequencyHz, MaxFrequencyHz] and each duty to
// [0, MaxDutyCycle], then rescaling the clamped duty into the hardware
// slice's native resolution with round-half-away-from-zero division.
func (p *Pair) SetGroup(frequencyHz uint32, dutyA, dutyB uint16) error {
	freq := clampFrequency(frequencyHz)
	da := clampDuty(dutyA)
	db := clampDuty(dutyB)

	if err := p.A.SetFrequency(freq); err != nil {
		return err
	}
	if err := p.B.SetFrequency(freq); err != nil {
		return err
	}

	maxA := uint64(p.A.MaxDuty())
	maxB := uint64(p.B.MaxDuty())
	ticksA := uint32(roundedDiv(uint64(da)*maxA, MaxDutyCycle))
	ticksB := uint32(roundedDiv(uint64(db)*maxB, MaxDutyCycle))

	if err := p.A.SetDuty(ticksA); err != nil {
		return err
	}
	if err := p.B.SetDuty(ticksB); err != nil {
		return err
	}

	p.frequency = freq
	return nil
}

// GetGroup returns the current frequency and the raw hardware duty values,
// read back from each slice in its own native tick resolution (MaxDuty
// ticks per period) — not rescaled to the [0, MaxDutyCycle] input scale
// SetGroup accepts, per spec §4.4.
func (p *Pair) GetGroup() (frequencyHz uint32, dutyA, dutyB uint32) {
	return p.frequency, p.A.GetDuty(), p.B.GetDuty()
}

// Bank is the full set of eight slice-pairs covering all sixteen outputs.
type Bank struct {
	Pairs [numPairs]*Pair
}

// NewBank builds a Bank from sixteen slices, paired up in hardware order:
// pair i covers slices 2*i and 2*i+1.
func NewBank(slices [2 * numPairs]Slice) *Bank {
	b := &Bank{}
	for i := 0; i < numPairs; i++ {
		b.Pairs[i] = NewPair(slices[2*i], slices[2*i+1])
	}
	return b
}

// SetGroup dispatches to the pair covering the given index (0-7).
func (b *Bank) SetGroup(pair int, frequencyHz uint32, dutyA, dutyB uint16) error {
	return b.Pairs[pair].SetGroup(frequencyHz, dutyA, dutyB)
}

// GetGroup dispatches to the pair covering the given index (0-7).
func (b *Bank) GetGroup(pair int) (frequencyHz uint32, dutyA, dutyB uint32) {
	return b.Pairs[pair].GetGroup()
}
