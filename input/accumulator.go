package input

import "math"

// Accumulator holds the running statistics for one channel between reads:
// sum and sum-of-squares for mean/variance, running min/max, and a sample
// count that self-rescales on overflow so long integrations stay bounded.
type Accumulator struct {
	PreviousValue int16
	Sum           int32
	SumSquares    uint64
	Min           int16
	Max           int16
	Count         uint16
}

// NewAccumulator returns a zeroed accumulator ready to receive its first
// sample.
func NewAccumulator() Accumulator {
	return Accumulator{
		Min: math.MaxInt16,
		Max: math.MinInt16,
	}
}

// Update folds a new calibrated sample into the accumulator. If the sample
// count wraps past its 16-bit range, the accumulator rescales sum and
// sum-of-squares down so the mean and variance estimates stay valid with a
// small bias, and resumes counting from 0x8000 (i.e. the count is also
// effectively halved).
func (a Accumulator) Update(value int16) Accumulator {
	a.Sum += int32(value)
	a.SumSquares += uint64(int64(value) * int64(value))
	if value < a.Min {
		a.Min = value
	}
	if value > a.Max {
		a.Max = value
	}
	a.Count++
	if a.Count == 0 {
		a.Sum = (a.Sum + a.Sum%2) / 2
		a.SumSquares = (a.SumSquares + 2 - (1 - (a.SumSquares/2)%2)) / 4
		a.Count = 0x8000
	}
	return a
}

// Average returns the average value since the last reset, or
// PreviousValue if no sample has been folded in since then.
func (a Accumulator) Average() int16 {
	if a.Count == 0 {
		return a.PreviousValue
	}
	return int16(a.Sum / int32(a.Count))
}

// Reset returns a fresh accumulator seeded with the given previous value
// (typically the average just read out).
func Reset(previousValue int16) Accumulator {
	a := NewAccumulator()
	a.PreviousValue = previousValue
	return a
}
