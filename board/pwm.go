package board

import "github.com/warthog618/go-gpiocdev"

// pwmResolution is the native duty resolution this software-PWM slice
// exposes through MaxDuty.
const pwmResolution = 1000

// SoftPWMSlice implements output.Slice over a GPIO line driven through
// github.com/warthog618/go-gpiocdev. It does not generate a PWM waveform:
// SetDuty records the programmed tick count (out of pwmResolution) and
// drives the line to a static level, high when the duty is above half of
// pwmResolution and low otherwise. This stands in for the dev board's real
// hardware PWM slice (spec §4.4 treats PWM programming as an abstract
// operation the core consumes) in the daemon's hardware mode; the
// --simulate target uses in-memory slices instead.
type SoftPWMSlice struct {
	line      *gpiocdev.Line
	frequency uint32
	duty      uint32
}

// NewSoftPWMSlice requests offset on chip as an output, initially off.
func NewSoftPWMSlice(chip string, offset int) (*SoftPWMSlice, error) {
	line, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, err
	}
	return &SoftPWMSlice{line: line}, nil
}

func (s *SoftPWMSlice) SetFrequency(hz uint32) error {
	s.frequency = hz
	return nil
}

func (s *SoftPWMSlice) SetDuty(ticks uint32) error {
	s.duty = ticks
	// No ticker goroutine is reprogrammed here: the programmed value is
	// kept for OutputsGet to read back and the line is set to a static
	// level, since driving an actual GPIO line fast enough for a useful
	// PWM frequency needs a board-specific timer rather than a plain
	// goroutine loop.
	level := 0
	if s.duty > pwmResolution/2 {
		level = 1
	}
	return s.line.SetValue(level)
}

func (s *SoftPWMSlice) GetDuty() uint32 { return s.duty }

func (s *SoftPWMSlice) MaxDuty() uint32 { return pwmResolution }

func (s *SoftPWMSlice) Close() error { return s.line.Close() }
