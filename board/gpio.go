package board

import (
	"errors"
	"math"

	"github.com/warthog618/go-gpiocdev"

	"github.com/stbohne/pico-iox16/input"
	pioruntime "github.com/stbohne/pico-iox16/runtime"
)

// Sampler performs one ADC conversion on the given hardware channel (0 or
// 1) and returns the raw 12-bit reading. The ADC peripheral itself is
// SoC-specific and out of the core's scope per spec §1 ("specified only
// by the abstract operations the core consumes"); GPIOMux wires the three
// real mux-select GPIO lines and delegates the conversion itself to an
// injected Sampler so a board's own ADC driver can be plugged in without
// touching this package.
type Sampler func(channel int) (uint16, error)

// GPIOMux drives the three mux-select lines over
// github.com/warthog618/go-gpiocdev and an injected Sampler for the two
// ADC channels, implementing input.AnalogInputPair.
type GPIOMux struct {
	select0, select1, select2 *gpiocdev.Line
	sample0, sample1          Sampler

	pending0, pending1 bool
	result0, result1   uint16
	err0, err1         error
}

// NewGPIOMux requests the three mux-select lines as outputs on chip, and
// binds sample0/sample1 as the per-half ADC conversion functions.
func NewGPIOMux(chip string, offset0, offset1, offset2 int, sample0, sample1 Sampler) (*GPIOMux, error) {
	l0, err := gpiocdev.RequestLine(chip, offset0, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, err
	}
	l1, err := gpiocdev.RequestLine(chip, offset1, gpiocdev.AsOutput(0))
	if err != nil {
		l0.Close()
		return nil, err
	}
	l2, err := gpiocdev.RequestLine(chip, offset2, gpiocdev.AsOutput(0))
	if err != nil {
		l0.Close()
		l1.Close()
		return nil, err
	}
	return &GPIOMux{select0: l0, select1: l1, select2: l2, sample0: sample0, sample1: sample1}, nil
}

func boolToLine(v bool) int {
	if v {
		return 1
	}
	return 0
}

func (m *GPIOMux) Select0(v bool) error { return m.select0.SetValue(boolToLine(v)) }
func (m *GPIOMux) Select1(v bool) error { return m.select1.SetValue(boolToLine(v)) }
func (m *GPIOMux) Select2(v bool) error { return m.select2.SetValue(boolToLine(v)) }

func (m *GPIOMux) StartRead0() error {
	m.pending0 = true
	m.result0, m.err0 = m.sample0(0)
	return nil
}

func (m *GPIOMux) StartRead1() error {
	m.pending1 = true
	m.result1, m.err1 = m.sample1(1)
	return nil
}

// ReadLast alternates reporting whichever conversion is pending; a real
// SoC ADC driver would poll a hardware-ready flag here instead of
// returning synchronously the way the injected Sampler does.
func (m *GPIOMux) ReadLast() (uint16, error) {
	switch {
	case m.pending0:
		m.pending0 = false
		if m.err0 != nil {
			return 0, errors.Join(input.ErrConversionFailed, m.err0)
		}
		return m.result0, nil
	case m.pending1:
		m.pending1 = false
		if m.err1 != nil {
			return 0, errors.Join(input.ErrConversionFailed, m.err1)
		}
		return m.result1, nil
	default:
		return 0, pioruntime.ErrWouldBlock
	}
}

func (m *GPIOMux) Close() error {
	err := m.select0.Close()
	if e := m.select1.Close(); err == nil {
		err = e
	}
	if e := m.select2.Close(); err == nil {
		err = e
	}
	return err
}

// SimulatedADC generates a deterministic per-channel waveform for demos
// and the daemon's --simulate mode: a slowly drifting triangle wave
// scaled into the 12-bit ADC range, distinct per channel so sixteen
// inputs don't all read identically.
type SimulatedADC struct {
	phase [16]uint32
}

// Sample advances and returns the next raw reading for channel.
func (s *SimulatedADC) Sample(channel int) uint16 {
	s.phase[channel] += uint32(37 + channel)
	period := uint32(4096 * 2)
	p := s.phase[channel] % period
	var v uint32
	if p < 4096 {
		v = p
	} else {
		v = period - 1 - p
	}
	if v > math.MaxUint16 {
		v = math.MaxUint16
	}
	return uint16(v)
}

// SimulatedMux implements input.AnalogInputPair entirely in software,
// tracking the current mux-select state and routing conversions to a
// SimulatedADC, for the daemon's --simulate target where no real GPIO
// chip or ADC peripheral is present.
type SimulatedMux struct {
	adc *SimulatedADC

	bit0, bit1, bit2   bool
	pending0, pending1 bool
}

// NewSimulatedMux returns a mux reading from adc.
func NewSimulatedMux(adc *SimulatedADC) *SimulatedMux {
	return &SimulatedMux{adc: adc}
}

func (m *SimulatedMux) Select0(v bool) error { m.bit0 = v; return nil }
func (m *SimulatedMux) Select1(v bool) error { m.bit1 = v; return nil }
func (m *SimulatedMux) Select2(v bool) error { m.bit2 = v; return nil }

func (m *SimulatedMux) position() int {
	p := 0
	if m.bit0 {
		p |= 1
	}
	if m.bit1 {
		p |= 2
	}
	if m.bit2 {
		p |= 4
	}
	return p
}

func (m *SimulatedMux) StartRead0() error { m.pending0 = true; return nil }
func (m *SimulatedMux) StartRead1() error { m.pending1 = true; return nil }

func (m *SimulatedMux) ReadLast() (uint16, error) {
	switch {
	case m.pending0:
		m.pending0 = false
		return m.adc.Sample(m.position()), nil
	case m.pending1:
		m.pending1 = false
		return m.adc.Sample(m.position() + 8), nil
	default:
		return 0, pioruntime.ErrWouldBlock
	}
}
