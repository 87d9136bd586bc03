// Package input implements the mux+ADC acquisition loop: it walks the
// eight-way analog multiplexer in Gray-code order, keeps sixteen channels
// continuously sampled, applies per-channel calibration, maintains running
// statistics, and runs a per-channel debounced two-sided threshold
// detector.
package input

import (
	"context"
	"errors"
	"sync"

	"github.com/stbohne/pico-iox16/nvm"
	pioruntime "github.com/stbohne/pico-iox16/runtime"
)

const numChannels = 16

// ErrConversionFailed marks a recoverable ADC conversion fault: the
// channel should be restarted and retried, never treated as fatal.
var ErrConversionFailed = errors.New("input: adc conversion failed")

// AnalogInputPair is the mux+dual-ADC hardware the engine drives. Select*
// programs the three mux-select lines; Start/Read manage one ADC
// conversion each. Every method may return runtime.ErrWouldBlock; ReadLast
// may also return ErrConversionFailed, which the engine treats as
// recoverable by restarting the conversion.
type AnalogInputPair interface {
	Select0(v bool) error
	Select1(v bool) error
	Select2(v bool) error
	StartRead0() error
	StartRead1() error
	ReadLast() (uint16, error)
}

// Calibrations is a per-iteration snapshot of the sixteen calibration and
// threshold settings the engine reads from NVM. Pulling a fresh snapshot
// each iteration (rather than holding a long-lived reference) avoids any
// cyclic ownership between the input engine and the NVM cache.
type Calibrations interface {
	Get() nvm.Page
}

// grayNext is the Gray-code successor table for the eight mux positions,
// ported from the firmware's GRAY_CODE_INCREMENT: a permutation of 0..8 in
// which consecutive positions differ in exactly one selector bit
// (0->1->3->2->6->7->5->4->0).
var grayNext = [8]uint8{1, 3, 6, 2, 0, 4, 7, 5}

// Engine owns the sixteen per-channel accumulators and threshold states
// and the goroutine that continuously samples them. All mutation happens
// from Run; readout handlers take a short-lived lock to snapshot and
// (where applicable) reset state.
type Engine struct {
	mu         sync.Mutex
	accum      [numChannels]Accumulator
	thresholds [numChannels]ThresholdState
}

// NewEngine returns an engine with every accumulator zeroed and every
// threshold timestamp pinned to now.
func NewEngine(now uint64) *Engine {
	e := &Engine{}
	for i := range e.accum {
		e.accum[i] = NewAccumulator()
	}
	for i := range e.thresholds {
		e.thresholds[i] = NewThresholdState(now)
	}
	return e
}

// Run drives the mux+ADC scan forever, or until ctx is cancelled or an
// unrecoverable hardware fault occurs. It never returns a nil error.
func (e *Engine) Run(ctx context.Context, adc AnalogInputPair, clock pioruntime.Clock, nvmStore Calibrations) error {
	i := uint8(0)
	for {
		if err := pioruntime.AwaitErr(ctx, adc.StartRead0); err != nil {
			return err
		}
		// Guaranteed yield once per iteration, so the dispatcher is never starved.
		if err := pioruntime.Yield(ctx); err != nil {
			return err
		}

		v0, err := e.waitRead0(ctx, adc)
		if err != nil {
			return err
		}
		t0 := clock.Now()

		// Start the next conversion as early as possible, before
		// post-processing this one.
		if err := pioruntime.AwaitErr(ctx, adc.StartRead1); err != nil {
			return err
		}

		page := nvmStore.Get()
		cal0 := page.Calibrations[i].Apply(v0)
		e.fold(int(i), cal0, t0, page.Thresholds[i])

		v1, err := e.waitRead1(ctx, adc)
		if err != nil {
			return err
		}
		t1 := clock.Now()

		// Program the next mux position as early as possible, so the
		// analog front end can begin settling while we finish
		// processing this sample.
		next := grayNext[i]
		if err := pioruntime.AwaitErr(ctx, func() error { return adc.Select0(next&0x1 != 0) }); err != nil {
			return err
		}
		if err := pioruntime.AwaitErr(ctx, func() error { return adc.Select1(next&0x2 != 0) }); err != nil {
			return err
		}
		if err := pioruntime.AwaitErr(ctx, func() error { return adc.Select2(next&0x4 != 0) }); err != nil {
			return err
		}

		page = nvmStore.Get()
		cal1 := page.Calibrations[i+8].Apply(v1)
		e.fold(int(i)+8, cal1, t1, page.Thresholds[i+8])

		i = next
		if err := pioruntime.WaitUntil(ctx, clock, t1+3); err != nil {
			return err
		}
	}
}

func (e *Engine) fold(channel int, value int16, now uint64, cfg nvm.Threshold) {
	e.mu.Lock()
	e.accum[channel] = e.accum[channel].Update(value)
	e.thresholds[channel] = e.thresholds[channel].Update(value, now, cfg)
	e.mu.Unlock()
}

func (e *Engine) waitRead0(ctx context.Context, adc AnalogInputPair) (uint16, error) {
	for {
		v, err := pioruntime.Await(ctx, adc.ReadLast)
		if err == nil {
			return v, nil
		}
		if errors.Is(err, ErrConversionFailed) {
			if err := pioruntime.AwaitErr(ctx, adc.StartRead0); err != nil {
				return 0, err
			}
			continue
		}
		return 0, err
	}
}

func (e *Engine) waitRead1(ctx context.Context, adc AnalogInputPair) (uint16, error) {
	for {
		v, err := pioruntime.Await(ctx, adc.ReadLast)
		if err == nil {
			return v, nil
		}
		if errors.Is(err, ErrConversionFailed) {
			if err := pioruntime.AwaitErr(ctx, adc.StartRead1); err != nil {
				return 0, err
			}
			continue
		}
		return 0, err
	}
}

// ReadAverages returns, for each channel, the average calibrated value
// since the previous read-and-reset (or the previous average, if no
// sample has landed since then), and resets each accumulator.
func (e *Engine) ReadAverages() [numChannels]int16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out [numChannels]int16
	for i := range e.accum {
		avg := e.accum[i].Average()
		out[i] = avg
		e.accum[i] = Reset(avg)
	}
	return out
}

// ChannelStats is the full accumulator snapshot returned by ReadFull.
type ChannelStats struct {
	Sum        int32
	SumSquares uint64
	Min        int16
	Max        int16
	Count      uint16
}

// ReadFull returns the full accumulator snapshot for each channel, taken
// before the reset that follows, mirroring ReadAverages' reset behaviour.
func (e *Engine) ReadFull() [numChannels]ChannelStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out [numChannels]ChannelStats
	for i := range e.accum {
		a := e.accum[i]
		out[i] = ChannelStats{Sum: a.Sum, SumSquares: a.SumSquares, Min: a.Min, Max: a.Max, Count: a.Count}
		avg := a.Average()
		e.accum[i] = Reset(avg)
	}
	return out
}

// ThresholdTimes is the pair of debounced crossing timestamps for one
// channel.
type ThresholdTimes struct {
	LastAboveDebounced uint64
	LastBelowDebounced uint64
}

// ThresholdTimes returns now plus the two debounced crossing timestamps
// for every channel.
func (e *Engine) ThresholdTimes(now uint64) (uint64, [numChannels]ThresholdTimes) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out [numChannels]ThresholdTimes
	for i, t := range e.thresholds {
		out[i] = ThresholdTimes{
			LastAboveDebounced: t.LastAboveThresholdDebounced,
			LastBelowDebounced: t.LastBelowThresholdDebounced,
		}
	}
	return now, out
}

// ThresholdStates returns two 16-bit bitmasks: which channels are
// currently above their high threshold, and which are currently below
// their low threshold, per the debounced crossing comparison.
func (e *Engine) ThresholdStates() (above, below uint16) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, t := range e.thresholds {
		if t.CurrentlyAbove() {
			above |= 1 << uint(i)
		}
		if t.CurrentlyBelow() {
			below |= 1 << uint(i)
		}
	}
	return above, below
}
