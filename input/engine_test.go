package input

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stbohne/pico-iox16/nvm"
	pioruntime "github.com/stbohne/pico-iox16/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore serves a fixed nvm.Page, satisfying the Calibrations
// interface without needing a real Medium.
type fakeStore struct{ page nvm.Page }

func (f fakeStore) Get() nvm.Page { return f.page }

func defaultNVMPage() nvm.Page {
	return nvm.DefaultPage()
}

// loggingPair is a deterministic AnalogInputPair: conversions complete
// immediately with values driven off the current mux position, and every
// call is appended to a shared, mutex-guarded log so tests can assert
// ordering without racing the engine goroutine.
type loggingPair struct {
	mu          sync.Mutex
	log         []string
	val0, val1  uint16
	lastStarted int
}

func (p *loggingPair) append(s string) {
	p.mu.Lock()
	p.log = append(p.log, s)
	p.mu.Unlock()
}

func (p *loggingPair) snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.log...)
}

func (p *loggingPair) Select0(v bool) error { p.append("select0"); return nil }
func (p *loggingPair) Select1(v bool) error { p.append("select1"); return nil }
func (p *loggingPair) Select2(v bool) error { p.append("select2"); return nil }

func (p *loggingPair) StartRead0() error {
	p.append("start_read0")
	p.mu.Lock()
	p.lastStarted = 0
	p.mu.Unlock()
	return nil
}

func (p *loggingPair) StartRead1() error {
	p.append("start_read1")
	p.mu.Lock()
	p.lastStarted = 1
	p.mu.Unlock()
	return nil
}

func (p *loggingPair) ReadLast() (uint16, error) {
	p.append("read_last")
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastStarted == 0 {
		return p.val0, nil
	}
	return p.val1, nil
}

func (p *loggingPair) logLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.log)
}

func indexOf(haystack []string, needle string) int {
	for i, v := range haystack {
		if v == needle {
			return i
		}
	}
	return -1
}

// TestEngineOrdersStartRead1BeforeMuxReprogram asserts that the first
// start_read1 of the scan comes before the first select0, i.e. the
// right-half conversion at the current mux position is started before the
// mux is moved to the next position.
func TestEngineOrdersStartRead1BeforeMuxReprogram(t *testing.T) {
	pair := &loggingPair{val0: 100, val1: 200}
	clock := &pioruntime.FakeClock{}
	store := fakeStore{page: defaultNVMPage()}
	eng := NewEngine(0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx, pair, clock, store) }()

	for pair.logLen() < 12 {
		clock.Advance(1)
		runtime.Gosched()
	}
	cancel()
	<-done

	log := pair.snapshot()
	idxStartRead1 := indexOf(log, "start_read1")
	idxFirstSelect := indexOf(log, "select0")
	require.GreaterOrEqual(t, idxStartRead1, 0)
	require.GreaterOrEqual(t, idxFirstSelect, 0)
	assert.Less(t, idxStartRead1, idxFirstSelect)
}

// steppingPair behaves like loggingPair but exposes an atomic iteration
// counter driven off Select0 calls (one per completed mux advance), so
// tests can wait on a deterministic condition instead of inspecting a log.
type steppingPair struct {
	val0, val1  atomic.Int64
	lastStarted atomic.Int32
	selects     atomic.Int64
}

func (p *steppingPair) Select0(v bool) error { p.selects.Add(1); return nil }
func (p *steppingPair) Select1(v bool) error { return nil }
func (p *steppingPair) Select2(v bool) error { return nil }

func (p *steppingPair) StartRead0() error { p.lastStarted.Store(0); return nil }
func (p *steppingPair) StartRead1() error { p.lastStarted.Store(1); return nil }

func (p *steppingPair) ReadLast() (uint16, error) {
	if p.lastStarted.Load() == 0 {
		return uint16(int16(p.val0.Load())), nil
	}
	return uint16(int16(p.val1.Load())), nil
}

func (p *steppingPair) iterations() int64 { return p.selects.Load() }

func newSteppingPair(val0, val1 int16) *steppingPair {
	p := &steppingPair{}
	p.val0.Store(int64(val0))
	p.val1.Store(int64(val1))
	return p
}

// TestEngineAccumulatesAndReadAveragesResets runs the scan loop for a
// bounded number of iterations and checks that ReadAverages both reports
// the accumulated average and resets the accumulator, falling back to the
// just-reported average (not zero) if read again with no new samples.
func TestEngineAccumulatesAndReadAveragesResets(t *testing.T) {
	clock := &pioruntime.FakeClock{}
	store := fakeStore{page: defaultNVMPage()}
	eng := NewEngine(clock.Now())
	pair := newSteppingPair(500, 1500)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx, pair, clock, store) }()

	for pair.iterations() < 20 {
		clock.Advance(1)
		runtime.Gosched()
	}
	cancel()
	<-done

	avgs := eng.ReadAverages()
	assert.Equal(t, int16(500), avgs[0])
	assert.Equal(t, int16(1500), avgs[8])

	avgs2 := eng.ReadAverages()
	assert.Equal(t, avgs[0], avgs2[0])
}

// TestThresholdStatesSurfaceChannelBitmasks drives channel 0 well above its
// configured high threshold with debounce disabled, and checks the bit for
// channel 0 comes back set in the "above" mask.
func TestThresholdStatesSurfaceChannelBitmasks(t *testing.T) {
	clock := &pioruntime.FakeClock{}
	page := defaultNVMPage()
	page.Thresholds[0].ThresholdHigh = 10
	page.Thresholds[0].DebounceCount = 0
	page.Thresholds[0].DebounceTimeUS = 0
	store := fakeStore{page: page}
	eng := NewEngine(clock.Now())
	pair := newSteppingPair(1000, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx, pair, clock, store) }()
	for pair.iterations() < 4 {
		clock.Advance(1)
		runtime.Gosched()
	}
	cancel()
	<-done

	above, _ := eng.ThresholdStates()
	assert.NotEqual(t, uint16(0), above&(1<<0))
}
