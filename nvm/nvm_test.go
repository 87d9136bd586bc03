package nvm

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stbohne/pico-iox16/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDefaultPageDecode(t *testing.T) {
	p := DefaultPage()

	assert.Equal(t, Unconfigured, p.Config.Address)
	assert.Equal(t, BaudrateUnset, p.Config.Baudrate)

	for i, c := range p.Calibrations {
		assert.Equal(t, int16(1), c.Multiply, "channel %d", i)
		assert.Equal(t, int16(1), c.Divide, "channel %d", i)
		assert.Equal(t, int16(0), c.Add, "channel %d", i)
		assert.Equal(t, int16(math.MinInt16), c.Min, "channel %d", i)
		assert.Equal(t, int16(math.MaxInt16), c.Max, "channel %d", i)
	}
	for i, th := range p.Thresholds {
		assert.Equal(t, int16(math.MaxInt16), th.ThresholdHigh, "channel %d", i)
		assert.Equal(t, int16(math.MinInt16), th.ThresholdLow, "channel %d", i)
		assert.Equal(t, uint32(0), th.DebounceTimeUS, "channel %d", i)
		assert.Equal(t, uint16(0), th.DebounceCount, "channel %d", i)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var page Page
		page.Config.Address = uint16(rapid.IntRange(0, 0xFFFF).Draw(t, "address"))
		page.Config.Baudrate = uint32(rapid.IntRange(0, 0xFFFFFFFF).Draw(t, "baudrate"))
		for i := range page.Calibrations {
			page.Calibrations[i] = Calibration{
				Multiply: int16(rapid.IntRange(math.MinInt16, math.MaxInt16).Draw(t, "multiply")),
				Divide:   int16(rapid.IntRange(math.MinInt16, math.MaxInt16).Draw(t, "divide")),
				Add:      int16(rapid.IntRange(math.MinInt16, math.MaxInt16).Draw(t, "add")),
				Min:      int16(rapid.IntRange(math.MinInt16, math.MaxInt16).Draw(t, "min")),
				Max:      int16(rapid.IntRange(math.MinInt16, math.MaxInt16).Draw(t, "max")),
			}
		}
		for i := range page.Thresholds {
			page.Thresholds[i] = Threshold{
				ThresholdHigh:  int16(rapid.IntRange(math.MinInt16, math.MaxInt16).Draw(t, "th_high")),
				ThresholdLow:   int16(rapid.IntRange(math.MinInt16, math.MaxInt16).Draw(t, "th_low")),
				DebounceTimeUS: uint32(rapid.IntRange(0, 0xFFFFFFFF).Draw(t, "debounce_us")),
				DebounceCount:  uint16(rapid.IntRange(0, 0xFFFF).Draw(t, "debounce_count")),
			}
		}

		raw := Encode(page)
		decoded, err := Decode(raw)
		require.NoError(t, err)
		assert.Equal(t, page, decoded)
	})
}

func TestCalibrationApplyClamps(t *testing.T) {
	c := Calibration{Multiply: 2, Divide: 1, Add: -100, Min: -1000, Max: 1000}
	assert.Equal(t, int16(1000), c.Apply(700))
}

// fakeMedium is an in-memory Medium for tests, modelling erase-then-program
// without any flash-specific quirks.
type fakeMedium struct {
	page [PageSize]byte
	err  error
}

func (m *fakeMedium) Read() ([PageSize]byte, error) {
	if m.err != nil {
		return [PageSize]byte{}, m.err
	}
	return m.page, nil
}

func (m *fakeMedium) Write(page [PageSize]byte) error {
	if m.err != nil {
		return m.err
	}
	m.page = page
	return nil
}

func TestStoreRoundTripAndReboot(t *testing.T) {
	ctx := context.Background()
	medium := &fakeMedium{page: Encode(DefaultPage())}

	store, err := Open(ctx, medium)
	require.NoError(t, err)

	page := store.Get()
	page.Config.Address = 5
	page.Config.Baudrate = 115200
	require.NoError(t, store.Set(ctx, page))

	assert.Equal(t, uint16(5), store.Get().Config.Address)

	// Simulate a reboot: open a fresh Store over the same backing bytes.
	rebooted, err := Open(ctx, medium)
	require.NoError(t, err)
	assert.Equal(t, store.Get(), rebooted.Get())
}

func TestStoreSurfacesMediumError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("flash fault")
	medium := &fakeMedium{page: Encode(DefaultPage()), err: nil}

	store, err := Open(ctx, medium)
	require.NoError(t, err)

	medium.err = boom
	err = store.Set(ctx, store.Get())
	assert.ErrorIs(t, err, boom)
}

func TestOpenRetriesWouldBlockThenSucceeds(t *testing.T) {
	ctx := context.Background()
	attempts := 0
	medium := &blockingMedium{
		pages:    [][PageSize]byte{Encode(DefaultPage())},
		failOnce: &attempts,
	}
	_, err := Open(ctx, medium)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

type blockingMedium struct {
	pages    [][PageSize]byte
	failOnce *int
}

func (m *blockingMedium) Read() ([PageSize]byte, error) {
	*m.failOnce++
	if *m.failOnce < 2 {
		return [PageSize]byte{}, runtime.ErrWouldBlock
	}
	return m.pages[0], nil
}

func (m *blockingMedium) Write(page [PageSize]byte) error { return nil }
