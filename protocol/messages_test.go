package protocol

import (
	"testing"

	"github.com/stbohne/pico-iox16/nvm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceInfoRoundTrip(t *testing.T) {
	var name [32]byte
	copy(name[:], "pico-iox16")
	want := DeviceInfo{Name: name, VersionMajor: 0, VersionMinor: 1, VersionPatch: 0, UptimeSeconds: 42}

	got, err := DecodeDeviceInfo(EncodeDeviceInfo(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestConfigRoundTrip(t *testing.T) {
	want := nvm.Config{Address: 5, Baudrate: 115200}
	got, err := DecodeConfig(EncodeConfig(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestConfigSizeMismatch(t *testing.T) {
	_, err := DecodeConfig([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestOutputGroupsRoundTrip(t *testing.T) {
	var want [NumOutputGroups]OutputGroup
	for i := range want {
		want[i] = OutputGroup{FrequencyHz: uint32(1000 + i), DutyA: uint16(100 * i), DutyB: uint16(200 * i)}
	}
	got, err := DecodeOutputGroups(EncodeOutputGroups(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestInputAveragesRoundTrip(t *testing.T) {
	var want [NumChannels]int16
	for i := range want {
		want[i] = int16(i*100 - 800)
	}
	got, err := DecodeInputAverages(EncodeInputAverages(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestInputFullStatsRoundTrip(t *testing.T) {
	var want [NumChannels]InputFullStatsEntry
	for i := range want {
		want[i] = InputFullStatsEntry{
			Sum: int32(i * 10), SumSquares: uint64(i * i), Min: int16(-i), Max: int16(i), Count: uint16(i),
		}
	}
	got, err := DecodeInputFullStats(EncodeInputFullStats(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCalibrationsRoundTrip(t *testing.T) {
	var want [NumChannels]nvm.Calibration
	for i := range want {
		want[i] = nvm.Calibration{Multiply: 2, Divide: 1, Add: int16(i), Min: -1000, Max: 1000}
	}
	got, err := DecodeCalibrations(EncodeCalibrations(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestThresholdsRoundTrip(t *testing.T) {
	var want [NumChannels]nvm.Threshold
	for i := range want {
		want[i] = nvm.Threshold{ThresholdHigh: 100, ThresholdLow: -100, DebounceTimeUS: 500, DebounceCount: uint16(i)}
	}
	got, err := DecodeThresholds(EncodeThresholds(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestThresholdTimesRoundTrip(t *testing.T) {
	var want [NumChannels]ThresholdTimesEntry
	for i := range want {
		want[i] = ThresholdTimesEntry{LastAboveDebounced: uint64(i), LastBelowDebounced: uint64(i * 2)}
	}
	gotNow, gotEntries, err := DecodeThresholdTimes(EncodeThresholdTimes(9999, want))
	require.NoError(t, err)
	assert.Equal(t, uint64(9999), gotNow)
	assert.Equal(t, want, gotEntries)
}

func TestThresholdStatesRoundTrip(t *testing.T) {
	gotAbove, gotBelow, err := DecodeThresholdStates(EncodeThresholdStates(0xABCD, 0x1234))
	require.NoError(t, err)
	assert.Equal(t, uint16(0xABCD), gotAbove)
	assert.Equal(t, uint16(0x1234), gotBelow)
}

func TestDecodeEmptyRejectsNonEmptyPayload(t *testing.T) {
	assert.ErrorIs(t, DecodeEmpty([]byte{1}), ErrSizeMismatch)
	assert.NoError(t, DecodeEmpty(nil))
}
