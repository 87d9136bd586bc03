package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/stbohne/pico-iox16/nvm"
)

// NumChannels is the number of analog inputs / calibration / threshold
// slots the wire messages carry, one per physical channel.
const NumChannels = 16

// NumOutputGroups is the number of PWM slice-pairs the wire messages
// carry.
const NumOutputGroups = 8

// ErrSizeMismatch is returned by a Decode function when the payload's
// length doesn't match what the command requires. Per spec §7 this is a
// protocol error: the frame is dropped, not propagated as a fault.
var ErrSizeMismatch = errors.New("protocol: payload size mismatch")

// ErrUnknownCommand reports a command id outside the closed catalog in
// command.go; the dispatch package's command switch returns it for an id
// it has no handler for.
var ErrUnknownCommand = errors.New("protocol: unknown command")

func sizeCheck(payload []byte, want int) error {
	if len(payload) != want {
		return fmt.Errorf("%w: want %d bytes, got %d", ErrSizeMismatch, want, len(payload))
	}
	return nil
}

// --- device info (command 1) ---

// DeviceInfo is the response payload for CommandInfoGet: a fixed 32-byte
// name field, an 8/8/16-bit firmware version, and uptime in whole seconds
// since boot.
type DeviceInfo struct {
	Name          [32]byte
	VersionMajor  byte
	VersionMinor  byte
	VersionPatch  uint16
	UptimeSeconds uint32
}

const deviceInfoSize = 32 + 1 + 1 + 2 + 4 // name + major + minor + patch + uptime

// EncodeDeviceInfo serialises a DeviceInfo payload.
func EncodeDeviceInfo(d DeviceInfo) []byte {
	buf := make([]byte, deviceInfoSize)
	copy(buf[0:32], d.Name[:])
	buf[32] = d.VersionMajor
	buf[33] = d.VersionMinor
	binary.LittleEndian.PutUint16(buf[34:36], d.VersionPatch)
	binary.LittleEndian.PutUint32(buf[36:40], d.UptimeSeconds)
	return buf
}

// DecodeDeviceInfo parses a DeviceInfo payload.
func DecodeDeviceInfo(payload []byte) (DeviceInfo, error) {
	if err := sizeCheck(payload, deviceInfoSize); err != nil {
		return DeviceInfo{}, err
	}
	var d DeviceInfo
	copy(d.Name[:], payload[0:32])
	d.VersionMajor = payload[32]
	d.VersionMinor = payload[33]
	d.VersionPatch = binary.LittleEndian.Uint16(payload[34:36])
	d.UptimeSeconds = binary.LittleEndian.Uint32(payload[36:40])
	return d, nil
}

// --- configuration (commands 2, 3) ---

const configWireSize = 8 // u16 address + u32 baudrate + 2 reserved

// EncodeConfig serialises a device configuration, used both for the
// ConfigSet request and the ConfigGet response.
func EncodeConfig(c nvm.Config) []byte {
	buf := make([]byte, configWireSize)
	binary.LittleEndian.PutUint16(buf[0:2], c.Address)
	binary.LittleEndian.PutUint32(buf[4:8], c.Baudrate)
	return buf
}

// DecodeConfig parses a device configuration payload.
func DecodeConfig(payload []byte) (nvm.Config, error) {
	if err := sizeCheck(payload, configWireSize); err != nil {
		return nvm.Config{}, err
	}
	return nvm.Config{
		Address:  binary.LittleEndian.Uint16(payload[0:2]),
		Baudrate: binary.LittleEndian.Uint32(payload[4:8]),
	}, nil
}

// --- outputs (commands 4, 5) ---

// OutputGroup is one PWM slice-pair entry on the wire: two duty cycles
// followed by a shared frequency, matching the original protocol's
// duty_cycle:[u16;2] then frequency:u16 layout. For OutputsSet the duty
// cycles are on the output.MaxDutyCycle (0..0x8000) input scale; for
// OutputsGet they are the hardware's raw, unscaled duty ticks — callers
// must know the scale in each direction, matching spec §4.4.
type OutputGroup struct {
	DutyA, DutyB uint16
	FrequencyHz  uint32
}

const outputGroupSize = 6
const outputGroupsWireSize = outputGroupSize * NumOutputGroups

// EncodeOutputGroups serialises all eight slice-pair entries.
func EncodeOutputGroups(groups [NumOutputGroups]OutputGroup) []byte {
	buf := make([]byte, outputGroupsWireSize)
	for i, g := range groups {
		dst := buf[i*outputGroupSize:]
		binary.LittleEndian.PutUint16(dst[0:2], g.DutyA)
		binary.LittleEndian.PutUint16(dst[2:4], g.DutyB)
		binary.LittleEndian.PutUint16(dst[4:6], uint16(g.FrequencyHz))
	}
	return buf
}

// DecodeOutputGroups parses all eight slice-pair entries.
func DecodeOutputGroups(payload []byte) ([NumOutputGroups]OutputGroup, error) {
	var out [NumOutputGroups]OutputGroup
	if err := sizeCheck(payload, outputGroupsWireSize); err != nil {
		return out, err
	}
	for i := range out {
		src := payload[i*outputGroupSize:]
		out[i] = OutputGroup{
			DutyA:       binary.LittleEndian.Uint16(src[0:2]),
			DutyB:       binary.LittleEndian.Uint16(src[2:4]),
			FrequencyHz: uint32(binary.LittleEndian.Uint16(src[4:6])),
		}
	}
	return out, nil
}

// --- input readout (commands 6, 7) ---

const inputAveragesWireSize = NumChannels * 2

// EncodeInputAverages serialises the sixteen per-channel averages.
func EncodeInputAverages(values [NumChannels]int16) []byte {
	buf := make([]byte, inputAveragesWireSize)
	for i, v := range values {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

// DecodeInputAverages parses the sixteen per-channel averages (used only
// on the master side, e.g. by ioexpanderctl; the slave never decodes its
// own response).
func DecodeInputAverages(payload []byte) ([NumChannels]int16, error) {
	var out [NumChannels]int16
	if err := sizeCheck(payload, inputAveragesWireSize); err != nil {
		return out, err
	}
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(payload[i*2:]))
	}
	return out, nil
}

// InputFullStatsEntry mirrors input.ChannelStats on the wire.
type InputFullStatsEntry struct {
	Sum        int32
	SumSquares uint64
	Min        int16
	Max        int16
	Count      uint16
}

const inputFullStatsEntrySize = 20
const inputFullStatsWireSize = inputFullStatsEntrySize * NumChannels

// EncodeInputFullStats serialises the sixteen full per-channel
// snapshots.
func EncodeInputFullStats(entries [NumChannels]InputFullStatsEntry) []byte {
	buf := make([]byte, inputFullStatsWireSize)
	for i, e := range entries {
		dst := buf[i*inputFullStatsEntrySize:]
		binary.LittleEndian.PutUint32(dst[0:4], uint32(e.Sum))
		binary.LittleEndian.PutUint64(dst[4:12], e.SumSquares)
		binary.LittleEndian.PutUint16(dst[12:14], uint16(e.Min))
		binary.LittleEndian.PutUint16(dst[14:16], uint16(e.Max))
		binary.LittleEndian.PutUint16(dst[16:18], e.Count)
	}
	return buf
}

// DecodeInputFullStats parses the sixteen full per-channel snapshots.
func DecodeInputFullStats(payload []byte) ([NumChannels]InputFullStatsEntry, error) {
	var out [NumChannels]InputFullStatsEntry
	if err := sizeCheck(payload, inputFullStatsWireSize); err != nil {
		return out, err
	}
	for i := range out {
		src := payload[i*inputFullStatsEntrySize:]
		out[i] = InputFullStatsEntry{
			Sum:        int32(binary.LittleEndian.Uint32(src[0:4])),
			SumSquares: binary.LittleEndian.Uint64(src[4:12]),
			Min:        int16(binary.LittleEndian.Uint16(src[12:14])),
			Max:        int16(binary.LittleEndian.Uint16(src[14:16])),
			Count:      binary.LittleEndian.Uint16(src[16:18]),
		}
	}
	return out, nil
}

// --- calibration (commands 8, 9) ---

const calibrationWireSize = 10
const calibrationsWireSize = calibrationWireSize * NumChannels

// EncodeCalibrations serialises the sixteen per-channel calibrations.
func EncodeCalibrations(cals [NumChannels]nvm.Calibration) []byte {
	buf := make([]byte, calibrationsWireSize)
	for i, c := range cals {
		dst := buf[i*calibrationWireSize:]
		binary.LittleEndian.PutUint16(dst[0:2], uint16(c.Multiply))
		binary.LittleEndian.PutUint16(dst[2:4], uint16(c.Divide))
		binary.LittleEndian.PutUint16(dst[4:6], uint16(c.Add))
		binary.LittleEndian.PutUint16(dst[6:8], uint16(c.Min))
		binary.LittleEndian.PutUint16(dst[8:10], uint16(c.Max))
	}
	return buf
}

// DecodeCalibrations parses the sixteen per-channel calibrations.
func DecodeCalibrations(payload []byte) ([NumChannels]nvm.Calibration, error) {
	var out [NumChannels]nvm.Calibration
	if err := sizeCheck(payload, calibrationsWireSize); err != nil {
		return out, err
	}
	for i := range out {
		src := payload[i*calibrationWireSize:]
		out[i] = nvm.Calibration{
			Multiply: int16(binary.LittleEndian.Uint16(src[0:2])),
			Divide:   int16(binary.LittleEndian.Uint16(src[2:4])),
			Add:      int16(binary.LittleEndian.Uint16(src[4:6])),
			Min:      int16(binary.LittleEndian.Uint16(src[6:8])),
			Max:      int16(binary.LittleEndian.Uint16(src[8:10])),
		}
	}
	return out, nil
}

// --- thresholds (commands 10, 11, 12, 13) ---

const thresholdWireSize = 12
const thresholdsWireSize = thresholdWireSize * NumChannels

// EncodeThresholds serialises the sixteen per-channel threshold configs.
func EncodeThresholds(ths [NumChannels]nvm.Threshold) []byte {
	buf := make([]byte, thresholdsWireSize)
	for i, th := range ths {
		dst := buf[i*thresholdWireSize:]
		binary.LittleEndian.PutUint16(dst[0:2], uint16(th.ThresholdHigh))
		binary.LittleEndian.PutUint16(dst[2:4], uint16(th.ThresholdLow))
		binary.LittleEndian.PutUint32(dst[4:8], th.DebounceTimeUS)
		binary.LittleEndian.PutUint16(dst[8:10], th.DebounceCount)
	}
	return buf
}

// DecodeThresholds parses the sixteen per-channel threshold configs.
func DecodeThresholds(payload []byte) ([NumChannels]nvm.Threshold, error) {
	var out [NumChannels]nvm.Threshold
	if err := sizeCheck(payload, thresholdsWireSize); err != nil {
		return out, err
	}
	for i := range out {
		src := payload[i*thresholdWireSize:]
		out[i] = nvm.Threshold{
			ThresholdHigh:  int16(binary.LittleEndian.Uint16(src[0:2])),
			ThresholdLow:   int16(binary.LittleEndian.Uint16(src[2:4])),
			DebounceTimeUS: binary.LittleEndian.Uint32(src[4:8]),
			DebounceCount:  binary.LittleEndian.Uint16(src[8:10]),
		}
	}
	return out, nil
}

// ThresholdTimesEntry is the pair of debounced crossing timestamps for
// one channel, as reported on the wire: last_low before last_high,
// matching the original protocol's InputThresholdTimes field order.
type ThresholdTimesEntry struct {
	LastBelowDebounced uint64
	LastAboveDebounced uint64
}

const thresholdTimesEntrySize = 16
const thresholdTimesWireSize = 8 + thresholdTimesEntrySize*NumChannels

// EncodeThresholdTimes serialises the "now" timestamp plus the sixteen
// per-channel debounced crossing timestamp pairs.
func EncodeThresholdTimes(now uint64, entries [NumChannels]ThresholdTimesEntry) []byte {
	buf := make([]byte, thresholdTimesWireSize)
	binary.LittleEndian.PutUint64(buf[0:8], now)
	for i, e := range entries {
		dst := buf[8+i*thresholdTimesEntrySize:]
		binary.LittleEndian.PutUint64(dst[0:8], e.LastBelowDebounced)
		binary.LittleEndian.PutUint64(dst[8:16], e.LastAboveDebounced)
	}
	return buf
}

// DecodeThresholdTimes parses a threshold-times response payload.
func DecodeThresholdTimes(payload []byte) (now uint64, entries [NumChannels]ThresholdTimesEntry, err error) {
	if err := sizeCheck(payload, thresholdTimesWireSize); err != nil {
		return 0, entries, err
	}
	now = binary.LittleEndian.Uint64(payload[0:8])
	for i := range entries {
		src := payload[8+i*thresholdTimesEntrySize:]
		entries[i] = ThresholdTimesEntry{
			LastBelowDebounced: binary.LittleEndian.Uint64(src[0:8]),
			LastAboveDebounced: binary.LittleEndian.Uint64(src[8:16]),
		}
	}
	return now, entries, nil
}

const thresholdStatesWireSize = 4

// EncodeThresholdStates serialises the above/below channel bitmasks.
func EncodeThresholdStates(above, below uint16) []byte {
	buf := make([]byte, thresholdStatesWireSize)
	binary.LittleEndian.PutUint16(buf[0:2], above)
	binary.LittleEndian.PutUint16(buf[2:4], below)
	return buf
}

// DecodeThresholdStates parses the above/below channel bitmasks.
func DecodeThresholdStates(payload []byte) (above, below uint16, err error) {
	if err := sizeCheck(payload, thresholdStatesWireSize); err != nil {
		return 0, 0, err
	}
	return binary.LittleEndian.Uint16(payload[0:2]), binary.LittleEndian.Uint16(payload[2:4]), nil
}

// --- empty payloads (commands 0, 14, and every *Set ack) ---

// EmptyPayload is the zero-length payload shared by Check, Reboot, and
// every write command's acknowledgement.
var EmptyPayload = []byte{}

// DecodeEmpty validates a payload that is expected to carry no data.
func DecodeEmpty(payload []byte) error {
	return sizeCheck(payload, 0)
}
