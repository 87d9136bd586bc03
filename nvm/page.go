// Package nvm implements the non-volatile configuration store: a single
// 4096-byte flash page holding the device configuration plus per-channel
// calibration and threshold settings, encoded so that an erased
// (all-0xFF) page decodes to sensible defaults.
package nvm

import "encoding/binary"

// PageSize is the fixed size of the persisted flash sector.
const PageSize = 4096

const numChannels = 16

// Unconfigured is the reserved device address identifying a slave that has
// never been assigned an address.
const Unconfigured uint16 = 0xFFFF

// BaudrateUnset is the sentinel baudrate value decoded from an erased page.
const BaudrateUnset uint32 = 0xFFFFFFFF

// Config is the persisted device identity. Address and baudrate only take
// effect after a reboot.
type Config struct {
	Address  uint16
	Baudrate uint32
}

// Calibration maps a raw 12-bit ADC reading to a calibrated signed 16-bit
// value: clamp(((raw*Multiply)/Divide)+Add, Min, Max), computed in 32-bit
// signed arithmetic with truncating division.
type Calibration struct {
	Multiply int16
	Divide   int16
	Add      int16
	Min      int16
	Max      int16
}

// Apply computes the calibrated value for a raw ADC reading.
func (c Calibration) Apply(raw uint16) int16 {
	v := int32(raw)*int32(c.Multiply)/int32(c.Divide) + int32(c.Add)
	if v < int32(c.Min) {
		v = int32(c.Min)
	}
	if v > int32(c.Max) {
		v = int32(c.Max)
	}
	return int16(v)
}

// Threshold is the per-channel debounced two-sided threshold configuration.
type Threshold struct {
	ThresholdHigh  int16
	ThresholdLow   int16
	DebounceTimeUS uint32
	DebounceCount  uint16
}

// Page is the fully decoded contents of the persisted flash page.
type Page struct {
	Config       Config
	Calibrations [numChannels]Calibration
	Thresholds   [numChannels]Threshold
}

// Field-level XOR masks. decode(raw) == raw ^ mask; since XOR is its own
// inverse, encode(value) == value ^ mask. Masks are chosen so that an
// erased page (every byte 0xFF) decodes to the documented defaults:
//
//	address           raw 0xFFFF, mask 0x0000 -> 0xFFFF (Unconfigured)
//	baudrate          raw 0xFFFFFFFF, mask 0x00000000 -> BaudrateUnset
//	multiply/divide   raw 0xFFFF, mask 0xFFFE -> 1
//	add               raw 0xFFFF, mask 0xFFFF -> 0
//	min               raw 0xFFFF, mask 0x7FFF -> -32768 (math.MinInt16)
//	max               raw 0xFFFF, mask 0x8000 -> 32767 (math.MaxInt16)
//	threshold_high    raw 0xFFFF, mask 0x8000 -> 32767
//	threshold_low     raw 0xFFFF, mask 0x7FFF -> -32768
//	debounce_time_us  raw 0xFFFFFFFF, mask 0xFFFFFFFF -> 0
//	debounce_count    raw 0xFFFF, mask 0xFFFF -> 0
const (
	maskAddress        uint16 = 0x0000
	maskBaudrate       uint32 = 0x00000000
	maskMultiplyDivide uint16 = 0xFFFE
	maskAdd            uint16 = 0xFFFF
	maskMin            uint16 = 0x7FFF
	maskMax            uint16 = 0x8000
	maskThresholdHigh  uint16 = 0x8000
	maskThresholdLow   uint16 = 0x7FFF
	maskDebounceTimeUS uint32 = 0xFFFFFFFF
	maskDebounceCount  uint16 = 0xFFFF
)

// sizes, in bytes, of the packed little-endian wire layout.
const (
	configSize      = 8  // u16 address + u32 baudrate + 2 reserved bytes
	calibrationSize = 10 // 5 * i16
	thresholdSize   = 12 // i16 + i16 + u32 + u16 + 2 reserved bytes
)

// DefaultPage returns the decoded contents of an erased (all-0xFF) flash
// page: address Unconfigured, unit calibration, and threshold bounds wide
// open with debouncing disabled.
func DefaultPage() Page {
	erased := [PageSize]byte{}
	for i := range erased {
		erased[i] = 0xFF
	}
	p, _ := Decode(erased)
	return p
}

// Decode parses a raw 4096-byte flash page into its typed fields.
func Decode(raw [PageSize]byte) (Page, error) {
	var p Page
	off := 0

	p.Config.Address = decode16(raw[off:], maskAddress)
	p.Config.Baudrate = decode32(raw[off+2:], maskBaudrate)
	off += configSize

	for i := 0; i < numChannels; i++ {
		c := raw[off : off+calibrationSize]
		p.Calibrations[i] = Calibration{
			Multiply: int16(decode16(c[0:], maskMultiplyDivide)),
			Divide:   int16(decode16(c[2:], maskMultiplyDivide)),
			Add:      int16(decode16(c[4:], maskAdd)),
			Min:      int16(decode16(c[6:], maskMin)),
			Max:      int16(decode16(c[8:], maskMax)),
		}
		off += calibrationSize
	}

	for i := 0; i < numChannels; i++ {
		th := raw[off : off+thresholdSize]
		p.Thresholds[i] = Threshold{
			ThresholdHigh:  int16(decode16(th[0:], maskThresholdHigh)),
			ThresholdLow:   int16(decode16(th[2:], maskThresholdLow)),
			DebounceTimeUS: decode32(th[4:], maskDebounceTimeUS),
			DebounceCount:  decode16(th[8:], maskDebounceCount),
		}
		off += thresholdSize
	}

	return p, nil
}

// Encode packs a Page into its 4096-byte on-flash representation, with the
// unused tail filled with 0xFF to match what an erase leaves behind.
func Encode(p Page) [PageSize]byte {
	var raw [PageSize]byte
	for i := range raw {
		raw[i] = 0xFF
	}
	off := 0

	encode16(raw[off:], p.Config.Address, maskAddress)
	encode32(raw[off+2:], p.Config.Baudrate, maskBaudrate)
	off += configSize

	for i := 0; i < numChannels; i++ {
		c := p.Calibrations[i]
		dst := raw[off : off+calibrationSize]
		encode16(dst[0:], uint16(c.Multiply), maskMultiplyDivide)
		encode16(dst[2:], uint16(c.Divide), maskMultiplyDivide)
		encode16(dst[4:], uint16(c.Add), maskAdd)
		encode16(dst[6:], uint16(c.Min), maskMin)
		encode16(dst[8:], uint16(c.Max), maskMax)
		off += calibrationSize
	}

	for i := 0; i < numChannels; i++ {
		th := p.Thresholds[i]
		dst := raw[off : off+thresholdSize]
		encode16(dst[0:], uint16(th.ThresholdHigh), maskThresholdHigh)
		encode16(dst[2:], uint16(th.ThresholdLow), maskThresholdLow)
		encode32(dst[4:], th.DebounceTimeUS, maskDebounceTimeUS)
		encode16(dst[8:], th.DebounceCount, maskDebounceCount)
		off += thresholdSize
	}

	return raw
}

func decode16(buf []byte, mask uint16) uint16 {
	return binary.LittleEndian.Uint16(buf) ^ mask
}

func encode16(buf []byte, value, mask uint16) {
	binary.LittleEndian.PutUint16(buf, value^mask)
}

func decode32(buf []byte, mask uint32) uint32 {
	return binary.LittleEndian.Uint32(buf) ^ mask
}

func encode32(buf []byte, value, mask uint32) {
	binary.LittleEndian.PutUint32(buf, value^mask)
}
