// Package dispatch implements the main loop: it owns the 256-byte read
// buffer, drives the protocol codec over it, filters and routes complete
// frames to the command handler table, and emits framed replies with
// TX-enable sequencing.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/stbohne/pico-iox16/input"
	"github.com/stbohne/pico-iox16/nvm"
	"github.com/stbohne/pico-iox16/output"
	"github.com/stbohne/pico-iox16/protocol"
	pioruntime "github.com/stbohne/pico-iox16/runtime"
)

// bufferSize is the size of the rolling read buffer; frames larger than
// this (the protocol's own 1020-byte payload ceiling notwithstanding)
// cannot be assembled and are never produced by a conforming master.
const bufferSize = 256

// interFrameGapUS is the inter-frame gap heuristic of spec §4.6: if more
// than this many microseconds pass since the last successful byte, the
// buffer is discarded so the slave can resynchronize after a lost byte.
const interFrameGapUS = 1000

// rebootDrainUS is the minimum wait after sending the reboot
// acknowledgement before the transmitter is allowed to reset, so the
// reply has time to leave the shift register.
const rebootDrainUS = 1000

// TXEnable is the half-duplex transceiver's direction-control line: true
// while the slave is transmitting, false otherwise.
type TXEnable interface {
	Set(enabled bool) error
}

// DeviceName and firmware version reported by CommandInfoGet.
const (
	DeviceName           = "pico-iox16"
	FirmwareVersionMajor = 0
	FirmwareVersionMinor = 1
	FirmwareVersionPatch = 0
)

// Loop is the request/response state machine: frame hunter, address
// filter, command dispatch, and framed reply emission, all driven from a
// single goroutine.
type Loop struct {
	Stream   pioruntime.ByteStream
	Clock    pioruntime.Clock
	TX       TXEnable
	Store    *nvm.Store
	Engine   *input.Engine
	Outputs  *output.Bank
	Reboot   pioruntime.System
	Log      *log.Logger

	address uint16
}

// NewLoop builds a dispatcher bound to its collaborators. The device
// address is pinned at construction from the store's current
// configuration and does not change until Reboot is invoked, mirroring
// spec §3's "takes effect only after reboot".
func NewLoop(stream pioruntime.ByteStream, clock pioruntime.Clock, tx TXEnable, store *nvm.Store, engine *input.Engine, outputs *output.Bank, rebooter pioruntime.System, logger *log.Logger) *Loop {
	return &Loop{
		Stream:  stream,
		Clock:   clock,
		TX:      tx,
		Store:   store,
		Engine:  engine,
		Outputs: outputs,
		Reboot:  rebooter,
		Log:     logger,
		address: store.Get().Config.Address,
	}
}

// Run drives the dispatcher forever, or until ctx is cancelled or a fatal
// error (unrecoverable read fault, write/flush/TX-enable fault, or a
// handler's flash error) occurs.
func (l *Loop) Run(ctx context.Context) error {
	buf := make([]byte, bufferSize)
	length := 0
	lastReceive := l.Clock.Now()

	for {
		n, err := l.Stream.Read(buf[length:])
		switch {
		case err == nil:
			if n > 0 {
				length += n
				lastReceive = l.Clock.Now()
			}
		case errors.Is(err, pioruntime.ErrWouldBlock):
			// no new bytes this iteration
		case errors.Is(err, pioruntime.ErrRecoverable):
			l.Log.Debug("discarding read buffer after recoverable read error", "err", err)
			length = 0
		default:
			return fmt.Errorf("dispatch: unrecoverable read fault: %w", err)
		}

		if length > 0 && l.Clock.Now()-lastReceive > interFrameGapUS {
			l.Log.Debug("discarding stale read buffer", "age_us", l.Clock.Now()-lastReceive)
			length = 0
		}

		for {
			frame, processed, ok := protocol.Next(buf[:length])
			if !ok && processed == 0 {
				break
			}
			if ok {
				if err := l.handle(ctx, frame); err != nil {
					return err
				}
			}
			copy(buf, buf[processed:length])
			length -= processed
		}

		if err := pioruntime.Yield(ctx); err != nil {
			return err
		}
	}
}

// handle decodes, dispatches, and (if applicable) replies to one
// extracted frame. It returns non-nil only for fatal errors (a handler's
// flash fault, or a write/flush/TX-enable fault while replying); protocol
// errors (address mismatch, unknown command, size mismatch) are silently
// dropped per spec §7.
func (l *Loop) handle(ctx context.Context, f protocol.Frame) error {
	if f.Header.Address != l.address {
		return nil
	}

	cmd := protocol.Command(f.Header.Command)
	if !protocol.KnownCommand(cmd) {
		return nil
	}

	started := l.Clock.Now()
	resp, err := l.dispatchCommand(ctx, cmd, f.Payload)
	if err != nil {
		if errors.Is(err, protocol.ErrSizeMismatch) {
			l.Log.Debug("dropping frame with bad payload size", "command", cmd, "err", err)
			return nil
		}
		return fmt.Errorf("dispatch: handler %s failed: %w", cmd, err)
	}
	l.Log.Debug("handled command", "command", cmd, "elapsed_us", l.Clock.Now()-started)

	if resp == nil {
		// Reboot has already sent its own response.
		return nil
	}
	return l.reply(ctx, cmd, resp)
}

func (l *Loop) dispatchCommand(ctx context.Context, cmd protocol.Command, payload []byte) ([]byte, error) {
	switch cmd {
	case protocol.CommandCheck:
		if err := protocol.DecodeEmpty(payload); err != nil {
			return nil, err
		}
		return protocol.EmptyPayload, nil

	case protocol.CommandInfoGet:
		if err := protocol.DecodeEmpty(payload); err != nil {
			return nil, err
		}
		return protocol.EncodeDeviceInfo(l.deviceInfo()), nil

	case protocol.CommandConfigSet:
		cfg, err := protocol.DecodeConfig(payload)
		if err != nil {
			return nil, err
		}
		page := l.Store.Get()
		page.Config = cfg
		if err := l.Store.Set(ctx, page); err != nil {
			return nil, err
		}
		return protocol.EmptyPayload, nil

	case protocol.CommandConfigGet:
		if err := protocol.DecodeEmpty(payload); err != nil {
			return nil, err
		}
		return protocol.EncodeConfig(l.Store.Get().Config), nil

	case protocol.CommandOutputsSet:
		groups, err := protocol.DecodeOutputGroups(payload)
		if err != nil {
			return nil, err
		}
		for i, g := range groups {
			if err := l.Outputs.SetGroup(i, g.FrequencyHz, g.DutyA, g.DutyB); err != nil {
				return nil, err
			}
		}
		return protocol.EmptyPayload, nil

	case protocol.CommandOutputsGet:
		if err := protocol.DecodeEmpty(payload); err != nil {
			return nil, err
		}
		return protocol.EncodeOutputGroups(l.currentOutputGroups()), nil

	case protocol.CommandInputsReadReset:
		if err := protocol.DecodeEmpty(payload); err != nil {
			return nil, err
		}
		return protocol.EncodeInputAverages(l.Engine.ReadAverages()), nil

	case protocol.CommandInputsReadResetFull:
		if err := protocol.DecodeEmpty(payload); err != nil {
			return nil, err
		}
		full := l.Engine.ReadFull()
		var entries [protocol.NumChannels]protocol.InputFullStatsEntry
		for i, s := range full {
			entries[i] = protocol.InputFullStatsEntry{
				Sum: s.Sum, SumSquares: s.SumSquares, Min: s.Min, Max: s.Max, Count: s.Count,
			}
		}
		return protocol.EncodeInputFullStats(entries), nil

	case protocol.CommandCalibrationsSet:
		cals, err := protocol.DecodeCalibrations(payload)
		if err != nil {
			return nil, err
		}
		page := l.Store.Get()
		page.Calibrations = cals
		if err := l.Store.Set(ctx, page); err != nil {
			return nil, err
		}
		return protocol.EmptyPayload, nil

	case protocol.CommandCalibrationsGet:
		if err := protocol.DecodeEmpty(payload); err != nil {
			return nil, err
		}
		return protocol.EncodeCalibrations(l.Store.Get().Calibrations), nil

	case protocol.CommandThresholdsSet:
		ths, err := protocol.DecodeThresholds(payload)
		if err != nil {
			return nil, err
		}
		page := l.Store.Get()
		page.Thresholds = ths
		if err := l.Store.Set(ctx, page); err != nil {
			return nil, err
		}
		return protocol.EmptyPayload, nil

	case protocol.CommandThresholdsGet:
		if err := protocol.DecodeEmpty(payload); err != nil {
			return nil, err
		}
		return protocol.EncodeThresholds(l.Store.Get().Thresholds), nil

	case protocol.CommandThresholdTimesGet:
		if err := protocol.DecodeEmpty(payload); err != nil {
			return nil, err
		}
		now, times := l.Engine.ThresholdTimes(l.Clock.Now())
		var entries [protocol.NumChannels]protocol.ThresholdTimesEntry
		for i, t := range times {
			entries[i] = protocol.ThresholdTimesEntry{
				LastAboveDebounced: t.LastAboveDebounced,
				LastBelowDebounced: t.LastBelowDebounced,
			}
		}
		return protocol.EncodeThresholdTimes(now, entries), nil

	case protocol.CommandThresholdStatesGet:
		if err := protocol.DecodeEmpty(payload); err != nil {
			return nil, err
		}
		above, below := l.Engine.ThresholdStates()
		return protocol.EncodeThresholdStates(above, below), nil

	case protocol.CommandReboot:
		if err := protocol.DecodeEmpty(payload); err != nil {
			return nil, err
		}
		if err := l.reply(ctx, cmd, protocol.EmptyPayload); err != nil {
			return nil, err
		}
		if err := pioruntime.WaitFor(ctx, l.Clock, rebootDrainUS); err != nil {
			return nil, err
		}
		l.Reboot.Reboot()
		// Real hardware never returns from Reboot. The simulated target's
		// Reboot returns without restarting anything, so the dispatcher
		// re-reads its address from the configuration the store now holds.
		l.address = l.Store.Get().Config.Address
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: %d", protocol.ErrUnknownCommand, cmd)
	}
}

func (l *Loop) deviceInfo() protocol.DeviceInfo {
	var name [32]byte
	copy(name[:], DeviceName)
	return protocol.DeviceInfo{
		Name:          name,
		VersionMajor:  FirmwareVersionMajor,
		VersionMinor:  FirmwareVersionMinor,
		VersionPatch:  FirmwareVersionPatch,
		UptimeSeconds: uint32(l.Clock.Now() / 1_000_000),
	}
}

// currentOutputGroups reads back the hardware's own raw duty ticks for
// every pair, per spec §4.4 ("the getter reports ... the raw hardware
// duty values unscaled"), not the input-scale values OutputsSet accepted.
func (l *Loop) currentOutputGroups() [protocol.NumOutputGroups]protocol.OutputGroup {
	var out [protocol.NumOutputGroups]protocol.OutputGroup
	for i := range out {
		freq, dutyA, dutyB := l.Outputs.GetGroup(i)
		out[i] = protocol.OutputGroup{FrequencyHz: freq, DutyA: uint16(dutyA), DutyB: uint16(dutyB)}
	}
	return out
}

// reply frames payload under command, asserting TX-enable for the
// preamble plus frame plus drain, exactly as spec §4.5 requires: raise
// TX-enable, write two 0xFF preamble bytes, write the frame, flush until
// idle, lower TX-enable.
func (l *Loop) reply(ctx context.Context, cmd protocol.Command, payload []byte) (err error) {
	if err := l.TX.Set(true); err != nil {
		return fmt.Errorf("dispatch: tx-enable fault: %w", err)
	}
	defer func() {
		// Lowering TX-enable is as fatal as raising it (spec §7): a
		// failure here must not be swallowed just because it happens
		// during cleanup.
		if txErr := l.TX.Set(false); txErr != nil {
			txErr = fmt.Errorf("dispatch: tx-enable fault: %w", txErr)
			if err == nil {
				err = txErr
			} else {
				err = errors.Join(err, txErr)
			}
		}
	}()

	if err := writeAll(ctx, l.Stream, []byte{0xFF, 0xFF}); err != nil {
		return fmt.Errorf("dispatch: preamble write fault: %w", err)
	}

	frame := protocol.Encode(l.address, uint16(cmd), payload)
	if err := writeAll(ctx, l.Stream, frame); err != nil {
		return fmt.Errorf("dispatch: frame write fault: %w", err)
	}

	if err := pioruntime.AwaitErr(ctx, l.Stream.Flush); err != nil {
		return fmt.Errorf("dispatch: flush fault: %w", err)
	}
	return nil
}

func writeAll(ctx context.Context, stream pioruntime.ByteStream, buf []byte) error {
	for len(buf) > 0 {
		n, err := stream.Write(buf)
		if err != nil {
			if errors.Is(err, pioruntime.ErrWouldBlock) {
				if yerr := pioruntime.Yield(ctx); yerr != nil {
					return yerr
				}
				continue
			}
			return err
		}
		buf = buf[n:]
	}
	return nil
}
