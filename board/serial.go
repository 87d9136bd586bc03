// Package board wires the core's abstract collaborator interfaces
// (runtime.ByteStream, runtime.System, nvm.Medium, input.AnalogInputPair,
// output.Slice) to real or simulated hardware: GPIO mux/ADC lines, PWM
// slices, a flash-backed file, and a serial/pty byte transport. None of
// this is part of the firmware core spec describes (§1: "the physical
// ADC/GPIO/UART/PWM/flash drivers... are out of scope"); it exists so the
// repo runs end to end on a dev board or under simulation.
package board

import (
	"errors"
	"os"
	"time"

	"github.com/creack/pty"
	"github.com/pkg/term"

	pioruntime "github.com/stbohne/pico-iox16/runtime"
)

// pollDeadline is how far in the future PTYBus's Read/Write set their
// deadline before attempting the syscall: an immediate deadline turns a
// blocking descriptor into a polled one, matching the core's "never block,
// report WouldBlock instead" contract (spec §4.1) without needing
// O_NONBLOCK plumbing of our own. SerialBus sets no deadline: its Read and
// Write return only when the underlying term read or write does.
const pollDeadline = time.Millisecond

// wouldBlock translates a deadline-exceeded error (our stand-in for
// EAGAIN) into runtime.ErrWouldBlock, and everything else passes through
// unwrapped so the caller's recoverable/unrecoverable split still applies.
func wouldBlock(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return pioruntime.ErrWouldBlock
	}
	return err
}

// SerialBus wraps a real RS-485/RS-422 transceiver opened with
// github.com/pkg/term, grounded on the teacher's serial_port.go
// (term.Open, SetSpeed, Read, Write, Close).
type SerialBus struct {
	fd *term.Term
}

// OpenSerialBus opens devicename in raw mode at the given baud rate. A
// baud of 0 leaves the port's current speed alone, matching
// serial_port_open's "leave it alone" case.
func OpenSerialBus(devicename string, baud int) (*SerialBus, error) {
	fd, err := term.Open(devicename, term.RawMode)
	if err != nil {
		return nil, err
	}
	if baud != 0 {
		if err := fd.SetSpeed(baud); err != nil {
			fd.Close()
			return nil, err
		}
	}
	return &SerialBus{fd: fd}, nil
}

func (s *SerialBus) Read(buf []byte) (int, error) {
	n, err := s.fd.Read(buf)
	return n, wouldBlock(err)
}

func (s *SerialBus) Write(buf []byte) (int, error) {
	n, err := s.fd.Write(buf)
	return n, wouldBlock(err)
}

// Flush is a no-op: github.com/pkg/term does not expose a drain/flush
// primitive distinct from the write syscall completing, so there is
// nothing further to poll for here.
func (s *SerialBus) Flush() error { return nil }

func (s *SerialBus) Close() error { return s.fd.Close() }

// PTYBus wraps a github.com/creack/pty pseudo-terminal pair: Read/Write
// operate on the master end (ptmx), and Slave() exposes the client end
// (pts) a test harness or ioexpanderctl can open as if it were the real
// bus. Grounded on the teacher's kisspt_open_pt (src/kiss.go), which opens
// the same pty.Open() pair for the equivalent purpose (a loopback KISS
// TNC endpoint usable without real hardware).
type PTYBus struct {
	master *os.File
	slave  *os.File
}

// OpenPTYBus allocates a fresh pseudo-terminal pair and returns it as a
// ByteStream.
func OpenPTYBus() (*PTYBus, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, err
	}
	return &PTYBus{master: master, slave: slave}, nil
}

// Slave returns the pty's client-facing file, for a test harness or the
// ioexpanderctl CLI to open as the simulated bus.
func (p *PTYBus) Slave() *os.File { return p.slave }

func (p *PTYBus) Read(buf []byte) (int, error) {
	if err := p.master.SetReadDeadline(time.Now().Add(pollDeadline)); err != nil {
		return 0, err
	}
	n, err := p.master.Read(buf)
	return n, wouldBlock(err)
}

func (p *PTYBus) Write(buf []byte) (int, error) {
	if err := p.master.SetWriteDeadline(time.Now().Add(pollDeadline)); err != nil {
		return 0, err
	}
	n, err := p.master.Write(buf)
	return n, wouldBlock(err)
}

// Flush is a no-op that returns nil at once. Pseudo-terminals don't expose
// a drain syscall the way a UART's TX-empty flag does, so it does not wait
// for the peer to consume what the master side has buffered.
func (p *PTYBus) Flush() error { return nil }

func (p *PTYBus) Close() error {
	err := p.master.Close()
	if serr := p.slave.Close(); err == nil {
		err = serr
	}
	return err
}
