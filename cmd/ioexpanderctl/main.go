// Command ioexpanderctl is a thin diagnostic client for the io-expander
// protocol: it sends a single request frame over a serial device or a
// simulated PTY bus, waits for the matching response, and prints it.
package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/stbohne/pico-iox16/board"
	"github.com/stbohne/pico-iox16/nvm"
	"github.com/stbohne/pico-iox16/protocol"
)

func main() {
	var (
		devicePath = pflag.String("device", "/dev/ttyUSB0", "serial device")
		address    = pflag.Uint16("address", 0, "target device address")
		timeout    = pflag.Duration("timeout", 2*time.Second, "response wait timeout")
	)
	pflag.Parse()

	if pflag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: ioexpanderctl [flags] <check|info|config-get|outputs-get|inputs-get>")
		os.Exit(2)
	}

	cmd, payload, err := buildRequest(pflag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "ioexpanderctl:", err)
		os.Exit(2)
	}

	if err := run(*devicePath, *address, *timeout, cmd, payload); err != nil {
		fmt.Fprintln(os.Stderr, "ioexpanderctl:", err)
		os.Exit(1)
	}
}

func buildRequest(name string) (protocol.Command, []byte, error) {
	switch name {
	case "check":
		return protocol.CommandCheck, protocol.EmptyPayload, nil
	case "info":
		return protocol.CommandInfoGet, protocol.EmptyPayload, nil
	case "config-get":
		return protocol.CommandConfigGet, protocol.EmptyPayload, nil
	case "outputs-get":
		return protocol.CommandOutputsGet, protocol.EmptyPayload, nil
	case "inputs-get":
		return protocol.CommandInputsReadReset, protocol.EmptyPayload, nil
	default:
		return 0, nil, fmt.Errorf("unknown request %q", name)
	}
}

func run(devicePath string, address uint16, timeout time.Duration, cmd protocol.Command, payload []byte) error {
	bus, err := board.OpenSerialBus(devicePath, 0)
	if err != nil {
		return fmt.Errorf("opening device: %w", err)
	}
	defer bus.Close()

	req := protocol.Encode(address, uint16(cmd), payload)
	if _, err := writeAll(bus, req); err != nil {
		return fmt.Errorf("sending request: %w", err)
	}

	frame, err := awaitFrame(bus, timeout)
	if err != nil {
		return err
	}

	printFrame(cmd, frame)
	return nil
}

func writeAll(w interface{ Write([]byte) (int, error) }, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := w.Write(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// awaitFrame polls bus for bytes and hands them to the frame hunter until
// a complete frame surfaces or timeout elapses.
func awaitFrame(bus interface{ Read([]byte) (int, error) }, timeout time.Duration) (protocol.Frame, error) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 0, 512)
	chunk := make([]byte, 256)

	for time.Now().Before(deadline) {
		n, err := bus.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			frame, processed, ok := protocol.Next(buf)
			if ok {
				return frame, nil
			}
			buf = buf[processed:]
		}
		if err != nil {
			time.Sleep(time.Millisecond)
		}
	}
	return protocol.Frame{}, fmt.Errorf("timed out waiting for response")
}

func printFrame(cmd protocol.Command, frame protocol.Frame) {
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	fmt.Fprintf(w, "address=%d command=%s payload=%d bytes\n", frame.Header.Address, cmd, len(frame.Payload))

	switch cmd {
	case protocol.CommandInfoGet:
		info, err := protocol.DecodeDeviceInfo(frame.Payload)
		if err != nil {
			fmt.Fprintln(w, "decode error:", err)
			return
		}
		fmt.Fprintf(w, "name=%s firmware=%d.%d.%d uptime_s=%d\n", trimName(info.Name), info.VersionMajor, info.VersionMinor, info.VersionPatch, info.UptimeSeconds)
	case protocol.CommandConfigGet:
		cfg, err := protocol.DecodeConfig(frame.Payload)
		if err != nil {
			fmt.Fprintln(w, "decode error:", err)
			return
		}
		printConfig(w, cfg)
	case protocol.CommandOutputsGet:
		groups, err := protocol.DecodeOutputGroups(frame.Payload)
		if err != nil {
			fmt.Fprintln(w, "decode error:", err)
			return
		}
		for i, g := range groups {
			fmt.Fprintf(w, "group %d: freq=%dHz duty=(%d,%d)\n", i, g.FrequencyHz, g.DutyA, g.DutyB)
		}
	case protocol.CommandInputsReadReset:
		values, err := protocol.DecodeInputAverages(frame.Payload)
		if err != nil {
			fmt.Fprintln(w, "decode error:", err)
			return
		}
		fmt.Fprintf(w, "averages: %v\n", values)
	default:
		fmt.Fprintln(w, protocol.Dump(frame.Payload))
	}
}

func printConfig(w *bufio.Writer, cfg nvm.Config) {
	fmt.Fprintf(w, "address=%d baudrate=%d\n", cfg.Address, cfg.Baudrate)
}

func trimName(name [32]byte) string {
	n := 0
	for n < len(name) && name[n] != 0 {
		n++
	}
	return string(name[:n])
}
