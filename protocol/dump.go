package protocol

import (
	"fmt"
	"strings"
)

// Dump renders data as a 16-bytes-per-line hex/ASCII dump, for debug
// logging only. It is never written to the wire (spec §7: diagnostics go
// to an out-of-band channel, not the protocol).
func Dump(data []byte) string {
	var b strings.Builder
	for offset := 0; offset < len(data); offset += 16 {
		end := offset + 16
		if end > len(data) {
			end = len(data)
		}
		line := data[offset:end]

		fmt.Fprintf(&b, "  %03x: ", offset)
		for _, c := range line {
			fmt.Fprintf(&b, " %02x", c)
		}
		for i := len(line); i < 16; i++ {
			b.WriteString("   ")
		}
		b.WriteString("  ")
		for _, c := range line {
			if c >= 0x20 && c <= 0x7E {
				b.WriteByte(c)
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
