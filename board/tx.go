package board

import "github.com/warthog618/go-gpiocdev"

// GPIOTXEnable drives the half-duplex transceiver's direction-control
// line over github.com/warthog618/go-gpiocdev, implementing
// dispatch.TXEnable.
type GPIOTXEnable struct {
	line *gpiocdev.Line
}

// NewGPIOTXEnable requests offset on chip as an output, initially low
// (receive mode).
func NewGPIOTXEnable(chip string, offset int) (*GPIOTXEnable, error) {
	line, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, err
	}
	return &GPIOTXEnable{line: line}, nil
}

func (t *GPIOTXEnable) Set(enabled bool) error {
	return t.line.SetValue(boolToLine(enabled))
}

func (t *GPIOTXEnable) Close() error { return t.line.Close() }
