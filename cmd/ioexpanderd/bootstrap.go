package main

import (
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stbohne/pico-iox16/nvm"
)

// bootstrapConfig is an optional, human-editable seed for a freshly
// erased simulated flash image: gopkg.in/yaml.v3 parses a YAML file into
// this struct, which is then turned into a full nvm.Page and written to
// the simulated flash before the daemon ever starts the core loops. This
// exists purely for dev-board/simulate bring-up convenience (spec §1
// excludes "power-on board bring-up" from the core); the core's own nvm
// package never sees YAML, only the binary 4096-byte page.
type bootstrapConfig struct {
	Address  uint16 `yaml:"address"`
	Baudrate uint32 `yaml:"baudrate"`

	Calibrations []bootstrapCalibration `yaml:"calibrations"`
	Thresholds   []bootstrapThreshold   `yaml:"thresholds"`
}

type bootstrapCalibration struct {
	Channel  int   `yaml:"channel"`
	Multiply int16 `yaml:"multiply"`
	Divide   int16 `yaml:"divide"`
	Add      int16 `yaml:"add"`
	Min      int16 `yaml:"min"`
	Max      int16 `yaml:"max"`
}

type bootstrapThreshold struct {
	Channel        int    `yaml:"channel"`
	ThresholdHigh  int16  `yaml:"threshold_high"`
	ThresholdLow   int16  `yaml:"threshold_low"`
	DebounceTimeUS uint32 `yaml:"debounce_time_us"`
	DebounceCount  uint16 `yaml:"debounce_count"`
}

// loadBootstrapPage reads and parses a bootstrap YAML file into a full
// nvm.Page. Address, baudrate, and every channel the file doesn't list
// keep the all-0xFF-equivalent documented defaults. A listed channel takes
// each of its fields from the file, zero where the field is left out,
// except that a zero calibration divide becomes 1 and a zero min/max pair
// becomes the full int16 range.
func loadBootstrapPage(path string) (nvm.Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nvm.Page{}, err
	}

	page := nvm.DefaultPage()

	// Keys absent from the file leave these defaults in place.
	cfg := bootstrapConfig{Address: page.Config.Address, Baudrate: page.Config.Baudrate}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nvm.Page{}, err
	}

	page.Config.Address = cfg.Address
	page.Config.Baudrate = cfg.Baudrate

	for _, c := range cfg.Calibrations {
		if c.Channel < 0 || c.Channel >= len(page.Calibrations) {
			continue
		}
		cal := nvm.Calibration{Multiply: c.Multiply, Divide: c.Divide, Add: c.Add, Min: c.Min, Max: c.Max}
		if cal.Divide == 0 {
			cal.Divide = 1
		}
		if cal.Min == 0 && cal.Max == 0 {
			cal.Min, cal.Max = math.MinInt16, math.MaxInt16
		}
		page.Calibrations[c.Channel] = cal
	}

	for _, th := range cfg.Thresholds {
		if th.Channel < 0 || th.Channel >= len(page.Thresholds) {
			continue
		}
		page.Thresholds[th.Channel] = nvm.Threshold{
			ThresholdHigh:  th.ThresholdHigh,
			ThresholdLow:   th.ThresholdLow,
			DebounceTimeUS: th.DebounceTimeUS,
			DebounceCount:  th.DebounceCount,
		}
	}

	return page, nil
}
