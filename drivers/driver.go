package drivers

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// PinDriver is the hardware capability the daemon drives pins and the byte bus through.
type PinDriver interface {
	Setup(ctx context.Context) error
	Close() error
	String() string
	IsReady() bool

	InitPin(pin uint8) error
	Set(pin uint8, state bool) error
	Get(pin uint8) (bool, error)

	WriteBytes(data []byte) error
	ReadBytes(n int) ([]byte, error)
}

var ErrBytesUnsupported = errors.New("driver has no byte bus")

type PinMode string

const (
	PinModeOutput        PinMode = "out"
	PinModeInput         PinMode = "in"
	PinModeInputPullUp   PinMode = "in_pullup"
	PinModeInputPullDown PinMode = "in_pulldown"
)

// PinConfig describes how a pin is prepared during Setup. Pins not listed are
// prepared lazily on first use: as output on Set, left untouched on Get.
type PinConfig struct {
	Pin  uint8
	Mode PinMode
}

func (pc PinConfig) Validate() error {
	switch pc.Mode {
	case PinModeOutput, PinModeInput, PinModeInputPullUp, PinModeInputPullDown:
		return nil
	}
	return errors.Errorf("pin %d: unknown mode %q", pc.Pin, pc.Mode)
}

func (pc PinConfig) IsInput() bool {
	return pc.Mode != PinModeOutput
}

type SpiConfig struct {
	Enable bool
	// Device is the SPI controller number (0 or 1 on a Raspberry Pi).
	Device     uint8
	ChipSelect uint8
	SpeedHz    int
	Mode       uint8
}

func findPinConfig(configs []PinConfig, pin uint8) (PinConfig, bool) {
	for _, pc := range configs {
		if pc.Pin == pin {
			return pc, true
		}
	}
	return PinConfig{}, false
}

func MapAllDrivers() map[string]PinDriver {
	drivers := []PinDriver{
		&GpIO{},
		&McpIO{},
		&MockDriver{},
	}

	mapped := make(map[string]PinDriver)
	for _, driver := range drivers {
		mapped[driver.String()] = driver
	}
	return mapped
}

// DriverNames lists the names of every driver implementation, sorted.
func DriverNames() []string {
	names := []string{}
	for name := range MapAllDrivers() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select returns the only configured driver. Configuring none or more than one is an error.
func Select(configured ...PinDriver) (PinDriver, error) {
	var found PinDriver
	names := []string{}
	for _, driver := range configured {
		if driver == nil || isNilDriver(driver) {
			continue
		}
		names = append(names, driver.String())
		found = driver
	}

	switch len(names) {
	case 0:
		return nil, errors.Errorf("no pin driver configured, choose one of: %s", strings.Join(DriverNames(), ", "))
	case 1:
		return found, nil
	default:
		return nil, errors.Errorf("more than one pin driver configured: %s", strings.Join(names, ", "))
	}
}

func isNilDriver(driver PinDriver) bool {
	switch d := driver.(type) {
	case *GpIO:
		return d == nil
	case *McpIO:
		return d == nil
	case *MockDriver:
		return d == nil
	}
	return false
}
