package drivers

import (
	"context"

	"github.com/pkg/errors"
	"github.com/stianeikeland/go-rpio/v4"
)

const gpioDriverName = "gpio"

// GpIO drives the Raspberry Pi header pins and, when enabled, its SPI controller.
type GpIO struct {
	Pins []PinConfig
	Spi  SpiConfig

	InvertInputs  bool
	InvertOutputs bool

	outputs map[uint8]bool
	inputs  map[uint8]bool
	spiDev  rpio.SpiDev
	isReady bool
}

func (gp *GpIO) Setup(ctx context.Context) error {
	err := rpio.Open()
	if err != nil {
		return errors.Wrapf(err, "failed to Setup gpio driver for pins: %v; ", gp.Pins)
	}

	gp.outputs = make(map[uint8]bool)
	gp.inputs = make(map[uint8]bool)

	for _, pc := range gp.Pins {
		if err := pc.Validate(); err != nil {
			return err
		}
		gp.configurePin(pc)
	}

	if gp.Spi.Enable {
		gp.spiDev, err = spiDevice(gp.Spi.Device)
		if err != nil {
			return err
		}
		err = rpio.SpiBegin(gp.spiDev)
		if err != nil {
			return errors.Wrapf(err, "failed to begin spi%d", gp.Spi.Device)
		}
		if gp.Spi.SpeedHz > 0 {
			rpio.SpiSpeed(gp.Spi.SpeedHz)
		}
		rpio.SpiChipSelect(gp.Spi.ChipSelect)
		rpio.SpiMode(gp.Spi.Mode>>1&1, gp.Spi.Mode&1)
	}

	gp.isReady = true
	return nil
}

func spiDevice(no uint8) (rpio.SpiDev, error) {
	switch no {
	case 0:
		return rpio.Spi0, nil
	case 1:
		return rpio.Spi1, nil
	case 2:
		return rpio.Spi2, nil
	}
	return rpio.Spi0, errors.Errorf("spi device %d out of range", no)
}

func (gp *GpIO) configurePin(pc PinConfig) {
	pin := rpio.Pin(pc.Pin)
	switch pc.Mode {
	case PinModeOutput:
		pin.Output()
		gp.outputs[pc.Pin] = true
		return
	case PinModeInputPullUp:
		pin.Input()
		pin.PullUp()
	case PinModeInputPullDown:
		pin.Input()
		pin.PullDown()
	default:
		pin.Input()
	}
	gp.inputs[pc.Pin] = true
}

func (gp *GpIO) String() string {
	return gpioDriverName
}

func (gp *GpIO) IsReady() bool {
	return gp.isReady
}

func (gp *GpIO) Close() error {
	gp.isReady = false
	for pin := range gp.outputs {
		rpio.Pin(pin).Low()
	}
	if gp.Spi.Enable {
		rpio.SpiEnd(gp.spiDev)
	}
	return rpio.Close()
}

// InitPin leaves unconfigured pins alone; direction is decided by the first Set.
func (gp *GpIO) InitPin(pin uint8) error {
	if !gp.isReady {
		return errors.New("gpio driver not ready")
	}
	return nil
}

func (gp *GpIO) Set(pin uint8, state bool) error {
	if !gp.isReady {
		return errors.New("gpio driver not ready")
	}
	if gp.inputs[pin] {
		return errors.Errorf("gpio pin %d is configured as input", pin)
	}
	if !gp.outputs[pin] {
		rpio.Pin(pin).Output()
		gp.outputs[pin] = true
	}

	if gp.InvertOutputs {
		state = !state
	}
	if state {
		rpio.Pin(pin).High()
	} else {
		rpio.Pin(pin).Low()
	}

	return nil
}

func (gp *GpIO) Get(pin uint8) (state bool, err error) {
	if !gp.isReady {
		err = errors.New("gpio driver not ready")
		return
	}

	invert := gp.InvertOutputs
	if gp.inputs[pin] {
		invert = gp.InvertInputs
	}
	if invert {
		state = rpio.Pin(pin).Read() == rpio.Low
	} else {
		state = rpio.Pin(pin).Read() == rpio.High
	}

	return
}

func (gp *GpIO) WriteBytes(data []byte) error {
	if !gp.Spi.Enable {
		return ErrBytesUnsupported
	}
	rpio.SpiTransmit(data...)
	return nil
}

func (gp *GpIO) ReadBytes(n int) ([]byte, error) {
	if !gp.Spi.Enable {
		return nil, ErrBytesUnsupported
	}
	return rpio.SpiReceive(n), nil
}
