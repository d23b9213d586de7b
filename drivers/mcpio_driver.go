package drivers

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/racerxdl/go-mcp23017"
)

const mcpioDriverName = "mcpio"
const mcpPinCount = 16

// McpIO drives the 16 pins of an MCP23017 I2C expander. It has no byte bus.
type McpIO struct {
	device *mcp23017.Device

	Pins          []PinConfig
	BusNo         uint8
	DevNo         uint8
	InvertInputs  bool
	InvertOutputs bool

	outputs map[uint8]bool
	inputs  map[uint8]bool
	isReady bool
}

func (mcp *McpIO) String() string {
	return mcpioDriverName
}

func (mcp *McpIO) IsReady() bool {
	return mcp.isReady
}

func (mcp *McpIO) Setup(ctx context.Context) (err error) {
	mcp.device, err = mcp23017.Open(mcp.BusNo, mcp.DevNo)
	if err != nil {
		return errors.Wrapf(err, "failed to open mcp23017 (bus: %d, dev: %d)", mcp.BusNo, mcp.DevNo)
	}

	mcp.outputs = make(map[uint8]bool)
	mcp.inputs = make(map[uint8]bool)

	for _, pc := range mcp.Pins {
		if err = pc.Validate(); err != nil {
			return
		}
		if pc.Pin >= mcpPinCount {
			err = fmt.Errorf("pin %d out of range (mcpio has %d pins)", pc.Pin, mcpPinCount)
			return
		}

		if pc.IsInput() {
			err = mcp.device.PinMode(pc.Pin, mcp23017.INPUT)
			if err != nil {
				return
			}
			err = mcp.device.SetPullUp(pc.Pin, pc.Mode == PinModeInputPullUp)
			if err != nil {
				return
			}
			mcp.inputs[pc.Pin] = true
			continue
		}

		err = mcp.device.PinMode(pc.Pin, mcp23017.OUTPUT)
		if err != nil {
			return
		}
		mcp.outputs[pc.Pin] = true
	}

	mcp.isReady = err == nil

	return
}

func (mcp *McpIO) InitPin(pin uint8) error {
	if pin >= mcpPinCount {
		return fmt.Errorf("pin %d out of range (mcpio has %d pins)", pin, mcpPinCount)
	}
	return nil
}

func (mcp *McpIO) Set(pin uint8, state bool) (err error) {
	if !mcp.isReady {
		return errors.New("mcpio driver not ready")
	}
	if mcp.inputs[pin] {
		return errors.Errorf("mcpio pin %d is configured as input", pin)
	}
	if !mcp.outputs[pin] {
		err = mcp.device.PinMode(pin, mcp23017.OUTPUT)
		if err != nil {
			return
		}
		mcp.outputs[pin] = true
	}

	if mcp.InvertOutputs {
		state = !state
	}

	err = mcp.device.DigitalWrite(pin, mcp23017.PinLevel(state))

	return
}

func (mcp *McpIO) Get(pin uint8) (state bool, err error) {
	if !mcp.isReady {
		err = errors.New("mcpio driver not ready")
		return
	}

	rawState, err := mcp.device.DigitalRead(pin)
	if err != nil {
		return
	}

	invert := mcp.InvertOutputs
	if mcp.inputs[pin] {
		invert = mcp.InvertInputs
	}
	if invert {
		state = !bool(rawState)
	} else {
		state = bool(rawState)
	}
	return
}

func (mcp *McpIO) WriteBytes(data []byte) error {
	return ErrBytesUnsupported
}

func (mcp *McpIO) ReadBytes(n int) ([]byte, error) {
	return nil, ErrBytesUnsupported
}

func (mcp *McpIO) Close() error {
	mcp.isReady = false
	if mcp.device == nil {
		return nil
	}
	for pin := range mcp.outputs {
		mcp.device.DigitalWrite(pin, mcp23017.PinLevel(false))
	}
	return mcp.device.Close()
}
