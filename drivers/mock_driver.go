package drivers

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/pkg/errors"
)

const mockDriverName = "mock_driver"

// MockDriver keeps pin states in memory. It stands in for hardware on
// development machines and in tests.
type MockDriver struct {
	Pins []PinConfig

	mu      sync.Mutex
	states  map[uint8]bool
	written [][]byte
	toRead  []byte
	ready   bool

	writeTo          io.Writer
	writeStateChange bool
}

func (md *MockDriver) Setup(ctx context.Context) error {
	md.mu.Lock()
	defer md.mu.Unlock()

	if md.states == nil {
		md.states = make(map[uint8]bool)
	}
	for _, pc := range md.Pins {
		if err := pc.Validate(); err != nil {
			return err
		}
		md.states[pc.Pin] = pc.Mode == PinModeInputPullUp
	}
	md.ready = true
	return nil
}

func (md *MockDriver) Close() error {
	md.mu.Lock()
	defer md.mu.Unlock()

	md.ready = false
	return nil
}

func (md *MockDriver) String() string {
	return mockDriverName
}

func (md *MockDriver) IsReady() bool {
	md.mu.Lock()
	defer md.mu.Unlock()

	return md.ready
}

func (md *MockDriver) InitPin(pin uint8) error {
	md.mu.Lock()
	defer md.mu.Unlock()

	if md.states == nil {
		md.states = make(map[uint8]bool)
	}
	if _, ok := md.states[pin]; !ok {
		md.states[pin] = false
	}
	return nil
}

func (md *MockDriver) Set(pin uint8, state bool) error {
	md.mu.Lock()
	defer md.mu.Unlock()

	if pc, ok := findPinConfig(md.Pins, pin); ok && pc.IsInput() {
		return errors.Errorf("mock pin %d is configured as input", pin)
	}
	if md.states == nil {
		md.states = make(map[uint8]bool)
	}
	if md.writeStateChange && state != md.states[pin] {
		fmt.Fprintf(md.writeTo, "[pin %d] state changed to %v\n", pin, state)
	}
	md.states[pin] = state
	return nil
}

func (md *MockDriver) Get(pin uint8) (bool, error) {
	md.mu.Lock()
	defer md.mu.Unlock()

	return md.states[pin], nil
}

// SetInput changes a pin the way external hardware would, bypassing the monitor.
func (md *MockDriver) SetInput(pin uint8, state bool) {
	md.mu.Lock()
	defer md.mu.Unlock()

	if md.states == nil {
		md.states = make(map[uint8]bool)
	}
	md.states[pin] = state
}

func (md *MockDriver) WriteBytes(data []byte) error {
	md.mu.Lock()
	defer md.mu.Unlock()

	chunk := make([]byte, len(data))
	copy(chunk, data)
	md.written = append(md.written, chunk)
	if md.writeStateChange {
		fmt.Fprintf(md.writeTo, "[bus] wrote %d bytes\n", len(data))
	}
	return nil
}

// Written returns every chunk passed to WriteBytes, in order.
func (md *MockDriver) Written() [][]byte {
	md.mu.Lock()
	defer md.mu.Unlock()

	out := make([][]byte, len(md.written))
	copy(out, md.written)
	return out
}

// QueueRead makes data available to the following ReadBytes calls.
func (md *MockDriver) QueueRead(data []byte) {
	md.mu.Lock()
	defer md.mu.Unlock()

	md.toRead = append(md.toRead, data...)
}

// ReadBytes returns queued data first and pads with zeros.
func (md *MockDriver) ReadBytes(n int) ([]byte, error) {
	md.mu.Lock()
	defer md.mu.Unlock()

	out := make([]byte, n)
	copied := copy(out, md.toRead)
	md.toRead = md.toRead[copied:]
	return out, nil
}

func (md *MockDriver) MonitorStateChanges(writer io.Writer) {
	md.mu.Lock()
	defer md.mu.Unlock()

	md.writeTo = writer
	md.writeStateChange = writer != nil
}
