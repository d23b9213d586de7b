package gpionet

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/hubertat/gpionet/drivers"
)

type PinState struct {
	ID    uint8 `json:"pin"`
	Value uint8 `json:"value"`
}

// PinRegistry maps pin ids to their last known state. Entries are created on
// first reference with value 0 and live as long as the registry; connections
// come and go without touching it.
type PinRegistry struct {
	driver drivers.PinDriver

	mu       sync.RWMutex
	pins     map[uint8]*PinState
	onChange []func(PinState)
}

// NewPinRegistry returns a registry forwarding to driver. A nil driver keeps
// pins purely in memory.
func NewPinRegistry(driver drivers.PinDriver) *PinRegistry {
	return &PinRegistry{
		driver: driver,
		pins:   make(map[uint8]*PinState),
	}
}

// OnChange registers fn to be called, under no lock, whenever a pin value changes.
func (pr *PinRegistry) OnChange(fn func(PinState)) {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	pr.onChange = append(pr.onChange, fn)
}

func (pr *PinRegistry) Ensure(pin uint8) error {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	_, err := pr.ensure(pin)
	return err
}

func (pr *PinRegistry) ensure(pin uint8) (*PinState, error) {
	if ps, ok := pr.pins[pin]; ok {
		return ps, nil
	}
	if pr.driver != nil {
		if err := pr.driver.InitPin(pin); err != nil {
			return nil, errors.Wrapf(err, "failed to init pin %d on %s", pin, pr.driver)
		}
	}
	ps := &PinState{ID: pin}
	pr.pins[pin] = ps
	return ps, nil
}

// Get returns the pin value, refreshed from the driver when there is one. On a
// driver error the cached value is returned together with the error.
func (pr *PinRegistry) Get(pin uint8) (uint8, error) {
	pr.mu.Lock()
	ps, err := pr.ensure(pin)
	if err != nil {
		pr.mu.Unlock()
		return 0, err
	}
	if pr.driver == nil {
		value := ps.Value
		pr.mu.Unlock()
		return value, nil
	}

	state, err := pr.driver.Get(pin)
	if err != nil {
		value := ps.Value
		pr.mu.Unlock()
		return value, errors.Wrapf(err, "failed to read pin %d from %s", pin, pr.driver)
	}
	value := boolValue(state)
	changed := ps.Value != value
	ps.Value = value
	listeners := pr.onChange
	pr.mu.Unlock()

	if changed {
		notify(listeners, PinState{ID: pin, Value: value})
	}
	return value, nil
}

// Set stores value (normalised to 0 or 1) and forwards it to the driver. The
// stored value is left untouched when the driver refuses.
func (pr *PinRegistry) Set(pin, value uint8) error {
	value = pinValue(value)

	pr.mu.Lock()
	ps, err := pr.ensure(pin)
	if err != nil {
		pr.mu.Unlock()
		return err
	}
	if pr.driver != nil {
		if err := pr.driver.Set(pin, value == 1); err != nil {
			pr.mu.Unlock()
			return errors.Wrapf(err, "failed to set pin %d on %s", pin, pr.driver)
		}
	}
	changed := ps.Value != value
	ps.Value = value
	listeners := pr.onChange
	pr.mu.Unlock()

	if changed {
		notify(listeners, PinState{ID: pin, Value: value})
	}
	return nil
}

// Snapshot returns every known pin ordered by id.
func (pr *PinRegistry) Snapshot() []PinState {
	pr.mu.RLock()
	defer pr.mu.RUnlock()

	out := make([]PinState, 0, len(pr.pins))
	for _, ps := range pr.pins {
		out = append(out, *ps)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Lookup returns the cached state without touching the driver.
func (pr *PinRegistry) Lookup(pin uint8) (PinState, bool) {
	pr.mu.RLock()
	defer pr.mu.RUnlock()

	ps, ok := pr.pins[pin]
	if !ok {
		return PinState{}, false
	}
	return *ps, true
}

func notify(listeners []func(PinState), ps PinState) {
	for _, fn := range listeners {
		fn(ps)
	}
}

func boolValue(state bool) uint8 {
	if state {
		return 1
	}
	return 0
}
