package gpionet

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
)

type recordingObserver struct {
	mu      sync.Mutex
	changes []PinState
	err     error
}

func (ro *recordingObserver) PinChanged(ctx context.Context, pin, value uint8) error {
	ro.mu.Lock()
	defer ro.mu.Unlock()

	ro.changes = append(ro.changes, PinState{ID: pin, Value: value})
	return ro.err
}

func (ro *recordingObserver) recorded() []PinState {
	ro.mu.Lock()
	defer ro.mu.Unlock()

	return append([]PinState{}, ro.changes...)
}

func TestPinEventsDelivered(t *testing.T) {
	first := &recordingObserver{}
	failing := &recordingObserver{err: errors.New("broker away")}
	pe := newPinEvents([]PinObserver{failing, first}, quietLogger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go pe.run(ctx)

	pe.publish(PinState{ID: 1, Value: 1})
	pe.publish(PinState{ID: 2, Value: 0})
	cancel()
	pe.wait()

	got := first.recorded()
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 2 {
		t.Errorf("got %v, want pins 1 then 2", got)
	}
	assertInts(t, len(failing.recorded()), 2)
}

func TestPinEventsDropWhenFull(t *testing.T) {
	metrics := NewMetrics(prometheusRegistry(t))
	pe := newPinEvents(nil, quietLogger, metrics)

	for i := 0; i < pinEventBacklog+3; i++ {
		pe.publish(PinState{ID: uint8(i)})
	}

	assertFloats(t, counterValue(t, metrics.droppedEvents), 3)
}

func TestPinEventsFromRegistry(t *testing.T) {
	obs := &recordingObserver{}
	pe := newPinEvents([]PinObserver{obs}, quietLogger, nil)
	pr := NewPinRegistry(nil)
	pr.OnChange(pe.publish)

	ctx, cancel := context.WithCancel(context.Background())
	go pe.run(ctx)

	pr.Set(4, 1)
	pr.Set(4, 1)
	pr.Set(4, 0)
	cancel()
	pe.wait()

	got := obs.recorded()
	want := []PinState{{ID: 4, Value: 1}, {ID: 4, Value: 0}}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %v, want %v", got, want)
	}
}
