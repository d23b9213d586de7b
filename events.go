package gpionet

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

const (
	pinEventBacklog       = 64
	pinEventNotifyTimeout = 5 * time.Second
)

// PinObserver is told about every pin value change, in order.
type PinObserver interface {
	PinChanged(ctx context.Context, pin, value uint8) error
}

// pinEvents hands registry changes to observers on its own goroutine so a slow
// broker never holds up the command loop. Events beyond the backlog are dropped.
type pinEvents struct {
	events    chan PinState
	observers []PinObserver
	logger    *log.Logger
	metrics   *Metrics
	done      chan struct{}
}

func newPinEvents(observers []PinObserver, logger *log.Logger, metrics *Metrics) *pinEvents {
	return &pinEvents{
		events:    make(chan PinState, pinEventBacklog),
		observers: observers,
		logger:    logger,
		metrics:   metrics,
		done:      make(chan struct{}),
	}
}

func (pe *pinEvents) publish(ps PinState) {
	select {
	case pe.events <- ps:
	default:
		pe.metrics.eventDropped()
		pe.logger.Warn("pin event dropped, observers behind", "pin", ps.ID, "value", ps.Value)
	}
}

// run delivers events until ctx is done, then drains what is already queued.
func (pe *pinEvents) run(ctx context.Context) {
	defer close(pe.done)

	for {
		select {
		case ps := <-pe.events:
			pe.deliver(ps)
		case <-ctx.Done():
			for {
				select {
				case ps := <-pe.events:
					pe.deliver(ps)
				default:
					return
				}
			}
		}
	}
}

func (pe *pinEvents) deliver(ps PinState) {
	for _, obs := range pe.observers {
		ctx, cancel := context.WithTimeout(context.Background(), pinEventNotifyTimeout)
		err := obs.PinChanged(ctx, ps.ID, ps.Value)
		cancel()
		if err != nil {
			pe.logger.Error("pin observer failed", "pin", ps.ID, "err", err)
		}
	}
}

// wait blocks until run has returned.
func (pe *pinEvents) wait() {
	<-pe.done
}
