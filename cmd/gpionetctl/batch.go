package main

import (
	"fmt"

	"github.com/hubertat/gpionet"
)

// batch pairs queued write commands with labels for reporting. With auto
// flush every command is sent and reported on its own; otherwise they all go
// out together in done.
type batch struct {
	c         *gpionet.Client
	autoFlush bool

	labels []string
	total  int
	failed int
}

func (cf *connFlags) batch(c *gpionet.Client) *batch {
	return &batch{c: c, autoFlush: cf.autoFlush}
}

// queued records a command the caller just queued. queueErr is the error
// queueing returned.
func (b *batch) queued(label string, queueErr error) error {
	if queueErr != nil {
		return queueErr
	}
	b.labels = append(b.labels, label)
	if b.autoFlush {
		return b.flush()
	}
	return nil
}

// flush sends the queue and prints one line per status byte.
func (b *batch) flush() error {
	results, err := b.c.FlushResults()
	if err != nil {
		return err
	}
	for i, ok := range results {
		label := fmt.Sprintf("command %d", b.total)
		if i < len(b.labels) {
			label = b.labels[i]
		}
		b.total++
		if ok {
			success("%s", label)
		} else {
			b.failed++
			errorMsg("%s", label)
		}
	}
	b.labels = nil
	return nil
}

// done flushes anything left and fails if the daemon refused any command.
func (b *batch) done() error {
	if err := b.flush(); err != nil {
		return err
	}
	if b.failed > 0 {
		return fmt.Errorf("%d of %d commands failed", b.failed, b.total)
	}
	return nil
}
