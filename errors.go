package gpionet

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrConnectionClosed means the peer closed the stream: a transport read returned no bytes.
	ErrConnectionClosed = errors.New("connection closed by peer")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrWaitTimeout      = errors.New("wait for pin timed out")
)

// TransportError is any send or receive failure other than an orderly close.
type TransportError struct {
	Op  string
	Err error
}

func (te *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", te.Op, te.Err)
}

func (te *TransportError) Unwrap() error {
	return te.Err
}

func invalidArgument(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}
