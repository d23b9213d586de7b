package transport

import (
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tarm/serial"
)

const defaultBaud = 115200

type SerialConfig struct {
	Device string
	Baud   int
	// ReadTimeoutMs must stay 0 for the daemon: an empty timed-out read looks
	// exactly like a closed connection.
	ReadTimeoutMs int
}

func (sc SerialConfig) portConfig() *serial.Config {
	baud := sc.Baud
	if baud == 0 {
		baud = defaultBaud
	}
	return &serial.Config{
		Name:        sc.Device,
		Baud:        baud,
		ReadTimeout: time.Duration(sc.ReadTimeoutMs) * time.Millisecond,
	}
}

// OpenSerial opens the port described by sc.
func OpenSerial(sc SerialConfig) (io.ReadWriteCloser, error) {
	if sc.Device == "" {
		return nil, errors.New("serial device not set")
	}
	port, err := serial.OpenPort(sc.portConfig())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open serial port %s", sc.Device)
	}
	return &serialConn{Port: port, device: sc.Device}, nil
}

type serialConn struct {
	*serial.Port
	device string
}

func (sc *serialConn) String() string {
	return sc.device
}

// serialListener treats each opening of the port as one connection. Accept
// opens the port again once the previous connection was closed.
type serialListener struct {
	config SerialConfig

	mu     sync.Mutex
	closed bool
}

func ListenSerial(sc SerialConfig) (Listener, error) {
	if sc.Device == "" {
		return nil, errors.New("serial device not set")
	}
	return &serialListener{config: sc}, nil
}

func (sl *serialListener) Accept() (io.ReadWriteCloser, error) {
	sl.mu.Lock()
	closed := sl.closed
	sl.mu.Unlock()
	if closed {
		return nil, ErrListenerClosed
	}
	return OpenSerial(sl.config)
}

func (sl *serialListener) Close() error {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	sl.closed = true
	return nil
}

func (sl *serialListener) Addr() string {
	return sl.config.Device
}
