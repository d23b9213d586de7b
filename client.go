package gpionet

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hubertat/gpionet/transport"
)

// Client speaks the protocol to a daemon over conn.
//
// Write-style calls (SetPin, SetPins, WriteBytes, Delay, WaitForPin) are only
// queued until Flush, unless auto flush is on. Read-style calls (GetPin,
// GetPins, GetName, GetAPIVersion) send whatever is queued together with
// their own request in a single write, so the daemon has executed every
// earlier write before answering.
type Client struct {
	conn      io.ReadWriteCloser
	buf       *StreamBuffer
	queue     OutboundQueue
	autoFlush bool
	logger    *log.Logger

	mu sync.Mutex
}

type ClientOption func(*Client)

// WithAutoFlush sends every write-style command as soon as it is queued.
func WithAutoFlush(autoFlush bool) ClientOption {
	return func(c *Client) {
		c.autoFlush = autoFlush
	}
}

func WithMaxReadSize(size int) ClientOption {
	return func(c *Client) {
		c.buf = NewStreamBuffer(c.conn, size)
	}
}

func WithClientLogger(logger *log.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(conn io.ReadWriteCloser, opts ...ClientOption) *Client {
	c := &Client{
		conn: conn,
		buf:  NewStreamBuffer(conn, DefaultMaxReadSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "client",
			Level:  log.GetLevel(),
		})
	}
	return c
}

// Dial connects to a daemon over TCP.
func Dial(ctx context.Context, address string, port int, opts ...ClientOption) (*Client, error) {
	conn, err := transport.DialTCP(ctx, address, port)
	if err != nil {
		return nil, err
	}
	return NewClient(conn, opts...), nil
}

// Close closes the connection. Queued commands are discarded.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queue.Reset()
	return c.conn.Close()
}

// Pending returns the number of queued, unsent commands.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.queue.Count()
}

// Flush sends every queued command in one write and waits for all of their
// status bytes. Failure statuses are not reported; use FlushResults for them.
func (c *Client) Flush() error {
	_, err := c.FlushResults()
	return err
}

// FlushResults is Flush returning one entry per queued command, in queue
// order, true where the daemon answered success.
func (c *Client) FlushResults() ([]bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.exchange(nil)
}

// exchange writes the queue followed by extra as one transmission, reads one
// status byte per queued command and empties the queue whatever happens.
func (c *Client) exchange(extra []byte) ([]bool, error) {
	count := c.queue.Count()
	if count == 0 && len(extra) == 0 {
		return nil, nil
	}
	defer c.queue.Reset()

	payload := c.queue.Bytes()
	if len(extra) > 0 {
		payload = append(append(make([]byte, 0, len(payload)+len(extra)), payload...), extra...)
	}

	if count > 0 {
		c.logger.Debug("flushing", "commands", count, "bytes", c.queue.Len())
	}
	if _, err := c.conn.Write(payload); err != nil {
		return nil, &TransportError{Op: "write", Err: err}
	}

	statuses, err := c.buf.Take(count)
	if err != nil {
		return nil, err
	}
	results := make([]bool, count)
	for i, st := range statuses {
		results[i] = st == StatusSuccess
	}
	return results, nil
}

func (c *Client) enqueue(cmd []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queue.Add(cmd)
	if c.autoFlush {
		_, err := c.exchange(nil)
		return err
	}
	return nil
}

// request flushes the queue together with cmd and reads n response bytes.
func (c *Client) request(cmd []byte, n int) ([]byte, error) {
	if _, err := c.exchange(cmd); err != nil {
		return nil, err
	}
	return c.buf.Take(n)
}

func (c *Client) SetPin(pin, value uint8) error {
	return c.enqueue(EncodeSetPin(pin, value))
}

// SetPins sets up to 255 pins with one queued command.
func (c *Client) SetPins(pins []PinState) error {
	cmd, err := EncodeSetPins(pins)
	if err != nil {
		return err
	}
	return c.enqueue(cmd)
}

// WriteBytes queues data for the daemon's byte bus (SPI on real hardware).
func (c *Client) WriteBytes(data []byte) error {
	cmd, err := EncodeWriteBytes(data)
	if err != nil {
		return err
	}
	return c.enqueue(cmd)
}

// Delay makes the daemon pause before the next command. d is sent in whole
// milliseconds, at most 65535.
func (c *Client) Delay(d time.Duration) error {
	cmd, err := EncodeDelay(d)
	if err != nil {
		return err
	}
	return c.enqueue(cmd)
}

// WaitForPin makes the daemon poll pin every interval until it reads value.
// The daemon answers nothing else meanwhile.
func (c *Client) WaitForPin(pin, value uint8, interval time.Duration) error {
	cmd, err := EncodeWaitForPin(pin, value, interval)
	if err != nil {
		return err
	}
	return c.enqueue(cmd)
}

func (c *Client) GetPin(pin uint8) (uint8, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.request(EncodeGetPin(pin), 1)
	if err != nil {
		return 0, err
	}
	return resp[0], nil
}

// GetPins returns the values of pins in the same order.
func (c *Client) GetPins(pins []uint8) ([]uint8, error) {
	cmd, err := EncodeGetPins(pins)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.request(cmd, len(pins))
}

func (c *Client) GetName() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	length, err := c.request(EncodeGetName(), 1)
	if err != nil {
		return "", err
	}
	name, err := c.buf.Take(int(length[0]))
	if err != nil {
		return "", err
	}
	return string(name), nil
}

// GetAPIVersion asks which protocol version the daemon speaks. Version 1
// daemons answer 1 through their unknown opcode fallback.
func (c *Client) GetAPIVersion() (uint8, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.request(EncodeGetAPIVersion(), 1)
	if err != nil {
		return 0, err
	}
	return resp[0], nil
}
