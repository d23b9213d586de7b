package gpionet

import (
	"context"
	"io"
	"math"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hubertat/gpionet/drivers"
)

// SleepFunc suspends for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type handlerFunc func(ctx context.Context, buf *StreamBuffer) ([]byte, error)

// CommandDecoder executes one command per Next call: it reads the opcode and
// its payload from the stream buffer, runs the handler against the pin
// registry or the driver, and returns the response bytes.
type CommandDecoder struct {
	registry    *PinRegistry
	driver      drivers.PinDriver
	name        string
	apiVersion  uint8
	sleep       SleepFunc
	waitTimeout time.Duration
	writeStep   int
	logger      *log.Logger
	metrics     *Metrics

	handlers map[Opcode]handlerFunc
}

type DecoderOption func(*CommandDecoder)

func WithName(name string) DecoderOption {
	return func(cd *CommandDecoder) {
		cd.name = name
	}
}

func WithAPIVersion(version uint8) DecoderOption {
	return func(cd *CommandDecoder) {
		cd.apiVersion = version
	}
}

// WithSleep replaces how DELAY and WAIT_FOR_PIN pause. By default they wait on
// the transport, so a peer that hangs up ends the command.
func WithSleep(sleep SleepFunc) DecoderOption {
	return func(cd *CommandDecoder) {
		cd.sleep = sleep
	}
}

// WithWaitTimeout bounds WAIT_FOR_PIN. Zero, the default, polls until the pin
// matches, however long that takes.
func WithWaitTimeout(timeout time.Duration) DecoderOption {
	return func(cd *CommandDecoder) {
		cd.waitTimeout = timeout
	}
}

func WithDecoderLogger(logger *log.Logger) DecoderOption {
	return func(cd *CommandDecoder) {
		cd.logger = logger
	}
}

func WithMetrics(metrics *Metrics) DecoderOption {
	return func(cd *CommandDecoder) {
		cd.metrics = metrics
	}
}

// NewCommandDecoder builds a decoder over registry. driver receives WRITE_BYTES
// payloads; when nil those bytes are consumed and discarded.
func NewCommandDecoder(registry *PinRegistry, driver drivers.PinDriver, opts ...DecoderOption) *CommandDecoder {
	cd := &CommandDecoder{
		registry:   registry,
		driver:     driver,
		apiVersion: APIVersion,
		writeStep:  math.MaxInt32,
	}
	for _, opt := range opts {
		opt(cd)
	}
	if cd.logger == nil {
		cd.logger = log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "decoder",
			Level:  log.GetLevel(),
		})
	}

	cd.handlers = map[Opcode]handlerFunc{
		OpSetPinSingle:  cd.setPinSingle,
		OpSetPinMulti:   cd.setPinMulti,
		OpWriteBytes:    cd.writeBytes,
		OpGetPinSingle:  cd.getPinSingle,
		OpGetPinMulti:   cd.getPinMulti,
		OpDelay:         cd.delay,
		OpWaitForPin:    cd.waitForPin,
		OpGetName:       cd.getName,
		OpGetAPIVersion: cd.getAPIVersion,
	}
	return cd
}

// Next blocks until one whole command has been read and executed, then returns
// its response. Errors are connection scoped: ErrConnectionClosed, a
// *TransportError, or the context error.
func (cd *CommandDecoder) Next(ctx context.Context, buf *StreamBuffer) (Opcode, []byte, error) {
	b, err := buf.Take(1)
	if err != nil {
		return 0, nil, err
	}
	op := Opcode(b[0])
	started := time.Now()

	if !op.Known() {
		// Unknown opcodes consume no payload and are answered with a success
		// byte. A version 1 daemon answers GET_API_VERSION with 1 this way.
		cd.logger.Warn("unknown opcode, answering success", "opcode", b[0])
		cd.metrics.observeCommand(op, started, false)
		return op, []byte{StatusSuccess}, nil
	}

	cd.logger.Debug("command", "op", op)
	resp, err := cd.handlers[op](ctx, buf)
	if err != nil {
		return op, nil, err
	}
	cd.metrics.observeCommand(op, started, op.WriteStyle() && resp[0] != StatusSuccess)
	return op, resp, nil
}

func status(ok bool) []byte {
	if ok {
		return []byte{StatusSuccess}
	}
	return []byte{StatusFailure}
}

func (cd *CommandDecoder) setPinSingle(ctx context.Context, buf *StreamBuffer) ([]byte, error) {
	pair, err := buf.Take(2)
	if err != nil {
		return nil, err
	}

	cd.logger.Debug("set pin", "pin", pair[0], "value", pair[1])
	if err := cd.registry.Set(pair[0], pair[1]); err != nil {
		cd.logger.Warn("set pin failed", "pin", pair[0], "err", err)
		return status(false), nil
	}
	return status(true), nil
}

func (cd *CommandDecoder) setPinMulti(ctx context.Context, buf *StreamBuffer) ([]byte, error) {
	count, err := buf.ReadLength(1)
	if err != nil {
		return nil, err
	}
	pairs, err := buf.Take(int(count) * 2)
	if err != nil {
		return nil, err
	}

	ok := true
	for i := 0; i < len(pairs); i += 2 {
		cd.logger.Debug("set pin", "pin", pairs[i], "value", pairs[i+1])
		if err := cd.registry.Set(pairs[i], pairs[i+1]); err != nil {
			cd.logger.Warn("set pin failed", "pin", pairs[i], "err", err)
			ok = false
		}
	}
	return status(ok), nil
}

func (cd *CommandDecoder) writeBytes(ctx context.Context, buf *StreamBuffer) ([]byte, error) {
	length, err := buf.ReadLength(4)
	if err != nil {
		return nil, err
	}
	cd.logger.Debug("write bytes", "length", length)

	written := 0
	var busErr error
	write := func(chunk []byte) error {
		if busErr != nil || cd.driver == nil {
			return nil
		}
		if err := cd.driver.WriteBytes(chunk); err != nil {
			busErr = err
			return nil
		}
		written += len(chunk)
		return nil
	}

	// int may be 32 bits wide while the length header is not
	for remaining := uint64(length); remaining > 0; {
		step := remaining
		if step > uint64(cd.writeStep) {
			step = uint64(cd.writeStep)
		}
		if err := buf.Chunks(int(step), write); err != nil {
			cd.metrics.addBytesWritten(written)
			return nil, err
		}
		remaining -= step
	}
	cd.metrics.addBytesWritten(written)

	if busErr != nil {
		cd.logger.Warn("write bytes failed", "length", length, "written", written, "err", busErr)
		return status(false), nil
	}
	return status(true), nil
}

func (cd *CommandDecoder) getPinSingle(ctx context.Context, buf *StreamBuffer) ([]byte, error) {
	pin, err := buf.Take(1)
	if err != nil {
		return nil, err
	}
	return []byte{cd.readPin(pin[0])}, nil
}

func (cd *CommandDecoder) getPinMulti(ctx context.Context, buf *StreamBuffer) ([]byte, error) {
	count, err := buf.ReadLength(1)
	if err != nil {
		return nil, err
	}
	pins, err := buf.Take(int(count))
	if err != nil {
		return nil, err
	}

	values := make([]byte, len(pins))
	for i, pin := range pins {
		values[i] = cd.readPin(pin)
	}
	return values, nil
}

func (cd *CommandDecoder) readPin(pin uint8) uint8 {
	value, err := cd.registry.Get(pin)
	if err != nil {
		cd.logger.Warn("get pin failed, answering cached value", "pin", pin, "value", value, "err", err)
	}
	cd.logger.Debug("get pin", "pin", pin, "value", value)
	return value
}

func (cd *CommandDecoder) delay(ctx context.Context, buf *StreamBuffer) ([]byte, error) {
	ms, err := buf.ReadLength(2)
	if err != nil {
		return nil, err
	}

	d := time.Duration(ms) * time.Millisecond
	cd.logger.Debug("delay", "duration", d)
	if err := cd.pause(ctx, buf, d); err != nil {
		return nil, err
	}
	return status(true), nil
}

func (cd *CommandDecoder) waitForPin(ctx context.Context, buf *StreamBuffer) ([]byte, error) {
	data, err := buf.Take(2)
	if err != nil {
		return nil, err
	}
	pin, target := data[0], pinValue(data[1])
	ms, err := buf.ReadLength(2)
	if err != nil {
		return nil, err
	}
	interval := time.Duration(ms) * time.Millisecond

	cd.logger.Debug("wait for pin", "pin", pin, "target", target, "interval", interval)

	var deadline time.Time
	if cd.waitTimeout > 0 {
		deadline = time.Now().Add(cd.waitTimeout)
	}
	for {
		value, err := cd.registry.Get(pin)
		if err != nil {
			cd.logger.Debug("wait for pin read failed", "pin", pin, "err", err)
		} else if value == target {
			return status(true), nil
		}

		if !deadline.IsZero() && !time.Now().Before(deadline) {
			cd.logger.Warn("wait for pin gave up", "pin", pin, "target", target, "err", ErrWaitTimeout)
			return status(false), nil
		}
		if err := cd.pause(ctx, buf, interval); err != nil {
			return nil, err
		}
	}
}

// pause waits d between polls and for DELAY. Unless a sleep was injected it
// waits on the transport, so a closed peer ends the command with
// ErrConnectionClosed.
func (cd *CommandDecoder) pause(ctx context.Context, buf *StreamBuffer, d time.Duration) error {
	if cd.sleep != nil {
		return cd.sleep(ctx, d)
	}
	return buf.Watch(ctx, d)
}

func (cd *CommandDecoder) getName(ctx context.Context, buf *StreamBuffer) ([]byte, error) {
	name := []byte(cd.name)
	if len(name) > maxCount {
		name = name[:maxCount]
	}
	return append([]byte{byte(len(name))}, name...), nil
}

func (cd *CommandDecoder) getAPIVersion(ctx context.Context, buf *StreamBuffer) ([]byte, error) {
	return []byte{cd.apiVersion}, nil
}

// Serve runs Next until it fails, writing each response to w. It returns the
// error that ended the loop, never nil.
func (cd *CommandDecoder) Serve(ctx context.Context, buf *StreamBuffer, w io.Writer) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, resp, err := cd.Next(ctx, buf)
		if err != nil {
			return err
		}
		if _, err := w.Write(resp); err != nil {
			return &TransportError{Op: "write", Err: err}
		}
	}
}
