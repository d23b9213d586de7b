package gpionet

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
)

const DefaultMaxReadSize = 32 * 1024

// minWatch keeps a zero-length wait checking the transport at least once.
const minWatch = time.Millisecond

// deadlineReader is a transport whose reads can time out, like net.Conn.
type deadlineReader interface {
	io.Reader
	SetReadDeadline(t time.Time) error
}

// StreamBuffer assembles exact-length fields out of however the transport
// happens to split the stream. Bytes leave the buffer only through Take,
// Chunks or ReadLength, each exactly once and in arrival order.
type StreamBuffer struct {
	r       io.Reader
	pending []byte
	scratch []byte
}

func NewStreamBuffer(r io.Reader, maxRead int) *StreamBuffer {
	if maxRead <= 0 {
		maxRead = DefaultMaxReadSize
	}
	return &StreamBuffer{
		r:       r,
		scratch: make([]byte, maxRead),
	}
}

// Reset drops anything buffered and starts reading from r.
func (sb *StreamBuffer) Reset(r io.Reader) {
	sb.r = r
	sb.pending = nil
}

func (sb *StreamBuffer) Buffered() int {
	return len(sb.pending)
}

// fill performs one transport read and appends whatever it yields.
func (sb *StreamBuffer) fill() error {
	if sb.r == nil {
		return ErrConnectionClosed
	}
	n, err := sb.r.Read(sb.scratch)
	if n > 0 {
		sb.pending = append(sb.pending, sb.scratch[:n]...)
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return ErrConnectionClosed
	}
	return &TransportError{Op: "read", Err: err}
}

// Take returns exactly n bytes from the front of the stream, reading from the
// transport until enough have arrived.
func (sb *StreamBuffer) Take(n int) ([]byte, error) {
	if n < 0 {
		return nil, invalidArgument("take %d bytes", n)
	}
	for len(sb.pending) < n {
		if err := sb.fill(); err != nil {
			return nil, err
		}
	}

	out := make([]byte, n)
	copy(out, sb.pending[:n])
	sb.consume(n)
	return out, nil
}

// Chunks consumes exactly n bytes, passing them to fn in the pieces they are
// buffered in. The slice passed to fn is only valid during the call. If fn
// fails the remaining bytes are still consumed so the stream stays aligned,
// and the first fn error is returned.
func (sb *StreamBuffer) Chunks(n int, fn func(chunk []byte) error) error {
	if n < 0 {
		return invalidArgument("take %d bytes", n)
	}
	var fnErr error
	for n > 0 {
		if len(sb.pending) == 0 {
			if err := sb.fill(); err != nil {
				return err
			}
		}

		size := n
		if size > len(sb.pending) {
			size = len(sb.pending)
		}
		if fnErr == nil {
			fnErr = fn(sb.pending[:size])
		}
		sb.consume(size)
		n -= size
	}
	return fnErr
}

// Watchable reports whether Watch can observe the transport.
func (sb *StreamBuffer) Watchable() bool {
	_, ok := sb.r.(deadlineReader)
	return ok
}

// Watch spends d reading from the transport. Bytes that arrive are kept for
// later commands, so a peer hanging up is noticed while the current command
// is still waiting. It returns nil once d has passed.
func (sb *StreamBuffer) Watch(ctx context.Context, d time.Duration) error {
	dr, ok := sb.r.(deadlineReader)
	if !ok {
		return Sleep(ctx, d)
	}
	if d < minWatch {
		d = minWatch
	}
	deadline := time.Now().Add(d)
	defer dr.SetReadDeadline(time.Time{})

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := dr.SetReadDeadline(deadline); err != nil {
			return &TransportError{Op: "read", Err: err}
		}

		n, err := dr.Read(sb.scratch)
		if n > 0 {
			sb.pending = append(sb.pending, sb.scratch[:n]...)
		}
		switch {
		case err == nil:
			if n == 0 {
				return ErrConnectionClosed
			}
		case errors.Is(err, os.ErrDeadlineExceeded):
			return nil
		case errors.Is(err, io.EOF):
			return ErrConnectionClosed
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return &TransportError{Op: "read", Err: err}
		}
	}
}

// ReadLength reads a 1, 2 or 4 byte big-endian unsigned integer.
func (sb *StreamBuffer) ReadLength(size int) (uint32, error) {
	if size != 1 && size != 2 && size != 4 {
		return 0, invalidArgument("length header size %d", size)
	}
	b, err := sb.Take(size)
	if err != nil {
		return 0, err
	}
	return ParseLength(b)
}

func (sb *StreamBuffer) consume(n int) {
	sb.pending = sb.pending[n:]
	if len(sb.pending) == 0 {
		sb.pending = nil
	}
}
