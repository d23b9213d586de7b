package gpionet

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"testing/iotest"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/hubertat/gpionet/drivers"
)

var quietLogger = log.New(io.Discard)

// recordSleep returns a SleepFunc recording every requested duration and
// running onSleep before returning.
func recordSleep(slept *[]time.Duration, onSleep func(n int)) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		if onSleep != nil {
			onSleep(len(*slept))
		}
		return ctx.Err()
	}
}

func newMockDecoder(t testing.TB, opts ...DecoderOption) (*CommandDecoder, *drivers.MockDriver) {
	t.Helper()

	pr, md := newMockRegistry(t)
	opts = append([]DecoderOption{WithName("Mock server"), WithDecoderLogger(quietLogger)}, opts...)
	return NewCommandDecoder(pr, md, opts...), md
}

// serveInput runs the decoder over input until the stream ends and returns
// everything it answered.
func serveInput(t testing.TB, cd *CommandDecoder, input io.Reader) []byte {
	t.Helper()

	out := &bytes.Buffer{}
	err := cd.Serve(context.Background(), NewStreamBuffer(input, 0), out)
	if !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("Serve ended with err: %v, want ErrConnectionClosed", err)
	}
	return out.Bytes()
}

func TestDecoderSetPinSingle(t *testing.T) {
	cd, md := newMockDecoder(t)

	got := serveInput(t, cd, bytes.NewReader([]byte{0x00, 20, 1}))
	assertBytes(t, got, []byte{1})

	state, _ := md.Get(20)
	if !state {
		t.Error("pin 20 not set on driver")
	}
	value, _ := cd.registry.Get(20)
	assertUint8s(t, value, 1)
}

func TestDecoderGetPinMultiDefaults(t *testing.T) {
	cd, _ := newMockDecoder(t)

	got := serveInput(t, cd, bytes.NewReader([]byte{0x04, 2, 20, 21}))
	assertBytes(t, got, []byte{0, 0})
}

func TestDecoderGetName(t *testing.T) {
	cd, _ := newMockDecoder(t)

	got := serveInput(t, cd, bytes.NewReader([]byte{0x07}))
	assertBytes(t, got, append([]byte{11}, "Mock server"...))
}

func TestDecoderGetNameTruncated(t *testing.T) {
	long := string(bytes.Repeat([]byte{'a'}, 300))
	cd, _ := newMockDecoder(t, WithName(long))

	got := serveInput(t, cd, bytes.NewReader([]byte{0x07}))
	assertInts(t, len(got), 256)
	assertInts(t, int(got[0]), 255)
}

func TestDecoderUnknownOpcode(t *testing.T) {
	cd, _ := newMockDecoder(t)

	got := serveInput(t, cd, bytes.NewReader([]byte{127}))
	assertBytes(t, got, []byte{1})
}

func TestDecoderUnknownOpcodeConsumesNoPayload(t *testing.T) {
	cd, _ := newMockDecoder(t)

	// 0x09 is unknown; the 0x08 behind it is a command of its own.
	got := serveInput(t, cd, bytes.NewReader([]byte{0x09, 0x08}))
	assertBytes(t, got, []byte{1, APIVersion})
}

func TestDecoderAPIVersion(t *testing.T) {
	cd, _ := newMockDecoder(t)
	assertBytes(t, serveInput(t, cd, bytes.NewReader([]byte{0x08})), []byte{2})

	old, _ := newMockDecoder(t, WithAPIVersion(1))
	assertBytes(t, serveInput(t, old, bytes.NewReader([]byte{0x08})), []byte{1})
}

func TestDecoderSetPinMulti(t *testing.T) {
	cd, md := newMockDecoder(t)

	got := serveInput(t, cd, bytes.NewReader([]byte{0x01, 3, 4, 1, 5, 1, 6, 0, 0x04, 3, 4, 5, 6}))
	assertBytes(t, got, []byte{1, 1, 1, 0})

	state, _ := md.Get(5)
	if !state {
		t.Error("pin 5 not set on driver")
	}
}

func TestDecoderSetPinMultiEmpty(t *testing.T) {
	cd, _ := newMockDecoder(t)

	got := serveInput(t, cd, bytes.NewReader([]byte{0x01, 0, 0x08}))
	assertBytes(t, got, []byte{1, 2})
}

func TestDecoderGetPinSingle(t *testing.T) {
	cd, md := newMockDecoder(t)
	md.SetInput(13, true)

	got := serveInput(t, cd, bytes.NewReader([]byte{0x03, 13, 0x03, 14}))
	assertBytes(t, got, []byte{1, 0})
}

func TestDecoderWriteBytes(t *testing.T) {
	cd, md := newMockDecoder(t)

	input := []byte{0x02, 0, 0, 0, 5, 0xde, 0xad, 0xbe, 0xef, 0x01, 0x08}
	got := serveInput(t, cd, iotest.OneByteReader(bytes.NewReader(input)))
	assertBytes(t, got, []byte{1, 2})

	written := []byte{}
	for _, chunk := range md.Written() {
		written = append(written, chunk...)
	}
	assertBytes(t, written, []byte{0xde, 0xad, 0xbe, 0xef, 0x01})
}

func TestDecoderWriteBytesEmpty(t *testing.T) {
	cd, md := newMockDecoder(t)

	got := serveInput(t, cd, bytes.NewReader([]byte{0x02, 0, 0, 0, 0}))
	assertBytes(t, got, []byte{1})
	assertInts(t, len(md.Written()), 0)
}

func TestDecoderWriteBytesWithoutDriver(t *testing.T) {
	cd := NewCommandDecoder(NewPinRegistry(nil), nil, WithDecoderLogger(quietLogger))

	got := serveInput(t, cd, bytes.NewReader([]byte{0x02, 0, 0, 0, 2, 9, 9, 0x08}))
	assertBytes(t, got, []byte{1, 2})
}

func TestDecoderDriverFailures(t *testing.T) {
	fd := &faultyDriver{fail: map[uint8]bool{7: true, 0xff: true}}
	fd.Setup(context.Background())
	cd := NewCommandDecoder(NewPinRegistry(fd), fd, WithDecoderLogger(quietLogger))

	input := []byte{
		0x00, 7, 1, // set on failing pin
		0x01, 2, 8, 1, 7, 1, // multi set, one pin failing
		0x02, 0, 0, 0, 2, 0xaa, 0xbb, // write on failing bus
		0x03, 7, // get on failing pin answers the cache
		0x03, 8,
	}
	got := serveInput(t, cd, bytes.NewReader(input))
	assertBytes(t, got, []byte{0, 0, 0, 0, 1})
}

func TestDecoderDelay(t *testing.T) {
	slept := []time.Duration{}
	cd, _ := newMockDecoder(t, WithSleep(recordSleep(&slept, nil)))

	got := serveInput(t, cd, bytes.NewReader([]byte{0x05, 0x03, 0xe8}))
	assertBytes(t, got, []byte{1})

	if len(slept) != 1 || slept[0] != time.Second {
		t.Errorf("got sleeps %v, want [1s]", slept)
	}
}

func TestDecoderWaitForPin(t *testing.T) {
	slept := []time.Duration{}
	var md *drivers.MockDriver
	cd, md := newMockDecoder(t, WithSleep(recordSleep(&slept, func(n int) {
		if n == 3 {
			md.SetInput(13, true)
		}
	})))

	got := serveInput(t, cd, bytes.NewReader([]byte{0x06, 13, 1, 0x00, 0x0a}))
	assertBytes(t, got, []byte{1})

	assertInts(t, len(slept), 3)
	for _, d := range slept {
		if d != 10*time.Millisecond {
			t.Errorf("got interval %v, want 10ms", d)
		}
	}
}

func TestDecoderWaitForPinAlreadyMatching(t *testing.T) {
	slept := []time.Duration{}
	cd, _ := newMockDecoder(t, WithSleep(recordSleep(&slept, nil)))

	got := serveInput(t, cd, bytes.NewReader([]byte{0x06, 13, 0, 0x00, 0x0a}))
	assertBytes(t, got, []byte{1})
	assertInts(t, len(slept), 0)
}

func TestDecoderWaitForPinTimeout(t *testing.T) {
	sleep := func(ctx context.Context, d time.Duration) error {
		time.Sleep(time.Millisecond)
		return nil
	}
	cd, _ := newMockDecoder(t, WithSleep(sleep), WithWaitTimeout(5*time.Millisecond))

	got := serveInput(t, cd, bytes.NewReader([]byte{0x06, 13, 1, 0x00, 0x01, 0x08}))
	assertBytes(t, got, []byte{0, 2})
}

func TestDecoderWaitForPinCancelled(t *testing.T) {
	cd, _ := newMockDecoder(t, WithSleep(Sleep))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	out := &bytes.Buffer{}
	err := cd.Serve(ctx, NewStreamBuffer(bytes.NewReader([]byte{0x06, 13, 1, 0x00, 0x05}), 0), out)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got err: %v, want context.Canceled", err)
	}
	assertInts(t, out.Len(), 0)
}

func TestDecoderTruncatedCommand(t *testing.T) {
	cd, _ := newMockDecoder(t)

	out := &bytes.Buffer{}
	err := cd.Serve(context.Background(), NewStreamBuffer(bytes.NewReader([]byte{0x00, 20, 1, 0x01, 3, 1}), 0), out)
	if !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("got err: %v, want ErrConnectionClosed", err)
	}
	assertBytes(t, out.Bytes(), []byte{1})
}

type brokenWriter struct{}

func (brokenWriter) Write(p []byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestDecoderServeWriteError(t *testing.T) {
	cd, _ := newMockDecoder(t)

	err := cd.Serve(context.Background(), NewStreamBuffer(bytes.NewReader([]byte{0x08}), 0), brokenWriter{})
	var te *TransportError
	if !errors.As(err, &te) || te.Op != "write" {
		t.Errorf("got err: %v, want write *TransportError", err)
	}
}

func TestDecoderMetrics(t *testing.T) {
	metrics := NewMetrics(prometheusRegistry(t))
	cd, _ := newMockDecoder(t, WithMetrics(metrics))

	serveInput(t, cd, bytes.NewReader([]byte{0x00, 1, 1, 0x00, 2, 1, 0x02, 0, 0, 0, 3, 1, 2, 3}))

	assertFloats(t, counterValue(t, metrics.commandsTotal.WithLabelValues("SET_PIN_SINGLE")), 2)
	assertFloats(t, counterValue(t, metrics.bytesWritten), 3)
}

func TestDecoderWaitForPinPeerHangsUp(t *testing.T) {
	cd, _ := newMockDecoder(t)

	server, peer := net.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- cd.Serve(context.Background(), NewStreamBuffer(server, 0), server)
	}()

	peer.Write([]byte{0x06, 40, 1, 0x00, 0x0a})
	time.Sleep(30 * time.Millisecond)
	peer.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrConnectionClosed) {
			t.Errorf("got err: %v, want ErrConnectionClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("wait for pin kept polling after the peer closed")
	}
}

func TestDecoderDelayPeerHangsUp(t *testing.T) {
	cd, _ := newMockDecoder(t)

	server, peer := net.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- cd.Serve(context.Background(), NewStreamBuffer(server, 0), server)
	}()

	// 65 second delay
	peer.Write([]byte{0x05, 0xfd, 0xe8})
	peer.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrConnectionClosed) {
			t.Errorf("got err: %v, want ErrConnectionClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("delay kept running after the peer closed")
	}
}

func TestDecoderWaitForPinPipelined(t *testing.T) {
	cd, md := newMockDecoder(t)

	server, peer := net.Pipe()
	defer peer.Close()
	go cd.Serve(context.Background(), NewStreamBuffer(server, 0), server)

	// the version request arrives while the wait is still polling
	peer.Write([]byte{0x06, 13, 1, 0x00, 0x05})
	peer.Write([]byte{0x08})
	md.SetInput(13, true)

	resp := make([]byte, 2)
	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(peer, resp); err != nil {
		t.Fatalf("reading responses: %v", err)
	}
	assertBytes(t, resp, []byte{1, APIVersion})
}

func TestDecoderWriteBytesInSteps(t *testing.T) {
	cd, md := newMockDecoder(t)
	cd.writeStep = 3

	input := []byte{0x02, 0, 0, 0, 8, 1, 2, 3, 4, 5, 6, 7, 8, 0x08}
	got := serveInput(t, cd, bytes.NewReader(input))
	assertBytes(t, got, []byte{1, 2})

	written := []byte{}
	for _, chunk := range md.Written() {
		written = append(written, chunk...)
	}
	assertBytes(t, written, []byte{1, 2, 3, 4, 5, 6, 7, 8})
}

func TestDecoderWriteBytesHugeLength(t *testing.T) {
	cd, md := newMockDecoder(t)

	// a 4 GiB write whose sender goes away after three bytes
	input := []byte{0x02, 0xff, 0xff, 0xff, 0xff, 1, 2, 3}
	out := &bytes.Buffer{}
	err := cd.Serve(context.Background(), NewStreamBuffer(bytes.NewReader(input), 0), out)
	if !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("got err: %v, want ErrConnectionClosed", err)
	}

	written := []byte{}
	for _, chunk := range md.Written() {
		written = append(written, chunk...)
	}
	assertBytes(t, written, []byte{1, 2, 3})
}
