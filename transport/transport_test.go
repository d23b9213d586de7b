package transport

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestTCPListenDial(t *testing.T) {
	ln, err := ListenTCP("127.0.0.1", 0)
	if err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	defer ln.Close()

	port := Port(ln.Addr())
	if port == 0 {
		t.Fatalf("no port in %s", ln.Addr())
	}

	accepted := make(chan io.ReadWriteCloser, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- conn
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := DialTCP(ctx, "127.0.0.1", port)
	if err != nil {
		t.Fatalf("DialTCP: %v", err)
	}
	defer client.Close()

	server, ok := <-accepted
	if !ok {
		t.Fatal("accept failed")
	}
	defer server.Close()

	if Describe(server) == "unknown" {
		t.Error("tcp connection should describe its remote address")
	}

	client.Write([]byte{7, 8})
	got := make([]byte, 2)
	if _, err := io.ReadFull(server, got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got[0] != 7 || got[1] != 8 {
		t.Errorf("got %v want [7 8]", got)
	}
}

func TestTCPAcceptAfterClose(t *testing.T) {
	ln, err := ListenTCP("127.0.0.1", 0)
	if err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	ln.Close()

	_, err = ln.Accept()
	if !errors.Is(err, ErrListenerClosed) {
		t.Errorf("got %v want ErrListenerClosed", err)
	}
}

func TestSerialListenerClosed(t *testing.T) {
	ln, err := ListenSerial(SerialConfig{Device: "/dev/does-not-exist"})
	if err != nil {
		t.Fatalf("ListenSerial: %v", err)
	}
	if ln.Addr() != "/dev/does-not-exist" {
		t.Errorf("got addr %s", ln.Addr())
	}

	if _, err := ln.Accept(); err == nil {
		t.Error("expected error opening missing device")
	}

	ln.Close()
	if _, err := ln.Accept(); !errors.Is(err, ErrListenerClosed) {
		t.Errorf("got %v want ErrListenerClosed", err)
	}
}

func TestSerialConfigDefaults(t *testing.T) {
	cfg := SerialConfig{Device: "/dev/ttyACM0"}.portConfig()
	if cfg.Baud != defaultBaud {
		t.Errorf("got baud %d want %d", cfg.Baud, defaultBaud)
	}
	if cfg.ReadTimeout != 0 {
		t.Errorf("got read timeout %s want 0", cfg.ReadTimeout)
	}

	if _, err := ListenSerial(SerialConfig{}); err == nil {
		t.Error("expected error without device")
	}
}
