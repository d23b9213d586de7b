// Package transport provides the byte streams the protocol runs over: TCP
// sockets and serial ports.
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/pkg/errors"
)

var ErrListenerClosed = errors.New("listener closed")

// Listener hands out one connection per Accept call.
type Listener interface {
	Accept() (io.ReadWriteCloser, error)
	Close() error
	Addr() string
}

type tcpListener struct {
	ln net.Listener
}

// ListenTCP binds address:port. An empty address binds all interfaces.
func ListenTCP(address string, port int) (Listener, error) {
	hostPort := net.JoinHostPort(address, strconv.Itoa(port))
	ln, err := net.Listen("tcp", hostPort)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %s", hostPort)
	}
	return &tcpListener{ln: ln}, nil
}

func (tl *tcpListener) Accept() (io.ReadWriteCloser, error) {
	conn, err := tl.ln.Accept()
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrListenerClosed
		}
		return nil, err
	}
	return conn, nil
}

func (tl *tcpListener) Close() error {
	return tl.ln.Close()
}

func (tl *tcpListener) Addr() string {
	return tl.ln.Addr().String()
}

// Port returns the bound TCP port, or 0 when addr has none.
func Port(addr string) int {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	p, _ := strconv.Atoi(port)
	return p
}

// DialTCP connects to address:port.
func DialTCP(ctx context.Context, address string, port int) (io.ReadWriteCloser, error) {
	var d net.Dialer
	hostPort := net.JoinHostPort(address, strconv.Itoa(port))
	conn, err := d.DialContext(ctx, "tcp", hostPort)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", hostPort)
	}
	return conn, nil
}

// Describe names a connection for logs.
func Describe(conn io.ReadWriteCloser) string {
	switch c := conn.(type) {
	case net.Conn:
		return c.RemoteAddr().String()
	case fmt.Stringer:
		return c.String()
	}
	return "unknown"
}
