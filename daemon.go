package gpionet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hubertat/gpionet/drivers"
	"github.com/hubertat/gpionet/mqtt"
	"github.com/hubertat/gpionet/recorder"
	"github.com/hubertat/gpionet/transport"
)

const (
	defaultDaemonName = "gpionet"
	defaultPort       = 8080
	defaultMaxSizeKb  = 32
	acceptRetryDelay  = time.Second
)

// Daemon serves the protocol to one client at a time. Its exported fields are
// the JSON configuration; exactly one of Gpio, Mcp23017 and Mock selects the
// pin driver.
type Daemon struct {
	Name      string
	Address   string
	Port      int
	MaxSizeKb int
	// WaitTimeoutMs bounds WAIT_FOR_PIN; 0 waits forever.
	WaitTimeoutMs int
	Debug         bool

	Serial *transport.SerialConfig

	StatusAddr string
	Advertise  bool

	MqttBroker      string
	MqttTopicPrefix string
	Influx          *recorder.InfluxRecorder

	Gpio     *drivers.GpIO
	Mcp23017 *drivers.McpIO
	Mock     *drivers.MockDriver

	driver       drivers.PinDriver
	registry     *PinRegistry
	decoder      *CommandDecoder
	buffer       *StreamBuffer
	metrics      *Metrics
	promRegistry *prometheus.Registry
	observers    []PinObserver
	events       *pinEvents
	stopEvents   context.CancelFunc
	mqttClient   *mqtt.MqttClient
	logger       *log.Logger

	peerLock sync.Mutex
	peer     string
}

// LoadConfig reads a JSON daemon configuration.
func LoadConfig(r io.Reader) (*Daemon, error) {
	d := &Daemon{}
	err := json.NewDecoder(r).Decode(d)
	if err != nil {
		return nil, errors.Wrap(err, "failed unmarshalling json config")
	}
	return d, nil
}

// AddObserver registers an extra pin change observer. Call before Init.
func (d *Daemon) AddObserver(obs PinObserver) {
	d.observers = append(d.observers, obs)
}

func (d *Daemon) applyDefaults() {
	if len(d.Name) == 0 {
		d.Name = defaultDaemonName
	}
	if d.Port == 0 {
		d.Port = defaultPort
	}
	if d.MaxSizeKb <= 0 {
		d.MaxSizeKb = defaultMaxSizeKb
	}
}

// Init sets up the configured driver and everything the accept loop needs.
func (d *Daemon) Init(ctx context.Context) (err error) {
	d.applyDefaults()

	if d.Debug {
		log.SetLevel(log.DebugLevel)
	}
	if d.logger == nil {
		d.logger = log.NewWithOptions(os.Stderr, log.Options{
			Prefix:          "gpionet",
			Level:           log.GetLevel(),
			ReportTimestamp: true,
		})
	}

	d.driver, err = drivers.Select(d.Gpio, d.Mcp23017, d.Mock)
	if err != nil {
		return errors.Wrap(err, "failed to select pin driver")
	}
	err = d.driver.Setup(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to setup %s driver", d.driver)
	}
	d.logger.Info("driver ready", "driver", d.driver)

	d.promRegistry = prometheus.NewRegistry()
	d.metrics = NewMetrics(d.promRegistry)
	d.registry = NewPinRegistry(d.driver)
	d.buffer = NewStreamBuffer(nil, d.MaxSizeKb*1024)
	opts := []DecoderOption{
		WithName(d.Name),
		WithWaitTimeout(time.Duration(d.WaitTimeoutMs) * time.Millisecond),
		WithDecoderLogger(d.logger.WithPrefix("decoder")),
		WithMetrics(d.metrics),
	}
	d.decoder = NewCommandDecoder(d.registry, d.driver, opts...)

	if len(d.MqttBroker) > 0 {
		if err := d.initMqtt(ctx); err != nil {
			return err
		}
	}
	if d.Influx != nil {
		if d.Influx.Device == "" {
			d.Influx.Device = d.Name
		}
		if err := d.Influx.Setup(ctx); err != nil {
			return errors.Wrap(err, "failed to setup influx recorder")
		}
		d.observers = append(d.observers, d.Influx)
	}

	d.events = newPinEvents(d.observers, d.logger.WithPrefix("events"), d.metrics)
	d.registry.OnChange(d.events.publish)
	eventsCtx, cancel := context.WithCancel(context.Background())
	d.stopEvents = cancel
	go d.events.run(eventsCtx)

	return nil
}

func (d *Daemon) initMqtt(ctx context.Context) error {
	mc, err := mqtt.NewMqttClient(d.MqttBroker, d.Name)
	if err != nil {
		return errors.Wrap(err, "failed to create mqtt client")
	}
	err = mc.Connect(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to connect to mqtt broker")
	}

	d.mqttClient = mc
	prefix := d.MqttTopicPrefix
	if prefix == "" {
		prefix = "gpionet/" + d.Name
	}
	d.observers = append(d.observers, &mqtt.PinPublisher{Publisher: mc, Prefix: prefix})
	return nil
}

func (d *Daemon) Registry() *PinRegistry {
	return d.registry
}

func (d *Daemon) Driver() drivers.PinDriver {
	return d.driver
}

// Listen opens the configured transport: the serial port when set, TCP otherwise.
func (d *Daemon) Listen() (transport.Listener, error) {
	if d.Serial != nil {
		return transport.ListenSerial(*d.Serial)
	}
	return transport.ListenTCP(d.Address, d.Port)
}

// Run listens, starts the optional status server and advertisement, and
// serves until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	ln, err := d.Listen()
	if err != nil {
		return err
	}

	if len(d.StatusAddr) > 0 {
		go func() {
			if err := d.ServeStatus(ctx, d.StatusAddr); err != nil {
				d.logger.Error("status server stopped", "err", err)
			}
		}()
	}
	if d.Advertise && d.Serial == nil {
		if err := d.advertise(ctx, transport.Port(ln.Addr())); err != nil {
			d.logger.Warn("dns-sd advertisement disabled", "err", err)
		}
	}

	return d.Serve(ctx, ln)
}

// Serve accepts connections one after another and runs each until it ends.
// Connection failures never end the loop; only ctx does.
func (d *Daemon) Serve(ctx context.Context, ln transport.Listener) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-stop:
		}
	}()

	d.logger.Info("serving", "addr", ln.Addr(), "name", d.Name)
	for {
		d.logger.Debug("awaiting connection")
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, transport.ErrListenerClosed) {
				return err
			}
			d.logger.Error("accept failed", "err", err)
			if Sleep(ctx, acceptRetryDelay) != nil {
				return nil
			}
			continue
		}

		d.handleConnection(ctx, conn)
	}
}

func (d *Daemon) handleConnection(ctx context.Context, conn io.ReadWriteCloser) {
	peer := transport.Describe(conn)
	d.setPeer(peer)
	defer d.setPeer("")
	d.metrics.connectionOpened()
	d.logger.Info("client connected", "peer", peer)

	connCtx, cancel := context.WithCancel(ctx)
	closed := make(chan struct{})
	go func() {
		<-connCtx.Done()
		conn.Close()
		close(closed)
	}()
	defer func() {
		cancel()
		<-closed
	}()

	d.buffer.Reset(conn)
	err := d.decoder.Serve(connCtx, d.buffer, conn)
	d.buffer.Reset(nil)

	reason := closeReason(err)
	switch reason {
	case "closed", "shutdown":
		d.logger.Info("client disconnected", "peer", peer, "reason", reason)
	default:
		d.logger.Error("connection dropped", "peer", peer, "reason", reason, "err", err)
	}
	d.metrics.connectionClosed(reason)
}

func closeReason(err error) string {
	var te *TransportError
	switch {
	case errors.Is(err, ErrConnectionClosed):
		return "closed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "shutdown"
	case errors.As(err, &te):
		return "transport"
	}
	return "error"
}

func (d *Daemon) setPeer(peer string) {
	d.peerLock.Lock()
	defer d.peerLock.Unlock()

	d.peer = peer
}

// Peer describes the connected client, empty when idle.
func (d *Daemon) Peer() string {
	d.peerLock.Lock()
	defer d.peerLock.Unlock()

	return d.peer
}

// Close releases the driver and pin event outputs.
func (d *Daemon) Close() (err error) {
	if d.stopEvents != nil {
		d.stopEvents()
		d.events.wait()
	}

	if d.mqttClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if mqttErr := d.mqttClient.Disconnect(ctx); mqttErr != nil {
			err = errors.Wrap(mqttErr, "failed to disconnect mqtt")
		}
	}
	if d.Influx != nil {
		d.Influx.Close()
	}
	if d.driver != nil {
		if closeErr := d.driver.Close(); closeErr != nil {
			if err != nil {
				err = errors.Wrap(err, closeErr.Error())
			} else {
				err = closeErr
			}
		}
	}

	return
}

func (d *Daemon) PrintStatus(writer io.Writer) {
	fmt.Fprintln(writer)
	fmt.Fprintf(writer, "=== %s (api v%d) ===\n", d.Name, APIVersion)
	if d.driver != nil {
		fmt.Fprintf(writer, "| driver: %s\n", d.driver)
	}
	if d.Serial != nil {
		fmt.Fprintf(writer, "| serial: %s\n", d.Serial.Device)
	} else {
		fmt.Fprintf(writer, "| listen: %s:%d\n", d.Address, d.Port)
	}
	if len(d.StatusAddr) > 0 {
		fmt.Fprintf(writer, "| status: %s\n", d.StatusAddr)
	}
	if d.registry != nil {
		pins := []string{}
		for _, ps := range d.registry.Snapshot() {
			pins = append(pins, fmt.Sprintf("%d=%d", ps.ID, ps.Value))
		}
		fmt.Fprintf(writer, "| pins: %s\n", strings.Join(pins, ", "))
	}
	fmt.Fprintln(writer, "-----------------------------")
	fmt.Fprintln(writer)
}
