package mqtt

import (
	"context"
	"net/url"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/pkg/errors"
)

const connectionTimeoutSeconds = 5
const keepAliveSeconds = 20
const sessionExpirySeconds = 60

type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, retain bool) error
}

type MqttClient struct {
	config autopaho.ClientConfig
	conn   *autopaho.ConnectionManager
	stop   context.CancelFunc
	logger *log.Logger
}

func (mc *MqttClient) Publish(ctx context.Context, topic string, payload []byte, retain bool) (err error) {
	if mc.conn == nil {
		return errors.New("mqtt client not connected")
	}

	_, err = mc.conn.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     1,
		Retain:  retain,
		Payload: payload,
	})
	return
}

func (mc *MqttClient) onConnUp(cm *autopaho.ConnectionManager, connAck *paho.Connack) {
	mc.logger.Info("Connected to MQTT broker")
}

func (mc *MqttClient) onConnError(err error) {
	mc.logger.Error("Received Mqtt connection error", "err", err)
}

func (mc *MqttClient) onSrvDisconnect(d *paho.Disconnect) {
	mc.logger.Info("Disconnected from MQTT broker")
}

func (mc *MqttClient) Connect(ctx context.Context) (err error) {
	ctx, cancel := context.WithTimeout(ctx, connectionTimeoutSeconds*time.Second)
	defer cancel()

	mc.logger.Debug("NewConnection")
	// the connection manager keeps reconnecting in the background for as
	// long as its context lives, so it must not get the timeout context
	managerCtx, stop := context.WithCancel(context.Background())
	cm, err := autopaho.NewConnection(managerCtx, mc.config)
	if err != nil {
		stop()
		return
	}

	mc.logger.Debug("AwaitConnection")
	err = cm.AwaitConnection(ctx)
	mc.logger.Debug("AwaitConnection done", "err", err)
	if err != nil {
		stop()
		<-cm.Done()
		return
	}

	mc.conn = cm
	mc.stop = stop
	return
}

func (mc *MqttClient) Disconnect(ctx context.Context) (err error) {
	if mc.conn == nil {
		return nil
	}
	err = mc.conn.Disconnect(ctx)
	mc.stop()
	mc.conn = nil
	return
}

func NewMqttClient(broker string, clientId string) (mc *MqttClient, err error) {
	addr, err := url.Parse(broker)
	if err != nil {
		return
	}

	mc = &MqttClient{
		logger: log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "MqttClient 🐰: ",
			Level:  log.GetLevel(),
		}),
	}

	mc.config = autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{addr},
		KeepAlive:                     keepAliveSeconds,
		CleanStartOnInitialConnection: false,
		SessionExpiryInterval:         sessionExpirySeconds,
		OnConnectionUp:                mc.onConnUp,
		OnConnectError:                mc.onConnError,
		ClientConfig: paho.ClientConfig{
			ClientID:           clientId,
			OnClientError:      mc.onConnError,
			OnServerDisconnect: mc.onSrvDisconnect,
		},
	}

	return
}
