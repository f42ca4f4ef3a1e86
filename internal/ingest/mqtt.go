// Package ingest bridges MQTT telemetry into the device registry. Sensors
// publish JSON payloads to <prefix>/<device>/data and the bridge records each
// one as native device data. Malformed messages and storage failures are
// logged and skipped.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/suhasdevmane/Abacws/internal/datastore"
	"github.com/suhasdevmane/Abacws/internal/domain"
)

const (
	connectTimeout = 10 * time.Second
	insertTimeout  = 5 * time.Second
	subscribeQoS   = 1
)

// Bridge subscribes to the telemetry topic tree and writes payloads through
// the datastore.
type Bridge struct {
	store  datastore.Datastore
	logger *zap.Logger
	prefix string
	client mqtt.Client
}

type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
	// TopicPrefix is the root of the telemetry tree, without a trailing slash.
	TopicPrefix string
}

func NewBridge(store datastore.Datastore, opts Options, logger *zap.Logger) *Bridge {
	b := &Bridge{
		store:  store,
		logger: logger,
		prefix: strings.TrimSuffix(opts.TopicPrefix, "/"),
	}

	mqttOpts := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", zap.Error(err))
		})

	b.client = mqtt.NewClient(mqttOpts)
	return b
}

// Start connects and subscribes. The connection keeps retrying in the
// background, so a broker that is down at boot does not fail startup.
func (b *Bridge) Start() error {
	token := b.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		b.logger.Warn("mqtt broker not reachable yet, retrying in background")
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

func (b *Bridge) Stop() {
	b.client.Disconnect(250)
}

func (b *Bridge) onConnect(client mqtt.Client) {
	topic := b.prefix + "/+/data"
	token := client.Subscribe(topic, subscribeQoS, b.handleMessage)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			b.logger.Error("mqtt subscribe failed", zap.String("topic", topic), zap.Error(err))
			return
		}
		b.logger.Info("mqtt ingest subscribed", zap.String("topic", topic))
	}()
}

// deviceFromTopic extracts the device segment of <prefix>/<device>/data.
func (b *Bridge) deviceFromTopic(topic string) (string, bool) {
	rest := strings.TrimPrefix(topic, b.prefix+"/")
	if rest == topic {
		return "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "data" || parts[0] == "" {
		return "", false
	}
	return parts[0], true
}

func (b *Bridge) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	device, ok := b.deviceFromTopic(msg.Topic())
	if !ok {
		b.logger.Debug("ignoring message on unexpected topic", zap.String("topic", msg.Topic()))
		return
	}

	var entry domain.DataEntry
	if err := json.Unmarshal(msg.Payload(), &entry); err != nil {
		b.logger.Warn("dropping malformed telemetry payload",
			zap.String("device", device),
			zap.Error(err),
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()
	if err := b.store.InsertDeviceData(ctx, device, entry); err != nil {
		b.logger.Warn("telemetry insert failed",
			zap.String("device", device),
			zap.Error(err),
		)
	}
}
