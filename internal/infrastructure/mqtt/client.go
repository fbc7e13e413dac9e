package mqtt

import (
	"context"
	"fmt"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/jsonwp-core/internal/infrastructure/config"
)

// Logger receives connection state changes. *logging.Logger satisfies it.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any) {}
func (nopLogger) Warn(string, ...any) {}

// Client publishes gateway events over paho.mqtt.golang. It is safe for
// concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics
	log    Logger

	up       atomic.Bool
	connects atomic.Uint64
}

// Connect dials the broker and waits for the first connection. The broker
// is told to publish a retained offline status if the link drops, and every
// (re)connect publishes a retained online status. log may be nil.
func Connect(cfg config.MQTTConfig, log Logger) (*Client, error) {
	if log == nil {
		log = nopLogger{}
	}
	c := &Client{cfg: cfg, topics: Topics{Prefix: cfg.TopicPrefix}, log: log}

	opts := buildClientOptions(cfg)
	configureLWT(opts, c.topics, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.onUp() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.onDown(err) })

	c.client = pahomqtt.NewClient(opts)
	tok := c.client.Connect()
	if !tok.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	// The connect handler runs on paho's goroutine and may still be pending.
	c.up.Store(true)
	return c, nil
}

// Topics returns the topic builder for this client's prefix.
func (c *Client) Topics() Topics {
	return c.topics
}

func (c *Client) onUp() {
	c.up.Store(true)
	if n := c.connects.Add(1); n > 1 {
		c.log.Info("MQTT reconnected", "reconnects", n-1)
	}
	c.client.Publish(c.topics.Status(), byte(c.cfg.QoS), true,
		buildStatusPayload(c.cfg.Broker.ClientID, "online", ""))
}

func (c *Client) onDown(err error) {
	c.up.Store(false)
	c.log.Warn("MQTT connection lost", "error", err)
}

// Close publishes a retained graceful offline status and disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() {
		c.client.Publish(c.topics.Status(), byte(c.cfg.QoS), true,
			buildStatusPayload(c.cfg.Broker.ClientID, "offline", "graceful_shutdown")).
			WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.up.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected when the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.up.Load() && c.client.IsConnected()
}
