package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultOpTimeout      = 5 * time.Second
	disconnectQuiesceMS   = 250
)

// Message is one inbound publish.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// Handler receives inbound messages. It runs on the client's delivery goroutine.
type Handler func(Message)

// Config holds broker connection settings.
type Config struct {
	Broker         string
	Port           int
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	ConnectTimeout time.Duration
}

// BrokerURL returns the tcp:// address of the broker.
func (c Config) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.Broker, c.Port)
}

// Client wraps a paho client with context-aware operations and resubscribe on reconnect.
type Client struct {
	cfg    Config
	client paho.Client
	logger zerolog.Logger

	mu   sync.Mutex
	subs map[string]Handler
}

// NewClient builds a client. Reconnects are handled by paho.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt: empty broker")
	}
	if cfg.Port <= 0 {
		return nil, errors.New("mqtt: invalid port")
	}
	if cfg.QoS > 2 {
		return nil, errors.New("mqtt: qos must be 0, 1 or 2")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	c := &Client{cfg: cfg, logger: logger, subs: make(map[string]Handler)}

	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL()).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetOrderMatters(false).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			c.logger.Warn().Err(err).Msg("mqtt connection lost")
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	c.client = paho.NewClient(opts)
	return c, nil
}

// Connect dials the broker.
func (c *Client) Connect(ctx context.Context) error {
	if err := wait(ctx, c.client.Connect(), c.cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("mqtt: connect %s: %w", c.cfg.BrokerURL(), err)
	}
	return nil
}

// Subscribe registers handler for topic. The subscription is restored after reconnects.
func (c *Client) Subscribe(ctx context.Context, topic string, handler Handler) error {
	if topic == "" {
		return errors.New("mqtt: empty topic")
	}
	if handler == nil {
		return errors.New("mqtt: nil handler")
	}
	c.mu.Lock()
	c.subs[topic] = handler
	c.mu.Unlock()
	if err := wait(ctx, c.client.Subscribe(topic, c.cfg.QoS, deliver(handler)), defaultOpTimeout); err != nil {
		return fmt.Errorf("mqtt: subscribe %s: %w", topic, err)
	}
	return nil
}

// Publish sends payload to topic.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	if topic == "" {
		return errors.New("mqtt: empty topic")
	}
	if !c.client.IsConnectionOpen() {
		return errors.New("mqtt: not connected")
	}
	return wait(ctx, c.client.Publish(topic, c.cfg.QoS, retain, payload), defaultOpTimeout)
}

// Close unsubscribes all topics and disconnects.
func (c *Client) Close(ctx context.Context) {
	c.mu.Lock()
	topics := make([]string, 0, len(c.subs))
	for topic := range c.subs {
		topics = append(topics, topic)
	}
	c.subs = make(map[string]Handler)
	c.mu.Unlock()

	if len(topics) > 0 && c.client.IsConnectionOpen() {
		if err := wait(ctx, c.client.Unsubscribe(topics...), defaultOpTimeout); err != nil {
			c.logger.Warn().Err(err).Msg("mqtt unsubscribe failed")
		}
	}
	c.client.Disconnect(disconnectQuiesceMS)
}

func (c *Client) onConnect(client paho.Client) {
	c.logger.Info().Str("broker", c.cfg.BrokerURL()).Msg("mqtt connected")
	c.mu.Lock()
	subs := make(map[string]Handler, len(c.subs))
	for topic, handler := range c.subs {
		subs[topic] = handler
	}
	c.mu.Unlock()
	for topic, handler := range subs {
		token := client.Subscribe(topic, c.cfg.QoS, deliver(handler))
		go func(topic string) {
			if err := wait(context.Background(), token, defaultOpTimeout); err != nil {
				c.logger.Error().Err(err).Str("topic", topic).Msg("mqtt resubscribe failed")
			}
		}(topic)
	}
}

func deliver(handler Handler) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		handler(toMessage(msg))
	}
}

func toMessage(msg paho.Message) Message {
	payload := make([]byte, len(msg.Payload()))
	copy(payload, msg.Payload())
	return Message{Topic: msg.Topic(), Payload: payload, Retained: msg.Retained()}
}

func wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.New("timeout waiting for broker")
	}
}
