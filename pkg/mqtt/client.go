package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/autopeer-io/agvfleet/pkg/log"
	"github.com/autopeer-io/agvfleet/pkg/mqtt/topic"
)

type pahoClient struct {
	cfg    *ClientConfig
	broker *url.URL
	logger log.Logger

	cm        *autopaho.ConnectionManager
	connected atomic.Bool

	// subs maps a topic filter to its subscription. It is replayed on every connection up.
	subsMu sync.RWMutex
	subs   map[string]subscription
}

type subscription struct {
	qos     byte
	match   string
	handler MessageHandler
}

// NewClient validates cfg, fills in defaults and returns an unstarted client.
func NewClient(cfg *ClientConfig) (Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	setDefaultConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	broker, _ := url.Parse(cfg.BrokerURL)

	logger := cfg.Logger
	if logger == nil {
		logger = log.WithName("mqtt")
	}

	return &pahoClient{
		cfg:    cfg,
		broker: broker,
		logger: logger.WithValues("broker", cfg.BrokerURL, "clientID", cfg.ClientID),
		subs:   make(map[string]subscription),
	}, nil
}

func (c *pahoClient) Start(ctx context.Context) error {
	cfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{c.broker},
		KeepAlive:                     c.cfg.KeepAlive,
		CleanStartOnInitialConnection: c.cfg.CleanStart,
		SessionExpiryInterval:         c.cfg.SessionExpiry,
		ReconnectBackoff:              autopaho.NewConstantBackoff(c.cfg.ReconnectDelay),
		ConnectTimeout:                c.cfg.ConnectTimeout,
		ConnectUsername:               c.cfg.Username,
		ConnectPassword:               []byte(c.cfg.Password),
		WillMessage:                   c.willMessage(),
		OnConnectionUp:                c.onConnectionUp,
		OnConnectError:                c.onConnectError,
		OnConnectionDown:              c.onConnectionDown,
		ClientConfig: paho.ClientConfig{
			ClientID:           c.cfg.ClientID,
			OnClientError:      c.onClientError,
			OnServerDisconnect: c.onServerDisconnect,
			OnPublishReceived:  []func(paho.PublishReceived) (bool, error){c.route},
		},
	}
	if secureScheme(c.broker.Scheme) {
		cfg.TlsCfg = &tls.Config{InsecureSkipVerify: c.cfg.InsecureSkipVerify} //nolint:gosec
	}

	c.logger.Info("Starting MQTT client")
	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return err
	}
	c.cm = cm
	return nil
}

func (c *pahoClient) Disconnect(ctx context.Context) {
	if c.cm == nil {
		return
	}
	if err := c.cm.Disconnect(ctx); err != nil {
		c.logger.Debug("MQTT disconnect", "error", err)
	}
	c.connected.Store(false)
	c.logger.Info("MQTT client disconnected")
}

func (c *pahoClient) Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error {
	if c.cm == nil {
		return ErrNotStarted
	}
	_, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     byte(qos),
		Retain:  retain,
		Payload: payload,
	})
	return err
}

func (c *pahoClient) Subscribe(ctx context.Context, filter string, qos int, handler MessageHandler) error {
	if c.cm == nil {
		return ErrNotStarted
	}

	c.subsMu.Lock()
	c.subs[filter] = subscription{qos: byte(qos), match: topicFilter(filter), handler: handler}
	c.subsMu.Unlock()

	// While disconnected this fails and onConnectionUp sends it later.
	if _, err := c.cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: filter, QoS: byte(qos)}},
	}); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	c.logger.Info("Subscribed", "topic", filter)
	return nil
}

func (c *pahoClient) Unsubscribe(ctx context.Context, filter string) error {
	if c.cm == nil {
		return ErrNotStarted
	}

	c.subsMu.Lock()
	delete(c.subs, filter)
	c.subsMu.Unlock()

	_, err := c.cm.Unsubscribe(ctx, &paho.Unsubscribe{Topics: []string{filter}})
	return err
}

func (c *pahoClient) AwaitConnection(ctx context.Context) error {
	if c.cm == nil {
		return ErrNotStarted
	}
	return c.cm.AwaitConnection(ctx)
}

func (c *pahoClient) IsConnected() bool {
	return c.connected.Load()
}

func (c *pahoClient) onConnectionUp(cm *autopaho.ConnectionManager, _ *paho.Connack) {
	c.connected.Store(true)
	c.logger.Info("MQTT connection up")

	c.subsMu.RLock()
	opts := make([]paho.SubscribeOptions, 0, len(c.subs))
	for filter, s := range c.subs {
		opts = append(opts, paho.SubscribeOptions{Topic: filter, QoS: s.qos})
	}
	c.subsMu.RUnlock()
	if len(opts) == 0 {
		return
	}

	if _, err := cm.Subscribe(context.Background(), &paho.Subscribe{Subscriptions: opts}); err != nil {
		c.logger.Error(err, "Failed to restore subscriptions", "count", len(opts))
	}
}

func (c *pahoClient) onConnectionDown() bool {
	c.connected.Store(false)
	c.logger.Warn("MQTT connection lost")
	return true
}

func (c *pahoClient) onConnectError(err error) {
	c.logger.Error(err, "MQTT connect failed, retrying", "delay", c.cfg.ReconnectDelay)
}

func (c *pahoClient) onClientError(err error) {
	c.logger.Error(err, "MQTT client error")
}

func (c *pahoClient) onServerDisconnect(d *paho.Disconnect) {
	reason := ""
	if d.Properties != nil {
		reason = d.Properties.ReasonString
	}
	c.logger.Warn("MQTT broker sent disconnect", "code", d.ReasonCode, "reason", reason)
}

// route hands an inbound publish to every matching handler. Handlers run on their own
// goroutine so the paho reader never waits on them.
func (c *pahoClient) route(p paho.PublishReceived) (bool, error) {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()

	matched := false
	for _, s := range c.subs {
		if !topicsMatch(s.match, p.Packet.Topic) {
			continue
		}
		matched = true
		go s.handler(context.Background(), p.Packet.Topic, p.Packet.Payload)
	}
	if !matched {
		c.logger.Debug("Dropped publish on unhandled topic", "topic", p.Packet.Topic)
	}
	return true, nil
}

func (c *pahoClient) willMessage() *paho.WillMessage {
	if c.cfg.WillTopic == "" {
		return nil
	}
	return &paho.WillMessage{
		Topic:   c.cfg.WillTopic,
		Payload: c.cfg.WillPayload,
		QoS:     c.cfg.WillQoS,
		Retain:  c.cfg.WillRetain,
	}
}

// topicsMatch reports whether topic matches filter, honouring + and #.
func topicsMatch(filter, name string) bool {
	if filter == name {
		return true
	}
	if !strings.ContainsAny(filter, topic.Wildcard+topic.MultiWildcard) {
		return false
	}

	fs := strings.Split(filter, "/")
	ts := strings.Split(name, "/")
	for i, part := range fs {
		if part == topic.MultiWildcard {
			return true
		}
		if i >= len(ts) || (part != topic.Wildcard && part != ts[i]) {
			return false
		}
	}
	return len(fs) == len(ts)
}

// topicFilter strips the $share/<group>/ prefix of a shared subscription.
func topicFilter(filter string) string {
	rest, ok := strings.CutPrefix(filter, "$share/")
	if !ok {
		return filter
	}
	if _, f, ok := strings.Cut(rest, "/"); ok {
		return f
	}
	return filter
}
