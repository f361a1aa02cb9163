// Package notifier publishes vehicle events to an MQTT broker.
package notifier

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/autopeer-io/agvfleet/internal/link"
	"github.com/autopeer-io/agvfleet/internal/pkg/metrics"
	"github.com/autopeer-io/agvfleet/pkg/log"
	pkgmqtt "github.com/autopeer-io/agvfleet/pkg/mqtt"
	"github.com/autopeer-io/agvfleet/pkg/mqtt/topic"
	"github.com/autopeer-io/agvfleet/pkg/options"
)

const (
	queueSize      = 256
	publishTimeout = 5 * time.Second

	statusOnline  = "online"
	statusOffline = "offline"
)

// MQTTNotifier is a link.Notifier that forwards every event to {root}/agv/{event}/{vehicleID}.
// Notify never blocks: events are queued and published by Start, the oldest work is kept and new
// events are dropped while the queue is full.
type MQTTNotifier struct {
	client pkgmqtt.Client
	topics *topic.TopicBuilder
	qos    int
	queue  chan link.Event
	logger log.Logger
}

var _ link.Notifier = (*MQTTNotifier)(nil)

// NewMQTTNotifier builds the notifier and its client. The broker is contacted by Start.
func NewMQTTNotifier(opts *options.MqttOptions) (*MQTTNotifier, error) {
	topics := topic.NewTopicBuilder(opts.TopicRoot)
	client, err := pkgmqtt.NewClient(opts.ToClientConfig(topics.FleetStatus(), []byte(statusOffline)))
	if err != nil {
		return nil, err
	}
	return newNotifier(client, topics, opts.QoS), nil
}

func newNotifier(client pkgmqtt.Client, topics *topic.TopicBuilder, qos int) *MQTTNotifier {
	return &MQTTNotifier{
		client: client,
		topics: topics,
		qos:    qos,
		queue:  make(chan link.Event, queueSize),
		logger: log.WithName("mqtt-notifier"),
	}
}

func (n *MQTTNotifier) Notify(e link.Event) {
	select {
	case n.queue <- e:
	default:
		metrics.EventsDroppedTotal.WithLabelValues("mqtt").Inc()
	}
}

// Start connects to the broker and publishes queued events until ctx is cancelled.
func (n *MQTTNotifier) Start(ctx context.Context) error {
	if err := n.client.Start(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		_ = n.client.Publish(shutdownCtx, n.topics.FleetStatus(), n.qos, true, []byte(statusOffline))
		n.client.Disconnect(shutdownCtx)
	}()

	if err := n.client.AwaitConnection(ctx); err != nil {
		return nil
	}
	n.publish(ctx, n.topics.FleetStatus(), true, []byte(statusOnline))

	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-n.queue:
			body, err := json.Marshal(e)
			if err != nil {
				n.logger.Error(err, "event encoding failed", "vehicle", e.VehicleID, "event", e.Type)
				continue
			}
			n.publish(ctx, n.topics.VehicleEvent(e.Type.String(), strconv.Itoa(int(e.VehicleID))), false, body)
		}
	}
}

func (n *MQTTNotifier) publish(ctx context.Context, topic string, retain bool, body []byte) {
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := n.client.Publish(pubCtx, topic, n.qos, retain, body); err != nil && ctx.Err() == nil {
		n.logger.Warn("publish failed", "topic", topic, "error", err)
	}
}
