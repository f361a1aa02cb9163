package notifier

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/agvfleet/internal/agv"
	"github.com/autopeer-io/agvfleet/internal/link"
	"github.com/autopeer-io/agvfleet/internal/pkg/metrics"
	pkgmqtt "github.com/autopeer-io/agvfleet/pkg/mqtt"
	"github.com/autopeer-io/agvfleet/pkg/mqtt/topic"
)

type message struct {
	topic   string
	retain  bool
	payload []byte
}

type fakeClient struct {
	mu           sync.Mutex
	published    []message
	disconnected bool
}

var _ pkgmqtt.Client = (*fakeClient)(nil)

func (c *fakeClient) Start(context.Context) error { return nil }

func (c *fakeClient) Disconnect(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *fakeClient) Publish(_ context.Context, topic string, _ int, retain bool, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, message{topic, retain, payload})
	return nil
}

func (c *fakeClient) Subscribe(context.Context, string, int, pkgmqtt.MessageHandler) error {
	return nil
}
func (c *fakeClient) Unsubscribe(context.Context, string) error { return nil }
func (c *fakeClient) AwaitConnection(context.Context) error     { return nil }
func (c *fakeClient) IsConnected() bool                         { return true }

func (c *fakeClient) messages() []message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]message(nil), c.published...)
}

func TestNotifierPublishesEvents(t *testing.T) {
	client := &fakeClient{}
	n := newNotifier(client, topic.NewTopicBuilder("agvfleet/v1"), 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Start(ctx) }()

	n.Notify(link.Event{
		Type:      link.EventFaultRaised,
		VehicleID: 7,
		Fault:     agv.ErrorObstacle,
		Source:    link.FaultDevice,
	})

	require.Eventually(t, func() bool { return len(client.messages()) == 2 }, 2*time.Second, 10*time.Millisecond)
	msgs := client.messages()
	assert.Equal(t, message{"agvfleet/v1/fleet/status", true, []byte("online")}, msgs[0])
	assert.Equal(t, "agvfleet/v1/agv/fault-raised/7", msgs[1].topic)
	assert.False(t, msgs[1].retain)

	var body map[string]any
	require.NoError(t, json.Unmarshal(msgs[1].payload, &body))
	assert.Equal(t, "fault-raised", body["type"])
	assert.Equal(t, "device", body["source"])
	assert.EqualValues(t, 7, body["vehicleId"])

	cancel()
	require.NoError(t, <-done)
	msgs = client.messages()
	assert.Equal(t, message{"agvfleet/v1/fleet/status", true, []byte("offline")}, msgs[len(msgs)-1])
	client.mu.Lock()
	assert.True(t, client.disconnected)
	client.mu.Unlock()
}

func TestNotifyNeverBlocks(t *testing.T) {
	n := newNotifier(&fakeClient{}, topic.NewTopicBuilder("x"), 0)
	before := testutil.ToFloat64(metrics.EventsDroppedTotal.WithLabelValues("mqtt"))

	for range queueSize + 3 {
		n.Notify(link.Event{Type: link.EventStateUpdated, VehicleID: 1})
	}
	assert.Equal(t, before+3, testutil.ToFloat64(metrics.EventsDroppedTotal.WithLabelValues("mqtt")))
}
