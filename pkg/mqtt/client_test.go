package mqtt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicsMatch(t *testing.T) {
	tests := []struct {
		filter, topic string
		want          bool
	}{
		{"a/b/c", "a/b/c", true},
		{"a/b/c", "a/b/d", false},
		{"a/+/c", "a/b/c", true},
		{"a/+/c", "a/b/x/c", false},
		{"a/#", "a/b/c", true},
		{"a/#", "b/c", false},
		{"agvfleet/v1/agv/+/7", "agvfleet/v1/agv/link-up/7", true},
		{"a/+", "a", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, topicsMatch(tt.filter, tt.topic), "%s vs %s", tt.filter, tt.topic)
	}
}

func TestTopicFilterStripsShareGroup(t *testing.T) {
	assert.Equal(t, "a/b", topicFilter("$share/g1/a/b"))
	assert.Equal(t, "a/b", topicFilter("a/b"))
}

func TestNewClientValidates(t *testing.T) {
	_, err := NewClient(nil)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewClient(&ClientConfig{})
	require.Error(t, err)

	_, err = NewClient(&ClientConfig{BrokerURL: "localhost"})
	require.Error(t, err, "scheme and host are required")

	cfg := &ClientConfig{BrokerURL: "tcp://127.0.0.1:1883"}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	assert.False(t, c.IsConnected())
	assert.Equal(t, uint16(60), cfg.KeepAlive)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 3*time.Second, cfg.ReconnectDelay)

	require.ErrorIs(t, c.Publish(context.Background(), "a/b", 1, false, nil), ErrNotStarted)
	require.ErrorIs(t, c.AwaitConnection(context.Background()), ErrNotStarted)
}

func TestSecureScheme(t *testing.T) {
	for _, s := range []string{"mqtts", "ssl", "tls", "wss"} {
		assert.True(t, secureScheme(s), s)
	}
	for _, s := range []string{"tcp", "mqtt", "ws"} {
		assert.False(t, secureScheme(s), s)
	}
}

func TestWillMessage(t *testing.T) {
	c := &pahoClient{cfg: &ClientConfig{}}
	assert.Nil(t, c.willMessage())

	c.cfg.WillTopic = "agvfleet/v1/fleet/status"
	c.cfg.WillPayload = []byte("offline")
	c.cfg.WillQoS = 1
	c.cfg.WillRetain = true
	w := c.willMessage()
	require.NotNil(t, w)
	assert.Equal(t, "agvfleet/v1/fleet/status", w.Topic)
	assert.Equal(t, byte(1), w.QoS)
	assert.True(t, w.Retain)
}
