package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/agvfleet/internal/link"
)

func TestSubscribeAndUnsubscribe(t *testing.T) {
	h := NewHub()
	ch, unsub := h.Subscribe()
	assert.Equal(t, 1, h.Clients())

	h.Notify(link.Event{Type: link.EventLinkUp, VehicleID: 3})
	e := <-ch
	assert.Equal(t, uint16(3), e.VehicleID)

	unsub()
	unsub()
	assert.Equal(t, 0, h.Clients())
	_, ok := <-ch
	assert.False(t, ok)

	h.Notify(link.Event{Type: link.EventLinkUp})
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub()
	_, unsub := h.Subscribe()
	defer unsub()

	done := make(chan struct{})
	go func() {
		for range subscriberBuffer * 2 {
			h.Notify(link.Event{Type: link.EventStateUpdated})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a full subscriber")
	}
}

func TestServeHTTPStreamsEvents(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	h.Notify(link.Event{Type: link.EventLinkBroken, VehicleID: 9, Reason: "peer closed the connection"})

	var got map[string]any
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "link-broken", got["type"])
	assert.EqualValues(t, 9, got["vehicleId"])
	assert.Equal(t, "peer closed the connection", got["reason"])

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return h.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
