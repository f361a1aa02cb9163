package fleet

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/agvfleet/internal/agv"
	"github.com/autopeer-io/agvfleet/internal/link"
)

func TestAcceptorRoutesServerRoleVehicles(t *testing.T) {
	rec := &recorder{}
	f, err := New(Config{
		ListenAddr: "127.0.0.1:0",
		Members:    []Member{serverMember(3, "10.9.9.9"), serverMember(4, "127.0.0.1")},
	}, WithSink(rec))
	require.NoError(t, err)
	startFleet(t, f)

	require.Eventually(t, func() bool { return f.Addr() != nil }, waitFor, 5*time.Millisecond)
	require.Eventually(t, f.Ready, waitFor, 5*time.Millisecond)

	conn, err := net.Dial("tcp", f.Addr().String())
	require.NoError(t, err)
	p := newPeer(t, conn)

	l4, _ := f.Link(4)
	l3, _ := f.Link(3)
	require.Eventually(t, l4.Connected, waitFor, 5*time.Millisecond)
	assert.False(t, l3.Connected())

	p.heartbeat(t, 4, agv.Heartbeat{Mode: agv.ModeAuto, Status: agv.StatusWait, Current: 11})
	require.Eventually(t, func() bool { return f.Landmarks().Get(11).Locker == "agv-4" }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 1, rec.count(link.EventLinkUp))
}

func TestAcceptorClosesUnknownPeers(t *testing.T) {
	f, err := New(Config{
		ListenAddr: "127.0.0.1:0",
		Members:    []Member{serverMember(3, "10.9.9.9")},
	})
	require.NoError(t, err)
	startFleet(t, f)
	require.Eventually(t, func() bool { return f.Addr() != nil }, waitFor, 5*time.Millisecond)

	conn, err := net.Dial("tcp", f.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestAcceptorNeedsServerRole(t *testing.T) {
	f, err := New(Config{ListenAddr: "127.0.0.1:0", Members: []Member{clientMember(1, 4001)}})
	require.NoError(t, err)
	assert.False(t, f.needsAcceptor())

	f, err = New(Config{Members: []Member{serverMember(1, "127.0.0.1")}})
	require.NoError(t, err)
	assert.False(t, f.needsAcceptor(), "no listen address")
}

func TestAcceptorListenFailureStopsFleet(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	f, err := New(Config{ListenAddr: ln.Addr().String(), Members: []Member{serverMember(1, "127.0.0.1")}})
	require.NoError(t, err)
	err = f.Run(t.Context())
	assert.ErrorContains(t, err, "listen on")
}
