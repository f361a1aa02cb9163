package link

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/agvfleet/internal/agv"
	"github.com/autopeer-io/agvfleet/internal/protocol"
)

func TestNewValidates(t *testing.T) {
	v := newTestVehicle(t)

	_, err := New(Config{}, v)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg := testConfig(0)
	_, err = New(cfg, v)
	assert.ErrorIs(t, err, ErrInvalidConfig, "client role needs a port")

	cfg.Role = RoleServer
	_, err = New(cfg, v)
	assert.NoError(t, err)

	_, err = New(testConfig(1), nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	id := testIdentity
	id.Protocol = protocol.VariantPLC
	plc, err := agv.New(id)
	require.NoError(t, err)
	_, err = New(testConfig(1), plc)
	assert.ErrorIs(t, err, protocol.ErrUnsupportedVariant)
}

func TestSubmitWhileDisconnected(t *testing.T) {
	l, err := New(testConfig(1), newTestVehicle(t))
	require.NoError(t, err)

	assert.Equal(t, agv.NetError, l.Submit(agv.Move(42)))
	assert.Zero(t, l.Pending())
	assert.Equal(t, StateDisconnected, l.State())
}

func TestMoveScenario(t *testing.T) {
	fv := newFakeVehicle(t)
	rec := &recorder{}
	v := newTestVehicle(t)
	l, err := New(testConfig(fv.port()), v, WithNotifier(rec))
	require.NoError(t, err)
	startLink(t, l)

	p := fv.next(t)
	require.Eventually(t, func() bool { return rec.count(EventLinkUp) == 1 }, waitFor, 5*time.Millisecond)
	assert.True(t, l.Connected())
	assert.Equal(t, StateConnected, l.State())

	p.heartbeat(t, agv.Heartbeat{Mode: agv.ModeAuto, Status: agv.StatusWait, Battery: 90, Current: 5})
	require.Eventually(t, func() bool { return rec.count(EventStateUpdated) == 1 }, waitFor, 5*time.Millisecond)

	require.Equal(t, agv.Success, l.Submit(agv.Move(42)))
	p.expect(t, []byte{0x00, 0x07, 0x2F, 0x00, 0x05, 0x00, 42})

	p.heartbeat(t, agv.Heartbeat{Mode: agv.ModeAuto, Status: agv.StatusRun, Speed: 50, Battery: 90, Current: 5})
	require.Eventually(t, func() bool { return rec.count(EventStateUpdated) == 2 }, waitFor, 5*time.Millisecond)

	updates := rec.ofType(EventStateUpdated)
	last := updates[1]
	assert.True(t, last.Changed.Has(agv.FieldStatus))
	assert.True(t, last.Changed.Has(agv.FieldSpeed))
	assert.Equal(t, agv.StatusRun, last.Snapshot.Status)
	assert.EqualValues(t, 50, last.Snapshot.Speed)
	assert.True(t, last.Snapshot.Connected)

	// Repeating the same report changes nothing and notifies nobody.
	p.heartbeat(t, agv.Heartbeat{Mode: agv.ModeAuto, Status: agv.StatusRun, Speed: 50, Battery: 90, Current: 5})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, rec.count(EventStateUpdated))
	assert.Zero(t, rec.count(EventFaultRaised))
}

func TestHeartbeatCarriesState(t *testing.T) {
	fv := newFakeVehicle(t)
	v := newTestVehicle(t)
	l, err := New(testConfig(fv.port()), v)
	require.NoError(t, err)
	startLink(t, l)

	p := fv.next(t)
	p.heartbeat(t, agv.Heartbeat{Mode: agv.ModeAuto, Status: agv.StatusCharging, Battery: 40, Current: 0x0102, End: 0x0304})
	p.expect(t, agv.EncodeHeartbeat(7, agv.Heartbeat{
		Mode: agv.ModeAuto, Status: agv.StatusCharging, Battery: 40, Current: 0x0102, End: 0x0304,
	}))
}

func TestForeignDeviceIgnored(t *testing.T) {
	fv := newFakeVehicle(t)
	rec := &recorder{}
	l, err := New(testConfig(fv.port()), newTestVehicle(t), WithNotifier(rec))
	require.NoError(t, err)
	startLink(t, l)

	p := fv.next(t)
	p.send(t, agv.EncodeHeartbeat(8, agv.Heartbeat{Mode: agv.ModeAuto, Status: agv.StatusRun}))
	p.send(t, []byte{0x00, 0x07, 0x2F, 0x00})
	p.heartbeat(t, agv.Heartbeat{Battery: 55})

	require.Eventually(t, func() bool { return rec.count(EventStateUpdated) == 1 }, waitFor, 5*time.Millisecond)
	s := l.Snapshot()
	assert.Equal(t, agv.ModeHand, s.Mode)
	assert.EqualValues(t, 55, s.Battery)
}

func TestDeviceFaultRaised(t *testing.T) {
	fv := newFakeVehicle(t)
	rec := &recorder{}
	l, err := New(testConfig(fv.port()), newTestVehicle(t), WithNotifier(rec))
	require.NoError(t, err)
	startLink(t, l)

	p := fv.next(t)
	p.heartbeat(t, agv.Heartbeat{Mode: agv.ModeAuto, Error: agv.ErrorObstacle})

	require.Eventually(t, func() bool { return rec.count(EventFaultRaised) == 1 }, waitFor, 5*time.Millisecond)
	e := rec.ofType(EventFaultRaised)[0]
	assert.Equal(t, FaultDevice, e.Source)
	assert.Equal(t, agv.ErrorObstacle, e.Fault)
}

func TestDisconnectFlushesQueueAndReconnects(t *testing.T) {
	fv := newFakeVehicle(t)
	rec := &recorder{}
	v := newTestVehicle(t)
	cfg := testConfig(fv.port())
	cfg.SendInterval = time.Hour
	l, err := New(cfg, v, WithNotifier(rec))
	require.NoError(t, err)
	startLink(t, l)

	p := fv.next(t)
	p.heartbeat(t, agv.Heartbeat{Mode: agv.ModeAuto})
	require.Eventually(t, func() bool { return rec.count(EventStateUpdated) == 1 }, waitFor, 5*time.Millisecond)

	require.Equal(t, agv.Success, l.Submit(agv.Move(9)))
	require.Equal(t, agv.Success, l.Submit(agv.Sleep()))
	assert.Equal(t, 2, l.Pending())

	require.NoError(t, p.conn.Close())
	require.Eventually(t, func() bool { return rec.count(EventLinkBroken) == 1 }, waitFor, 5*time.Millisecond)

	assert.Zero(t, l.Pending(), "queued commands are stale after a link loss")
	faults := rec.ofType(EventFaultRaised)
	require.Len(t, faults, 1)
	assert.Equal(t, FaultSelf, faults[0].Source)
	assert.Equal(t, agv.ErrorNet, faults[0].Fault)
	assert.Equal(t, agv.ErrorNet, faults[0].Snapshot.SelfError)
	assert.False(t, faults[0].Snapshot.Connected)

	// The client role redials on its own and clears the network fault.
	fv.next(t)
	require.Eventually(t, func() bool { return rec.count(EventLinkUp) == 2 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, agv.ErrorNone, l.Snapshot().SelfError)
	assert.True(t, l.Attempted())
}

func TestClientRetriesUntilPeerListens(t *testing.T) {
	// Reserve a port, then free it so the first dials are refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	require.NoError(t, ln.Close())

	l, err := New(testConfig(port), newTestVehicle(t))
	require.NoError(t, err)
	startLink(t, l)

	require.Eventually(t, l.Attempted, waitFor, 5*time.Millisecond)
	assert.False(t, l.Connected())

	ln, err = net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port))))
	require.NoError(t, err)
	defer ln.Close()

	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, l.Connected, waitFor, 5*time.Millisecond)
}

func TestCancelIsOrderly(t *testing.T) {
	fv := newFakeVehicle(t)
	rec := &recorder{}
	l, err := New(testConfig(fv.port()), newTestVehicle(t), WithNotifier(rec))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	p := fv.next(t)
	require.Eventually(t, l.Connected, waitFor, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Run did not return")
	}
	p.closed(t)

	assert.False(t, l.Connected())
	assert.Equal(t, StateDisconnected, l.State())
	assert.Zero(t, rec.count(EventLinkBroken))
	assert.Equal(t, agv.ErrorNone, l.Snapshot().SelfError)
}

func TestRunTwice(t *testing.T) {
	cfg := testConfig(0)
	cfg.Role = RoleServer
	l, err := New(cfg, newTestVehicle(t))
	require.NoError(t, err)
	startLink(t, l)

	require.Eventually(t, l.Attempted, waitFor, 5*time.Millisecond)
	assert.Error(t, l.Run(context.Background()))
}
