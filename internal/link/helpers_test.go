package link

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/agvfleet/internal/agv"
	"github.com/autopeer-io/agvfleet/internal/protocol"
	"github.com/autopeer-io/agvfleet/internal/protocol/stm32"
)

const waitFor = 3 * time.Second

var testIdentity = agv.Identity{
	ID:         7,
	Name:       "agv-7",
	Capability: agv.CapabilityTransfer,
	Protocol:   protocol.VariantSTM32,
	MaxSpeed:   60,
}

func testConfig(port uint16) Config {
	c := DefaultConfig()
	c.PeerAddr = "127.0.0.1"
	c.PeerPort = port
	c.SendInterval = 10 * time.Millisecond
	c.WritePacing = time.Millisecond
	c.DialTimeout = time.Second
	c.Backoff.Duration = 10 * time.Millisecond
	c.Backoff.Cap = 50 * time.Millisecond
	return c
}

func newTestVehicle(t *testing.T) *agv.Vehicle {
	t.Helper()
	v, err := agv.New(testIdentity)
	require.NoError(t, err)
	return v
}

// recorder collects link events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) count(t EventType) int { return len(r.ofType(t)) }

// startLink runs l until the test ends.
func startLink(t *testing.T, l *Link) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(waitFor):
			t.Error("link did not stop")
		}
	})
}

// peer is the vehicle end of one connection.
type peer struct {
	conn   net.Conn
	codec  stm32.Codec
	frames chan []byte
}

func newPeer(conn net.Conn) *peer {
	p := &peer{conn: conn, frames: make(chan []byte, 4096)}
	go p.read()
	return p
}

func (p *peer) read() {
	defer close(p.frames)
	var buf []byte
	chunk := make([]byte, 1024)
	for {
		n, err := p.conn.Read(chunk)
		if n > 0 {
			var frames [][]byte
			frames, buf = p.codec.DecodeStream(append(buf, chunk[:n]...))
			for _, f := range frames {
				select {
				case p.frames <- f:
				default:
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func (p *peer) send(t *testing.T, payload []byte) {
	t.Helper()
	frame, err := p.codec.EncodeFrame(payload)
	require.NoError(t, err)
	_, err = p.conn.Write(frame)
	require.NoError(t, err)
}

func (p *peer) heartbeat(t *testing.T, hb agv.Heartbeat) {
	t.Helper()
	p.send(t, agv.EncodeHeartbeat(testIdentity.ID, hb))
}

// expect waits for a frame equal to want, skipping heartbeats and anything else.
func (p *peer) expect(t *testing.T, want []byte) {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case f, ok := <-p.frames:
			require.True(t, ok, "connection closed before %x arrived", want)
			if bytes.Equal(f, want) {
				return
			}
		case <-deadline:
			t.Fatalf("frame %x not received", want)
		}
	}
}

// closed waits until the link side closes the connection.
func (p *peer) closed(t *testing.T) {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case _, ok := <-p.frames:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("connection was not closed")
		}
	}
}

// fakeVehicle listens like a client-role vehicle would.
type fakeVehicle struct {
	ln    net.Listener
	conns chan net.Conn
}

func newFakeVehicle(t *testing.T) *fakeVehicle {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	f := &fakeVehicle{ln: ln, conns: make(chan net.Conn, 8)}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			f.conns <- c
		}
	}()
	t.Cleanup(func() { _ = ln.Close() })
	return f
}

func (f *fakeVehicle) port() uint16 {
	return uint16(f.ln.Addr().(*net.TCPAddr).Port)
}

func (f *fakeVehicle) next(t *testing.T) *peer {
	t.Helper()
	select {
	case c := <-f.conns:
		t.Cleanup(func() { _ = c.Close() })
		return newPeer(c)
	case <-time.After(waitFor):
		t.Fatal("link never connected")
		return nil
	}
}
