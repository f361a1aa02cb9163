package fleet

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/agvfleet/internal/agv"
	"github.com/autopeer-io/agvfleet/internal/link"
	"github.com/autopeer-io/agvfleet/internal/protocol"
	"github.com/autopeer-io/agvfleet/internal/protocol/stm32"
)

const waitFor = 3 * time.Second

func identity(id uint16) agv.Identity {
	return agv.Identity{
		ID:         id,
		Name:       "agv",
		Capability: agv.CapabilityTransfer,
		Protocol:   protocol.VariantSTM32,
		MaxSpeed:   60,
	}
}

func clientMember(id, port uint16) Member {
	c := link.DefaultConfig()
	c.PeerAddr = "127.0.0.1"
	c.PeerPort = port
	c.SendInterval = 10 * time.Millisecond
	c.WritePacing = time.Millisecond
	c.DialTimeout = time.Second
	c.Backoff.Duration = 10 * time.Millisecond
	c.Backoff.Cap = 50 * time.Millisecond
	return Member{Identity: identity(id), Link: c}
}

func serverMember(id uint16, peer string) Member {
	m := clientMember(id, 0)
	m.Link.Role = link.RoleServer
	m.Link.PeerAddr = peer
	return m
}

// startFleet runs f until the test ends.
func startFleet(t *testing.T, f *Fleet) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(waitFor):
			t.Error("fleet did not stop")
		}
	})
}

type recorder struct {
	mu     sync.Mutex
	events []link.Event
}

func (r *recorder) Notify(e link.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(t link.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// peer is the vehicle end of one connection.
type peer struct {
	conn   net.Conn
	codec  stm32.Codec
	frames chan []byte
}

func newPeer(t *testing.T, conn net.Conn) *peer {
	t.Cleanup(func() { _ = conn.Close() })
	p := &peer{conn: conn, frames: make(chan []byte, 4096)}
	go func() {
		defer close(p.frames)
		var buf []byte
		chunk := make([]byte, 1024)
		for {
			n, err := conn.Read(chunk)
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
	}()
	return p
}

func (p *peer) heartbeat(t *testing.T, id uint16, hb agv.Heartbeat) {
	t.Helper()
	frame, err := p.codec.EncodeFrame(agv.EncodeHeartbeat(id, hb))
	require.NoError(t, err)
	_, err = p.conn.Write(frame)
	require.NoError(t, err)
}

// expect waits for a frame equal to want, skipping everything else.
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

// listenVehicle stands in for a client-role vehicle and returns its port and accepted sockets.
func listenVehicle(t *testing.T) (uint16, <-chan net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	conns := make(chan net.Conn, 8)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			conns <- c
		}
	}()
	return uint16(ln.Addr().(*net.TCPAddr).Port), conns
}

func nextPeer(t *testing.T, conns <-chan net.Conn) *peer {
	t.Helper()
	select {
	case c := <-conns:
		return newPeer(t, c)
	case <-time.After(waitFor):
		t.Fatal("vehicle was never dialled")
		return nil
	}
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *memStore) PutObject(_ context.Context, key string, body []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = body
	s.types[key] = contentType
	return nil
}

func (s *memStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.objects {
		out = append(out, k)
	}
	return out
}
