// Package link keeps one vehicle connected: it owns the socket, runs the heartbeat send cycle,
// drains the outbound queue, reassembles inbound frames and routes them to the vehicle state.
package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"sync/atomic"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/agvfleet/internal/agv"
	"github.com/autopeer-io/agvfleet/internal/pkg/metrics"
	"github.com/autopeer-io/agvfleet/internal/protocol"
	_ "github.com/autopeer-io/agvfleet/internal/protocol/stm32"
	"github.com/autopeer-io/agvfleet/pkg/log"
)

const readBufferSize = 4096

// Link is the connection manager of one vehicle.
type Link struct {
	cfg      Config
	vehicle  *agv.Vehicle
	codec    protocol.Codec
	logger   log.Logger
	clock    clock.WithTicker
	notifier Notifier
	label    string

	sm *stateMachine

	// mu guards conn, adopting and out. Submit holds it across admission and enqueue so a
	// concurrent disconnect cannot slip between them.
	mu   sync.Mutex
	conn net.Conn
	out  queue

	// adopting is the socket serve has taken but not yet published as conn.
	adopting net.Conn

	accepted  chan net.Conn
	acceptMu  sync.Mutex
	attempted atomic.Bool
	running   atomic.Bool
}

type Option func(*Link)

func WithLogger(l log.Logger) Option {
	return func(k *Link) { k.logger = l }
}

func WithClock(c clock.WithTicker) Option {
	return func(k *Link) { k.clock = c }
}

func WithNotifier(n Notifier) Option {
	return func(k *Link) { k.notifier = n }
}

// New validates cfg and builds a link for v. The codec is chosen by the vehicle's protocol.
func New(cfg Config, v *agv.Vehicle, opts ...Option) (*Link, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil vehicle", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Link{
		cfg:      cfg,
		vehicle:  v,
		logger:   log.NewNopLogger(),
		clock:    clock.RealClock{},
		notifier: nopNotifier{},
		label:    strconv.Itoa(int(v.ID())),
		accepted: make(chan net.Conn, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.WithValues("vehicle", v.ID(), "role", cfg.Role)

	codec, err := protocol.New(v.Identity().Protocol, l.onReject)
	if err != nil {
		return nil, fmt.Errorf("vehicle %d: %w", v.ID(), err)
	}
	l.codec = codec
	l.sm = newStateMachine(l.onTransition)
	metrics.LinkConnected.WithLabelValues(l.label).Set(0)
	return l, nil
}

func (l *Link) Vehicle() *agv.Vehicle { return l.vehicle }

func (l *Link) Role() Role { return l.cfg.Role }

// State is the current link state: disconnected, connecting or connected.
func (l *Link) State() string { return l.sm.Current() }

func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

// Attempted reports whether the link has tried to connect at least once.
func (l *Link) Attempted() bool { return l.attempted.Load() }

// Pending is the number of packets waiting for the next send cycle.
func (l *Link) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.len()
}

// Snapshot returns the vehicle state together with the link state.
func (l *Link) Snapshot() agv.Snapshot {
	s := l.vehicle.Snapshot()
	s.Connected = l.Connected()
	return s
}

// Submit admits cmd against the vehicle state and, if accepted, queues its frame for the next
// send cycle.
func (l *Link) Submit(cmd agv.Command) agv.Result {
	l.mu.Lock()
	res := l.submitLocked(cmd)
	l.mu.Unlock()

	metrics.CommandResultsTotal.WithLabelValues(kindLabel(cmd), res.String()).Inc()
	if res != agv.Success {
		l.logger.Info("command rejected", "command", cmd, "result", res)
	} else {
		l.logger.Debug("command queued", "command", cmd)
	}
	return res
}

func (l *Link) submitLocked(cmd agv.Command) agv.Result {
	payload, res := l.vehicle.Admit(cmd, l.conn != nil)
	if res != agv.Success {
		return res
	}
	frame, err := l.codec.EncodeFrame(payload)
	if err != nil {
		return agv.ParamError
	}
	l.out.push(frame)
	return agv.Success
}

// Accept offers a socket accepted by the fleet listener. It returns false when the link is not a
// server-role link or the remote address does not match the configured peer. A matching socket
// replaces the live connection, if any.
func (l *Link) Accept(conn net.Conn) bool {
	if l.cfg.Role != RoleServer || !l.matches(conn.RemoteAddr()) {
		return false
	}

	l.acceptMu.Lock()
	defer l.acceptMu.Unlock()

	select {
	case stale := <-l.accepted:
		_ = stale.Close()
	default:
	}
	l.accepted <- conn

	l.mu.Lock()
	live := l.conn
	if live == nil {
		live = l.adopting
	}
	l.mu.Unlock()
	if live != nil {
		l.logger.Info("peer reconnected, dropping previous connection", "remote", conn.RemoteAddr())
		_ = live.Close()
	}
	return true
}

func (l *Link) matches(addr net.Addr) bool {
	if addr == nil {
		return false
	}
	ap, err := netip.ParseAddrPort(addr.String())
	if err != nil {
		return false
	}
	if l.cfg.PeerPort != 0 && ap.Port() != l.cfg.PeerPort {
		return false
	}
	want, err := netip.ParseAddr(l.cfg.PeerAddr)
	if err != nil {
		return l.cfg.PeerAddr == ap.Addr().String()
	}
	return want.Unmap() == ap.Addr().Unmap()
}

// Run drives the link until ctx is cancelled. A client-role link dials and redials the peer with
// backoff; a server-role link serves whatever Accept hands it.
func (l *Link) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return fmt.Errorf("link for vehicle %d is already running", l.vehicle.ID())
	}
	defer l.running.Store(false)
	defer l.dropAccepted()

	l.logger.Info("link started", "peer", l.cfg.PeerAddr)
	for {
		conn, event, err := l.nextConn(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info("link stopped")
				return nil
			}
			return err
		}
		l.serve(ctx, conn, event)
		if ctx.Err() != nil {
			l.logger.Info("link stopped")
			return nil
		}
	}
}

func (l *Link) nextConn(ctx context.Context) (net.Conn, string, error) {
	if l.cfg.Role == RoleServer {
		l.attempted.Store(true)
		select {
		case conn := <-l.accepted:
			return conn, EventAccept, nil
		case <-ctx.Done():
			return nil, "", ctx.Err()
		}
	}
	conn, err := l.dial(ctx)
	return conn, EventEstablished, err
}

// dial connects to the peer, waiting out the backoff between failed attempts.
func (l *Link) dial(ctx context.Context) (net.Conn, error) {
	backoff := l.cfg.Backoff
	dialer := &net.Dialer{Timeout: l.cfg.DialTimeout, LocalAddr: l.cfg.local()}

	for {
		if err := l.sm.fire(ctx, EventDial); err != nil {
			return nil, err
		}
		conn, err := dialer.DialContext(ctx, "tcp", l.cfg.peer())
		l.attempted.Store(true)
		if err == nil {
			return conn, nil
		}
		_ = l.sm.fire(context.Background(), EventFail)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		wait := backoff.Step()
		l.logger.Warn("dial failed", "peer", l.cfg.peer(), "retry_in", wait, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-l.clock.After(wait):
		}
	}
}

// serve runs the send cycle and the reader on conn until either fails or ctx is cancelled.
func (l *Link) serve(ctx context.Context, conn net.Conn, event string) {
	// A socket accepted after conn was taken supersedes it. Accept queues before it looks at
	// adopting, so one of the two sides always sees the other.
	l.mu.Lock()
	if len(l.accepted) > 0 {
		l.mu.Unlock()
		l.logger.Info("peer reconnected before link up, dropping connection", "remote", conn.RemoteAddr())
		_ = conn.Close()
		return
	}
	l.adopting = conn
	l.mu.Unlock()

	err := l.sm.fire(ctx, event)
	l.mu.Lock()
	l.adopting = nil
	if err == nil {
		l.conn = conn
	}
	l.mu.Unlock()
	if err != nil {
		_ = conn.Close()
		return
	}

	l.vehicle.ClearSelfError(agv.ErrorNet)
	l.logger.Info("link up", "remote", conn.RemoteAddr())
	l.emit(Event{Type: EventLinkUp})

	// Closing the socket is the only way to interrupt a blocked read or write.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	readErr := make(chan error, 1)
	go func() { readErr <- l.readLoop(conn) }()

	ticker := l.clock.NewTicker(l.cfg.SendInterval)
	defer ticker.Stop()

	var cause error
	for cause == nil && ctx.Err() == nil {
		select {
		case <-ctx.Done():
		case cause = <-readErr:
			readErr = nil
		case <-ticker.C():
			cause = l.sendCycle(ctx, conn)
		}
	}
	if ctx.Err() != nil {
		cause = nil
	}
	l.teardown(conn, readErr, cause)
}

// sendCycle queues a heartbeat and writes everything queued, pacing consecutive writes.
func (l *Link) sendCycle(ctx context.Context, conn net.Conn) error {
	hb, err := l.codec.EncodeFrame(l.vehicle.Heartbeat())
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.out.push(hb)
	pending := l.out.take()
	l.mu.Unlock()

	for i, pkt := range pending {
		if i > 0 && l.cfg.WritePacing > 0 {
			select {
			case <-ctx.Done():
				l.discarded(len(pending) - i)
				return ctx.Err()
			case <-l.clock.After(l.cfg.WritePacing):
			}
		}
		n, err := conn.Write(pkt)
		metrics.BytesWrittenTotal.WithLabelValues(l.label).Add(float64(n))
		if err != nil {
			l.discarded(len(pending) - i - 1)
			return fmt.Errorf("write: %w", err)
		}
	}
	return nil
}

func (l *Link) readLoop(conn net.Conn) error {
	var buf []byte
	chunk := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			var frames [][]byte
			frames, buf = l.codec.DecodeStream(append(buf, chunk[:n]...))
			for _, f := range frames {
				l.route(f)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errors.New("peer closed the connection")
			}
			return fmt.Errorf("read: %w", err)
		}
	}
}

// route hands one verified payload to the vehicle by function code.
func (l *Link) route(payload []byte) {
	id, fn, err := agv.ParseHeader(payload)
	if err != nil {
		metrics.FramesRejectedTotal.WithLabelValues(l.label, "payload").Inc()
		return
	}
	if id != l.vehicle.ID() {
		metrics.FramesRejectedTotal.WithLabelValues(l.label, "foreign").Inc()
		l.logger.Debug("frame for another device dropped", "device", id)
		return
	}
	metrics.FramesDecodedTotal.WithLabelValues(l.label, fn.String()).Inc()

	switch fn {
	case agv.FuncHeartbeat:
		_, hb, err := agv.DecodeHeartbeat(payload)
		if err != nil {
			metrics.FramesRejectedTotal.WithLabelValues(l.label, "payload").Inc()
			l.logger.Debug("malformed heartbeat reply", "error", err)
			return
		}
		l.applyHeartbeat(hb)
	default:
		// Command replies carry no state.
		l.logger.Debug("command reply", "func", fn)
	}
}

func (l *Link) applyHeartbeat(hb agv.Heartbeat) {
	changed := l.vehicle.ApplyHeartbeat(hb)
	if changed == 0 {
		return
	}
	metrics.StateUpdatesTotal.WithLabelValues(l.label).Inc()
	l.emit(Event{Type: EventStateUpdated, Changed: changed})

	if changed.Has(agv.FieldError) && hb.Error != agv.ErrorNone {
		l.logger.Warn("device fault", "fault", hb.Error, "description", hb.Error.Description())
		l.emit(Event{Type: EventFaultRaised, Fault: hb.Error, Source: FaultDevice})
	}
}

// teardown closes conn, waits for the reader to exit and drops everything queued. A nil cause
// means an orderly shutdown, which raises no fault and no link-broken event.
func (l *Link) teardown(conn net.Conn, readErr <-chan error, cause error) {
	_ = conn.Close()
	if readErr != nil {
		<-readErr
	}

	l.mu.Lock()
	l.conn = nil
	dropped := l.out.reset()
	l.mu.Unlock()

	l.discarded(dropped)
	l.vehicle.ForgetCommands()
	_ = l.sm.fire(context.Background(), EventBreak)

	if cause == nil {
		l.logger.Info("link closed", "discarded", dropped)
		return
	}

	l.logger.Warn("link broken", "reason", cause, "discarded", dropped)
	raised := l.vehicle.RaiseSelfError(agv.ErrorNet)
	l.emit(Event{Type: EventLinkBroken, Reason: cause.Error()})
	if raised {
		l.emit(Event{Type: EventFaultRaised, Fault: agv.ErrorNet, Source: FaultSelf})
	}
}

func (l *Link) discarded(n int) {
	if n > 0 {
		metrics.QueueDiscardedTotal.WithLabelValues(l.label).Add(float64(n))
	}
}

func (l *Link) dropAccepted() {
	l.acceptMu.Lock()
	defer l.acceptMu.Unlock()
	select {
	case conn := <-l.accepted:
		_ = conn.Close()
	default:
	}
}

func (l *Link) emit(e Event) {
	e.VehicleID = l.vehicle.ID()
	e.Time = l.clock.Now()
	e.Snapshot = l.Snapshot()
	l.notifier.Notify(e)
}

func (l *Link) onTransition(from, to string) {
	metrics.LinkTransitionsTotal.WithLabelValues(l.label, from, to).Inc()
	connected := 0.0
	if to == StateConnected {
		connected = 1
	}
	metrics.LinkConnected.WithLabelValues(l.label).Set(connected)
	l.logger.Debug("link state", "from", from, "to", to)
}

func (l *Link) onReject(err error) {
	metrics.FramesRejectedTotal.WithLabelValues(l.label, rejectReason(err)).Inc()
	l.logger.Debug("frame dropped", "error", err)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, protocol.ErrCRCMismatch):
		return "crc"
	case errors.Is(err, protocol.ErrLengthMismatch):
		return "length"
	case errors.Is(err, protocol.ErrBadEscape):
		return "escape"
	case errors.Is(err, protocol.ErrShortFrame):
		return "short"
	}
	return "other"
}

func kindLabel(c agv.Command) string {
	switch c.Kind {
	case agv.KindMove:
		return "move"
	case agv.KindAction:
		return "action"
	case agv.KindStopAction:
		return "stop-action"
	case agv.KindTrafficPass:
		return "traffic-pass"
	case agv.KindSpeed:
		return "speed"
	case agv.KindStatusControl:
		return c.Status.String()
	}
	return "unknown"
}
