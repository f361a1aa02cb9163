// Package fleet wires every vehicle link to the shared landmark registry and hands link events to
// the configured sinks.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/agvfleet/internal/agv"
	"github.com/autopeer-io/agvfleet/internal/landmark"
	"github.com/autopeer-io/agvfleet/internal/link"
	"github.com/autopeer-io/agvfleet/internal/pkg/metrics"
	"github.com/autopeer-io/agvfleet/pkg/log"
)

var (
	ErrDuplicateVehicle = errors.New("duplicate vehicle id")
	ErrUnknownVehicle   = errors.New("unknown vehicle")
	ErrLandmarkBusy     = errors.New("landmark is held by another vehicle")
)

// Fleet owns one link per vehicle and the landmark registry they share.
type Fleet struct {
	cfg       Config
	logger    log.Logger
	clock     clock.WithTicker
	sinks     []link.Notifier
	store     SnapshotStore
	landmarks *landmark.Registry

	links map[uint16]*link.Link
	ids   []uint16

	listenMu sync.Mutex
	addr     net.Addr
	running  atomic.Bool
}

type Option func(*Fleet)

func WithLogger(l log.Logger) Option {
	return func(f *Fleet) { f.logger = l }
}

func WithClock(c clock.WithTicker) Option {
	return func(f *Fleet) { f.clock = c }
}

// WithSink adds a receiver of link events. Sinks are called in the order they were added.
func WithSink(n link.Notifier) Option {
	return func(f *Fleet) { f.sinks = append(f.sinks, n) }
}

// WithSnapshotStore enables the periodic snapshot upload.
func WithSnapshotStore(s SnapshotStore) Option {
	return func(f *Fleet) { f.store = s }
}

func New(cfg Config, opts ...Option) (*Fleet, error) {
	f := &Fleet{
		cfg:    cfg,
		logger: log.NewNopLogger(),
		clock:  clock.RealClock{},
		links:  make(map[uint16]*link.Link, len(cfg.Members)),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.landmarks = landmark.NewRegistry(
		landmark.WithClock(f.clock),
		landmark.WithLogger(f.logger.WithName("landmark").Logr()),
		landmark.WithObserver(func(op string, _ landmark.ID, ok bool) { metrics.ObserveLandmark(op, ok) }),
	)

	for _, m := range cfg.Members {
		if _, dup := f.links[m.Identity.ID]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateVehicle, m.Identity.ID)
		}
		v, err := agv.New(m.Identity, agv.WithClock(f.clock))
		if err != nil {
			return nil, fmt.Errorf("vehicle %d: %w", m.Identity.ID, err)
		}
		l, err := link.New(m.Link, v,
			link.WithLogger(f.logger.WithName("link")),
			link.WithClock(f.clock),
			link.WithNotifier(link.NotifierFunc(f.dispatch)),
		)
		if err != nil {
			return nil, fmt.Errorf("vehicle %d: %w", m.Identity.ID, err)
		}
		f.links[m.Identity.ID] = l
		f.ids = append(f.ids, m.Identity.ID)
	}
	slices.Sort(f.ids)
	return f, nil
}

func (f *Fleet) Landmarks() *landmark.Registry { return f.landmarks }

// Link returns the link of vehicle id.
func (f *Fleet) Link(id uint16) (*link.Link, bool) {
	l, ok := f.links[id]
	return l, ok
}

// Vehicles returns a snapshot of every vehicle ordered by id.
func (f *Fleet) Vehicles() []agv.Snapshot {
	out := make([]agv.Snapshot, 0, len(f.ids))
	for _, id := range f.ids {
		out = append(out, f.links[id].Snapshot())
	}
	return out
}

func (f *Fleet) Vehicle(id uint16) (agv.Snapshot, error) {
	l, ok := f.links[id]
	if !ok {
		return agv.Snapshot{}, fmt.Errorf("%w: %d", ErrUnknownVehicle, id)
	}
	return l.Snapshot(), nil
}

// Submit admits cmd for vehicle id and queues it for the next send cycle.
func (f *Fleet) Submit(id uint16, cmd agv.Command) (agv.Result, error) {
	l, ok := f.links[id]
	if !ok {
		return agv.ParamError, fmt.Errorf("%w: %d", ErrUnknownVehicle, id)
	}
	return l.Submit(cmd), nil
}

// PassTraffic locks lm for vehicle id and only then lets the vehicle through. Nothing is sent
// while another vehicle holds lm. A lock taken here is released again when the command is refused.
func (f *Fleet) PassTraffic(id uint16, lm landmark.ID) (agv.Result, error) {
	l, ok := f.links[id]
	if !ok {
		return agv.ParamError, fmt.Errorf("%w: %d", ErrUnknownVehicle, id)
	}
	if !lm.Valid() {
		return agv.ParamError, nil
	}
	tok := l.Vehicle().Identity().Token()
	held := f.landmarks.Get(lm).Locker == tok
	if !f.landmarks.Lock(lm, tok) {
		return agv.StatusError, fmt.Errorf("%w: %s", ErrLandmarkBusy, lm)
	}
	res := l.Submit(agv.TrafficPass())
	if res != agv.Success && !held {
		f.landmarks.Free(lm, tok)
	}
	return res, nil
}

// Ready reports whether every client-role link has tried to connect and the acceptor, if any,
// is listening.
func (f *Fleet) Ready() bool {
	if !f.running.Load() {
		return false
	}
	for _, l := range f.links {
		if l.Role() == link.RoleClient && !l.Attempted() {
			return false
		}
	}
	return !f.needsAcceptor() || f.Addr() != nil
}

// Addr is the acceptor's bound address, nil while it is not listening.
func (f *Fleet) Addr() net.Addr {
	f.listenMu.Lock()
	defer f.listenMu.Unlock()
	return f.addr
}

func (f *Fleet) needsAcceptor() bool {
	return f.cfg.ListenAddr != "" && f.cfg.hasServerRole()
}

// Run drives every link, the acceptor and the snapshot loop until ctx is cancelled or one of
// them fails.
func (f *Fleet) Run(ctx context.Context) error {
	if !f.running.CompareAndSwap(false, true) {
		return errors.New("fleet is already running")
	}
	defer f.running.Store(false)

	g, ctx := errgroup.WithContext(ctx)
	// An empty roster still runs until cancelled.
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	for _, id := range f.ids {
		l := f.links[id]
		g.Go(func() error { return l.Run(ctx) })
	}
	if f.needsAcceptor() {
		g.Go(func() error { return f.accept(ctx) })
	}
	if f.store != nil && f.cfg.SnapshotInterval > 0 {
		g.Go(func() error { return f.exportSnapshots(ctx) })
	}

	f.logger.Info("fleet started", "vehicles", len(f.ids))
	err := g.Wait()
	f.logger.Info("fleet stopped")
	return err
}

// dispatch is the notifier of every link. Occupancy is updated before the sinks see the event.
func (f *Fleet) dispatch(e link.Event) {
	f.track(e)
	f.logEvent(e)
	for _, s := range f.sinks {
		s.Notify(e)
	}
}

func (f *Fleet) logEvent(e link.Event) {
	switch e.Type {
	case link.EventLinkUp:
		f.logger.Info("vehicle online", "vehicle", e.VehicleID)
	case link.EventLinkBroken:
		f.logger.Warn("vehicle offline", "vehicle", e.VehicleID, "reason", e.Reason)
	case link.EventFaultRaised:
		f.logger.Warn("vehicle fault", "vehicle", e.VehicleID, "fault", e.Fault, "source", e.Source)
	default:
		f.logger.Debug("vehicle state", "vehicle", e.VehicleID, "status", e.Snapshot.Status, "current", e.Snapshot.Current)
	}
}
