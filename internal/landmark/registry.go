package landmark

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
)

// Operation names reported to an Observer.
const (
	OpLock     = "lock"
	OpFree     = "free"
	OpPeerLock = "peer-lock"
	OpCancel   = "cancel"
	OpClear    = "clear"
)

// Observer is told about every registry operation and whether it succeeded. It runs after the
// landmark's lock is released, so it may call back into the registry.
type Observer func(op string, id ID, ok bool)

type entry struct {
	mu         sync.Mutex
	locker     Token
	peerLocker Token
	lockedAt   time.Time
}

// Registry holds every landmark referenced so far. Entries are created on first use and never
// removed. Each entry has its own mutex, so operations on different landmarks never contend.
type Registry struct {
	entries sync.Map // ID -> *entry

	clock    clock.PassiveClock
	logger   logr.Logger
	observer Observer
}

type Option func(*Registry)

func WithClock(c clock.PassiveClock) Option {
	return func(r *Registry) { r.clock = c }
}

func WithLogger(l logr.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		clock:  clock.RealClock{},
		logger: logr.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) entry(id ID) *entry {
	if e, ok := r.entries.Load(id); ok {
		return e.(*entry)
	}
	e, _ := r.entries.LoadOrStore(id, &entry{})
	return e.(*entry)
}

func (r *Registry) observe(op string, id ID, ok bool) bool {
	if r.observer != nil {
		r.observer(op, id, ok)
	}
	return ok
}

// Lock grants the exclusive lock on id to tok. It succeeds when the landmark is free or
// already held by tok. Winning the lock cancels a reservation tok holds on the same landmark.
func (r *Registry) Lock(id ID, tok Token) bool {
	return r.observe(OpLock, id, r.lock(id, tok))
}

func (r *Registry) lock(id ID, tok Token) bool {
	if !id.Valid() || tok == "" {
		return false
	}
	e := r.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.locker != "" {
		if e.locker != tok {
			r.logger.V(1).Info("lock refused", "landmark", id, "token", tok, "holder", e.locker)
			return false
		}
		return true
	}
	e.locker = tok
	e.lockedAt = r.clock.Now()
	if e.peerLocker == tok {
		e.peerLocker = ""
	}
	r.logger.V(1).Info("locked", "landmark", id, "token", tok)
	return true
}

// Free releases the lock. An empty tok releases it unconditionally; otherwise only the holder
// may release it.
func (r *Registry) Free(id ID, tok Token) bool {
	return r.observe(OpFree, id, r.free(id, tok))
}

func (r *Registry) free(id ID, tok Token) bool {
	if !id.Valid() {
		return false
	}
	e := r.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	if tok != "" && e.locker != tok {
		return false
	}
	e.locker = ""
	e.lockedAt = time.Time{}
	return true
}

// PeerLock reserves id for tok ahead of arrival. Only the current reserver may re-reserve.
func (r *Registry) PeerLock(id ID, tok Token) bool {
	return r.observe(OpPeerLock, id, r.peerLock(id, tok))
}

func (r *Registry) peerLock(id ID, tok Token) bool {
	if !id.Valid() || tok == "" {
		return false
	}
	e := r.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.peerLocker != "" && e.peerLocker != tok {
		return false
	}
	e.peerLocker = tok
	return true
}

// Cancel drops the reservation with the same rules as Free.
func (r *Registry) Cancel(id ID, tok Token) bool {
	return r.observe(OpCancel, id, r.cancel(id, tok))
}

func (r *Registry) cancel(id ID, tok Token) bool {
	if !id.Valid() {
		return false
	}
	e := r.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	if tok != "" && e.peerLocker != tok {
		return false
	}
	e.peerLocker = ""
	return true
}

// Clear drops both the lock and the reservation.
func (r *Registry) Clear(id ID) {
	if !id.Valid() {
		return
	}
	e := r.entry(id)
	e.mu.Lock()
	e.locker, e.peerLocker, e.lockedAt = "", "", time.Time{}
	e.mu.Unlock()
	r.logger.Info("landmark cleared", "landmark", id)
	r.observe(OpClear, id, true)
}

// Get returns a copy of the entry for id, creating it if it has never been referenced.
func (r *Registry) Get(id ID) Landmark {
	if !id.Valid() {
		return Landmark{}
	}
	e := r.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	return Landmark{ID: id, Locker: e.locker, PeerLocker: e.peerLocker, LockedAt: e.lockedAt}
}

// List returns every known landmark ordered by id.
func (r *Registry) List() []Landmark {
	var ids []ID
	r.entries.Range(func(k, _ any) bool {
		ids = append(ids, k.(ID))
		return true
	})
	slices.SortFunc(ids, func(a, b ID) int { return cmp.Compare(a, b) })

	out := make([]Landmark, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.Get(id))
	}
	return out
}

// HeldBy returns the ids currently locked by tok, ordered by id.
func (r *Registry) HeldBy(tok Token) []ID {
	var ids []ID
	for _, l := range r.List() {
		if tok != "" && l.Locker == tok {
			ids = append(ids, l.ID)
		}
	}
	return ids
}
