package fleet

import (
	"github.com/autopeer-io/agvfleet/internal/agv"
	"github.com/autopeer-io/agvfleet/internal/link"
)

// track keeps the landmark registry in step with where the vehicles report they are. A vehicle
// holds the landmark it stands on and gives up the previous one. Contention is only reported.
func (f *Fleet) track(e link.Event) {
	if e.Type != link.EventStateUpdated || !e.Changed.Has(agv.FieldCurrent) {
		return
	}
	s := e.Snapshot
	tok := s.Token()

	if s.Previous.Valid() && s.Previous != s.Current && f.landmarks.Get(s.Previous).Locker == tok {
		f.landmarks.Free(s.Previous, tok)
	}
	if !s.Current.Valid() {
		return
	}
	if !f.landmarks.Lock(s.Current, tok) {
		f.logger.Warn("vehicle entered a landmark held by another vehicle",
			"vehicle", s.ID, "landmark", s.Current, "holder", f.landmarks.Get(s.Current).Locker)
	}
}
