// Package landmark arbitrates exclusive occupancy and advance reservation of the fixed floor
// points vehicles report their position against.
package landmark

import (
	"strconv"
	"time"
)

// ID identifies a landmark. Zero means "no landmark" and is never lockable.
type ID uint16

func (id ID) Valid() bool { return id != 0 }

func (id ID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ParseID parses a decimal landmark id.
func ParseID(s string) (ID, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	return ID(n), nil
}

// Token is an opaque owner identity. The empty token is the null owner.
type Token string

// Landmark is a point-in-time copy of one registry entry.
type Landmark struct {
	ID         ID        `json:"id"`
	Locker     Token     `json:"locker,omitempty"`
	PeerLocker Token     `json:"peerLocker,omitempty"`
	LockedAt   time.Time `json:"lockedAt,omitzero"`
}

func (l Landmark) Locked() bool { return l.Locker != "" }

func (l Landmark) Reserved() bool { return l.PeerLocker != "" }

// Compare orders two landmarks by lock acquisition time for traffic priority. It returns a
// negative number when a wins, positive when b wins and zero on a tie. A set lock time always
// beats an unset one; between two set times the earlier one wins.
func Compare(a, b Landmark) int {
	switch az, bz := a.LockedAt.IsZero(), b.LockedAt.IsZero(); {
	case az && bz:
		return 0
	case az:
		return 1
	case bz:
		return -1
	}
	return a.LockedAt.Compare(b.LockedAt)
}
