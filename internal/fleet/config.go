package fleet

import (
	"time"

	"github.com/autopeer-io/agvfleet/internal/agv"
	"github.com/autopeer-io/agvfleet/internal/link"
)

// Member is one vehicle of the roster together with its link settings.
type Member struct {
	Identity agv.Identity
	Link     link.Config
}

type Config struct {
	// ListenAddr is where server-role vehicles connect. Empty disables the acceptor.
	ListenAddr string

	Members []Member

	// SnapshotInterval is the upload period used when a SnapshotStore is configured.
	SnapshotInterval time.Duration
	// SnapshotPrefix is prepended to every snapshot object key.
	SnapshotPrefix string
}

func (c *Config) hasServerRole() bool {
	for _, m := range c.Members {
		if m.Link.Role == link.RoleServer {
			return true
		}
	}
	return false
}
