package link

import (
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

var ErrInvalidConfig = errors.New("invalid link config")

// Role says which side opens the TCP connection.
type Role uint8

const (
	// RoleClient dials the vehicle and redials after every failure.
	RoleClient Role = iota
	// RoleServer waits for the vehicle to connect to the fleet listener.
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// ParseRole accepts "client" and "server".
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "client", "":
		return RoleClient, nil
	case "server":
		return RoleServer, nil
	}
	return 0, fmt.Errorf("%w: unknown role %q", ErrInvalidConfig, s)
}

type Config struct {
	Role Role

	PeerAddr string
	// PeerPort is required for RoleClient. For RoleServer zero matches any source port.
	PeerPort uint16

	LocalAddr string
	LocalPort uint16

	SendInterval time.Duration
	WritePacing  time.Duration
	DialTimeout  time.Duration
	Backoff      wait.Backoff
}

func DefaultConfig() Config {
	return Config{
		SendInterval: 100 * time.Millisecond,
		WritePacing:  10 * time.Millisecond,
		DialTimeout:  3 * time.Second,
		Backoff: wait.Backoff{
			Duration: 500 * time.Millisecond,
			Factor:   2,
			Jitter:   0.1,
			Steps:    math.MaxInt32,
			Cap:      10 * time.Second,
		},
	}
}

func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.PeerAddr) == "":
		return fmt.Errorf("%w: empty peer address", ErrInvalidConfig)
	case c.Role == RoleClient && c.PeerPort == 0:
		return fmt.Errorf("%w: client role needs a peer port", ErrInvalidConfig)
	case c.Role != RoleClient && c.Role != RoleServer:
		return fmt.Errorf("%w: role %d", ErrInvalidConfig, c.Role)
	case c.SendInterval <= 0:
		return fmt.Errorf("%w: send interval must be positive", ErrInvalidConfig)
	case c.WritePacing < 0:
		return fmt.Errorf("%w: negative write pacing", ErrInvalidConfig)
	case c.Backoff.Duration <= 0:
		return fmt.Errorf("%w: reconnect backoff must be positive", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) peer() string {
	return net.JoinHostPort(c.PeerAddr, strconv.Itoa(int(c.PeerPort)))
}

// local returns the bind address for outgoing dials, nil when none is configured.
func (c *Config) local() net.Addr {
	if c.LocalAddr == "" && c.LocalPort == 0 {
		return nil
	}
	return &net.TCPAddr{IP: net.ParseIP(c.LocalAddr), Port: int(c.LocalPort)}
}
