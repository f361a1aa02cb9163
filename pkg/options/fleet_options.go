package options

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/autopeer-io/agvfleet/internal/agv"
	"github.com/autopeer-io/agvfleet/internal/link"
	"github.com/autopeer-io/agvfleet/internal/protocol"
)

var _ IOptions = (*FleetOptions)(nil)

// VehicleOptions describes one vehicle of the roster and how to reach it.
type VehicleOptions struct {
	ID         uint16  `json:"id" mapstructure:"id"`
	Name       string  `json:"name" mapstructure:"name"`
	Capability string  `json:"capability" mapstructure:"capability"`
	Protocol   string  `json:"protocol" mapstructure:"protocol"`
	MaxSpeed   float64 `json:"max-speed" mapstructure:"max-speed"`
	MaxWeight  float64 `json:"max-weight" mapstructure:"max-weight"`
	Brand      string  `json:"brand" mapstructure:"brand"`
	Model      string  `json:"model" mapstructure:"model"`

	Role      string `json:"role" mapstructure:"role"`
	PeerAddr  string `json:"peer-addr" mapstructure:"peer-addr"`
	PeerPort  uint16 `json:"peer-port" mapstructure:"peer-port"`
	LocalAddr string `json:"local-addr" mapstructure:"local-addr"`
	LocalPort uint16 `json:"local-port" mapstructure:"local-port"`
}

// ToIdentity parses the descriptive fields into a vehicle identity.
func (v *VehicleOptions) ToIdentity() (agv.Identity, error) {
	capability, err := agv.ParseCapability(v.Capability)
	if err != nil {
		return agv.Identity{}, err
	}
	variant, err := protocol.ParseVariant(v.Protocol)
	if err != nil {
		return agv.Identity{}, err
	}
	id := agv.Identity{
		ID:         v.ID,
		Name:       v.Name,
		Capability: capability,
		Protocol:   variant,
		MaxSpeed:   v.MaxSpeed,
		MaxWeight:  v.MaxWeight,
		Brand:      v.Brand,
		Model:      v.Model,
	}
	return id, id.Validate()
}

// ToLinkConfig fills the addressing fields into base.
func (v *VehicleOptions) ToLinkConfig(base link.Config) (link.Config, error) {
	role, err := link.ParseRole(v.Role)
	if err != nil {
		return link.Config{}, err
	}
	cfg := base
	cfg.Role = role
	cfg.PeerAddr = v.PeerAddr
	cfg.PeerPort = v.PeerPort
	cfg.LocalAddr = v.LocalAddr
	cfg.LocalPort = v.LocalPort
	return cfg, cfg.Validate()
}

// FleetOptions holds the vehicle roster and the listener for server-role vehicles.
type FleetOptions struct {
	// ListenAddr is where server-role vehicles connect to. Empty disables the listener.
	ListenAddr string `json:"listen-addr" mapstructure:"listen-addr"`

	Vehicles []VehicleOptions `json:"vehicles" mapstructure:"vehicles"`

	// VehicleSpecs are roster entries given on the command line, merged into Vehicles by Complete.
	VehicleSpecs []string `json:"-" mapstructure:"-"`
}

func NewFleetOptions() *FleetOptions {
	return &FleetOptions{
		ListenAddr: "0.0.0.0:4000",
	}
}

// Complete parses VehicleSpecs and appends them to the roster.
func (o *FleetOptions) Complete() error {
	for _, spec := range o.VehicleSpecs {
		v, err := ParseVehicleSpec(spec)
		if err != nil {
			return err
		}
		o.Vehicles = append(o.Vehicles, v)
	}
	o.VehicleSpecs = nil
	return nil
}

func (o *FleetOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	needListener := false
	seen := make(map[uint16]bool, len(o.Vehicles))
	for i := range o.Vehicles {
		v := &o.Vehicles[i]
		if seen[v.ID] {
			errors = append(errors, fmt.Errorf("vehicle %d: duplicate id", v.ID))
		}
		seen[v.ID] = true

		if _, err := v.ToIdentity(); err != nil {
			errors = append(errors, fmt.Errorf("vehicle %d: %w", v.ID, err))
		}
		cfg, err := v.ToLinkConfig(link.DefaultConfig())
		if err != nil {
			errors = append(errors, fmt.Errorf("vehicle %d: %w", v.ID, err))
		}
		if cfg.Role == link.RoleServer {
			needListener = true
		}
	}

	if o.ListenAddr != "" {
		if err := ValidateAddress(o.ListenAddr); err != nil {
			errors = append(errors, err)
		}
	} else if needListener {
		errors = append(errors, fmt.Errorf("--fleet.listen-addr is required by server-role vehicles"))
	}

	return errors
}

func (o *FleetOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.ListenAddr, "fleet.listen-addr", o.ListenAddr, "Address server-role vehicles connect to. Empty disables the listener.")
	fs.StringArrayVar(&o.VehicleSpecs, "fleet.vehicle", o.VehicleSpecs,
		"Add a vehicle, e.g. id=1,name=agv-1,capability=transfer,max-speed=60,peer=10.0.0.21:4001. "+
			"Keys: id, name, capability, protocol, max-speed, max-weight, brand, model, role, peer, local.")
}

// ParseVehicleSpec parses the compact key=value form accepted by --fleet.vehicle.
// peer and local take host:port; the port may be omitted for a server-role peer.
func ParseVehicleSpec(spec string) (VehicleOptions, error) {
	var v VehicleOptions
	for _, kv := range strings.Split(spec, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(kv), "=")
		if !ok {
			return v, fmt.Errorf("vehicle spec %q: %q is not key=value", spec, kv)
		}
		var err error
		switch key {
		case "id":
			var n uint64
			n, err = strconv.ParseUint(value, 10, 16)
			v.ID = uint16(n)
		case "name":
			v.Name = value
		case "capability":
			v.Capability = value
		case "protocol":
			v.Protocol = value
		case "max-speed":
			v.MaxSpeed, err = strconv.ParseFloat(value, 64)
		case "max-weight":
			v.MaxWeight, err = strconv.ParseFloat(value, 64)
		case "brand":
			v.Brand = value
		case "model":
			v.Model = value
		case "role":
			v.Role = value
		case "peer":
			v.PeerAddr, v.PeerPort, err = splitHostPort(value)
		case "local":
			v.LocalAddr, v.LocalPort, err = splitHostPort(value)
		default:
			err = fmt.Errorf("unknown key")
		}
		if err != nil {
			return v, fmt.Errorf("vehicle spec %q: %s: %w", spec, key, err)
		}
	}
	return v, nil
}

// splitHostPort treats a value without a port as a bare host.
func splitHostPort(s string) (string, uint16, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return s, 0, nil
	}
	n, err := strconv.ParseUint(port, 10, 16)
	return host, uint16(n), err
}
