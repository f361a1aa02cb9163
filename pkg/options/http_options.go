package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*HttpOptions)(nil)

// HttpOptions contains configuration items related to the HTTP API server.
type HttpOptions struct {
	// Network is tcp, tcp4 or tcp6.
	Network string `json:"network" mapstructure:"network"`

	// Addr is the listen address of the API, probes and metrics.
	Addr string `json:"addr" mapstructure:"addr"`

	// EnableMetrics mounts the prometheus handler at /metrics.
	EnableMetrics bool `json:"enable-metrics" mapstructure:"enable-metrics"`

	// Timeout bounds reading a request and writing its response.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// ShutdownTimeout bounds graceful shutdown once the process is stopping.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewHttpOptions creates a HttpOptions object with default parameters.
func NewHttpOptions() *HttpOptions {
	return &HttpOptions{
		Network:         "tcp",
		Addr:            "0.0.0.0:8080",
		EnableMetrics:   true,
		Timeout:         30 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *HttpOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	switch o.Network {
	case "tcp", "tcp4", "tcp6":
	default:
		errors = append(errors, fmt.Errorf("--http.network must be tcp, tcp4 or tcp6, got %q", o.Network))
	}
	if err := ValidateAddress(o.Addr); err != nil {
		errors = append(errors, fmt.Errorf("--http.addr: %w", err))
	}
	if o.Timeout <= 0 || o.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Errorf("--http.timeout and --http.shutdown-timeout must be positive"))
	}

	return errors
}

// AddFlags adds flags related to the HTTP server to the specified FlagSet.
func (o *HttpOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Network, "http.network", o.Network, "Specify the network for the HTTP server.")
	fs.StringVar(&o.Addr, "http.addr", o.Addr, "Specify the HTTP server bind address and port.")
	fs.BoolVar(&o.EnableMetrics, "http.enable-metrics", o.EnableMetrics, "Serve prometheus metrics at /metrics.")
	fs.DurationVar(&o.Timeout, "http.timeout", o.Timeout, "Timeout for server connections.")
	fs.DurationVar(&o.ShutdownTimeout, "http.shutdown-timeout", o.ShutdownTimeout, "Grace period for in-flight requests on shutdown.")
}
