package options

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/pflag"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/autopeer-io/agvfleet/internal/link"
)

var _ IOptions = (*LinkOptions)(nil)

// LinkOptions holds the timing shared by every vehicle link.
type LinkOptions struct {
	SendInterval time.Duration `json:"send-interval" mapstructure:"send-interval"`
	WritePacing  time.Duration `json:"write-pacing" mapstructure:"write-pacing"`
	DialTimeout  time.Duration `json:"dial-timeout" mapstructure:"dial-timeout"`

	// Reconnect backoff of client-role links.
	BackoffInitial time.Duration `json:"backoff-initial" mapstructure:"backoff-initial"`
	BackoffFactor  float64       `json:"backoff-factor" mapstructure:"backoff-factor"`
	BackoffJitter  float64       `json:"backoff-jitter" mapstructure:"backoff-jitter"`
	BackoffCap     time.Duration `json:"backoff-cap" mapstructure:"backoff-cap"`
}

func NewLinkOptions() *LinkOptions {
	def := link.DefaultConfig()
	return &LinkOptions{
		SendInterval:   def.SendInterval,
		WritePacing:    def.WritePacing,
		DialTimeout:    def.DialTimeout,
		BackoffInitial: def.Backoff.Duration,
		BackoffFactor:  def.Backoff.Factor,
		BackoffJitter:  def.Backoff.Jitter,
		BackoffCap:     def.Backoff.Cap,
	}
}

func (o *LinkOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.SendInterval <= 0 {
		errors = append(errors, fmt.Errorf("--link.send-interval must be positive"))
	}
	if o.WritePacing < 0 {
		errors = append(errors, fmt.Errorf("--link.write-pacing must not be negative"))
	}
	if o.WritePacing >= o.SendInterval && o.SendInterval > 0 {
		errors = append(errors, fmt.Errorf("--link.write-pacing must be shorter than --link.send-interval"))
	}
	if o.DialTimeout <= 0 {
		errors = append(errors, fmt.Errorf("--link.dial-timeout must be positive"))
	}
	if o.BackoffInitial <= 0 {
		errors = append(errors, fmt.Errorf("--link.backoff-initial must be positive"))
	}
	if o.BackoffFactor < 1 {
		errors = append(errors, fmt.Errorf("--link.backoff-factor must be at least 1"))
	}
	if o.BackoffJitter < 0 {
		errors = append(errors, fmt.Errorf("--link.backoff-jitter must not be negative"))
	}
	if o.BackoffCap < o.BackoffInitial {
		errors = append(errors, fmt.Errorf("--link.backoff-cap must not be below --link.backoff-initial"))
	}

	return errors
}

func (o *LinkOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.DurationVar(&o.SendInterval, "link.send-interval", o.SendInterval, "Period of the heartbeat send cycle.")
	fs.DurationVar(&o.WritePacing, "link.write-pacing", o.WritePacing, "Gap between two packets written in the same send cycle.")
	fs.DurationVar(&o.DialTimeout, "link.dial-timeout", o.DialTimeout, "Timeout of a single connection attempt.")
	fs.DurationVar(&o.BackoffInitial, "link.backoff-initial", o.BackoffInitial, "First reconnect delay.")
	fs.Float64Var(&o.BackoffFactor, "link.backoff-factor", o.BackoffFactor, "Multiplier applied to the reconnect delay after each failure.")
	fs.Float64Var(&o.BackoffJitter, "link.backoff-jitter", o.BackoffJitter, "Random jitter added to each reconnect delay, as a fraction.")
	fs.DurationVar(&o.BackoffCap, "link.backoff-cap", o.BackoffCap, "Upper bound of the reconnect delay.")
}

// ToConfig returns a link configuration carrying these timings and no peer.
func (o *LinkOptions) ToConfig() link.Config {
	return link.Config{
		SendInterval: o.SendInterval,
		WritePacing:  o.WritePacing,
		DialTimeout:  o.DialTimeout,
		Backoff: wait.Backoff{
			Duration: o.BackoffInitial,
			Factor:   o.BackoffFactor,
			Jitter:   o.BackoffJitter,
			Steps:    math.MaxInt32,
			Cap:      o.BackoffCap,
		},
	}
}
