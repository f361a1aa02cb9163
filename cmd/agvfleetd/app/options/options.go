package options

import (
	"fmt"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/agvfleet/internal/fleet"
	"github.com/autopeer-io/agvfleet/pkg/log"
	"github.com/autopeer-io/agvfleet/pkg/options"
)

// Options aggregates every option group of agvfleetd.
type Options struct {
	Log   *log.Options          `json:"log" mapstructure:"log"`
	Http  *options.HttpOptions  `json:"http" mapstructure:"http"`
	Mqtt  *options.MqttOptions  `json:"mqtt" mapstructure:"mqtt"`
	S3    *options.S3Options    `json:"s3" mapstructure:"s3"`
	Link  *options.LinkOptions  `json:"link" mapstructure:"link"`
	Fleet *options.FleetOptions `json:"fleet" mapstructure:"fleet"`
}

func NewOptions() *Options {
	return &Options{
		Log:   log.NewOptions(),
		Http:  options.NewHttpOptions(),
		Mqtt:  options.NewMqttOptions(),
		S3:    options.NewS3Options(),
		Link:  options.NewLinkOptions(),
		Fleet: options.NewFleetOptions(),
	}
}

func (o *Options) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.Fleet.AddFlags(fss.FlagSet("fleet"))
	o.Link.AddFlags(fss.FlagSet("link"))
	o.Http.AddFlags(fss.FlagSet("http"))
	o.Mqtt.AddFlags(fss.FlagSet("mqtt"))
	o.S3.AddFlags(fss.FlagSet("s3"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *Options) Complete() error {
	return o.Fleet.Complete()
}

func (o *Options) Validate() error {
	errs := []error{}
	errs = append(errs, o.Fleet.Validate()...)
	errs = append(errs, o.Link.Validate()...)
	errs = append(errs, o.Http.Validate()...)
	errs = append(errs, o.Mqtt.Validate()...)
	errs = append(errs, o.S3.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

// Config builds the fleet configuration. Options must have been validated.
func (o *Options) Config() (fleet.Config, error) {
	cfg := fleet.Config{
		ListenAddr:     o.Fleet.ListenAddr,
		SnapshotPrefix: o.S3.Prefix,
	}
	if o.S3.Enabled {
		cfg.SnapshotInterval = o.S3.SnapshotInterval
	}

	base := o.Link.ToConfig()
	for i := range o.Fleet.Vehicles {
		v := &o.Fleet.Vehicles[i]
		id, err := v.ToIdentity()
		if err != nil {
			return fleet.Config{}, fmt.Errorf("vehicle %d: %w", v.ID, err)
		}
		lc, err := v.ToLinkConfig(base)
		if err != nil {
			return fleet.Config{}, fmt.Errorf("vehicle %d: %w", v.ID, err)
		}
		cfg.Members = append(cfg.Members, fleet.Member{Identity: id, Link: lc})
	}
	return cfg, nil
}
