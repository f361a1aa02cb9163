package app

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/autopeer-io/agvfleet/cmd/agvfleetd/app/options"
	"github.com/autopeer-io/agvfleet/internal/fleet"
	"github.com/autopeer-io/agvfleet/internal/fleet/notifier"
	"github.com/autopeer-io/agvfleet/internal/fleet/server"
	"github.com/autopeer-io/agvfleet/internal/fleet/server/http"
	"github.com/autopeer-io/agvfleet/internal/fleet/server/ws"
	"github.com/autopeer-io/agvfleet/internal/fleet/storage"
	"github.com/autopeer-io/agvfleet/pkg/log"
)

const (
	commandName = "agvfleetd"
	commandDesc = `agvfleetd keeps a fleet of automated guided vehicles connected over TCP,
tracks their state from the periodic heartbeat exchange, arbitrates landmark
occupancy between them and exposes the fleet over HTTP, websocket and MQTT.

Vehicles are declared in the config file (fleet.vehicles) or with --fleet.vehicle.`
)

func NewAgvFleetCommand(ctx context.Context) *cobra.Command {
	opts := options.NewOptions()
	var configFile string

	cmd := &cobra.Command{
		Use:          commandName,
		Short:        "Run the AGV fleet daemon",
		Long:         commandDesc,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(cmd.Flags(), configFile, opts); err != nil {
				return err
			}
			if err := opts.Complete(); err != nil {
				return err
			}
			return opts.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Init(opts.Log)
			if configFile != "" {
				watchConfig(cmd.Flags(), configFile)
			}
			return run(ctx, opts)
		},
	}

	fs := cmd.PersistentFlags()
	fs.StringVarP(&configFile, "config", "c", "", "Path to a YAML, TOML or JSON config file. Flags override file values.")
	namedfs := opts.Flags()
	for _, name := range namedfs.Order {
		fs.AddFlagSet(namedfs.FlagSets[name])
	}

	cmd.AddCommand(newVehiclesCommand(opts))
	return cmd
}

// loadConfig merges the config file, if any, under the flags that were set explicitly and
// decodes the result into opts.
func loadConfig(fs *pflag.FlagSet, path string, opts *options.Options) (*viper.Viper, error) {
	if path == "" {
		return nil, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(opts); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	return v, nil
}

// watchConfig re-applies the log level when the config file changes. Everything else needs a
// restart.
func watchConfig(fs *pflag.FlagSet, path string) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		log.Error(err, "config watch disabled", "path", path)
		return
	}
	if err := v.BindPFlags(fs); err != nil {
		log.Error(err, "config watch disabled", "path", path)
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) { onConfigChange(v, e) })
	v.WatchConfig()
}

func onConfigChange(v *viper.Viper, e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	level := v.GetString("log.level")
	if err := log.SetLevel(level); err != nil {
		log.Error(err, "config reload rejected", "file", e.Name)
		return
	}
	log.Info("config reloaded, log level applied; other changes take effect after a restart",
		"file", e.Name, "log.level", level)
}

func run(ctx context.Context, opts *options.Options) error {
	cfg, err := opts.Config()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	hub := ws.NewHub()
	fleetOpts := []fleet.Option{
		fleet.WithLogger(log.WithName("fleet")),
		fleet.WithSink(hub),
	}

	var servers []server.Server
	if opts.Mqtt.Enabled {
		n, err := notifier.NewMQTTNotifier(opts.Mqtt)
		if err != nil {
			return fmt.Errorf("failed to init mqtt notifier: %w", err)
		}
		fleetOpts = append(fleetOpts, fleet.WithSink(n))
		servers = append(servers, n)
	}
	if opts.S3.Enabled {
		store, err := storage.NewMinIOProvider(opts.S3)
		if err != nil {
			return fmt.Errorf("failed to init snapshot store: %w", err)
		}
		if err := store.CheckBucket(ctx); err != nil {
			return err
		}
		fleetOpts = append(fleetOpts, fleet.WithSnapshotStore(store))
	}

	f, err := fleet.New(cfg, fleetOpts...)
	if err != nil {
		return fmt.Errorf("failed to create fleet: %w", err)
	}

	mgr := server.NewManager(server.StartFunc(f.Run), http.NewServer(opts.Http, f, hub))
	for _, s := range servers {
		mgr.Add(s)
	}
	return mgr.Start(ctx)
}
