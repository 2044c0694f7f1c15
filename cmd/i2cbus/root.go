package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"devicebus-go/services/i2cbus"
	"devicebus-go/services/i2cbus/config"
	"devicebus-go/types"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	LogLevel string
	Config   string // bus config YAML
	Registry string // device registry YAML
	Demo     bool

	level slog.LevelVar
	log   *slog.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "i2cbus",
		Short: "Multi-drop bus manager diagnostics",
		Long: `Discover, identify and poll devices on one or more multi-drop buses.

Without --config a single bus I2C0 on port 0 is used. With --demo (the
default) port 0 is a simulated bus carrying one device of each built-in type.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.level.UnmarshalText([]byte(opts.LogLevel)); err != nil {
				return fmt.Errorf("invalid log level %q", opts.LogLevel)
			}
			opts.log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: &opts.level}))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "warn", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "bus config file (YAML)")
	cmd.PersistentFlags().StringVar(&opts.Registry, "registry", "", "device registry file (YAML); built-in when empty")
	cmd.PersistentFlags().BoolVar(&opts.Demo, "demo", true, "use the simulated demo population")

	cmd.AddCommand(newScanCommand(opts))
	cmd.AddCommand(newSnapshotCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newRawCommand(opts))
	cmd.AddCommand(newAddrCommand())
	cmd.AddCommand(newRegistryCommand(opts))

	return cmd
}

func (o *rootOptions) registry() (*config.Registry, error) {
	if o.Registry == "" {
		return config.DefaultRegistry(), nil
	}
	return config.LoadRegistry(o.Registry)
}

func (o *rootOptions) buses() (types.BusesConfig, error) {
	if o.Config == "" {
		return types.BusesConfig{Buses: []types.BusConfig{{Name: "I2C0", SDAPin: 4, SCLPin: 5}}}, nil
	}
	return config.LoadBuses(o.Config)
}

// manager builds, but does not start, a Manager from the global flags.
func (o *rootOptions) manager() (*i2cbus.Manager, error) {
	reg, err := o.registry()
	if err != nil {
		return nil, err
	}
	cfg, err := o.buses()
	if err != nil {
		return nil, err
	}
	mo := i2cbus.ManagerOptions{Devices: reg, Log: o.logger()}
	if o.Demo {
		mo.Factory = i2cbus.DemoFactory()
	}
	m := i2cbus.NewManager(cfg, mo)
	if len(m.Names()) == 0 {
		return nil, fmt.Errorf("no usable bus in configuration")
	}
	return m, nil
}

func (o *rootOptions) logger() *slog.Logger {
	if o.log == nil {
		return slog.Default()
	}
	return o.log
}

func isValidChoice(v string, choices ...string) bool {
	for _, c := range choices {
		if strings.EqualFold(v, c) {
			return true
		}
	}
	return false
}
