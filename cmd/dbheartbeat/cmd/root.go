package cmd

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/G-Research/dbheartbeat/internal/common"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/configuration"
)

const (
	CustomConfigLocation string = "config"
)

func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "dbheartbeat",
		SilenceUsage: true,
		Short:        "Writes a timestamp to each configured database on a fixed interval and exports the outcomes as metrics",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return common.BindCommandlineArguments(cmd.Flags())
		},
	}

	cmd.PersistentFlags().StringSlice(
		CustomConfigLocation,
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)")

	cmd.AddCommand(
		runCmd(),
		ensureSchemaCmd(),
		checkCmd(),
	)

	return cmd
}

// loadApp loads and validates the configuration and builds the application. Any error is a
// configuration error and is returned before a listener is opened or a database contacted.
func loadApp(options ...dbheartbeat.Option) (*configuration.DbHeartbeatConfig, *dbheartbeat.App, error) {
	userSpecifiedConfigs := viper.GetStringSlice(CustomConfigLocation)
	config, err := configuration.Load(userSpecifiedConfigs)
	if err != nil {
		return nil, nil, err
	}
	common.SetLogLevel(config.LogLevel)

	app, err := dbheartbeat.New(config, options...)
	if err != nil {
		return nil, nil, err
	}
	return config, app, nil
}

// oneShot keeps the metrics of short-lived commands out of the process-wide registry.
func oneShot() dbheartbeat.Option {
	registry := prometheus.NewRegistry()
	return dbheartbeat.WithRegistry(registry, registry)
}
