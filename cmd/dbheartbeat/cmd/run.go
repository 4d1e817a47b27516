package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/G-Research/dbheartbeat/internal/common"
	"github.com/G-Research/dbheartbeat/internal/common/app"
	"github.com/G-Research/dbheartbeat/internal/common/logging"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Serve /, /health and /metrics and write heartbeats until interrupted",
		RunE:  runHeartbeat,
	}
	return cmd
}

func runHeartbeat(_ *cobra.Command, _ []string) error {
	config, heartbeatApp, err := loadApp()
	if err != nil {
		logging.WithStacktrace(log.NewEntry(log.StandardLogger()), err).Error("Invalid configuration, exiting")
		return err
	}
	if err := common.RegisterLogMetrics(); err != nil {
		log.WithError(err).Warn("Log metrics unavailable")
	}

	log.Infof("Serving on port %d", config.HttpPort)
	return heartbeatApp.Run(app.CreateContextWithShutdown())
}
