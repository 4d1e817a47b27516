package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/G-Research/dbheartbeat/internal/common/app"
	"github.com/G-Research/dbheartbeat/internal/common/logging"
)

func ensureSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ensure-schema",
		Short: "Create the heartbeat table on every target and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, heartbeatApp, err := loadApp(oneShot())
			if err != nil {
				logging.WithStacktrace(log.NewEntry(log.StandardLogger()), err).Error("Invalid configuration, exiting")
				return err
			}
			if err := heartbeatApp.EnsureSchema(app.CreateContextWithShutdown()); err != nil {
				log.Errorf("Schema could not be ensured on every target: %v", err)
				return err
			}
			log.Info("Heartbeat table present on every target")
			return nil
		},
	}
	return cmd
}
