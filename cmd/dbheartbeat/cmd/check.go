package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/G-Research/dbheartbeat/internal/common/app"
	"github.com/G-Research/dbheartbeat/internal/common/logging"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/healthcheck"
)

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Connect to and probe every target once, exiting non-zero if any is unhealthy",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, heartbeatApp, err := loadApp(oneShot())
			if err != nil {
				logging.WithStacktrace(log.NewEntry(log.StandardLogger()), err).Error("Invalid configuration, exiting")
				return err
			}
			if err := heartbeatApp.Check(app.CreateContextWithShutdown()); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), healthcheck.Reason(err))
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), healthcheck.ConnectionHealthy)
			return nil
		},
	}
	return cmd
}
