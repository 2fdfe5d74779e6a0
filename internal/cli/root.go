package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-engine/internal/app"
	"github.com/noah-isme/sma-timetable-engine/pkg/config"
	"github.com/noah-isme/sma-timetable-engine/pkg/logger"
)

var (
	cfg          *config.Config
	logr         *zap.Logger
	flagLogLevel string
)

// NewRootCmd creates the root command of the operator CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "timetablectl",
		Short: "Operate the SMA timetable engine",
		Long:  "timetablectl runs migrations, polls and sweeps generation jobs, exports reports and mints operator tokens.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if flagLogLevel != "" {
				loaded.Log.Level = flagLogLevel
			}
			cfg = loaded
			logr, err = logger.New(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logr != nil {
				_ = logr.Sync()
			}
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")

	root.AddCommand(
		newMigrateCmd(),
		newPollCmd(),
		newSweepCmd(),
		newReportCmd(),
		newTokenCmd(),
	)
	return root
}

// withContainer wires the services for the duration of one command. The
// escalation queue runs so critical violations raised by the command are
// still delivered.
func withContainer(ctx context.Context, fn func(c *app.Container) error) error {
	c, err := app.New(cfg, logr)
	if err != nil {
		return err
	}
	defer c.Close()
	c.Notifier.Start(ctx)
	return fn(c)
}
