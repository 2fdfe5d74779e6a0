package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/sma-timetable-engine/internal/app"
	"github.com/noah-isme/sma-timetable-engine/internal/dto"
	"github.com/noah-isme/sma-timetable-engine/internal/models"
)

type jobPoller interface {
	Poll(ctx context.Context, actor *models.JWTClaims, jobID string) (*dto.GenerationJobResponse, error)
}

func newPollCmd() *cobra.Command {
	var (
		jobID    string
		interval time.Duration
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Poll a generation job until it completes or fails",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				interval = cfg.Generation.PollInterval
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return withContainer(ctx, func(c *app.Container) error {
				job, err := pollUntilTerminal(ctx, c.Generation, jobID, interval, func(job *dto.GenerationJobResponse) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %-10s %3d%%  %s\n", time.Now().Format(time.TimeOnly), job.Status, job.Progress, job.Message)
				})
				if err != nil {
					return err
				}
				if job.Error != nil {
					return fmt.Errorf("job %s failed: %s", job.JobID, *job.Error)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "job %s completed with %d lessons\n", job.JobID, job.LessonCount)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "Generation job ID")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Delay between polls (defaults to GENERATION_POLL_INTERVAL)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "Give up after this long")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}

// pollUntilTerminal polls until the job reaches a terminal status or ctx ends.
// The operator polls without a school scope.
func pollUntilTerminal(ctx context.Context, poller jobPoller, jobID string, interval time.Duration, report func(*dto.GenerationJobResponse)) (*dto.GenerationJobResponse, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := poller.Poll(ctx, nil, jobID)
		if err != nil {
			return nil, err
		}
		if report != nil {
			report(job)
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, fmt.Errorf("job %s still %s: %w", jobID, job.Status, ctx.Err())
		case <-ticker.C:
		}
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Fail every generation job whose lease has expired",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(c *app.Container) error {
				n, err := c.Sweeper.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "expired %d generation job(s)\n", n)
				return nil
			})
		},
	}
}
