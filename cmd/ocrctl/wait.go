package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-ocr-gateway/internal/poller"
	"github.com/tendant/simple-ocr-gateway/pkg/schema"
)

type pollFlags struct {
	interval    time.Duration
	maxAttempts int
	backoff     bool
}

func (f *pollFlags) register(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&f.interval, "interval", poller.DefaultInterval, "Wait between status checks")
	cmd.Flags().IntVar(&f.maxAttempts, "max-attempts", poller.DefaultMaxAttempts, "Status checks before giving up")
	cmd.Flags().BoolVar(&f.backoff, "backoff", false, "Double the wait after every check, capped at 6x the interval; total wait stays within interval x (max-attempts - 1)")
}

func (f *pollFlags) poller() *poller.Poller {
	schedule := poller.Fixed(f.interval)
	if f.backoff {
		schedule = poller.ExponentialBackoff(f.interval, 6*f.interval)
	}
	return poller.New(api,
		poller.WithInterval(f.interval),
		poller.WithSchedule(schedule),
		poller.WithMaxAttempts(f.maxAttempts),
		poller.WithLogger(logger),
		poller.OnUpdate(func(s poller.State, rec *schema.JobRecord) {
			if rec != nil {
				logger.Debug("job update", "job_id", rec.JobID, "state", s, "status", rec.Status)
			}
		}),
	)
}

// signalContext is cancelled on interrupt so a running poll stops cleanly.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt)
}

var waitFlags pollFlags

var waitCmd = &cobra.Command{
	Use:   "wait <job-id>",
	Short: "Poll a job until it completes, fails or the attempts run out",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		out, err := waitFlags.poller().Poll(ctx, args[0])
		if err != nil {
			return err
		}
		if out.Job != nil {
			if err := printJSON(cmd.OutOrStdout(), out.Job); err != nil {
				return err
			}
		}
		return out.Err()
	},
}

func init() {
	waitFlags.register(waitCmd)
	rootCmd.AddCommand(waitCmd)
}
