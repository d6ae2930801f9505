// Command clickstorm fires concurrent clicks at a lanes server and verifies
// the resulting click count and lane.
package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/lanes/internal/clickstorm"
	"github.com/okian/lanes/internal/domain/lane"
	"github.com/okian/lanes/pkg/logger"
	"github.com/spf13/cobra"
)

// Default configuration constants.
const (
	defaultActors     = 100
	defaultDuplicates = 50
	defaultWorkers    = 2 // multiplier for runtime.NumCPU()
	defaultTimeout    = 10 * time.Second
	defaultRunTimeout = 5 * time.Minute
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	cfg := clickstorm.Config{Thresholds: lane.DefaultThresholds()}
	var (
		format     string
		runTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:          "clickstorm",
		Short:        "Fire concurrent clicks at one item and verify where it lands",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(logger.WithFormat(format), logger.WithOutput(cmd.ErrOrStderr())); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout)
			defer cancel()

			stats, err := clickstorm.Run(ctx, cfg, logger.Get().Named("clickstorm"))
			if stats != nil {
				cmd.Printf("accepted=%d duplicate=%d failed=%d throttled=%d migrations=%d count=%d lane=%s duration=%s\n",
					stats.Accepted, stats.Duplicate, stats.Failed, stats.Throttled,
					stats.Migrations, stats.FinalCount, stats.FinalLane, stats.Duration)
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "base URL of the service")
	f.StringVar(&cfg.ItemID, "item", "", "item to click (default: a fresh id)")
	f.IntVar(&cfg.Actors, "actors", defaultActors, "distinct actors, one click each")
	f.IntVar(&cfg.Duplicates, "duplicates", defaultDuplicates, "duplicate clicks replayed from the same actors")
	f.IntVar(&cfg.Workers, "workers", runtime.NumCPU()*defaultWorkers, "concurrent workers")
	f.Float64Var(&cfg.Rate, "rate", 0, "client-side requests per second (0 = unlimited)")
	f.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "HTTP request timeout")
	f.IntVar(&cfg.Thresholds.PromoteToTrending, "promote-to-trending", cfg.Thresholds.PromoteToTrending, "server trending threshold")
	f.IntVar(&cfg.Thresholds.PromoteToGraduated, "promote-to-graduated", cfg.Thresholds.PromoteToGraduated, "server graduated threshold")
	f.BoolVarP(&cfg.Verbose, "verbose", "v", false, "log every click")
	f.StringVar(&format, "log-format", "text", "log format (text|json)")
	f.DurationVar(&runTimeout, "run-timeout", defaultRunTimeout, "overall deadline")
	return cmd
}
