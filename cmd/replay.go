package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/laraaskovic/Adversarial-Regression-Testing-Engine/explore"
)

var (
	replayBaseURL    string        // Overrides the recorded base URL
	replayTimeout    time.Duration // Per-request timeout
	replayLogLevel   string        // Log verbosity level
	replayConfigPath string        // YAML bundle used when the episode was recorded
)

// replayCmd re-executes a stored episode against a fresh target
var replayCmd = &cobra.Command{
	Use:   "replay PATH",
	Short: "Deterministically replay a stored episode",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel(replayLogLevel)

		rec, err := explore.LoadEpisode(args[0])
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		url := explore.ResolveBaseURL(replayBaseURL, rec)
		cfg, err := replayTargetConfig(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		target, err := explore.NewHTTPTarget(url, cfg)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logrus.Infof("Replaying %d steps of seed %d against %s", len(rec.Steps), rec.Seed, url)
		report := explore.Replay(ctx, target, rec)
		printReplayReport(os.Stdout, report)
	},
}

// replayTargetConfig applies the bundle's target and marker settings so
// fresh markers follow the rules the episode was recorded with. An explicit
// --timeout wins over the bundle.
func replayTargetConfig(cmd *cobra.Command) (explore.TargetConfig, error) {
	settings := explore.DefaultSettings()
	if replayConfigPath != "" {
		bundle, err := explore.LoadBundle(replayConfigPath)
		if err != nil {
			return settings.Target, err
		}
		bundle.Apply(&settings)
	}
	if replayConfigPath == "" || cmd.Flags().Changed("timeout") {
		settings.Target.Timeout = replayTimeout
	}
	return settings.Target, nil
}

// printReplayReport writes one row per step and the divergence count.
// Divergence is reported, not treated as failure. Marker differences are
// shown on the row but not counted.
func printReplayReport(w io.Writer, report *explore.ReplayReport) {
	for _, res := range report.Results {
		fmt.Fprintf(w, "step=%d status=%d expected=%d anomalies=%v", res.Step, res.ActualStatus, res.ExpectedStatus, res.AnomalyMarkers)
		if res.SignatureDiverged() {
			fmt.Fprint(w, " state=diverged")
		}
		if res.MarkersDiverged() {
			fmt.Fprintf(w, " expected_anomalies=%v", res.ExpectedMarkers)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "divergences=%d/%d\n", report.Divergences(), len(report.Results))
}

func init() {
	replayCmd.Flags().StringVar(&replayBaseURL, "base-url", "", "Override the recorded target base URL")
	replayCmd.Flags().DurationVar(&replayTimeout, "timeout", explore.DefaultTargetTimeout, "Per-request timeout")
	replayCmd.Flags().StringVar(&replayConfigPath, "config", "", "YAML config bundle the episode was recorded with")
	replayCmd.Flags().StringVar(&replayLogLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
}
