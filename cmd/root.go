package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/laraaskovic/Adversarial-Regression-Testing-Engine/explore"
	"github.com/laraaskovic/Adversarial-Regression-Testing-Engine/explore/trace"
)

var (
	// CLI flags for the exploration run
	baseURL       string        // Target base URL
	extraTargets  []string      // Additional isolated target instances
	episodes      int           // Number of episodes
	steps         int           // Actions per episode
	seed          int64         // Seed of the first episode
	artifactsDir  string        // Where anomalous episodes are written
	epsilon       float64       // Exploration probability
	configPath    string        // Optional YAML bundle
	scriptPath    string        // Optional YAML list of forced actions
	rateLimit     float64       // Requests per second per target (0 = unlimited)
	timeout       time.Duration // Per-request timeout
	logLevel      string        // Log verbosity level
	traceLevel    string        // Decision trace level
	requireTarget bool          // Abort when a target fails the reachability probe

	// CLI flags for telemetry
	metricsAddr  string // Prometheus listen address
	otlpEndpoint string // OTLP gRPC collector endpoint
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "arte",
	Short: "Adversarial regression testing engine for stateful HTTP services",
}

// runCmd explores the target using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Explore a target and store replayable anomalous episodes",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel(logLevel)

		settings, err := resolveSettings(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if !trace.IsValidTraceLevel(traceLevel) {
			logrus.Fatalf("Unknown trace level %q. Valid: none, decisions", traceLevel)
		}
		if episodes < 0 || steps < 0 {
			logrus.Fatalf("--episodes and --steps must be >= 0")
		}

		catalog, err := settings.Catalog()
		if err != nil {
			logrus.Fatalf("Invalid action catalog: %v", err)
		}
		reward, err := explore.NewRewardModel(settings.Reward)
		if err != nil {
			logrus.Fatalf("Invalid reward configuration: %v", err)
		}
		policy, err := explore.NewEpsilonGreedy(settings.Epsilon)
		if err != nil {
			logrus.Fatalf("Invalid policy configuration: %v", err)
		}
		store, err := explore.NewArtifactStore(artifactsDir)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		var script []explore.ActionInstance
		if scriptPath != "" {
			script, err = explore.LoadScript(scriptPath)
			if err != nil {
				logrus.Fatalf("%v", err)
			}
		}

		var httpTargets []*explore.HTTPTarget
		for _, u := range append([]string{baseURL}, extraTargets...) {
			target, err := explore.NewHTTPTarget(u, settings.Target)
			if err != nil {
				logrus.Fatalf("%v", err)
			}
			httpTargets = append(httpTargets, target)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		targets := make([]explore.Target, 0, len(httpTargets))
		for _, target := range httpTargets {
			if err := target.Probe(ctx); err != nil {
				if requireTarget {
					logrus.Fatalf("%v", err)
				}
				logrus.Warnf("%v; exploring anyway", err)
			}
			targets = append(targets, target)
		}

		metrics, err := explore.NewMetrics()
		if err != nil {
			logrus.Fatalf("Failed to create metrics: %v", err)
		}
		shutdown, err := startTelemetry(ctx, metricsAddr, otlpEndpoint, metrics)
		if err != nil {
			logrus.Fatalf("Failed to start telemetry: %v", err)
		}

		var sessionTrace *trace.SessionTrace
		if traceLevel != "" && traceLevel != string(trace.TraceLevelNone) {
			sessionTrace = trace.NewSessionTrace(trace.TraceLevel(traceLevel))
		}

		explorer, err := explore.NewExplorer(explore.ExplorerConfig{
			Catalog: catalog,
			Reward:  reward,
			Policy:  policy,
			Store:   store,
			Script:  script,
			Metrics: metrics,
			Trace:   sessionTrace,
		})
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		logrus.Infof("Starting session %s: %d episodes x %d steps, seed=%d, epsilon=%.2f, targets=%d",
			explorer.Session(), episodes, steps, seed, settings.Epsilon, len(targets))

		summary, runErr := explorer.Run(ctx, targets, explore.RunConfig{
			Episodes: episodes,
			Steps:    steps,
			Seed:     seed,
		})
		printRunSummary(os.Stdout, summary, artifactsDir)
		if sessionTrace != nil {
			printTraceSummary(os.Stdout, trace.Summarize(sessionTrace))
		}
		shutdown()

		switch {
		case runErr == nil:
			logrus.Info("Exploration complete.")
		case errors.Is(runErr, context.Canceled):
			logrus.Warn("Exploration interrupted.")
		default:
			logrus.Fatalf("Exploration failed: %v", runErr)
		}
	},
}

// setLogLevel applies a --log value or exits.
func setLogLevel(level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", level)
	}
	logrus.SetLevel(parsed)
}

// resolveSettings layers defaults, the YAML bundle, then explicitly set flags.
func resolveSettings(cmd *cobra.Command) (explore.Settings, error) {
	settings := explore.DefaultSettings()
	if configPath != "" {
		bundle, err := explore.LoadBundle(configPath)
		if err != nil {
			return settings, err
		}
		bundle.Apply(&settings)
		logrus.Infof("Loaded config bundle %s", configPath)
	}
	if cmd.Flags().Changed("epsilon") {
		settings.Epsilon = epsilon
	}
	if cmd.Flags().Changed("rate") {
		settings.Target.RateLimit = rateLimit
	}
	if cmd.Flags().Changed("timeout") {
		settings.Target.Timeout = timeout
	}
	return settings, nil
}

// printRunSummary writes one line per episode and a closing total.
func printRunSummary(w io.Writer, summary *explore.RunSummary, dir string) {
	if summary == nil {
		return
	}
	for idx, ep := range summary.Episodes {
		if ep == nil {
			continue
		}
		if n := len(ep.Anomalies()); n > 0 {
			fmt.Fprintf(w, "[episode %d] seed=%d anomalies=%d stored_at=%s\n", idx, ep.Seed, n, ep.ArtifactPath)
		} else {
			fmt.Fprintf(w, "[episode %d] seed=%d no anomalies\n", idx, ep.Seed)
		}
	}
	fmt.Fprintf(w, "Done. Stored %d replayable episodes in %s\n", len(summary.Artifacts), dir)
}

func printTraceSummary(w io.Writer, ts *trace.TraceSummary) {
	fmt.Fprintf(w, "decisions=%d explore=%d exploit=%d fallback=%d scripted=%d ties=%d unique_actions=%d\n",
		ts.TotalDecisions, ts.ExploreCount, ts.ExploitCount, ts.FallbackCount, ts.ScriptedCount,
		ts.TieCount, ts.UniqueActions)
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().StringVar(&baseURL, "base-url", explore.DefaultReplayBaseURL, "Target base URL")
	runCmd.Flags().StringSliceVar(&extraTargets, "target", nil, "Additional isolated target base URLs; episodes run in parallel, one worker per target")
	runCmd.Flags().IntVar(&episodes, "episodes", 3, "How many episodes to run")
	runCmd.Flags().IntVar(&steps, "steps", 12, "Steps per episode")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed of the first episode; episode i uses seed+i")
	runCmd.Flags().StringVar(&artifactsDir, "artifacts", "artifacts/episodes", "Where to store replayable anomalous episodes")
	runCmd.Flags().Float64Var(&epsilon, "epsilon", explore.DefaultEpsilon, "Exploration probability in [0, 1]")
	runCmd.Flags().StringVar(&configPath, "config", "", "YAML config bundle")
	runCmd.Flags().StringVar(&scriptPath, "script", "", "YAML list of actions forced at the start of every episode")
	runCmd.Flags().Float64Var(&rateLimit, "rate", 0, "Max requests per second per target (0 = unlimited)")
	runCmd.Flags().DurationVar(&timeout, "timeout", explore.DefaultTargetTimeout, "Per-request timeout")
	runCmd.Flags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().StringVar(&traceLevel, "trace", "none", "Decision trace level (none, decisions)")
	runCmd.Flags().BoolVar(&requireTarget, "require-target", false, "Abort when a target does not answer GET /state before exploring")

	// Telemetry
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	runCmd.Flags().StringVar(&otlpEndpoint, "otlp-endpoint", "", "Export traces to this OTLP gRPC endpoint (e.g. localhost:4317)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
}
