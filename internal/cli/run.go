package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/courier/internal/load/config"
	"github.com/wesleyorama2/courier/internal/load/engine"
	"github.com/wesleyorama2/courier/internal/load/executor"
	"github.com/wesleyorama2/courier/internal/load/metrics"
	"github.com/wesleyorama2/courier/internal/load/output"
	"github.com/wesleyorama2/courier/internal/logging"
)

// updateInterval is how often the live display refreshes.
var updateInterval = time.Second

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load test against the delivery API",
		Long: `Run simulated users against a delivery API.

Constant users (hold 50 users, spawned 5 per second, for 10 minutes):
  courier run --host https://api.example.com -u 50 -r 5 -t 10m

Built-in staged shape (10 users, hold, 20 users, hold, drain):
  courier run --host https://api.example.com --default-shape

Custom stages (duration:users:spawnRate[:name]):
  courier run --host https://api.example.com \
    --stages "30s:10:2:warm,1m:10:2,30s:0:2:drain"

Config file, with flags overriding its values:
  courier run -c delivery.yaml --users 100`,
		RunE: runLoadTest,
	}

	f := cmd.Flags()
	f.StringP("config", "c", "", "Configuration file (YAML or JSON)")
	f.String("name", "", "Test name shown in the report")
	f.StringP("host", "H", "", "Target base URL, e.g. https://api.example.com")
	f.String("prefix", "", "API path prefix (default \"/api\")")
	f.String("timeout", "", "Request timeout (default 30s)")
	f.Bool("insecure", false, "Skip TLS certificate verification")

	f.IntP("users", "u", 0, "Number of concurrent users")
	f.Float64P("spawn-rate", "r", 0, "Users started (or stopped) per second; 0 changes them all at once (default 1)")
	f.StringP("duration", "t", "", "Test duration, e.g. 90s, 10m or 600")

	f.Bool("default-shape", false, "Use the built-in staged load shape")
	f.String("stages", "", "Stage table 'duration:users:spawnRate[:name],...'")
	f.String("poll-interval", "", "How often the load shape is consulted (default 1s)")

	f.String("wait-min", "", "Minimum pause between actions (default 1s)")
	f.String("wait-max", "", "Maximum pause between actions (default 3s)")
	f.Float64("auth-probability", 0, "Probability that a new user logs in first (default 0.3)")

	f.Bool("json", false, "Write the result as JSON to stdout")
	f.StringP("output", "o", "", "Write the result as JSON to this file")
	f.BoolP("quiet", "q", false, "Disable live progress output, show only pass/fail")
	f.BoolP("verbose", "v", false, "Enable debug logging")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9646")

	return cmd
}

// runLoadTest runs the test described by flags and config file.
func runLoadTest(cmd *cobra.Command, args []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	quiet, _ := cmd.Flags().GetBool("quiet")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	outputPath, _ := cmd.Flags().GetString("output")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	testConfig, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.New(verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var observers []metrics.Observer
	if metricsAddr != "" {
		exporter := metrics.NewPrometheusExporter()
		stop, err := serveMetrics(metricsAddr, exporter.Handler(), logger)
		if err != nil {
			return err
		}
		defer stop()
		observers = append(observers, exporter)
	}

	eng, err := engine.NewEngine(testConfig, logger, observers...)
	if err != nil {
		return err
	}

	// With --json the document owns stdout; everything else goes to stderr.
	consoleWriter := cmd.OutOrStdout()
	if jsonOutput {
		consoleWriter = cmd.ErrOrStderr()
	}

	resolved := eng.GetConfig()
	console := output.NewConsoleOutput(output.ConsoleOutputConfig{
		TestName:     resolved.Name,
		ExecutorType: string(executor.ConfigFromTestConfig(resolved).Type),
		Writer:       consoleWriter,
		Quiet:        quiet,
	})
	console.PrintHeader(resolved.Settings.Host)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	result, runErr := runWithProgress(ctx, eng, console, quiet)
	if result == nil {
		return runErr
	}

	console.PrintSummary(result)

	if jsonOutput {
		if err := output.WriteJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	}
	if outputPath != "" {
		if err := output.WriteJSONFile(outputPath, result); err != nil {
			return err
		}
		if !quiet {
			fmt.Fprintf(consoleWriter, "Results written to: %s\n", outputPath)
		}
	}

	if runErr != nil {
		return runErr
	}
	if !result.Passed {
		return ErrThresholdsFailed
	}
	return nil
}

// runWithProgress runs the engine and refreshes the console until it
// returns.
func runWithProgress(ctx context.Context, eng *engine.Engine, console *output.ConsoleOutput, quiet bool) (*engine.TestResult, error) {
	type outcome struct {
		result *engine.TestResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := eng.Run(ctx)
		done <- outcome{result, err}
	}()

	ticker := time.NewTicker(updateInterval)
	defer ticker.Stop()

	for {
		select {
		case o := <-done:
			return o.result, o.err
		case <-ticker.C:
			if !eng.IsRunning() {
				continue
			}
			stats := output.StatsFromEngine(eng.GetMetrics(), eng.GetStats(), eng.GetProgress())
			if console.IsTTY() {
				console.Update(stats)
			} else if !quiet {
				console.PrintNonInteractiveUpdate(stats)
			}
		}
	}
}

// serveMetrics starts a Prometheus endpoint at addr. The returned function
// shuts it down.
func serveMetrics(addr string, handler http.Handler, logger *zap.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}

// buildConfig loads --config when given and applies every flag the user
// set, directly or through COURIER_* variables, on top of it.
func buildConfig(cmd *cobra.Command) (*config.TestConfig, error) {
	if err := applyEnv(cmd); err != nil {
		return nil, err
	}
	f := cmd.Flags()

	testConfig := &config.TestConfig{}
	if path, _ := f.GetString("config"); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		testConfig = loaded
	}

	if f.Changed("name") {
		testConfig.Name, _ = f.GetString("name")
	}
	if f.Changed("host") {
		testConfig.Settings.Host, _ = f.GetString("host")
	}
	if f.Changed("prefix") {
		testConfig.Settings.APIPrefix, _ = f.GetString("prefix")
	}
	if f.Changed("insecure") {
		testConfig.Settings.InsecureSkipVerify, _ = f.GetBool("insecure")
	}
	if f.Changed("users") {
		testConfig.Users.Count, _ = f.GetInt("users")
	}
	if f.Changed("spawn-rate") {
		r, _ := f.GetFloat64("spawn-rate")
		testConfig.Users.SpawnRate = &r
	}
	if f.Changed("auth-probability") {
		p, _ := f.GetFloat64("auth-probability")
		testConfig.Auth.Probability = &p
	}

	durations := []struct {
		flag string
		set  func(time.Duration)
	}{
		{"timeout", func(d time.Duration) { testConfig.Settings.Timeout = config.Duration(d) }},
		{"duration", func(d time.Duration) { testConfig.Users.Duration = config.Duration(d) }},
		{"wait-min", func(d time.Duration) { testConfig.Wait.Min = config.DurationOf(d) }},
		{"wait-max", func(d time.Duration) { testConfig.Wait.Max = config.DurationOf(d) }},
	}
	for _, d := range durations {
		if !f.Changed(d.flag) {
			continue
		}
		s, _ := f.GetString(d.flag)
		v, err := config.ParseDurationString(s)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", d.flag, err)
		}
		d.set(v)
	}

	if err := applyShapeFlags(cmd, testConfig); err != nil {
		return nil, err
	}

	return testConfig, nil
}

// applyShapeFlags turns --default-shape, --stages and --poll-interval into
// a shape block. Explicit shape flags replace any shape in the file.
func applyShapeFlags(cmd *cobra.Command, testConfig *config.TestConfig) error {
	f := cmd.Flags()

	defaultShape, _ := f.GetBool("default-shape")
	stagesFlag, _ := f.GetString("stages")
	if defaultShape && stagesFlag != "" {
		return fmt.Errorf("--default-shape and --stages are mutually exclusive")
	}

	if defaultShape || stagesFlag != "" {
		shapeConfig := &config.ShapeConfig{Default: defaultShape}
		if testConfig.Shape != nil {
			shapeConfig.PollInterval = testConfig.Shape.PollInterval
		}
		if stagesFlag != "" {
			stages, err := config.ParseStages(stagesFlag)
			if err != nil {
				return fmt.Errorf("--stages: %w", err)
			}
			shapeConfig.Stages = stages
		}
		testConfig.Shape = shapeConfig
	}

	if f.Changed("poll-interval") {
		if testConfig.Shape == nil {
			return fmt.Errorf("--poll-interval needs --default-shape, --stages or a shape in the config file")
		}
		s, _ := f.GetString("poll-interval")
		v, err := config.ParseDurationString(s)
		if err != nil {
			return fmt.Errorf("--poll-interval: %w", err)
		}
		testConfig.Shape.PollInterval = config.Duration(v)
	}

	return nil
}
