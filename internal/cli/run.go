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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/galias/stressline/internal/config"
	"github.com/galias/stressline/internal/performance/engine"
	"github.com/galias/stressline/internal/performance/output"
)

var errThresholdsFailed = errors.New("some thresholds have failed")

type runFlags struct {
	scenarioFlags
	summaryExport string
	metricsAddr   string
	logLevel      string
	quiet         bool
	noColor       bool
}

func newRunCmd() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [scenario-file]",
		Short: "Run a stress scenario",
		Long: `Run the scenario in the given YAML or JSON file, or the built-in stress
scenario when no file is given.

Exit codes: 0 when every threshold passed, 99 when a threshold failed,
1 on configuration errors or when the run was interrupted.

Examples:
  APP_URL=https://app.example.com stressline run
  stressline run --url https://app.example.com/health
  stressline run scenario.yaml --summary-export summary.json --metrics-addr :9090`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress(cmd, args, flags)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&flags.summaryExport, "summary-export", "", "write the end-of-run summary to this file (.json, .yaml or .html)")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "silent, error, warn, info or debug")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "print only the verdict")
	cmd.Flags().BoolVar(&flags.noColor, "no-color", false, "disable colored output")

	return cmd
}

func runStress(cmd *cobra.Command, args []string, flags *runFlags) error {
	cfg, err := config.Use()
	if err != nil {
		return fmt.Errorf("invalid environment: %w", err)
	}
	if flags.logLevel != "" {
		if err := cfg.SetLogLevel(flags.logLevel); err != nil {
			return err
		}
	}
	if !cmd.Flags().Changed("metrics-addr") {
		flags.metricsAddr = cfg.MetricsAddr
	}
	if !cmd.Flags().Changed("summary-export") {
		flags.summaryExport = cfg.SummaryExport
	}
	noColor := flags.noColor || cfg.NoColor

	logger := cfg.Logger()
	logger.SetOutput(cmd.ErrOrStderr())

	file, err := flags.loadScenarioFile(args)
	if err != nil {
		return err
	}
	sc, err := file.Build()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []engine.Option{engine.WithLogger(logger)}
	if flags.metricsAddr != "" {
		opts = append(opts, engine.WithRegisterer(reg))
	}
	eng, err := engine.New(sc, opts...)
	if err != nil {
		return err
	}

	console := output.NewConsoleOutput(output.ConsoleOutputConfig{
		Writer:  cmd.OutOrStdout(),
		Quiet:   flags.quiet,
		NoColor: noColor,
	})
	console.PrintHeader(sc)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	runCtx, finish := context.WithCancel(gctx)
	defer finish()

	var result *engine.TestResult
	g.Go(func() error {
		defer finish()
		var err error
		result, err = eng.Run(gctx)
		return err
	})
	g.Go(func() error {
		return console.Watch(runCtx, 0, func() *output.LiveStats {
			return output.StatsFromEngine(eng.GetMetrics(), eng.GetStats(), eng.GetProgress())
		})
	})
	if flags.metricsAddr != "" {
		path := cfg.MetricsPath
		g.Go(func() error {
			return serveMetrics(runCtx, flags.metricsAddr, path, reg, logger)
		})
	}

	waitErr := g.Wait()
	if result == nil {
		return waitErr
	}

	console.PrintSummary(result)

	if flags.summaryExport != "" {
		if err := output.ExportSummary(flags.summaryExport, result); err != nil {
			return err
		}
		logger.WithField("path", flags.summaryExport).Info("summary written")
	}

	switch {
	case waitErr != nil:
		return waitErr
	case !result.Passed:
		return &exitError{code: ExitThresholdsFailed, err: errThresholdsFailed}
	case result.Aborted:
		return &exitError{code: ExitFailure, err: errors.New("run was interrupted")}
	}
	return nil
}

// serveMetrics exposes reg over HTTP until ctx is done.
func serveMetrics(ctx context.Context, addr, path string, reg *prometheus.Registry, logger logrus.FieldLogger) error {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logger.WithField("addr", ln.Addr().String()).WithField("path", path).Info("serving metrics")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
