package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/ajitpratap0/parquetry/pkg/logger"
	"github.com/ajitpratap0/parquetry/pkg/observability"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// app carries the state shared by all subcommands of one invocation.
type app struct {
	v       *viper.Viper
	logger  *zap.Logger
	jobID   string
	cleanup []func(context.Context) error
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("PARQUETRY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	return v
}

func newRootCommand() *cobra.Command {
	a := &app{v: newViper(), logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "parquetry",
		Short: "Parquetry - accelerated columnar file writer",
		Long: `Parquetry writes tables into Parquet files, encoding pages on an
accelerator and streaming finished column chunks to local files, S3 or GCS.`,
		SilenceUsage:       true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}

	flags := root.PersistentFlags()
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-encoding", "console", "Log encoding (json, console)")
	flags.String("trace", "none", "Trace exporter (none, stdout)")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address while the command runs")
	addWriterFlags(flags)

	root.AddCommand(
		newVersionCommand(),
		newConfigCommand(a),
		newConvertCommand(a),
		newMergeCommand(a),
		newInspectCommand(a),
		newIngestCommand(a),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Parquetry v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

// setup binds flags, initializes logging, tracing and the metrics endpoint,
// and tags the command context with a job id.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:    a.v.GetString("log-level"),
		Encoding: a.v.GetString("log-encoding"),
	}); err != nil {
		return err
	}

	tc := observability.DefaultConfig()
	tc.ServiceVersion = version
	if a.v.IsSet("trace") {
		tc.ExporterType = a.v.GetString("trace")
	}
	shutdown, err := observability.InitTracing(tc)
	if err != nil {
		return err
	}
	a.cleanup = append(a.cleanup, shutdown)

	if addr := a.v.GetString("metrics-addr"); addr != "" {
		a.serveMetrics(addr)
	}

	a.jobID = uuid.NewString()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, logger.JobIDKey, a.jobID)
	cmd.SetContext(ctx)
	a.logger = logger.WithContext(ctx).With(zap.String("command", cmd.Name()))
	return nil
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	a.cleanup = append(a.cleanup, srv.Shutdown)
}

func (a *app) teardown(*cobra.Command, []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		errs = append(errs, a.cleanup[i](ctx))
	}
	a.cleanup = nil
	_ = logger.Sync()
	return errors.Join(errs...)
}
