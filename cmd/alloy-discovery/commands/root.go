package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cloudless/alloy-discovery/pkg/config"
	"github.com/cloudless/alloy-discovery/pkg/controller"
	"github.com/cloudless/alloy-discovery/pkg/discovery"
	"github.com/cloudless/alloy-discovery/pkg/nomad"
	"github.com/cloudless/alloy-discovery/pkg/observability"
	"github.com/cloudless/alloy-discovery/pkg/transport"
)

// NewRootCommand creates the alloy-discovery command. Run without a
// subcommand it keeps the Alloy targets file in sync with the allocations
// on the local node.
func NewRootCommand(info BuildInfo) *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "alloy-discovery",
		Short: "Generate Grafana Alloy log targets from Nomad allocations",
		Long: `alloy-discovery runs inside a Nomad allocation, lists every allocation
scheduled on the same node, and writes a loki.source.file target list for
Grafana Alloy covering the stdout and stderr logs of each running task.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", info.Version, info.GitCommit, info.BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v, info)
		},
	}

	if err := config.BindFlags(v, rootCmd.PersistentFlags()); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(NewVersionCommand(info))
	rootCmd.AddCommand(NewTargetsCommand(v))
	rootCmd.AddCommand(NewCheckCommand(v))

	return rootCmd
}

func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newNomadClient(cfg *config.Config, logger *zap.Logger) (*nomad.Client, error) {
	tr, err := transport.New(cfg.NomadAddr, transport.WithToken(cfg.NomadToken))
	if err != nil {
		return nil, fmt.Errorf("failed to create nomad transport: %w", err)
	}
	return nomad.NewClient(tr, logger), nil
}

func run(ctx context.Context, v *viper.Viper, info BuildInfo) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	if cfg.AllocID == "" {
		return errors.New("allocation id is required (NOMAD_ALLOC_ID or --alloc-id)")
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("Starting Nomad to Alloy discovery generator",
		zap.String("version", info.Version),
		zap.String("nomad_addr", cfg.NomadAddr),
		zap.String("output_file", cfg.OutputFile),
		zap.String("log_dir", cfg.LogDir),
		zap.String("loki_endpoint", cfg.LokiEndpoint),
		zap.Bool("continuous", cfg.Continuous),
		zap.Duration("refresh_interval", cfg.RefreshInterval),
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := newNomadClient(cfg, logger)
	if err != nil {
		return err
	}

	tracer, err := observability.NewTracerProvider(observability.TracerConfig{
		Enabled:        cfg.Tracing.Enabled,
		Endpoint:       cfg.Tracing.Endpoint,
		ServiceName:    "alloy-discovery",
		ServiceVersion: info.Version,
		SampleRate:     cfg.Tracing.SampleRate,
		Insecure:       true,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	writer := discovery.NewWriter(cfg.OutputFile, discovery.RenderOptions{
		LokiEndpoint: cfg.LokiEndpoint,
	}, logger)

	ctrl, err := controller.New(&controller.Config{
		ControlPlane: client,
		Writer:       writer,
		Logger:       logger,
		AllocID:      cfg.AllocID,
		LogBaseDir:   cfg.LogDir,
		Interval:     cfg.RefreshInterval,
		Continuous:   cfg.Continuous,
	})
	if err != nil {
		return fmt.Errorf("failed to create controller: %w", err)
	}

	var metricsServer *observability.MetricsServer
	if cfg.MetricsAddr != "" {
		metricsServer = observability.NewMetricsServer(cfg.MetricsAddr, ctrl.Ready, logger)
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	runErr := ctrl.Run(ctx)
	if runErr != nil {
		logger.Error("Discovery generator failed", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping metrics server", zap.Error(err))
		}
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error stopping tracer provider", zap.Error(err))
	}

	return runErr
}
