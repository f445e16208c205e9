package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/hotline/internal/call"
	"github.com/haasonsaas/hotline/internal/config"
	"github.com/haasonsaas/hotline/internal/forecast"
	"github.com/haasonsaas/hotline/internal/gateway"
	"github.com/haasonsaas/hotline/internal/observability"
)

const defaultConfigPath = "hotline.yaml"

// buildServeCmd creates the "serve" command that runs the webhook server.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the hotline webhook server",
		Long: `Start the hotline webhook server.

The server will:
1. Load configuration from the specified file (or hotline.yaml)
2. Connect to the call automation platform
3. Listen for incoming-call notifications and call lifecycle events
4. Expose health checks on /healthz and metrics on /metrics

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  hotline serve

  # Start with custom config and debug logging
  hotline serve --config /etc/hotline/production.yaml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath,
		"Path to configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	return cmd
}

// buildCallCmd creates the "call" command that places the configured
// outbound call without going through the HTTP route.
func buildCallCmd() *cobra.Command {
	var (
		configPath string
		to         string
		from       string
	)

	cmd := &cobra.Command{
		Use:   "call",
		Short: "Place an outbound call",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd.Context(), configPath, to, from)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath,
		"Path to configuration file")
	cmd.Flags().StringVar(&to, "to", "", "Destination number (overrides config)")
	cmd.Flags().StringVar(&from, "from", "", "Caller-id number (overrides config)")

	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if debug {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
	})
	slog.SetDefault(logger)

	metrics := observability.NewMetrics()
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "hotline",
		ServiceVersion: version,
		Endpoint:       cfg.Tracing.Endpoint,
		EnableInsecure: cfg.Tracing.Insecure,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(shutdownCtx) //nolint:errcheck
	}()

	client, err := call.NewACSClient(call.ACSConfig{
		ConnectionString: cfg.Calling.ConnectionString,
	})
	if err != nil {
		return err
	}

	resolver, err := forecast.NewAccuWeather(forecast.AccuWeatherConfig{
		BaseURL: cfg.Forecast.BaseURL,
		APIKey:  cfg.Forecast.APIKey,
		Timeout: cfg.Forecast.Timeout,
	})
	if err != nil {
		return err
	}

	machine, err := call.NewMachine(call.MachineConfig{
		Client:    client,
		Resolver:  resolver,
		Logger:    logger.With("component", "call"),
		Metrics:   metrics,
		VoiceName: cfg.Calling.VoiceName,
	})
	if err != nil {
		return err
	}

	server, err := gateway.NewServer(gateway.Options{
		Config:  cfg,
		Logger:  logger.With("component", "gateway"),
		Metrics: metrics,
		Tracer:  tracer,
		Client:  client,
		Machine: machine,
	})
	if err != nil {
		return err
	}

	if err := server.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server.Stop(shutdownCtx)
	return nil
}

func runCall(ctx context.Context, configPath, to, from string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: "text",
	})

	if to == "" {
		to = cfg.Calling.Outbound.TargetNumber
	}
	if from == "" {
		from = cfg.Calling.Outbound.CallerIDNumber
	}
	if to == "" || from == "" {
		return errors.New("outbound destination and caller-id are required " +
			"(set calling.outbound in config or pass --to/--from)")
	}

	client, err := call.NewACSClient(call.ACSConfig{
		ConnectionString: cfg.Calling.ConnectionString,
	})
	if err != nil {
		return err
	}

	callbackURL := gateway.CallbackURL(cfg.Calling.CallbackBaseURL, to)
	if err := client.PlaceCall(ctx, &call.PlaceCallInput{
		TargetNumber:              to,
		CallerIDNumber:            from,
		CallbackURL:               callbackURL,
		CognitiveServicesEndpoint: cfg.Calling.CognitiveServicesEndpoint,
	}); err != nil {
		return err
	}

	logger.Info("placed outbound call", "to", to, "from", from)
	return nil
}
