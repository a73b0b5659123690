package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gofhir/hl7validator/pkg/config"
	"github.com/gofhir/hl7validator/pkg/logger"
	"github.com/gofhir/hl7validator/pkg/metrics"
	"github.com/gofhir/hl7validator/pkg/server"
)

var serveFlags struct {
	listen string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the validation HTTP API",
	Long: `Serve the validation HTTP API.

Routes:
  POST /v1/validate          validate one message (query: strict, source)
  POST /v1/validate/batch    validate a batch of messages
  GET  /v1/runs              list recorded runs (store enabled)
  GET  /v1/runs/:id          show a recorded run (store enabled)
  GET  /healthz              liveness
  GET  /metrics              Prometheus metrics (metrics enabled)`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveFlags.listen, "listen", "", "listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if serveFlags.listen != "" {
		cfg.Server.ListenAddress = serveFlags.listen
		if err := config.Validate(cfg); err != nil {
			return err
		}
	}

	m := metrics.New()
	v, err := newValidator(cfg, m)
	if err != nil {
		return fmt.Errorf("failed to initialize validator: %w", err)
	}

	var opts []server.Option
	if cfg.Metrics.Enabled {
		collector, err := metrics.NewCollector(m, metrics.CollectorConfig{Namespace: cfg.Metrics.Namespace}, nil)
		if err != nil {
			return err
		}
		opts = append(opts, server.WithCollector(collector))
	}
	if cfg.Store.Enabled {
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()
		opts = append(opts, server.WithStore(st))
		logger.Info("Recording validation history in %s", cfg.Store.Path)
	}

	srv := server.New(v, server.Config{
		ListenAddress:    cfg.Server.ListenAddress,
		ReadTimeout:      cfg.Server.ReadTimeout,
		WriteTimeout:     cfg.Server.WriteTimeout,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
		MaxBodyBytes:     cfg.Server.MaxBodyBytes,
		MetricsPath:      cfg.Metrics.Path,
		SegmentSeparator: cfg.Validator.Separator(),
	}, opts...)

	ctx, stop := signalContext(cmd)
	defer stop()
	return srv.Run(ctx)
}
