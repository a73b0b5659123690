package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	hl7validator "github.com/gofhir/hl7validator"
	"github.com/gofhir/hl7validator/pkg/config"
	"github.com/gofhir/hl7validator/pkg/logger"
	"github.com/gofhir/hl7validator/pkg/metrics"
	"github.com/gofhir/hl7validator/pkg/store"
	"github.com/gofhir/hl7validator/pkg/validator"
)

var (
	// Global flags
	cfgFile  string
	logLevel string
)

// errInvalid reports that at least one message failed validation. It sets
// the exit code without printing anything more.
var errInvalid = errors.New("validation failed")

var rootCmd = &cobra.Command{
	Use:   "hl7-validator",
	Short: "HL7 v2 electronic lab report validator",
	Long: `hl7-validator checks HL7 v2 ORU^R01 electronic lab reports.

Each message is first matched against the segment grammar of its profile.
Messages with a valid structure are then checked field by field; findings
are reported as errors or warnings with their line and column.`,
	Version:       hl7validator.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errInvalid) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or TOML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
}

// loadConfig loads the configuration and installs its logger as the default.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		if _, err := logger.ParseLevel(logLevel); err != nil {
			return nil, err
		}
		cfg.Log.Level = logLevel
	}
	logger.SetDefault(cfg.NewLogger(cmd.ErrOrStderr()))
	return cfg, nil
}

func newValidator(cfg *config.Config, m *metrics.Metrics) (*validator.Validator, error) {
	opts, err := cfg.ValidatorOptions(m)
	if err != nil {
		return nil, err
	}
	return validator.New(opts...)
}

func openStore(cfg *config.Config) (*store.Store, error) {
	if dir := filepath.Dir(cfg.Store.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	return store.Open(cfg.Store.Path)
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
