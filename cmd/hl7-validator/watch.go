package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gofhir/hl7validator/pkg/config"
	"github.com/gofhir/hl7validator/pkg/issue"
	"github.com/gofhir/hl7validator/pkg/logger"
	"github.com/gofhir/hl7validator/pkg/metrics"
	"github.com/gofhir/hl7validator/pkg/store"
	"github.com/gofhir/hl7validator/pkg/watch"
)

var watchFlags struct {
	dir      string
	existing bool
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Validate files dropped into a directory",
	Long: `Watch a directory and validate every matching file written to it.

Files may hold a single message or a batch. Results are logged and, when
the store is enabled, recorded in the validation history.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchFlags.dir, "dir", "", "directory to watch (overrides config)")
	watchCmd.Flags().BoolVar(&watchFlags.existing, "existing", false, "also validate files already in the directory")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if watchFlags.dir != "" {
		cfg.Watch.Dir = watchFlags.dir
		if err := config.Validate(cfg); err != nil {
			return err
		}
	}

	m := metrics.New()
	v, err := newValidator(cfg, m)
	if err != nil {
		return fmt.Errorf("failed to initialize validator: %w", err)
	}

	var st *store.Store
	if cfg.Store.Enabled {
		if st, err = openStore(cfg); err != nil {
			return err
		}
		defer st.Close()
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	fn := func(ctx context.Context, data []byte) (*issue.Result, error) {
		return v.Validate(ctx, data)
	}
	w, err := watch.New(watch.Config{
		Dir:              cfg.Watch.Dir,
		Extensions:       cfg.Watch.Extensions,
		Workers:          cfg.Watch.Workers,
		SegmentSeparator: cfg.Validator.Separator(),
		Existing:         watchFlags.existing,
	}, fn, recordReport(ctx, st))
	if err != nil {
		return err
	}

	err = w.Run(ctx)
	logger.Info("Validated %d message(s), %d valid, %d rejected by grammar",
		m.ValidationsTotal(), m.ValidationsValid(), m.StructureRejected())
	return err
}

// recordReport saves every validated message of a report when st is set.
func recordReport(ctx context.Context, st *store.Store) func(watch.Report) {
	return func(r watch.Report) {
		if st == nil || r.Err != nil {
			return
		}
		source := filepath.Base(r.Path)
		for _, res := range r.Results {
			if res.Error != nil || res.Result == nil {
				continue
			}
			// ctx may already be canceled while the last files drain
			if err := st.Save(context.WithoutCancel(ctx), store.NewRun(source, res.Result)); err != nil {
				logger.Error("Failed to record message %d of %s: %v", res.Index, source, err)
			}
		}
	}
}
