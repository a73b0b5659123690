package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/gofhir/hl7validator/pkg/store"
)

var historyFlags struct {
	format    string
	source    string
	invalid   bool
	limit     int
	since     time.Duration
	olderThan time.Duration
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded validation runs",
	Long: `Inspect the validation history recorded by serve, watch and
validate --save. The store path comes from the configuration file.`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one recorded run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete runs older than a given age",
	Args:  cobra.NoArgs,
	RunE:  runHistoryPrune,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyPruneCmd)

	historyCmd.PersistentFlags().StringVarP(&historyFlags.format, "format", "o", OutputText, "output format: text, json")

	historyListCmd.Flags().StringVar(&historyFlags.source, "source", "", "only runs from this source")
	historyListCmd.Flags().BoolVar(&historyFlags.invalid, "invalid", false, "only runs with errors")
	historyListCmd.Flags().IntVar(&historyFlags.limit, "limit", store.DefaultListLimit, "maximum number of runs")
	historyListCmd.Flags().DurationVar(&historyFlags.since, "since", 0, "only runs newer than this age (e.g. 24h)")

	historyPruneCmd.Flags().DurationVar(&historyFlags.olderThan, "older-than", 0, "delete runs older than this age (e.g. 720h)")
	historyPruneCmd.MarkFlagRequired("older-than") //nolint:errcheck // flag is defined above
}

func withHistory(cmd *cobra.Command, fn func(*store.Store) error) error {
	format := strings.ToLower(historyFlags.format)
	if format != OutputText && format != OutputJSON {
		return fmt.Errorf("unsupported format %q (use text or json)", historyFlags.format)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	return withHistory(cmd, func(st *store.Store) error {
		f := store.Filter{
			Source:      historyFlags.source,
			InvalidOnly: historyFlags.invalid,
			Limit:       historyFlags.limit,
		}
		if historyFlags.since > 0 {
			f.Since = time.Now().Add(-historyFlags.since)
		}
		runs, err := st.List(cmd.Context(), f)
		if err != nil {
			return err
		}
		if runs == nil {
			runs = []*store.Run{}
		}

		out := cmd.OutOrStdout()
		if strings.EqualFold(historyFlags.format, OutputJSON) {
			return writeJSON(out, runs)
		}

		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCREATED\tSOURCE\tCONTROL ID\tSTATUS\tERRORS\tWARNINGS")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
				r.ID, r.CreatedAt.Local().Format(time.DateTime), r.Source, r.ControlID,
				runStatus(r), len(r.Errors), len(r.Warnings))
		}
		return tw.Flush()
	})
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	return withHistory(cmd, func(st *store.Store) error {
		run, err := st.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if strings.EqualFold(historyFlags.format, OutputJSON) {
			return writeJSON(out, run)
		}

		fmt.Fprintf(out, "== %s ==\n", run.ID)
		fmt.Fprintf(out, "Source: %s\n", run.Source)
		fmt.Fprintf(out, "Created: %s\n", run.CreatedAt.Local().Format(time.RFC3339))
		fmt.Fprintf(out, "Status: %s\n", runStatus(run))
		if run.MessageType != "" {
			fmt.Fprintf(out, "Message: %s (control ID %s)\n", run.MessageType, run.ControlID)
		}
		fmt.Fprintf(out, "Grammar: %s\n", run.Grammar)
		if len(run.Findings) > 0 {
			fmt.Fprintln(out, "\nIssues:")
			for _, f := range run.Findings {
				where := ""
				if len(f.Expression) > 0 {
					where = " @ " + strings.Join(f.Expression, ", ")
				}
				if f.Line > 0 {
					where += fmt.Sprintf(" (line %d, column %d)", f.Line, f.Column)
				}
				fmt.Fprintf(out, "  %s [%s] %s%s\n", strings.ToUpper(f.Severity), f.Code, f.Diagnostics, where)
			}
		}
		return nil
	})
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	if historyFlags.olderThan <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}
	return withHistory(cmd, func(st *store.Store) error {
		n, err := st.Prune(cmd.Context(), time.Now().Add(-historyFlags.olderThan))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d run(s)\n", n)
		return nil
	})
}

func runStatus(r *store.Run) string {
	switch {
	case !r.StructureValid:
		return "REJECTED"
	case !r.Valid:
		return "INVALID"
	default:
		return "VALID"
	}
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
