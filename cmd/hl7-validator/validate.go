package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gofhir/hl7validator/pkg/batch"
	"github.com/gofhir/hl7validator/pkg/config"
	"github.com/gofhir/hl7validator/pkg/issue"
	"github.com/gofhir/hl7validator/pkg/store"
	"github.com/gofhir/hl7validator/pkg/validator"
)

// Output format constants.
const (
	OutputText = "text"
	OutputJSON = "json"
)

var validateFlags struct {
	format    string
	strict    bool
	profile   string
	separator string
	batch     bool
	quiet     bool
	save      bool
}

var validateCmd = &cobra.Command{
	Use:   "validate [file|glob|-]...",
	Short: "Validate HL7 v2 messages",
	Long: `Validate HL7 v2 messages read from files or stdin ("-").

Each file holds one message unless --batch is given, in which case the file
is split into messages (FHS/BHS batch envelopes are skipped) and every
message is reported on its own.

The command exits with status 1 when any message has errors.

Examples:
  hl7-validator validate lab.hl7
  hl7-validator validate --strict 'inbox/*.hl7'
  hl7-validator validate --batch --format json nightly.hl7
  cat lab.hl7 | hl7-validator validate -`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateFlags.format, "format", "o", OutputText, "output format: text, json")
	validateCmd.Flags().BoolVar(&validateFlags.strict, "strict", false, "treat warnings as errors")
	validateCmd.Flags().StringVar(&validateFlags.profile, "profile", "", "profile file (overrides config)")
	validateCmd.Flags().StringVar(&validateFlags.separator, "separator", "", "segment separator: lf, cr, crlf (overrides config)")
	validateCmd.Flags().BoolVar(&validateFlags.batch, "batch", false, "split each input into messages")
	validateCmd.Flags().BoolVarP(&validateFlags.quiet, "quiet", "q", false, "only show errors and warnings")
	validateCmd.Flags().BoolVar(&validateFlags.save, "save", false, "record results in the history store")
}

// MessageOutput is the JSON form of one validated message.
type MessageOutput struct {
	Source      string          `json:"source"`
	Index       int             `json:"index"`
	ControlID   string          `json:"control_id,omitempty"`
	MessageType string          `json:"message_type,omitempty"`
	Grammar     string          `json:"grammar,omitempty"`
	Valid       bool            `json:"valid"`
	Errors      int             `json:"errors"`
	Warnings    int             `json:"warnings"`
	Info        int             `json:"info"`
	Issues      []store.Finding `json:"issues,omitempty"`
	Duration    string          `json:"duration,omitempty"`
	Error       string          `json:"error,omitempty"`
}

type validateRun struct {
	cfg     *config.Config
	v       *validator.Validator
	store   *store.Store
	out     io.Writer
	errOut  io.Writer
	stdin   io.Reader
	outputs []MessageOutput
	failed  bool
}

func runValidate(cmd *cobra.Command, args []string) error {
	format := strings.ToLower(validateFlags.format)
	if format != OutputText && format != OutputJSON {
		return fmt.Errorf("unsupported format %q (use text or json)", validateFlags.format)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if validateFlags.strict {
		cfg.Validator.Strict = true
	}
	if validateFlags.profile != "" {
		cfg.Validator.Profile = validateFlags.profile
	}
	if validateFlags.separator != "" {
		cfg.Validator.SegmentSeparator = validateFlags.separator
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	v, err := newValidator(cfg, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize validator: %w", err)
	}

	r := &validateRun{
		cfg:     cfg,
		v:       v,
		out:     cmd.OutOrStdout(),
		errOut:  cmd.ErrOrStderr(),
		stdin:   cmd.InOrStdin(),
		outputs: []MessageOutput{},
	}
	if format == OutputJSON {
		r.out = io.Discard
	}
	if validateFlags.save {
		if r.store, err = openStore(cfg); err != nil {
			return err
		}
		defer r.store.Close()
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	for _, arg := range args {
		if arg == "-" {
			r.source(ctx, "stdin", r.stdin)
			continue
		}
		matches, err := filepath.Glob(arg)
		if err != nil {
			fmt.Fprintf(r.errOut, "Error with pattern '%s': %v\n", arg, err)
			r.failed = true
			continue
		}
		if len(matches) == 0 {
			fmt.Fprintf(r.errOut, "No files match pattern: %s\n", arg)
			r.failed = true
			continue
		}
		for _, path := range matches {
			f, err := os.Open(path)
			if err != nil {
				r.fail(path, 0, fmt.Errorf("failed to read file: %w", err))
				continue
			}
			r.source(ctx, path, f)
			f.Close()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if format == OutputJSON {
		if err := writeJSON(cmd.OutOrStdout(), r.outputs); err != nil {
			return err
		}
	}

	if r.failed {
		return errInvalid
	}
	return nil
}

// source validates everything read from rd under the given name.
func (r *validateRun) source(ctx context.Context, name string, rd io.Reader) {
	if !validateFlags.batch {
		data, err := io.ReadAll(rd)
		if err != nil {
			r.fail(name, 0, fmt.Errorf("failed to read input: %w", err))
			return
		}
		result, err := r.v.Validate(ctx, data)
		if err != nil {
			r.fail(name, 0, fmt.Errorf("validation failed: %w", err))
			return
		}
		r.report(ctx, name, 0, result)
		return
	}

	fn := func(ctx context.Context, data []byte) (*issue.Result, error) {
		return r.v.Validate(ctx, data)
	}
	bv := batch.New(fn).
		WithSegmentSeparator(r.cfg.Validator.Separator()).
		WithWorkerCount(r.cfg.Validator.Workers)

	var summary batch.Summary
	for res := range bv.ValidateStream(ctx, rd) {
		summary.Add(res)
		if res.Error != nil {
			r.fail(name, res.Index, res.Error)
			continue
		}
		r.report(ctx, name, res.Index, res.Result)
	}
	fmt.Fprintf(r.out, "%s: %d message(s), %d valid, %d invalid, %d failed\n\n",
		name, summary.Total, summary.Valid, summary.Invalid, summary.Failed)
}

func (r *validateRun) report(ctx context.Context, name string, index int, result *issue.Result) {
	o := MessageOutput{
		Source:   name,
		Index:    index,
		Valid:    !result.HasErrors(),
		Errors:   result.ErrorCount(),
		Warnings: result.WarningCount(),
		Info:     result.InfoCount(),
		Issues:   store.Findings(result),
	}
	if s := result.Stats; s != nil {
		o.ControlID = s.ControlID
		o.MessageType = s.MessageType
		o.Grammar = s.Grammar
		o.Duration = time.Duration(s.Duration).Round(time.Microsecond).String()
	}
	r.outputs = append(r.outputs, o)
	if result.HasErrors() {
		r.failed = true
	}

	title := name
	if validateFlags.batch {
		title = fmt.Sprintf("%s [message %d]", name, index+1)
	}
	printTextResult(r.out, title, result)

	if r.store != nil {
		if err := r.store.Save(ctx, store.NewRun(name, result)); err != nil {
			fmt.Fprintf(r.errOut, "Error recording %s: %v\n", title, err)
		}
	}
}

func (r *validateRun) fail(name string, index int, err error) {
	r.failed = true
	r.outputs = append(r.outputs, MessageOutput{
		Source: name,
		Index:  index,
		Errors: 1,
		Error:  err.Error(),
	})
	fmt.Fprintf(r.out, "Error validating %s: %v\n", name, err)
}

func printTextResult(w io.Writer, name string, result *issue.Result) {
	status := "VALID"
	if result.HasErrors() {
		status = "INVALID"
	}

	fmt.Fprintf(w, "== %s ==\n", name)
	fmt.Fprintf(w, "Status: %s\n", status)
	fmt.Fprintf(w, "Errors: %d, Warnings: %d, Info: %d\n", result.ErrorCount(), result.WarningCount(), result.InfoCount())

	if s := result.Stats; s != nil {
		if s.MessageType != "" {
			fmt.Fprintf(w, "Message: %s (control ID %s)\n", s.MessageType, s.ControlID)
		}
		fmt.Fprintf(w, "Grammar: %s\n", s.Grammar)
		fmt.Fprintf(w, "Duration: %s\n", time.Duration(s.Duration).Round(time.Microsecond))
	}

	if len(result.Issues) > 0 {
		fmt.Fprintln(w, "\nIssues:")
		for _, iss := range result.Issues {
			if validateFlags.quiet && iss.Severity == issue.SeverityInformation {
				continue
			}
			where := ""
			if len(iss.Expression) > 0 {
				where = fmt.Sprintf(" @ %s", strings.Join(iss.Expression, ", "))
			}
			if iss.Location != nil {
				where += fmt.Sprintf(" (line %d, column %d)", iss.Location.Line, iss.Location.Column)
			}
			fmt.Fprintf(w, "  %s [%s] %s%s\n", severityLabel(iss.Severity), iss.Code, iss.Diagnostics, where)
		}
	}

	fmt.Fprintln(w)
}

func severityLabel(severity issue.Severity) string {
	switch severity {
	case issue.SeverityError:
		return "ERROR"
	case issue.SeverityWarning:
		return "WARN "
	case issue.SeverityInformation:
		return "INFO "
	default:
		return "     "
	}
}
