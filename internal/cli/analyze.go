package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/sprite-ai/impactgate/internal/diff"
	"github.com/sprite-ai/impactgate/internal/impact"
	"github.com/sprite-ai/impactgate/internal/model"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [description]",
	Short: "Analyze a planned change and report its gate (non-interactive)",
	Long: `Run the impact pipeline on a planned change and print the report.
Useful for CI, pre-commit hooks and agent lifecycle hooks.

Exit codes:
  0 - gate clear
  1 - gate has warnings
  2 - gate blocked`,
	Example: `  impactgate analyze "Add refresh tokens to auth" --module auth
  impactgate analyze --diff main..HEAD --format json
  git diff | impactgate analyze --diff - "Rework billing export"`,
	RunE: runAnalyze,
}

func init() {
	addInputFlags(analyzeCmd)
	analyzeCmd.Flags().StringP("format", "f", "text", "output format: text, json, markdown")
	analyzeCmd.Flags().Bool("if-needed", false, "skip the analysis unless the trigger heuristics fire")
}

// addInputFlags registers the flags that describe a change.
func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("file", nil, "target file (repeatable)")
	cmd.Flags().StringSlice("module", nil, "target module (repeatable)")
	cmd.Flags().String("spec", "", "spec id the change implements")
	cmd.Flags().String("task", "", "task id the change belongs to")
	cmd.Flags().String("type", "", "change type; inferred when empty")
	cmd.Flags().String("graph", "", "knowledge graph YAML file")
	cmd.Flags().String("repo", "", "repository to scan for imports")
	cmd.Flags().String("diff", "", `diff source: HEAD (working tree), a range like main..HEAD, a patch file, or - for stdin`)
	cmd.Flags().Lookup("diff").NoOptDefVal = "HEAD"
}

// changeInput assembles the input described by args and the input flags.
func changeInput(cmd *cobra.Command, args []string) (model.ChangeInput, error) {
	files, _ := cmd.Flags().GetStringSlice("file")
	modules, _ := cmd.Flags().GetStringSlice("module")
	spec, _ := cmd.Flags().GetString("spec")
	task, _ := cmd.Flags().GetString("task")
	changeType, _ := cmd.Flags().GetString("type")

	in := model.ChangeInput{
		Description:   strings.Join(args, " "),
		TargetFiles:   files,
		TargetModules: modules,
		SpecID:        spec,
		TaskID:        task,
		ChangeType:    model.ChangeType(changeType),
	}
	if in.ChangeType != "" && !in.ChangeType.Valid() {
		return in, fmt.Errorf("unknown change type %q", changeType)
	}

	if src, _ := cmd.Flags().GetString("diff"); src != "" {
		repoDir := "."
		if src != "-" {
			if root, err := diff.RepoRoot(cmd.Context()); err == nil {
				repoDir = root
			}
		}
		ds, err := diff.Load(cmd.Context(), repoDir, src, os.ReadFile)
		if err != nil {
			return in, err
		}
		fromDiff := diff.Annotate(ds.ChangeInput(in.Description), ds.Scan())
		in.Description = fromDiff.Description
		for _, f := range fromDiff.TargetFiles {
			if !slices.Contains(in.TargetFiles, f) {
				in.TargetFiles = append(in.TargetFiles, f)
			}
		}
	}

	if strings.TrimSpace(in.Description) == "" && len(in.TargetFiles) == 0 && len(in.TargetModules) == 0 {
		return in, fmt.Errorf("describe the change, pass --diff, or name --file/--module targets")
	}
	return in, nil
}

// applyGraphFlags lets --graph and --repo override the configuration.
func applyGraphFlags(cmd *cobra.Command) {
	if g, _ := cmd.Flags().GetString("graph"); g != "" {
		cfg.Graph.File = g
	}
	if r, _ := cmd.Flags().GetString("repo"); r != "" {
		cfg.Graph.Repo = r
	}
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	in, err := changeInput(cmd, args)
	if err != nil {
		return err
	}
	applyGraphFlags(cmd)

	svc, _, err := newService(cmd.Context(), false)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	format, _ := cmd.Flags().GetString("format")

	if ifNeeded, _ := cmd.Flags().GetBool("if-needed"); ifNeeded {
		d := svc.ShouldAnalyze(impact.TriggerInput{
			Description: in.Description,
			Files:       in.TargetFiles,
			Modules:     in.TargetModules,
			SpecID:      in.SpecID,
			TaskID:      in.TaskID,
		})
		if !d.Analyze {
			if format == "json" {
				return outputJSON(out, d)
			}
			fmt.Fprintln(out, "No analysis needed.")
			return nil
		}
		logger.Debug("analysis triggered", slog.Any("reasons", d.Reasons))
	}

	a, err := svc.Analyze(cmd.Context(), in)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		err = outputJSON(out, a)
	case "markdown":
		err = outputMarkdown(out, a)
	case "text":
		err = outputText(out, a)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return err
	}
	return gateExit(a.Gate.Status)
}

// gateExit turns a gate status into the command's exit code.
func gateExit(s model.GateStatus) error {
	switch s {
	case model.GateBlocked:
		return &ExitError{Code: 2}
	case model.GateWarning:
		return &ExitError{Code: 1}
	default:
		return nil
	}
}

func statusIcon(s model.GateStatus) string {
	switch s {
	case model.GateBlocked:
		return "[x]"
	case model.GateWarning:
		return "[!]"
	default:
		return "[ok]"
	}
}

func severityIcon(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return "!!"
	case model.SeverityHigh:
		return "! "
	case model.SeverityMedium:
		return "* "
	default:
		return "- "
	}
}

func outputText(w io.Writer, a *model.ImpactAnalysis) error {
	fmt.Fprintf(w, "%s Gate %s: %s\n", statusIcon(a.Gate.Status), strings.ToUpper(string(a.Gate.Status)), a.Input.Description)
	fmt.Fprintf(w, "Analysis %s (%s, confidence %.2f)\n\n", a.ID, a.Parsed.ChangeType, a.Parsed.Confidence)

	fmt.Fprintf(w, "Scope: %d primary, %d dependent module(s), %d file(s)\n",
		len(a.Scope.PrimaryModules), len(a.Scope.DependentModules), len(a.Scope.AllFiles()))
	for _, m := range a.Scope.PrimaryModules {
		fmt.Fprintf(w, "  * %s\n", m)
	}
	for _, d := range a.Scope.DependentModules {
		fmt.Fprintf(w, "  - %s (%s): %s\n", d.Name, d.ImpactLevel, d.Reason)
	}
	fmt.Fprintln(w)

	if len(a.Risks) > 0 {
		fmt.Fprintf(w, "Risks (%d)\n", len(a.Risks))
		for _, r := range a.Risks {
			fmt.Fprintf(w, "  %s [%s] %s: %s\n", severityIcon(r.Severity), r.Severity, r.Name, r.Description)
		}
		fmt.Fprintln(w)
	}

	if len(a.Gate.Blockers) > 0 {
		fmt.Fprintf(w, "Blockers (%d)\n", len(a.Gate.Blockers))
		for _, b := range a.Gate.Blockers {
			fmt.Fprintf(w, "  %s  %s (%s)\n", b.ItemID, b.Title, b.Reason)
		}
		fmt.Fprintln(w)
	}
	if len(a.Gate.Warnings) > 0 {
		fmt.Fprintf(w, "Warnings (%d)\n", len(a.Gate.Warnings))
		for _, g := range a.Gate.Warnings {
			fmt.Fprintf(w, "  %s\n", g.Message)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Validations (%d)\n", len(a.Validations))
	for _, v := range a.Validations {
		mark := " "
		if v.IsBlocking {
			mark = "*"
		}
		fmt.Fprintf(w, "  %s %s", mark, v.Title)
		if v.VerifyCommand != "" {
			fmt.Fprintf(w, "  $ %s", v.VerifyCommand)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func outputJSON(w io.Writer, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return diff.Highlight(w, "out.json", buf.String())
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func outputMarkdown(w io.Writer, a *model.ImpactAnalysis) error {
	fmt.Fprintf(w, "## Impact Analysis\n\n")
	fmt.Fprintf(w, "**Change:** %s\n\n", a.Input.Description)
	fmt.Fprintf(w, "**Gate:** %s | **Type:** %s | **Risks:** %d | **Validations:** %d\n\n",
		strings.ToUpper(string(a.Gate.Status)), a.Parsed.ChangeType, len(a.Risks), len(a.Validations))

	if len(a.Scope.DependentModules) > 0 {
		fmt.Fprintln(w, "### Affected modules")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "| Module | Impact | Depth | Reason |")
		fmt.Fprintln(w, "|--------|--------|-------|--------|")
		for _, d := range a.Scope.DependentModules {
			fmt.Fprintf(w, "| `%s` | %s | %d | %s |\n", d.ID, d.ImpactLevel, d.Depth, d.Reason)
		}
		fmt.Fprintln(w)
	}

	if len(a.Risks) > 0 {
		fmt.Fprintln(w, "### Risks")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "| Severity | Risk | Blocking | Mitigation |")
		fmt.Fprintln(w, "|----------|------|----------|------------|")
		for _, r := range a.Risks {
			fmt.Fprintf(w, "| %s | %s | %t | %s |\n", r.Severity, r.Name, r.IsBlocking, r.Mitigation)
		}
		fmt.Fprintln(w)
	}

	if len(a.Gate.Blockers) > 0 {
		fmt.Fprintln(w, "### Blockers")
		fmt.Fprintln(w)
		for _, b := range a.Gate.Blockers {
			fmt.Fprintf(w, "- `%s` %s: %s\n", b.ItemID, b.Title, b.Reason)
		}
		fmt.Fprintln(w)
	}

	if len(a.Validations) > 0 {
		fmt.Fprintln(w, "### Validations")
		fmt.Fprintln(w)
		for _, v := range a.Validations {
			line := v.Title
			if v.VerifyCommand != "" {
				line += fmt.Sprintf(" (`%s`)", v.VerifyCommand)
			}
			fmt.Fprintf(w, "- [ ] %s\n", line)
		}
	}
	return nil
}
